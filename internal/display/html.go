package display

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"

	"golang.org/x/net/html"
)

// HTMLDocument is a parsed page. It is not safe for concurrent use.
type HTMLDocument struct {
	root *html.Node
}

func ParseHTML(r io.Reader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return &HTMLDocument{root: root}, nil
}

// Element walks the tree for the first element whose id attribute equals id.
func (d *HTMLDocument) Element(id string) (*HTMLElement, error) {
	for n := range d.root.Descendants() {
		if n.Type == html.ElementNode && attr(n, "id") == id {
			return &HTMLElement{node: n}, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", id, ErrTargetNotFound)
}

func (d *HTMLDocument) ElementByID(id string) (Element, error) {
	el, err := d.Element(id)
	if err != nil {
		return nil, err
	}
	return el, nil
}

func (d *HTMLDocument) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

func (d *HTMLDocument) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := d.Render(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type HTMLElement struct {
	node *html.Node
}

// Text returns the concatenated text of the element's subtree.
func (e *HTMLElement) Text() string {
	var b strings.Builder
	for n := range e.node.Descendants() {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
	}
	return b.String()
}

func (e *HTMLElement) ClassName() string {
	return attr(e.node, "class")
}

func (e *HTMLElement) Attr(key string) string {
	return attr(e.node, key)
}

// Classes splits the class attribute on whitespace.
func (e *HTMLElement) Classes() []string {
	return strings.Fields(e.ClassName())
}

func (e *HTMLElement) SetText(text string) {
	for c := e.node.FirstChild; c != nil; {
		next := c.NextSibling
		e.node.RemoveChild(c)
		c = next
	}
	e.node.AppendChild(&html.Node{Type: html.TextNode, Data: text})
}

func (e *HTMLElement) SetClassName(class string) {
	setAttr(e.node, "class", class)
}

func (e *HTMLElement) AddClass(class string) {
	classes := e.Classes()
	if slices.Contains(classes, class) {
		return
	}
	setAttr(e.node, "class", strings.Join(append(classes, class), " "))
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val
		}
	}
	return ""
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}
