package views

import (
	"bytes"
	"embed"
	"errors"
	"html/template"
	"io"
	"io/fs"

	"airwatch/internal/display"
)

//go:embed templates
var viewsFS embed.FS

var pageTmpl *template.Template

func loadTemplatesFromFS(fsys fs.FS, dir string) error {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		return err
	}
	t, err := template.ParseFS(sub, "*.html", "partials/*.html")
	if err != nil {
		return err
	}
	pageTmpl = t
	return nil
}

// LoadTemplates parses the embedded page. Call once at startup.
func LoadTemplates() error {
	return loadTemplatesFromFS(viewsFS, "templates")
}

type PageData struct {
	Title  string
	WSPath string
}

// RenderPage writes the display page with every target in its initial state.
func RenderPage(w io.Writer, data PageData) error {
	if pageTmpl == nil {
		return errors.New("page template not loaded: call views.LoadTemplates during startup")
	}
	return pageTmpl.ExecuteTemplate(w, "index.html", data)
}

// NewDocument renders the page and parses it into a live document.
func NewDocument(data PageData) (*display.HTMLDocument, error) {
	var buf bytes.Buffer
	if err := RenderPage(&buf, data); err != nil {
		return nil, err
	}
	return display.ParseHTML(&buf)
}
