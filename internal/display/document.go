// Package display applies sensor events to the named elements of a page.
package display

import "errors"

// Logical element names the page must expose.
const (
	TargetTemperature  = "temperature"
	TargetHumidity     = "humidity"
	TargetMQ135Value   = "mq135Value"
	TargetMQ135Quality = "mq135Quality"
	TargetPMValue      = "pmValue"
	TargetPMQuality    = "pmQuality"
	TargetCurrentTime  = "currentTime"
)

// Targets lists every name the updater and the clock stamp write to.
var Targets = []string{
	TargetTemperature,
	TargetHumidity,
	TargetMQ135Value,
	TargetMQ135Quality,
	TargetPMValue,
	TargetPMQuality,
	TargetCurrentTime,
}

var ErrTargetNotFound = errors.New("display target not found")

// Element is a handle to one addressable node. Handles are only valid for the
// call that resolved them.
type Element interface {
	SetText(text string)
	SetClassName(class string)
	AddClass(class string)
}

// Document resolves elements by logical name. Implementations return an
// error wrapping ErrTargetNotFound when the name is absent.
type Document interface {
	ElementByID(id string) (Element, error)
}
