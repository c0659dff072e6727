package display

import "strings"

// BaseQualityClass is always present on a classified element.
const BaseQualityClass = "sensor-quality"

const (
	QualityGood          = "quality-good"
	QualityModerate      = "quality-moderate"
	QualityPoor          = "quality-poor"
	QualityUnhealthy     = "quality-unhealthy"
	QualityVeryUnhealthy = "quality-very-unhealthy"
	QualityHazardous     = "quality-Hazardous"
	QualityUnknown       = "quality-unknown"
)

// QualityClasses is every class QualityClass can return.
var QualityClasses = []string{
	QualityGood,
	QualityModerate,
	QualityPoor,
	QualityUnhealthy,
	QualityVeryUnhealthy,
	QualityHazardous,
	QualityUnknown,
}

// QualityClass maps a label to its single class. The first five labels match
// case-insensitively; "Hazardous" only matches with that exact spelling.
func QualityClass(label string) string {
	switch strings.ToLower(label) {
	case "good":
		return QualityGood
	case "moderate":
		return QualityModerate
	case "poor":
		return QualityPoor
	case "unhealthy":
		return QualityUnhealthy
	case "very unhealthy":
		return QualityVeryUnhealthy
	}
	if label == "Hazardous" {
		return QualityHazardous
	}
	return QualityUnknown
}

// ClassifyQuality writes the raw label into el and replaces its classes with
// the base class plus exactly one quality class.
func ClassifyQuality(el Element, label string) {
	el.SetText(label)
	el.SetClassName(BaseQualityClass)
	el.AddClass(QualityClass(label))
}
