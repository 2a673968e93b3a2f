package autosave

import "strings"

// Category is a coarse classification of a terminal save error, used only to
// pick user-facing messaging. Control flow never branches on it.
type Category string

const (
	CategoryNetwork    Category = "network"
	CategoryValidation Category = "validation"
	CategoryUnknown    Category = "unknown"
)

var networkMarkers = []string{
	"connection refused",
	"connection reset",
	"timeout",
	"timed out",
	"no such host",
	"network",
	"broken pipe",
	"eof",
}

var validationMarkers = []string{
	"invalid",
	"validation",
	"required",
	"too large",
	"malformed",
}

// Classify inspects an error's message and guesses whether the failure was
// network-class or validation-class.
func Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range networkMarkers {
		if strings.Contains(msg, marker) {
			return CategoryNetwork
		}
	}
	for _, marker := range validationMarkers {
		if strings.Contains(msg, marker) {
			return CategoryValidation
		}
	}
	return CategoryUnknown
}
