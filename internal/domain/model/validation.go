package model

import (
	"strings"
	"unicode/utf16"
)

// MaxTextExplanationLength is the upper bound of a text question, in UTF-16
// code units (characters outside the BMP count twice).
const MaxTextExplanationLength = 5000

// TextLength returns the length of s in UTF-16 code units.
func TextLength(s string) int {
	n := 0
	for _, r := range s {
		if l := utf16.RuneLen(r); l > 0 {
			n += l
		} else {
			n++
		}
	}
	return n
}

// Field keys reported by ValidateSubmission.
const (
	FieldTaskType           = "taskType"
	FieldTextExplanation    = "textExplanation"
	FieldTextTooLong        = "textExplanation_too_long"
	FieldImageURL           = "imageUrl"
	FieldMessage            = "message"
	FieldTextRequiredMsg    = "Text is required"
	FieldTextTooLongMsg     = "Text is too long"
	FieldImageRequiredMsg   = "Image is required"
	FieldMessageRequiredMsg = "Message is required"
)

type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError is returned for malformed input before any I/O happens.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Has reports whether field failed validation.
func (e *ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

func (e *ValidationError) add(field, msg string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: msg})
}

// ValidateSubmission checks the fields required by the task type.
// It returns nil or a *ValidationError.
func ValidateSubmission(taskType TaskType, text, imageURL string) error {
	verr := &ValidationError{}
	switch taskType {
	case TaskTypeText:
		if strings.TrimSpace(text) == "" {
			verr.add(FieldTextExplanation, FieldTextRequiredMsg)
		}
		if TextLength(text) > MaxTextExplanationLength {
			verr.add(FieldTextTooLong, FieldTextTooLongMsg)
		}
	case TaskTypeImage:
		if strings.TrimSpace(imageURL) == "" {
			verr.add(FieldImageURL, FieldImageRequiredMsg)
		}
	default:
		verr.add(FieldTaskType, "Unknown task type")
	}
	if len(verr.Errors) > 0 {
		return verr
	}
	return nil
}

// ValidateDraft validates the fields of d that will be committed.
func ValidateDraft(d *Draft) error {
	return ValidateSubmission(d.Type, d.TextExplanation, d.ImageURL)
}
