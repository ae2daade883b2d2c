package dicom

import (
	"fmt"
	"strings"
)

// ValidationError reports mandatory elements missing from a dataset after
// defaulting had its chance to run.
type ValidationError struct {
	SOPClassUID string
	Missing     []Tag
}

func (e *ValidationError) Error() string {
	names := make([]string, len(e.Missing))
	for i, t := range e.Missing {
		names[i] = t.Name()
	}
	return fmt.Sprintf("dicom: dataset for SOP class %s missing mandatory elements: %s",
		e.SOPClassUID, strings.Join(names, ", "))
}

// EncodingError reports that a byte stream cannot be produced or parsed:
// truncation, descending tag order, odd-length values, oversized values.
type EncodingError struct {
	Msg string
	Tag Tag
}

func (e *EncodingError) Error() string {
	if (e.Tag != Tag{}) {
		return fmt.Sprintf("dicom: encoding error at %s: %s", e.Tag, e.Msg)
	}
	return "dicom: encoding error: " + e.Msg
}

func encodingErr(tag Tag, format string, args ...any) *EncodingError {
	return &EncodingError{Tag: tag, Msg: fmt.Sprintf(format, args...)}
}
