package hierarchy

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf16"
)

// MaxTagLength is the maximum tag length in UTF-16 code units, matching the
// length the browser reports.
const MaxTagLength = 50

// ErrInvalidTag matches every ValidationError via errors.Is.
var ErrInvalidTag = errors.New("invalid tag")

// ValidationError describes rejected tag input.
type ValidationError struct {
	Input  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid tag %q: %s", e.Input, e.Reason)
}

// Is reports ErrInvalidTag as a match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrInvalidTag
}

// Validate checks raw user input and returns the trimmed tag name.
func Validate(raw string) (string, error) {
	tag := strings.TrimSpace(raw)
	if tag == "" {
		return "", &ValidationError{Input: raw, Reason: "tag name is empty"}
	}
	if n := len(utf16.Encode([]rune(tag))); n > MaxTagLength {
		return "", &ValidationError{
			Input:  raw,
			Reason: fmt.Sprintf("tag name must be %d characters or less (got %d)", MaxTagLength, n),
		}
	}
	for _, seg := range Parse(tag) {
		if strings.TrimSpace(seg) == "" {
			return "", &ValidationError{Input: raw, Reason: "tag path contains an empty segment"}
		}
	}
	return tag, nil
}
