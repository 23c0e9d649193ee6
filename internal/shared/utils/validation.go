package utils

import (
	"errors"
	"fmt"
	"regexp"
	"unicode/utf8"
)

// ErrValidation wraps every validation failure
var ErrValidation = errors.New("validation failed")

// Size limits (in bytes)
const (
	MaxCodeSize    = 1 * 1024 * 1024 // 1MB - script source per run
	MaxAnswerSize  = 64 * 1024       // 64KB - prompt answer
	MaxMessageSize = 16 * 1024       // 16KB - single WebSocket frame read limit base
)

// MaxIDLength bounds run, dialog and request ids
const MaxIDLength = 128

// SafeIDPattern allows alphanumeric, hyphens, underscores
var SafeIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// ValidateString checks length bounds and UTF-8 validity
func ValidateString(value, fieldName string, minLen, maxLen int, required bool) error {
	if value == "" {
		if required {
			return fmt.Errorf("%w: %s is required", ErrValidation, fieldName)
		}
		return nil
	}

	if !utf8.ValidString(value) {
		return fmt.Errorf("%w: %s contains invalid UTF-8", ErrValidation, fieldName)
	}

	length := len(value)
	if length < minLen {
		return fmt.Errorf("%w: %s must be at least %d bytes", ErrValidation, fieldName, minLen)
	}
	if maxLen > 0 && length > maxLen {
		return fmt.Errorf("%w: %s must be at most %d bytes", ErrValidation, fieldName, maxLen)
	}
	return nil
}

// ValidateID checks a host-minted identifier
func ValidateID(id, fieldName string, required bool) error {
	if err := ValidateString(id, fieldName, 1, MaxIDLength, required); err != nil {
		return err
	}
	if id != "" && !SafeIDPattern.MatchString(id) {
		return fmt.Errorf("%w: %s contains invalid characters", ErrValidation, fieldName)
	}
	return nil
}

// ValidateCode checks script source submitted for a run. Empty source is a
// valid run that finishes immediately; only encoding and size are checked.
func ValidateCode(code string) error {
	return ValidateString(code, "code", 0, MaxCodeSize, false)
}

// ValidateAnswer checks a prompt answer; nil means cancel and is valid
func ValidateAnswer(value *string) error {
	if value == nil {
		return nil
	}
	return ValidateString(*value, "value", 0, MaxAnswerSize, false)
}
