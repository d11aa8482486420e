package validation

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

const maxIdentityLength = 128

// ValidateIdentity validates a signaling identity. Identities are free-form
// labels chosen by clients; the relay only requires them to be non-empty,
// printable UTF-8 of a bounded length.
func ValidateIdentity(identity string) error {
	if strings.TrimSpace(identity) == "" {
		return fmt.Errorf("identity is required")
	}
	if utf8.RuneCountInString(identity) > maxIdentityLength {
		return fmt.Errorf("identity is too long (max %d characters)", maxIdentityLength)
	}
	if !utf8.ValidString(identity) {
		return fmt.Errorf("identity is not valid UTF-8")
	}
	for _, r := range identity {
		if unicode.IsControl(r) {
			return fmt.Errorf("identity contains control characters")
		}
	}
	return nil
}

// ValidateNonEmptyString validates that string is not empty after trimming
func ValidateNonEmptyString(s, fieldName string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return fmt.Errorf("%s is required", fieldName)
	}
	return nil
}

// ValidateStringLength validates string length
func ValidateStringLength(s string, min, max int, fieldName string) error {
	length := utf8.RuneCountInString(s)
	if length < min {
		return fmt.Errorf("%s must be at least %d characters", fieldName, min)
	}
	if length > max {
		return fmt.Errorf("%s is too long (max %d characters)", fieldName, max)
	}
	return nil
}
