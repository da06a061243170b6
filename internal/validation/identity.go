// Package validation holds input checks shared by the service layer.
package validation

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxSecretBytes is the longest secret bcrypt will hash without truncation.
const MaxSecretBytes = 72

// MaxNameLength bounds the display name in characters.
const MaxNameLength = 120

// MaxDateOfBirthLength bounds the free-form date of birth field.
const MaxDateOfBirthLength = 64

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9\-]+(\.[a-zA-Z0-9\-]+)*\.[a-zA-Z]{2,}$`)

// ValidateEmail checks that email is present and well-formed.
func ValidateEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return fmt.Errorf("email is required")
	}
	if len(email) > 254 {
		return fmt.Errorf("email must not exceed 254 characters")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format")
	}
	return nil
}

// ValidateSecret checks that a plaintext secret is present and hashable.
func ValidateSecret(secret string) error {
	if secret == "" {
		return fmt.Errorf("password is required")
	}
	if len(secret) > MaxSecretBytes {
		return fmt.Errorf("password must not exceed %d bytes", MaxSecretBytes)
	}
	return nil
}

// ValidateName checks the optional display name length.
func ValidateName(name string) error {
	if utf8.RuneCountInString(name) > MaxNameLength {
		return fmt.Errorf("name must not exceed %d characters", MaxNameLength)
	}
	return nil
}

// ValidateDateOfBirth checks the optional date of birth length. The value is free-form.
func ValidateDateOfBirth(dob string) error {
	if utf8.RuneCountInString(dob) > MaxDateOfBirthLength {
		return fmt.Errorf("dob must not exceed %d characters", MaxDateOfBirthLength)
	}
	return nil
}
