package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var accessionRegex = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,63}$`)

// ValidateAccession validates a catalog accession identifier. Empty is allowed.
func ValidateAccession(accession string) error {
	if accession == "" {
		return nil
	}
	if !accessionRegex.MatchString(accession) {
		return fmt.Errorf("accession must be 1-64 characters of letters, digits, '.', '_' or '-'")
	}
	return nil
}

// ValidateCultivarName requires a non-blank cultivar name of reasonable length.
func ValidateCultivarName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("cultivar_name is required")
	}
	if len(trimmed) > 255 {
		return fmt.Errorf("cultivar_name must not exceed 255 characters")
	}
	return nil
}
