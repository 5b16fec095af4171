package types

import (
	"fmt"
	"regexp"
)

// MRN represents a medical record number: exactly six digits.
// Leading zeros are significant, so it is carried as a string.
type MRN string

var mrnRegex = regexp.MustCompile(`^\d{6}$`)

// ParseMRN validates and parses an MRN string
func ParseMRN(s string) (MRN, error) {
	if !mrnRegex.MatchString(s) {
		return "", fmt.Errorf("MRN must be exactly 6 digits")
	}
	return MRN(s), nil
}

// String returns the string representation
func (m MRN) String() string {
	return string(m)
}

// Masked returns a masked version for display (last 2 digits visible)
func (m MRN) Masked() string {
	if len(m) != 6 {
		return "******"
	}
	return "****" + string(m)[4:]
}

// IsValid reports whether the MRN matches the required format
func (m MRN) IsValid() bool {
	return mrnRegex.MatchString(string(m))
}

// IsZero checks if the MRN is empty
func (m MRN) IsZero() bool {
	return m == ""
}
