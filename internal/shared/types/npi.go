package types

import (
	"fmt"
	"regexp"
)

// NPI represents a National Provider Identifier: exactly ten digits.
type NPI string

var npiRegex = regexp.MustCompile(`^\d{10}$`)

// ParseNPI validates and parses an NPI string
func ParseNPI(s string) (NPI, error) {
	if !npiRegex.MatchString(s) {
		return "", fmt.Errorf("NPI must be exactly 10 digits")
	}
	return NPI(s), nil
}

// String returns the string representation
func (n NPI) String() string {
	return string(n)
}

// IsValid reports whether the NPI matches the required format
func (n NPI) IsValid() bool {
	return npiRegex.MatchString(string(n))
}

// IsZero checks if the NPI is empty
func (n NPI) IsZero() bool {
	return n == ""
}
