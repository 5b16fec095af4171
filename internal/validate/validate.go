// Package validate holds the field-level checks applied to order intake
// forms before anything touches the database.
package validate

import (
	"regexp"
	"strings"

	"github.com/carebridge/platform/internal/shared/types"
)

var (
	// ICD-10: one letter, two digits, then an optional dot followed by
	// alphanumeric subclassification characters (E11.9, M05.79, J45).
	icd10Regex = regexp.MustCompile(`^[A-Za-z][0-9]{2}(\.[0-9A-Za-z]*)?$`)

	// Person names: Unicode letters (accents included), spaces, hyphens
	// and apostrophes. Digits and other punctuation are rejected.
	nameRegex = regexp.MustCompile(`^[\p{L}\p{M}]+(?:[ '\-][\p{L}\p{M}]+)*$`)
)

// MRN reports whether s is a well-formed medical record number
// (exactly six digits). Surrounding whitespace is ignored.
func MRN(s string) bool {
	return types.MRN(strings.TrimSpace(s)).IsValid()
}

// NPI reports whether s is a well-formed National Provider Identifier
// (exactly ten digits).
func NPI(s string) bool {
	return types.NPI(strings.TrimSpace(s)).IsValid()
}

// ICD10 reports whether s is a structurally valid ICD-10 code. The match
// is case-insensitive; it does not check that the code is clinically
// assigned.
func ICD10(s string) bool {
	return icd10Regex.MatchString(strings.TrimSpace(s))
}

// Name reports whether s is an acceptable person name: non-empty after
// trimming, letters with optional accents, internal spaces, hyphens and
// apostrophes only.
func Name(s string) bool {
	return nameRegex.MatchString(strings.TrimSpace(s))
}

// OrderForm carries the scalar intake fields subject to validation.
// Array fields (additional diagnoses, medication history) are free-form
// and deliberately not validated here.
type OrderForm struct {
	PatientFirstName  string
	PatientLastName   string
	PatientMRN        string
	PrimaryDiagnosis  string
	ReferringProvider string
	ProviderNPI       string
	MedicationName    string
	PatientRecords    string
}

// OrderFields validates every scalar field of an intake form and returns
// a map of field name to the first error found for that field. An empty
// map means the form is valid.
func OrderFields(f OrderForm) map[string]string {
	errs := make(map[string]string)

	if !Name(f.PatientFirstName) {
		errs["patientFirstName"] = nameError(f.PatientFirstName, "first name")
	}
	if !Name(f.PatientLastName) {
		errs["patientLastName"] = nameError(f.PatientLastName, "last name")
	}
	if !MRN(f.PatientMRN) {
		if strings.TrimSpace(f.PatientMRN) == "" {
			errs["patientMRN"] = "MRN is required"
		} else {
			errs["patientMRN"] = "MRN must be exactly 6 digits"
		}
	}
	if !ICD10(f.PrimaryDiagnosis) {
		if strings.TrimSpace(f.PrimaryDiagnosis) == "" {
			errs["primaryDiagnosis"] = "primary diagnosis is required"
		} else {
			errs["primaryDiagnosis"] = "primary diagnosis must be a valid ICD-10 code"
		}
	}
	if !Name(f.ReferringProvider) {
		errs["referringProvider"] = nameError(f.ReferringProvider, "referring provider name")
	}
	if !NPI(f.ProviderNPI) {
		if strings.TrimSpace(f.ProviderNPI) == "" {
			errs["providerNPI"] = "provider NPI is required"
		} else {
			errs["providerNPI"] = "provider NPI must be exactly 10 digits"
		}
	}
	if strings.TrimSpace(f.MedicationName) == "" {
		errs["medicationName"] = "medication name is required"
	}
	if strings.TrimSpace(f.PatientRecords) == "" {
		errs["patientRecords"] = "patient clinical records are required"
	}

	return errs
}

func nameError(value, label string) string {
	if strings.TrimSpace(value) == "" {
		return label + " is required"
	}
	return label + " may only contain letters, spaces, hyphens and apostrophes"
}
