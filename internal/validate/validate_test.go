package validate

import "testing"

func TestMRN(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"Six digits", "123456", true},
		{"Leading zeros", "000123", true},
		{"Whitespace around", "  123456  ", true},
		{"Too short", "12345", false},
		{"Too long", "1234567", false},
		{"Letters", "12A456", false},
		{"Empty", "", false},
		{"Only whitespace", "   ", false},
		{"Internal space", "123 456", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MRN(tt.input); got != tt.valid {
				t.Errorf("MRN(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}

func TestNPI(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"Ten digits", "1234567890", true},
		{"Nine digits", "123456789", false},
		{"Eleven digits", "12345678901", false},
		{"With dash", "123-456-7890", false},
		{"Empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NPI(tt.input); got != tt.valid {
				t.Errorf("NPI(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}

func TestICD10(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"Category only", "E11", true},
		{"With subclassification", "E11.9", true},
		{"Long suffix", "M05.79", true},
		{"Alphanumeric suffix", "S72.001A", true},
		{"Lowercase accepted", "e11.9", true},
		{"Dot with no suffix", "E11.", true},
		{"Missing digits", "E1", false},
		{"No leading letter", "11.9", false},
		{"Two letters", "EE1.9", false},
		{"Suffix punctuation", "E11.9-", false},
		{"Empty", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ICD10(tt.input); got != tt.valid {
				t.Errorf("ICD10(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}

func TestName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		valid bool
	}{
		{"Simple", "Maria", true},
		{"Two words", "Mary Jane", true},
		{"Hyphenated", "Smith-Jones", true},
		{"Apostrophe", "O'Brien", true},
		{"Accented", "José Muñoz", true},
		{"Empty", "", false},
		{"Only whitespace", "   ", false},
		{"Digits", "J0hn", false},
		{"Punctuation", "Smith; DROP", false},
		{"Leading hyphen", "-Smith", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Name(tt.input); got != tt.valid {
				t.Errorf("Name(%q) = %v, want %v", tt.input, got, tt.valid)
			}
		})
	}
}

func validForm() OrderForm {
	return OrderForm{
		PatientFirstName:  "Jane",
		PatientLastName:   "Doe",
		PatientMRN:        "123456",
		PrimaryDiagnosis:  "E11.9",
		ReferringProvider: "Sarah Chen",
		ProviderNPI:       "1234567890",
		MedicationName:    "Adalimumab",
		PatientRecords:    "Baseline labs within normal limits.",
	}
}

func TestOrderFieldsValid(t *testing.T) {
	errs := OrderFields(validForm())
	if len(errs) != 0 {
		t.Errorf("Expected no errors, got %v", errs)
	}
}

func TestOrderFieldsCollectsAllErrors(t *testing.T) {
	f := OrderForm{} // everything missing
	errs := OrderFields(f)

	want := []string{
		"patientFirstName", "patientLastName", "patientMRN",
		"primaryDiagnosis", "referringProvider", "providerNPI",
		"medicationName", "patientRecords",
	}
	for _, field := range want {
		if _, ok := errs[field]; !ok {
			t.Errorf("Expected error for %s, got none", field)
		}
	}
	if len(errs) != len(want) {
		t.Errorf("Expected %d errors, got %d: %v", len(want), len(errs), errs)
	}
}

func TestOrderFieldsFirstErrorPerField(t *testing.T) {
	f := validForm()
	f.PatientMRN = "12ab"
	f.ProviderNPI = ""

	errs := OrderFields(f)

	if errs["patientMRN"] != "MRN must be exactly 6 digits" {
		t.Errorf("Unexpected MRN error: %q", errs["patientMRN"])
	}
	if errs["providerNPI"] != "provider NPI is required" {
		t.Errorf("Unexpected NPI error: %q", errs["providerNPI"])
	}
	if len(errs) != 2 {
		t.Errorf("Expected 2 errors, got %d: %v", len(errs), errs)
	}
}
