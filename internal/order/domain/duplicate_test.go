package domain

import (
	"context"
	"testing"
	"time"
)

type fakeOrderFinder struct {
	byMRN  []Order
	byName []Order
	byKey  []Order
}

func (f *fakeOrderFinder) FindOrdersByMRN(ctx context.Context, mrn string) ([]Order, error) {
	return f.byMRN, nil
}

func (f *fakeOrderFinder) FindOrdersByPatientName(ctx context.Context, first, last string) ([]Order, error) {
	return f.byName, nil
}

func (f *fakeOrderFinder) FindOrdersByMatchKey(ctx context.Context, key MatchKey) ([]Order, error) {
	return f.byKey, nil
}

type fakeProviderFinder struct {
	byNPI  *ProviderRef
	byName []ProviderRef
}

func (f *fakeProviderFinder) FindProviderByNPI(ctx context.Context, npi string) (*ProviderRef, error) {
	return f.byNPI, nil
}

func (f *fakeProviderFinder) FindProvidersByName(ctx context.Context, name string) ([]ProviderRef, error) {
	return f.byName, nil
}

func existingOrder(first, last, mrn string) Order {
	o, _ := NewOrder(Submission{
		PatientFirstName:  first,
		PatientLastName:   last,
		PatientMRN:        mrn,
		PrimaryDiagnosis:  "E11.9",
		ReferringProvider: "Sarah Chen",
		ProviderNPI:       "1234567890",
		MedicationName:    "Adalimumab",
		PatientRecords:    "records",
	}, "plan")
	o.CreatedAt = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return *o
}

func countCheck(warnings []Warning, check string) int {
	n := 0
	for _, w := range warnings {
		if w.Check == check {
			n++
		}
	}
	return n
}

func TestDetectorClean(t *testing.T) {
	d := NewDetector(&fakeOrderFinder{}, &fakeProviderFinder{})

	warnings, err := d.Check(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings, got %v", warnings)
	}
}

func TestDetectorMRNConflict(t *testing.T) {
	d := NewDetector(&fakeOrderFinder{
		byMRN: []Order{existingOrder("Janet", "Roe", "123456")},
	}, &fakeProviderFinder{})

	warnings, err := d.Check(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}

	if countCheck(warnings, CheckMRNConflict) != 1 {
		t.Fatalf("Expected 1 MRN conflict, got %v", warnings)
	}
	w := warnings[0]
	if w.Severity != SeverityError || w.Subject != SubjectPatient {
		t.Errorf("Unexpected severity/subject: %s/%s", w.Severity, w.Subject)
	}
	if w.OrderID.IsZero() || w.OccurredAt == nil {
		t.Error("Expected conflicting order reference on warning")
	}
	if !HasBlocking(warnings) {
		t.Error("Expected MRN conflict to be blocking")
	}
}

func TestDetectorSameMRNSamePatientIsFine(t *testing.T) {
	// Repeat patient: same MRN and same name should not conflict
	d := NewDetector(&fakeOrderFinder{
		byMRN: []Order{existingOrder("Jane", "Doe", "123456")},
	}, &fakeProviderFinder{})

	warnings, _ := d.Check(context.Background(), testSubmission())
	if countCheck(warnings, CheckMRNConflict) != 0 {
		t.Errorf("Expected no MRN conflict for same patient, got %v", warnings)
	}
}

func TestDetectorMRNNameCompareIsCaseInsensitive(t *testing.T) {
	d := NewDetector(&fakeOrderFinder{
		byMRN: []Order{existingOrder("JANE", "DOE", "123456")},
	}, &fakeProviderFinder{})

	warnings, _ := d.Check(context.Background(), testSubmission())
	if countCheck(warnings, CheckMRNConflict) != 0 {
		t.Errorf("Expected case-insensitive name match, got %v", warnings)
	}
}

func TestDetectorPatientNameConflict(t *testing.T) {
	d := NewDetector(&fakeOrderFinder{
		byName: []Order{existingOrder("Jane", "Doe", "654321")},
	}, &fakeProviderFinder{})

	warnings, _ := d.Check(context.Background(), testSubmission())
	if countCheck(warnings, CheckPatientNameConflict) != 1 {
		t.Fatalf("Expected 1 patient name conflict, got %v", warnings)
	}
}

func TestDetectorExactDuplicateIsAdvisory(t *testing.T) {
	d := NewDetector(&fakeOrderFinder{
		byKey: []Order{existingOrder("Jane", "Doe", "123456")},
	}, &fakeProviderFinder{})

	warnings, _ := d.Check(context.Background(), testSubmission())
	if countCheck(warnings, CheckExactDuplicate) != 1 {
		t.Fatalf("Expected 1 exact duplicate, got %v", warnings)
	}
	if HasBlocking(warnings) {
		t.Error("Exact duplicate should not block on its own")
	}
	if ExactDuplicate(warnings) == nil {
		t.Error("Expected ExactDuplicate to find the warning")
	}
}

func TestDetectorProviderNPIConflict(t *testing.T) {
	d := NewDetector(&fakeOrderFinder{}, &fakeProviderFinder{
		byNPI: &ProviderRef{NPI: "1234567890", Name: "Robert Miles"},
	})

	warnings, _ := d.Check(context.Background(), testSubmission())
	if countCheck(warnings, CheckProviderNPIConflict) != 1 {
		t.Fatalf("Expected 1 NPI conflict, got %v", warnings)
	}
	if warnings[0].Subject != SubjectProvider {
		t.Errorf("Expected provider subject, got %s", warnings[0].Subject)
	}
}

func TestDetectorKnownProviderMatches(t *testing.T) {
	d := NewDetector(&fakeOrderFinder{}, &fakeProviderFinder{
		byNPI:  &ProviderRef{NPI: "1234567890", Name: "Sarah Chen"},
		byName: []ProviderRef{{NPI: "1234567890", Name: "Sarah Chen"}},
	})

	warnings, _ := d.Check(context.Background(), testSubmission())
	if len(warnings) != 0 {
		t.Errorf("Expected no warnings for matching provider, got %v", warnings)
	}
}

func TestDetectorProviderNameConflict(t *testing.T) {
	d := NewDetector(&fakeOrderFinder{}, &fakeProviderFinder{
		byName: []ProviderRef{{NPI: "9876543210", Name: "Sarah Chen"}},
	})

	warnings, _ := d.Check(context.Background(), testSubmission())
	if countCheck(warnings, CheckProviderNameConflict) != 1 {
		t.Fatalf("Expected 1 provider name conflict, got %v", warnings)
	}
}

func TestDetectorSurfacesAllFindings(t *testing.T) {
	d := NewDetector(&fakeOrderFinder{
		byMRN:  []Order{existingOrder("Janet", "Roe", "123456")},
		byName: []Order{existingOrder("Jane", "Doe", "654321")},
		byKey:  []Order{existingOrder("Jane", "Doe", "123456")},
	}, &fakeProviderFinder{
		byNPI:  &ProviderRef{NPI: "1234567890", Name: "Robert Miles"},
		byName: []ProviderRef{{NPI: "9876543210", Name: "Sarah Chen"}},
	})

	warnings, err := d.Check(context.Background(), testSubmission())
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if len(warnings) != 5 {
		t.Errorf("Expected all 5 findings surfaced, got %d: %v", len(warnings), warnings)
	}
}

func TestDetectorSkipsChecksForMalformedFields(t *testing.T) {
	// Malformed MRN and NPI: the identity checks that key on them must
	// not run at all.
	d := NewDetector(&fakeOrderFinder{
		byMRN: []Order{existingOrder("Janet", "Roe", "123456")},
	}, &fakeProviderFinder{
		byNPI: &ProviderRef{NPI: "1234567890", Name: "Robert Miles"},
	})

	sub := testSubmission()
	sub.PatientMRN = "12ab"
	sub.ProviderNPI = "123"

	warnings, err := d.Check(context.Background(), sub)
	if err != nil {
		t.Fatalf("Check failed: %v", err)
	}
	if countCheck(warnings, CheckMRNConflict) != 0 {
		t.Error("MRN check should be skipped for malformed MRN")
	}
	if countCheck(warnings, CheckProviderNPIConflict) != 0 {
		t.Error("NPI check should be skipped for malformed NPI")
	}
	if countCheck(warnings, CheckExactDuplicate) != 0 {
		t.Error("Exact duplicate check requires well-formed MRN and NPI")
	}
}
