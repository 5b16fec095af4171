package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carebridge/platform/internal/shared/types"
	"github.com/carebridge/platform/internal/validate"
)

// Severity distinguishes blocking conflicts from advisory warnings.
// A blocking conflict stops submission outright; an advisory warning
// requires explicit confirmation from the submitter.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Subject names what a duplicate warning is about
type Subject string

const (
	SubjectPatient  Subject = "patient"
	SubjectOrder    Subject = "order"
	SubjectProvider Subject = "provider"
)

// Check identifiers, one per detection rule
const (
	CheckMRNConflict          = "mrn_conflict"
	CheckPatientNameConflict  = "patient_name_conflict"
	CheckExactDuplicate       = "exact_duplicate"
	CheckProviderNameConflict = "provider_name_conflict"
	CheckProviderNPIConflict  = "provider_npi_conflict"
)

// Warning is a single duplicate-detection finding. All findings are
// surfaced together rather than stopping at the first.
type Warning struct {
	Check      string     `json:"check"`
	Subject    Subject    `json:"subject"`
	Severity   Severity   `json:"severity"`
	Message    string     `json:"message"`
	OrderID    types.ID   `json:"orderId,omitempty"`
	OccurredAt *time.Time `json:"occurredAt,omitempty"`
}

// Blocking reports whether the warning prevents submission
func (w Warning) Blocking() bool {
	return w.Severity == SeverityError
}

// HasBlocking reports whether any warning in the set is blocking
func HasBlocking(warnings []Warning) bool {
	for _, w := range warnings {
		if w.Blocking() {
			return true
		}
	}
	return false
}

// ExactDuplicate returns the first exact-duplicate warning, if any
func ExactDuplicate(warnings []Warning) *Warning {
	for i := range warnings {
		if warnings[i].Check == CheckExactDuplicate {
			return &warnings[i]
		}
	}
	return nil
}

// ProviderRef is the provider identity view the detector needs
type ProviderRef struct {
	NPI          string
	Name         string
	FirstOrderAt time.Time
}

// OrderFinder is the read surface the detector needs over orders
type OrderFinder interface {
	FindOrdersByMRN(ctx context.Context, mrn string) ([]Order, error)
	FindOrdersByPatientName(ctx context.Context, firstName, lastName string) ([]Order, error)
	FindOrdersByMatchKey(ctx context.Context, key MatchKey) ([]Order, error)
}

// ProviderFinder is the read surface the detector needs over providers
type ProviderFinder interface {
	FindProviderByNPI(ctx context.Context, npi string) (*ProviderRef, error)
	FindProvidersByName(ctx context.Context, name string) ([]ProviderRef, error)
}

// Detector runs the duplicate and identity-conflict checks against
// existing records. Each check only fires when its input fields are
// well-formed; malformed fields are the validator's problem, not ours.
type Detector struct {
	orders    OrderFinder
	providers ProviderFinder
}

// NewDetector creates a duplicate detector
func NewDetector(orders OrderFinder, providers ProviderFinder) *Detector {
	return &Detector{orders: orders, providers: providers}
}

// Check runs all five detection rules for a submission and returns every
// finding. An empty slice means the submission is clean.
func (d *Detector) Check(ctx context.Context, sub Submission) ([]Warning, error) {
	warnings := []Warning{}

	mrn := strings.TrimSpace(sub.PatientMRN)
	firstName := strings.TrimSpace(sub.PatientFirstName)
	lastName := strings.TrimSpace(sub.PatientLastName)
	npi := strings.TrimSpace(sub.ProviderNPI)
	providerName := strings.TrimSpace(sub.ReferringProvider)

	// 1. Same MRN under a different patient name
	if validate.MRN(mrn) {
		existing, err := d.orders.FindOrdersByMRN(ctx, mrn)
		if err != nil {
			return nil, fmt.Errorf("checking MRN conflicts: %w", err)
		}
		for _, o := range existing {
			if !sameName(o.PatientFirstName, firstName) || !sameName(o.PatientLastName, lastName) {
				created := o.CreatedAt
				warnings = append(warnings, Warning{
					Check:    CheckMRNConflict,
					Subject:  SubjectPatient,
					Severity: SeverityError,
					Message: fmt.Sprintf("MRN %s is already on file for %s %s (order from %s)",
						mrn, o.PatientFirstName, o.PatientLastName, created.Format("2006-01-02")),
					OrderID:    o.ID,
					OccurredAt: &created,
				})
			}
		}
	}

	// 2. Same patient name under a different MRN
	if validate.Name(firstName) && validate.Name(lastName) {
		existing, err := d.orders.FindOrdersByPatientName(ctx, firstName, lastName)
		if err != nil {
			return nil, fmt.Errorf("checking patient name conflicts: %w", err)
		}
		for _, o := range existing {
			if o.PatientMRN != mrn {
				created := o.CreatedAt
				warnings = append(warnings, Warning{
					Check:    CheckPatientNameConflict,
					Subject:  SubjectPatient,
					Severity: SeverityError,
					Message: fmt.Sprintf("%s %s is already on file under MRN %s (order from %s)",
						firstName, lastName, o.PatientMRN, created.Format("2006-01-02")),
					OrderID:    o.ID,
					OccurredAt: &created,
				})
			}
		}
	}

	// 3. Exact duplicate: same MRN, medication, diagnosis and NPI.
	// Advisory only; the submitter may confirm an update or a separate
	// order.
	key := MatchKey{
		MRN:        mrn,
		Medication: sub.MedicationName,
		Diagnosis:  sub.PrimaryDiagnosis,
		NPI:        npi,
	}
	if validate.MRN(mrn) && validate.NPI(npi) &&
		strings.TrimSpace(sub.MedicationName) != "" && strings.TrimSpace(sub.PrimaryDiagnosis) != "" {
		existing, err := d.orders.FindOrdersByMatchKey(ctx, key)
		if err != nil {
			return nil, fmt.Errorf("checking exact duplicates: %w", err)
		}
		for _, o := range existing {
			created := o.CreatedAt
			warnings = append(warnings, Warning{
				Check:    CheckExactDuplicate,
				Subject:  SubjectOrder,
				Severity: SeverityWarning,
				Message: fmt.Sprintf("An order for %s (%s) with this medication, diagnosis and provider already exists (created %s)",
					firstName+" "+lastName, mrn, created.Format("2006-01-02")),
				OrderID:    o.ID,
				OccurredAt: &created,
			})
		}
	}

	// 4. Same NPI registered to a different provider name
	if validate.NPI(npi) {
		ref, err := d.providers.FindProviderByNPI(ctx, npi)
		if err != nil {
			return nil, fmt.Errorf("checking provider NPI: %w", err)
		}
		if ref != nil && !sameName(ref.Name, providerName) {
			warnings = append(warnings, Warning{
				Check:    CheckProviderNPIConflict,
				Subject:  SubjectProvider,
				Severity: SeverityError,
				Message: fmt.Sprintf("NPI %s is registered to %s, not %s",
					npi, ref.Name, providerName),
			})
		}
	}

	// 5. Same provider name under a different NPI
	if validate.Name(providerName) {
		refs, err := d.providers.FindProvidersByName(ctx, providerName)
		if err != nil {
			return nil, fmt.Errorf("checking provider name: %w", err)
		}
		for _, ref := range refs {
			if ref.NPI != npi {
				warnings = append(warnings, Warning{
					Check:    CheckProviderNameConflict,
					Subject:  SubjectProvider,
					Severity: SeverityError,
					Message: fmt.Sprintf("Provider %s is already on file with NPI %s",
						ref.Name, ref.NPI),
				})
			}
		}
	}

	return warnings, nil
}

func sameName(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
