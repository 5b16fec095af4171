package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/carebridge/platform/internal/shared/types"
)

// ApprovalStatus tracks the pharmacist review state of an order's care
// plan. Transitions happen only through the aggregate methods below.
type ApprovalStatus string

const (
	ApprovalPending            ApprovalStatus = "pending"
	ApprovalCorrectionsPending ApprovalStatus = "corrections_pending"
	ApprovalApproved           ApprovalStatus = "approved"
)

// FeedbackKind classifies a single pharmacist feedback item
type FeedbackKind string

const (
	FeedbackCorrection FeedbackKind = "correction"
	FeedbackSuggestion FeedbackKind = "suggestion"
	FeedbackApproval   FeedbackKind = "approval"
)

// ValidKind reports whether k is one of the three accepted feedback kinds
func ValidKind(k FeedbackKind) bool {
	switch k {
	case FeedbackCorrection, FeedbackSuggestion, FeedbackApproval:
		return true
	}
	return false
}

// Submission carries the intake form fields for a new order
type Submission struct {
	PatientFirstName    string   `json:"patientFirstName"`
	PatientLastName     string   `json:"patientLastName"`
	PatientMRN          string   `json:"patientMRN"`
	PrimaryDiagnosis    string   `json:"primaryDiagnosis"`
	AdditionalDiagnoses []string `json:"additionalDiagnoses"`
	ReferringProvider   string   `json:"referringProvider"`
	ProviderNPI         string   `json:"providerNPI"`
	MedicationName      string   `json:"medicationName"`
	MedicationHistory   []string `json:"medicationHistory"`
	PatientRecords      string   `json:"patientRecords"`
}

// ContentUpdate carries the mutable content fields for a versioned
// update. The four key fields (MRN, medication, primary diagnosis, NPI)
// are immutable after creation and deliberately absent here.
type ContentUpdate struct {
	AdditionalDiagnoses []string `json:"additionalDiagnoses"`
	MedicationHistory   []string `json:"medicationHistory"`
	PatientRecords      string   `json:"patientRecords"`
}

// Snapshot preserves the prior content of an order before an update
// overwrites it. Snapshots are append-only.
type Snapshot struct {
	Timestamp           time.Time `json:"timestamp"`
	AdditionalDiagnoses []string  `json:"additionalDiagnoses"`
	MedicationHistory   []string  `json:"medicationHistory"`
	PatientRecords      string    `json:"patientRecords"`
	CarePlan            string    `json:"carePlan"`
}

// Feedback is a single pharmacist review item on a care plan
type Feedback struct {
	ID             types.ID     `json:"id"`
	PharmacistName string       `json:"pharmacistName"`
	Kind           FeedbackKind `json:"feedbackType"`
	Section        string       `json:"sectionName"`
	OriginalText   string       `json:"originalText,omitempty"`
	CorrectedText  string       `json:"correctedText,omitempty"`
	Comment        string       `json:"comment,omitempty"`
	Approved       bool         `json:"approved"`
	CreatedAt      time.Time    `json:"createdAt"`
}

// CorrectionEntry is the permanent record synthesized from a feedback
// item. The correction history never shrinks.
type CorrectionEntry struct {
	Timestamp      time.Time    `json:"timestamp"`
	FeedbackID     types.ID     `json:"feedbackId"`
	PharmacistName string       `json:"pharmacistName"`
	Kind           FeedbackKind `json:"feedbackType"`
	Section        string       `json:"sectionName"`
	Description    string       `json:"change"`
	Before         string       `json:"before,omitempty"`
	After          string       `json:"after,omitempty"`
	Approved       bool         `json:"approved"`
}

// MatchKey is the four-field tuple used for exact duplicate detection.
// Medication and diagnosis are compared case-insensitively.
type MatchKey struct {
	MRN        string
	Medication string
	Diagnosis  string
	NPI        string
}

// Normalized returns the key with comparison normalization applied
func (k MatchKey) Normalized() MatchKey {
	return MatchKey{
		MRN:        strings.TrimSpace(k.MRN),
		Medication: strings.ToLower(strings.TrimSpace(k.Medication)),
		Diagnosis:  strings.ToUpper(strings.TrimSpace(k.Diagnosis)),
		NPI:        strings.TrimSpace(k.NPI),
	}
}

// String renders the normalized key as a single lock token
func (k MatchKey) String() string {
	n := k.Normalized()
	return n.MRN + "|" + n.Medication + "|" + n.Diagnosis + "|" + n.NPI
}

// DomainEvent is raised by aggregate mutations for publishing
type DomainEvent struct {
	Type    string
	OrderID types.ID
	Data    map[string]any
}

// Order is the aggregate root for a medication order and its care plan
type Order struct {
	ID types.ID `json:"id"`

	// Patient
	PatientFirstName string `json:"patientFirstName"`
	PatientLastName  string `json:"patientLastName"`
	PatientMRN       string `json:"patientMRN"`

	// Clinical content
	PrimaryDiagnosis    string   `json:"primaryDiagnosis"`
	AdditionalDiagnoses []string `json:"additionalDiagnoses"`
	MedicationName      string   `json:"medicationName"`
	MedicationHistory   []string `json:"medicationHistory"`
	PatientRecords      string   `json:"patientRecords"`

	// Provider
	ReferringProvider string `json:"referringProvider"`
	ProviderNPI       string `json:"providerNPI"`

	// Care plan and review state
	CarePlan          string            `json:"carePlan"`
	ApprovalStatus    ApprovalStatus    `json:"approvalStatus"`
	Feedback          []Feedback        `json:"feedback"`
	CorrectionHistory []CorrectionEntry `json:"correctionHistory"`

	// Versioning
	History []Snapshot `json:"history"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// Domain events (not persisted, published after a successful write)
	domainEvents []DomainEvent
}

// NewOrder creates an order from a validated submission and a generated
// care plan. The caller is responsible for field validation and
// duplicate checking; this constructor enforces only structural
// invariants.
func NewOrder(sub Submission, carePlan string) (*Order, error) {
	if strings.TrimSpace(carePlan) == "" {
		return nil, fmt.Errorf("care plan is required")
	}
	if strings.TrimSpace(sub.PatientMRN) == "" {
		return nil, fmt.Errorf("patient MRN is required")
	}
	if strings.TrimSpace(sub.MedicationName) == "" {
		return nil, fmt.Errorf("medication name is required")
	}

	now := time.Now().UTC()
	o := &Order{
		ID:                  types.NewID(),
		PatientFirstName:    strings.TrimSpace(sub.PatientFirstName),
		PatientLastName:     strings.TrimSpace(sub.PatientLastName),
		PatientMRN:          strings.TrimSpace(sub.PatientMRN),
		PrimaryDiagnosis:    strings.ToUpper(strings.TrimSpace(sub.PrimaryDiagnosis)),
		AdditionalDiagnoses: cloneStrings(sub.AdditionalDiagnoses),
		ReferringProvider:   strings.TrimSpace(sub.ReferringProvider),
		ProviderNPI:         strings.TrimSpace(sub.ProviderNPI),
		MedicationName:      strings.TrimSpace(sub.MedicationName),
		MedicationHistory:   cloneStrings(sub.MedicationHistory),
		PatientRecords:      sub.PatientRecords,
		CarePlan:            carePlan,
		ApprovalStatus:      ApprovalPending,
		Feedback:            []Feedback{},
		CorrectionHistory:   []CorrectionEntry{},
		History:             []Snapshot{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	o.addEvent("order.created", map[string]any{
		"order_id":   o.ID,
		"mrn":        o.PatientMRN,
		"medication": o.MedicationName,
	})

	return o, nil
}

// MatchKey returns the duplicate-detection tuple for this order
func (o *Order) MatchKey() MatchKey {
	return MatchKey{
		MRN:        o.PatientMRN,
		Medication: o.MedicationName,
		Diagnosis:  o.PrimaryDiagnosis,
		NPI:        o.ProviderNPI,
	}
}

// ApplyUpdate snapshots the current content into history and overwrites
// the mutable fields with upd and the regenerated care plan. The key
// fields never change; review state returns to pending because the plan
// the pharmacist saw no longer exists.
func (o *Order) ApplyUpdate(upd ContentUpdate, newPlan string) error {
	if strings.TrimSpace(newPlan) == "" {
		return fmt.Errorf("care plan is required")
	}

	o.History = append(o.History, Snapshot{
		Timestamp:           time.Now().UTC(),
		AdditionalDiagnoses: cloneStrings(o.AdditionalDiagnoses),
		MedicationHistory:   cloneStrings(o.MedicationHistory),
		PatientRecords:      o.PatientRecords,
		CarePlan:            o.CarePlan,
	})

	o.AdditionalDiagnoses = cloneStrings(upd.AdditionalDiagnoses)
	o.MedicationHistory = cloneStrings(upd.MedicationHistory)
	o.PatientRecords = upd.PatientRecords
	o.CarePlan = newPlan
	o.ApprovalStatus = ApprovalPending
	o.UpdatedAt = time.Now().UTC()

	o.addEvent("order.updated", map[string]any{
		"order_id": o.ID,
		"versions": len(o.History),
	})

	return nil
}

// ReviewFeedback records a batch of pharmacist feedback items,
// synthesizes correction-history entries for each, and derives the
// approval status: every item approved means approved, anything less
// means corrections_pending.
func (o *Order) ReviewFeedback(items []Feedback) error {
	if len(items) == 0 {
		return fmt.Errorf("at least one feedback item is required")
	}

	now := time.Now().UTC()
	allApproved := true

	for i := range items {
		item := items[i]
		if !ValidKind(item.Kind) {
			return fmt.Errorf("invalid feedback type %q", item.Kind)
		}
		if strings.TrimSpace(item.PharmacistName) == "" {
			return fmt.Errorf("pharmacist name is required")
		}

		if item.ID.IsZero() {
			item.ID = types.NewID()
		}
		item.CreatedAt = now

		entry := CorrectionEntry{
			Timestamp:      now,
			FeedbackID:     item.ID,
			PharmacistName: item.PharmacistName,
			Kind:           item.Kind,
			Section:        item.Section,
			Approved:       item.Approved,
		}

		if item.CorrectedText != "" && item.OriginalText != "" {
			entry.Before = item.OriginalText
			entry.After = item.CorrectedText
			comment := item.Comment
			if comment == "" {
				comment = "Manual correction"
			}
			entry.Description = fmt.Sprintf("Updated %s: %s", item.Section, comment)
		} else if item.Comment != "" {
			entry.Description = item.Comment
		} else {
			entry.Description = fmt.Sprintf("%s on %s", item.Kind, item.Section)
		}

		o.Feedback = append(o.Feedback, item)
		o.CorrectionHistory = append(o.CorrectionHistory, entry)

		if !item.Approved {
			allApproved = false
		}
	}

	if allApproved {
		o.ApprovalStatus = ApprovalApproved
	} else {
		o.ApprovalStatus = ApprovalCorrectionsPending
	}
	o.UpdatedAt = now

	o.addEvent("order.reviewed", map[string]any{
		"order_id":       o.ID,
		"feedback_count": len(items),
		"status":         o.ApprovalStatus,
	})

	return nil
}

// AcceptPlan persists a regenerated care plan that the pharmacist has
// accepted and marks the order approved. Used after a regeneration
// round-trip; the candidate plan is never stored until accepted.
func (o *Order) AcceptPlan(plan, pharmacistName string) error {
	if strings.TrimSpace(plan) == "" {
		return fmt.Errorf("care plan is required")
	}
	if strings.TrimSpace(pharmacistName) == "" {
		return fmt.Errorf("pharmacist name is required")
	}

	now := time.Now().UTC()
	o.History = append(o.History, Snapshot{
		Timestamp:           now,
		AdditionalDiagnoses: cloneStrings(o.AdditionalDiagnoses),
		MedicationHistory:   cloneStrings(o.MedicationHistory),
		PatientRecords:      o.PatientRecords,
		CarePlan:            o.CarePlan,
	})

	o.CarePlan = plan
	o.ApprovalStatus = ApprovalApproved
	o.UpdatedAt = now

	o.CorrectionHistory = append(o.CorrectionHistory, CorrectionEntry{
		Timestamp:      now,
		PharmacistName: pharmacistName,
		Kind:           FeedbackApproval,
		Section:        "CARE PLAN",
		Description:    "Accepted regenerated care plan",
		Approved:       true,
	})

	o.addEvent("order.plan_accepted", map[string]any{
		"order_id":   o.ID,
		"pharmacist": pharmacistName,
	})

	return nil
}

// GetDomainEvents returns and clears pending domain events
func (o *Order) GetDomainEvents() []DomainEvent {
	evts := o.domainEvents
	o.domainEvents = nil
	return evts
}

func (o *Order) addEvent(eventType string, data map[string]any) {
	o.domainEvents = append(o.domainEvents, DomainEvent{
		Type:    eventType,
		OrderID: o.ID,
		Data:    data,
	})
}

func cloneStrings(in []string) []string {
	out := make([]string, len(in))
	copy(out, in)
	return out
}
