package domain

import (
	"strings"
	"testing"
)

func testSubmission() Submission {
	return Submission{
		PatientFirstName:    "Jane",
		PatientLastName:     "Doe",
		PatientMRN:          "123456",
		PrimaryDiagnosis:    "E11.9",
		AdditionalDiagnoses: []string{"I10"},
		ReferringProvider:   "Sarah Chen",
		ProviderNPI:         "1234567890",
		MedicationName:      "Adalimumab",
		MedicationHistory:   []string{"Metformin 1000mg BID"},
		PatientRecords:      "Baseline labs within normal limits.",
	}
}

func TestNewOrder(t *testing.T) {
	o, err := NewOrder(testSubmission(), "PROBLEM LIST\n1. Type 2 diabetes")
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}

	if o.ID.IsZero() {
		t.Error("Expected ID to be assigned")
	}
	if o.ApprovalStatus != ApprovalPending {
		t.Errorf("Expected status %s, got %s", ApprovalPending, o.ApprovalStatus)
	}
	if o.PrimaryDiagnosis != "E11.9" {
		t.Errorf("Expected diagnosis to be uppercased, got %s", o.PrimaryDiagnosis)
	}
	if len(o.History) != 0 {
		t.Errorf("Expected empty history, got %d entries", len(o.History))
	}

	events := o.GetDomainEvents()
	if len(events) != 1 || events[0].Type != "order.created" {
		t.Errorf("Expected order.created event, got %v", events)
	}
	if len(o.GetDomainEvents()) != 0 {
		t.Error("Expected events to be cleared after retrieval")
	}
}

func TestNewOrderRequiresPlan(t *testing.T) {
	if _, err := NewOrder(testSubmission(), "  "); err == nil {
		t.Error("Expected error for empty care plan")
	}
}

func TestNewOrderNormalizesDiagnosisCase(t *testing.T) {
	sub := testSubmission()
	sub.PrimaryDiagnosis = "e11.9"

	o, err := NewOrder(sub, "plan")
	if err != nil {
		t.Fatalf("NewOrder failed: %v", err)
	}
	if o.PrimaryDiagnosis != "E11.9" {
		t.Errorf("Expected E11.9, got %s", o.PrimaryDiagnosis)
	}
}

func TestApplyUpdateSnapshotsPriorContent(t *testing.T) {
	o, _ := NewOrder(testSubmission(), "original plan")

	upd := ContentUpdate{
		AdditionalDiagnoses: []string{"I10", "N18.3"},
		MedicationHistory:   []string{"Metformin 1000mg BID", "Lisinopril 10mg"},
		PatientRecords:      "eGFR declined to 55.",
	}
	if err := o.ApplyUpdate(upd, "revised plan"); err != nil {
		t.Fatalf("ApplyUpdate failed: %v", err)
	}

	if len(o.History) != 1 {
		t.Fatalf("Expected 1 snapshot, got %d", len(o.History))
	}
	snap := o.History[0]
	if snap.CarePlan != "original plan" {
		t.Errorf("Expected snapshot to hold original plan, got %q", snap.CarePlan)
	}
	if len(snap.AdditionalDiagnoses) != 1 || snap.AdditionalDiagnoses[0] != "I10" {
		t.Errorf("Expected snapshot diagnoses [I10], got %v", snap.AdditionalDiagnoses)
	}
	if snap.PatientRecords != "Baseline labs within normal limits." {
		t.Errorf("Unexpected snapshot records: %q", snap.PatientRecords)
	}

	if o.CarePlan != "revised plan" {
		t.Errorf("Expected revised plan, got %q", o.CarePlan)
	}
	if o.PatientRecords != "eGFR declined to 55." {
		t.Errorf("Expected updated records, got %q", o.PatientRecords)
	}
	if o.ApprovalStatus != ApprovalPending {
		t.Errorf("Expected status to reset to pending, got %s", o.ApprovalStatus)
	}
}

func TestApplyUpdateKeepsKeyFields(t *testing.T) {
	o, _ := NewOrder(testSubmission(), "plan")
	before := o.MatchKey()

	o.ApplyUpdate(ContentUpdate{PatientRecords: "new records"}, "new plan")

	if o.MatchKey() != before {
		t.Errorf("Key fields changed: %v != %v", o.MatchKey(), before)
	}
}

func TestApplyUpdateAccumulatesHistory(t *testing.T) {
	o, _ := NewOrder(testSubmission(), "v1")
	o.ApplyUpdate(ContentUpdate{PatientRecords: "r2"}, "v2")
	o.ApplyUpdate(ContentUpdate{PatientRecords: "r3"}, "v3")

	if len(o.History) != 2 {
		t.Fatalf("Expected 2 snapshots, got %d", len(o.History))
	}
	if o.History[0].CarePlan != "v1" || o.History[1].CarePlan != "v2" {
		t.Errorf("Snapshots out of order: %q, %q", o.History[0].CarePlan, o.History[1].CarePlan)
	}
}

func TestReviewFeedbackAllApproved(t *testing.T) {
	o, _ := NewOrder(testSubmission(), "plan")
	o.GetDomainEvents()

	err := o.ReviewFeedback([]Feedback{
		{PharmacistName: "Kim Lee", Kind: FeedbackApproval, Section: "GOALS", Approved: true},
		{PharmacistName: "Kim Lee", Kind: FeedbackApproval, Section: "MONITORING PLAN", Approved: true},
	})
	if err != nil {
		t.Fatalf("ReviewFeedback failed: %v", err)
	}

	if o.ApprovalStatus != ApprovalApproved {
		t.Errorf("Expected approved, got %s", o.ApprovalStatus)
	}
	if len(o.Feedback) != 2 {
		t.Errorf("Expected 2 feedback items, got %d", len(o.Feedback))
	}
	if len(o.CorrectionHistory) != 2 {
		t.Errorf("Expected 2 correction entries, got %d", len(o.CorrectionHistory))
	}
}

func TestReviewFeedbackAnyUnapproved(t *testing.T) {
	o, _ := NewOrder(testSubmission(), "plan")

	o.ReviewFeedback([]Feedback{
		{PharmacistName: "Kim Lee", Kind: FeedbackApproval, Section: "GOALS", Approved: true},
		{PharmacistName: "Kim Lee", Kind: FeedbackCorrection, Section: "MONITORING PLAN",
			OriginalText: "Monthly labs", CorrectedText: "Biweekly labs", Approved: false},
	})

	if o.ApprovalStatus != ApprovalCorrectionsPending {
		t.Errorf("Expected corrections_pending, got %s", o.ApprovalStatus)
	}
}

func TestReviewFeedbackDescriptions(t *testing.T) {
	tests := []struct {
		name     string
		item     Feedback
		wantDesc string
	}{
		{
			name: "Correction with comment",
			item: Feedback{PharmacistName: "Kim Lee", Kind: FeedbackCorrection, Section: "GOALS",
				OriginalText: "old", CorrectedText: "new", Comment: "Target A1c too loose"},
			wantDesc: "Updated GOALS: Target A1c too loose",
		},
		{
			name: "Correction without comment",
			item: Feedback{PharmacistName: "Kim Lee", Kind: FeedbackCorrection, Section: "GOALS",
				OriginalText: "old", CorrectedText: "new"},
			wantDesc: "Updated GOALS: Manual correction",
		},
		{
			name: "Comment only",
			item: Feedback{PharmacistName: "Kim Lee", Kind: FeedbackSuggestion, Section: "PROBLEM LIST",
				Comment: "Consider adding renal dosing note"},
			wantDesc: "Consider adding renal dosing note",
		},
		{
			name:     "Bare approval",
			item:     Feedback{PharmacistName: "Kim Lee", Kind: FeedbackApproval, Section: "GOALS", Approved: true},
			wantDesc: "approval on GOALS",
		},
		{
			name: "Corrected text without original falls back to comment",
			item: Feedback{PharmacistName: "Kim Lee", Kind: FeedbackCorrection, Section: "GOALS",
				CorrectedText: "new", Comment: "rewrote section"},
			wantDesc: "rewrote section",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, _ := NewOrder(testSubmission(), "plan")
			if err := o.ReviewFeedback([]Feedback{tt.item}); err != nil {
				t.Fatalf("ReviewFeedback failed: %v", err)
			}
			got := o.CorrectionHistory[0].Description
			if got != tt.wantDesc {
				t.Errorf("Description = %q, want %q", got, tt.wantDesc)
			}
		})
	}
}

func TestReviewFeedbackRecordsBeforeAfter(t *testing.T) {
	o, _ := NewOrder(testSubmission(), "plan")
	o.ReviewFeedback([]Feedback{
		{PharmacistName: "Kim Lee", Kind: FeedbackCorrection, Section: "GOALS",
			OriginalText: "A1c < 8%", CorrectedText: "A1c < 7%"},
	})

	entry := o.CorrectionHistory[0]
	if entry.Before != "A1c < 8%" || entry.After != "A1c < 7%" {
		t.Errorf("Unexpected before/after: %q -> %q", entry.Before, entry.After)
	}
	if entry.FeedbackID.IsZero() {
		t.Error("Expected feedback ID to be assigned")
	}
}

func TestReviewFeedbackValidation(t *testing.T) {
	o, _ := NewOrder(testSubmission(), "plan")

	if err := o.ReviewFeedback(nil); err == nil {
		t.Error("Expected error for empty feedback batch")
	}
	if err := o.ReviewFeedback([]Feedback{{PharmacistName: "Kim Lee", Kind: "typo", Section: "GOALS"}}); err == nil {
		t.Error("Expected error for invalid feedback kind")
	}
	if err := o.ReviewFeedback([]Feedback{{Kind: FeedbackApproval, Section: "GOALS"}}); err == nil {
		t.Error("Expected error for missing pharmacist name")
	}
}

func TestReviewFeedbackHistoryNeverShrinks(t *testing.T) {
	o, _ := NewOrder(testSubmission(), "plan")

	o.ReviewFeedback([]Feedback{{PharmacistName: "Kim Lee", Kind: FeedbackCorrection,
		Section: "GOALS", OriginalText: "a", CorrectedText: "b"}})
	o.ReviewFeedback([]Feedback{{PharmacistName: "Kim Lee", Kind: FeedbackApproval,
		Section: "GOALS", Approved: true}})

	if len(o.CorrectionHistory) != 2 {
		t.Errorf("Expected correction history to accumulate, got %d entries", len(o.CorrectionHistory))
	}
}

func TestAcceptPlan(t *testing.T) {
	o, _ := NewOrder(testSubmission(), "original plan")

	if err := o.AcceptPlan("regenerated plan", "Kim Lee"); err != nil {
		t.Fatalf("AcceptPlan failed: %v", err)
	}

	if o.CarePlan != "regenerated plan" {
		t.Errorf("Expected regenerated plan, got %q", o.CarePlan)
	}
	if o.ApprovalStatus != ApprovalApproved {
		t.Errorf("Expected approved, got %s", o.ApprovalStatus)
	}
	if len(o.History) != 1 || o.History[0].CarePlan != "original plan" {
		t.Error("Expected prior plan to be snapshotted")
	}

	last := o.CorrectionHistory[len(o.CorrectionHistory)-1]
	if !strings.Contains(last.Description, "Accepted regenerated care plan") {
		t.Errorf("Unexpected history entry: %q", last.Description)
	}
}

func TestAcceptPlanValidation(t *testing.T) {
	o, _ := NewOrder(testSubmission(), "plan")

	if err := o.AcceptPlan("", "Kim Lee"); err == nil {
		t.Error("Expected error for empty plan")
	}
	if err := o.AcceptPlan("plan", ""); err == nil {
		t.Error("Expected error for missing pharmacist name")
	}
}

func TestMatchKeyNormalization(t *testing.T) {
	a := MatchKey{MRN: "123456", Medication: "Adalimumab", Diagnosis: "e11.9", NPI: "1234567890"}
	b := MatchKey{MRN: " 123456 ", Medication: "ADALIMUMAB", Diagnosis: "E11.9", NPI: "1234567890"}

	if a.Normalized() != b.Normalized() {
		t.Errorf("Expected keys to normalize equal: %v vs %v", a.Normalized(), b.Normalized())
	}
	if a.String() != "123456|adalimumab|E11.9|1234567890" {
		t.Errorf("Unexpected key string: %q", a.String())
	}
}
