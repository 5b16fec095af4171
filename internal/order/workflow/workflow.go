// Package workflow orchestrates the order lifecycle: validation,
// duplicate detection, care plan generation and persistence. Handlers
// stay thin; everything that has to happen in a particular sequence
// happens here.
package workflow

import (
	"context"
	"strings"
	"time"

	"github.com/carebridge/platform/internal/careplan"
	"github.com/carebridge/platform/internal/order/domain"
	"github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/metrics"
	"github.com/carebridge/platform/internal/shared/types"
	"github.com/carebridge/platform/internal/validate"
)

// Duplicate resolutions the submitter may choose after seeing an
// exact-duplicate warning
const (
	ResolutionUpdate = "update"
	ResolutionCreate = "create"
)

// PlanGenerator produces care plans. Implemented by careplan.Client.
type PlanGenerator interface {
	Generate(ctx context.Context, req careplan.PlanRequest) (string, error)
	Regenerate(ctx context.Context, currentPlan string, revisions []careplan.Revision) (string, error)
}

// Service coordinates order operations
type Service struct {
	repo     domain.Repository
	detector *domain.Detector
	planner  PlanGenerator
}

// NewService creates the order workflow service
func NewService(repo domain.Repository, detector *domain.Detector, planner PlanGenerator) *Service {
	return &Service{repo: repo, detector: detector, planner: planner}
}

// SubmitOptions carries the submitter's duplicate resolution. Empty
// Resolution means no decision has been made yet.
type SubmitOptions struct {
	Resolution string
}

// SubmitResult is the outcome of a submission attempt. Exactly one of
// the three shapes applies: Order set (created or updated), Blocked
// set (identity conflicts, nothing persisted), or RequiresConfirmation
// set (exact duplicate found, submitter must choose).
type SubmitResult struct {
	Order                *domain.Order
	Warnings             []domain.Warning
	Blocked              bool
	RequiresConfirmation bool
	Updated              bool
}

// CheckDuplicates validates field formats and runs duplicate detection
// without persisting anything. Backs the pre-submission check endpoint.
func (s *Service) CheckDuplicates(ctx context.Context, sub domain.Submission) ([]domain.Warning, error) {
	if errs := validate.OrderFields(toForm(sub)); len(errs) > 0 {
		return nil, errors.Validation("order submission is invalid", errs)
	}

	warnings, err := s.detector.Check(ctx, sub)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		metrics.RecordDuplicateWarning(w.Check, string(w.Severity))
	}
	return warnings, nil
}

// Submit runs the full intake sequence: validate, detect duplicates,
// generate the care plan, persist. The care plan is generated before
// anything is written; a generation failure leaves no partial order
// behind.
func (s *Service) Submit(ctx context.Context, sub domain.Submission, opts SubmitOptions) (*SubmitResult, error) {
	if errs := validate.OrderFields(toForm(sub)); len(errs) > 0 {
		return nil, errors.Validation("order submission is invalid", errs)
	}

	warnings, err := s.detector.Check(ctx, sub)
	if err != nil {
		return nil, err
	}
	for _, w := range warnings {
		metrics.RecordDuplicateWarning(w.Check, string(w.Severity))
	}

	if domain.HasBlocking(warnings) {
		return &SubmitResult{Warnings: warnings, Blocked: true}, nil
	}

	dup := domain.ExactDuplicate(warnings)
	if dup != nil && opts.Resolution == "" {
		return &SubmitResult{Warnings: warnings, RequiresConfirmation: true}, nil
	}

	if dup != nil && opts.Resolution == ResolutionUpdate {
		order, err := s.ConfirmUpdate(ctx, dup.OrderID, domain.ContentUpdate{
			AdditionalDiagnoses: sub.AdditionalDiagnoses,
			MedicationHistory:   sub.MedicationHistory,
			PatientRecords:      sub.PatientRecords,
		})
		if err != nil {
			return nil, err
		}
		return &SubmitResult{Order: order, Warnings: warnings, Updated: true}, nil
	}

	if dup != nil && opts.Resolution != ResolutionCreate {
		return nil, errors.BadRequest("unknown duplicate resolution: " + opts.Resolution)
	}

	plan, err := s.generatePlan(ctx, sub)
	if err != nil {
		return nil, err
	}

	order, err := domain.NewOrder(sub, plan)
	if err != nil {
		return nil, errors.BadRequest(err.Error())
	}

	// allowExisting only when the submitter explicitly chose to create
	// a separate order next to a known duplicate
	if err := s.repo.Create(ctx, order, dup != nil); err != nil {
		return nil, err
	}

	metrics.RecordOrderCreated(order.MedicationName)
	return &SubmitResult{Order: order, Warnings: warnings}, nil
}

// ConfirmUpdate applies a content update to an existing order: the
// prior content is snapshotted into history, the plan is regenerated
// from the merged content, and both land in a single write. The four
// key fields never change.
func (s *Service) ConfirmUpdate(ctx context.Context, id types.ID, upd domain.ContentUpdate) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := domain.Submission{
		PatientFirstName:    order.PatientFirstName,
		PatientLastName:     order.PatientLastName,
		PatientMRN:          order.PatientMRN,
		PrimaryDiagnosis:    order.PrimaryDiagnosis,
		AdditionalDiagnoses: upd.AdditionalDiagnoses,
		ReferringProvider:   order.ReferringProvider,
		ProviderNPI:         order.ProviderNPI,
		MedicationName:      order.MedicationName,
		MedicationHistory:   upd.MedicationHistory,
		PatientRecords:      upd.PatientRecords,
	}
	if strings.TrimSpace(merged.PatientRecords) == "" {
		return nil, errors.BadRequest("patient clinical records are required")
	}

	plan, err := s.generatePlan(ctx, merged)
	if err != nil {
		return nil, err
	}

	if err := order.ApplyUpdate(upd, plan); err != nil {
		return nil, errors.BadRequest(err.Error())
	}

	if err := s.repo.UpdateContent(ctx, order); err != nil {
		return nil, err
	}

	metrics.RecordOrderUpdated()
	return order, nil
}

// SubmitReview records a batch of pharmacist feedback and derives the
// order's approval status
func (s *Service) SubmitReview(ctx context.Context, id types.ID, items []domain.Feedback) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := order.ReviewFeedback(items); err != nil {
		return nil, errors.BadRequest(err.Error())
	}

	if err := s.repo.UpdateReview(ctx, order); err != nil {
		return nil, err
	}

	metrics.RecordReviewSubmitted(string(order.ApprovalStatus))
	return order, nil
}

// RegeneratePlan produces a revised care plan candidate from the
// order's accumulated feedback. The candidate is returned to the
// caller for review and is not persisted; AcceptPlan does that.
func (s *Service) RegeneratePlan(ctx context.Context, id types.ID) (string, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return "", err
	}

	if len(order.Feedback) == 0 {
		return "", errors.BadRequest("order has no feedback to regenerate from")
	}

	revisions := make([]careplan.Revision, 0, len(order.Feedback))
	for _, f := range order.Feedback {
		revisions = append(revisions, careplan.Revision{
			Kind:          string(f.Kind),
			Section:       f.Section,
			OriginalText:  f.OriginalText,
			CorrectedText: f.CorrectedText,
			Comment:       f.Comment,
		})
	}

	start := time.Now()
	plan, err := s.planner.Regenerate(ctx, order.CarePlan, revisions)
	if err != nil {
		metrics.RecordCarePlanGeneration("regenerate", "error", time.Since(start))
		return "", err
	}
	metrics.RecordCarePlanGeneration("regenerate", "success", time.Since(start))

	return plan, nil
}

// AcceptPlan persists a regenerated plan the pharmacist has accepted
// and marks the order approved
func (s *Service) AcceptPlan(ctx context.Context, id types.ID, plan, pharmacistName string) (*domain.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := order.AcceptPlan(plan, pharmacistName); err != nil {
		return nil, errors.BadRequest(err.Error())
	}

	if err := s.repo.UpdateReview(ctx, order); err != nil {
		return nil, err
	}

	return order, nil
}

// Get returns a single order
func (s *Service) Get(ctx context.Context, id types.ID) (*domain.Order, error) {
	return s.repo.FindByID(ctx, id)
}

// List returns orders matching the filter
func (s *Service) List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, int, error) {
	return s.repo.List(ctx, filter)
}

func (s *Service) generatePlan(ctx context.Context, sub domain.Submission) (string, error) {
	start := time.Now()
	plan, err := s.planner.Generate(ctx, careplan.PlanRequest{
		PatientFirstName:    sub.PatientFirstName,
		PatientLastName:     sub.PatientLastName,
		PatientMRN:          sub.PatientMRN,
		PrimaryDiagnosis:    sub.PrimaryDiagnosis,
		AdditionalDiagnoses: sub.AdditionalDiagnoses,
		ReferringProvider:   sub.ReferringProvider,
		ProviderNPI:         sub.ProviderNPI,
		MedicationName:      sub.MedicationName,
		MedicationHistory:   sub.MedicationHistory,
		PatientRecords:      sub.PatientRecords,
	})
	if err != nil {
		metrics.RecordCarePlanGeneration("generate", "error", time.Since(start))
		return "", err
	}
	metrics.RecordCarePlanGeneration("generate", "success", time.Since(start))
	return plan, nil
}

func toForm(sub domain.Submission) validate.OrderForm {
	return validate.OrderForm{
		PatientFirstName:  sub.PatientFirstName,
		PatientLastName:   sub.PatientLastName,
		PatientMRN:        sub.PatientMRN,
		PrimaryDiagnosis:  sub.PrimaryDiagnosis,
		ReferringProvider: sub.ReferringProvider,
		ProviderNPI:       sub.ProviderNPI,
		MedicationName:    sub.MedicationName,
		PatientRecords:    sub.PatientRecords,
	}
}
