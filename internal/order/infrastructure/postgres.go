package infrastructure

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/platform/internal/order/domain"
	"github.com/carebridge/platform/internal/shared/errors"
	"github.com/carebridge/platform/internal/shared/metrics"
	"github.com/carebridge/platform/internal/shared/types"
)

// PostgresRepository implements domain.Repository using PostgreSQL
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool}
}

const orderColumns = `id, patient_first_name, patient_last_name, patient_mrn,
	primary_diagnosis, additional_diagnoses,
	referring_provider, provider_npi,
	medication_name, medication_history, patient_records,
	care_plan, approval_status, feedback, correction_history, history,
	created_at, updated_at`

// Create inserts the order and upserts the patient and provider
// registries in a single transaction. A transaction-scoped advisory
// lock on the match key serializes concurrent submissions of the same
// order; the in-transaction re-check closes the window between the
// duplicate check and the insert.
func (r *PostgresRepository) Create(ctx context.Context, o *domain.Order, allowExisting bool) error {
	defer func(start time.Time) { metrics.RecordDBQuery("order_create", time.Since(start)) }(time.Now())

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	key := o.MatchKey().Normalized()
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, key.String()); err != nil {
		return errors.Wrap(err, "failed to acquire submission lock")
	}

	if !allowExisting {
		var existingID types.ID
		err := tx.QueryRow(ctx, `
			SELECT id FROM pharmacy.orders
			WHERE patient_mrn = $1
			  AND LOWER(medication_name) = $2
			  AND primary_diagnosis = $3
			  AND provider_npi = $4
			LIMIT 1`,
			key.MRN, key.Medication, key.Diagnosis, key.NPI,
		).Scan(&existingID)
		if err == nil {
			return errors.Conflict("an identical order already exists for this patient, medication, diagnosis and provider")
		}
		if err != pgx.ErrNoRows {
			return errors.Wrap(err, "failed to re-check for duplicate order")
		}
	}

	additionalJSON, err := json.Marshal(o.AdditionalDiagnoses)
	if err != nil {
		return errors.Wrap(err, "failed to marshal additional diagnoses")
	}
	medHistoryJSON, err := json.Marshal(o.MedicationHistory)
	if err != nil {
		return errors.Wrap(err, "failed to marshal medication history")
	}
	feedbackJSON, err := json.Marshal(o.Feedback)
	if err != nil {
		return errors.Wrap(err, "failed to marshal feedback")
	}
	correctionsJSON, err := json.Marshal(o.CorrectionHistory)
	if err != nil {
		return errors.Wrap(err, "failed to marshal correction history")
	}
	historyJSON, err := json.Marshal(o.History)
	if err != nil {
		return errors.Wrap(err, "failed to marshal history")
	}

	query := `
		INSERT INTO pharmacy.orders (
			id, patient_first_name, patient_last_name, patient_mrn,
			primary_diagnosis, additional_diagnoses,
			referring_provider, provider_npi,
			medication_name, medication_history, patient_records,
			care_plan, approval_status, feedback, correction_history, history,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)`

	_, err = tx.Exec(ctx, query,
		o.ID, o.PatientFirstName, o.PatientLastName, o.PatientMRN,
		o.PrimaryDiagnosis, additionalJSON,
		o.ReferringProvider, o.ProviderNPI,
		o.MedicationName, medHistoryJSON, o.PatientRecords,
		o.CarePlan, o.ApprovalStatus, feedbackJSON, correctionsJSON, historyJSON,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return errors.Conflict("order with this ID already exists")
		}
		return errors.Wrap(err, "failed to save order")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO pharmacy.patients (mrn, first_name, last_name, order_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (mrn) DO UPDATE SET
			order_count = pharmacy.patients.order_count + 1,
			updated_at = now()`,
		o.PatientMRN, o.PatientFirstName, o.PatientLastName,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert patient")
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO pharmacy.providers (npi, name, order_count, first_order_at)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (npi) DO UPDATE SET
			order_count = pharmacy.providers.order_count + 1,
			updated_at = now()`,
		o.ProviderNPI, o.ReferringProvider, o.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert provider")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// FindByID finds an order by ID
func (r *PostgresRepository) FindByID(ctx context.Context, id types.ID) (*domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM pharmacy.orders WHERE id = $1`, orderColumns)

	row := r.pool.QueryRow(ctx, query, id)
	o, err := scanOrder(row)
	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("order", id.String())
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to find order")
	}

	return o, nil
}

// UpdateContent writes the content fields, the regenerated care plan
// and the appended history snapshot in a single UPDATE so the snapshot
// and the overwrite land atomically. The patient order counter is
// bumped in the same transaction.
func (r *PostgresRepository) UpdateContent(ctx context.Context, o *domain.Order) error {
	defer func(start time.Time) { metrics.RecordDBQuery("order_update_content", time.Since(start)) }(time.Now())

	additionalJSON, err := json.Marshal(o.AdditionalDiagnoses)
	if err != nil {
		return errors.Wrap(err, "failed to marshal additional diagnoses")
	}
	medHistoryJSON, err := json.Marshal(o.MedicationHistory)
	if err != nil {
		return errors.Wrap(err, "failed to marshal medication history")
	}
	historyJSON, err := json.Marshal(o.History)
	if err != nil {
		return errors.Wrap(err, "failed to marshal history")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback(ctx)

	query := `
		UPDATE pharmacy.orders SET
			additional_diagnoses = $2, medication_history = $3, patient_records = $4,
			care_plan = $5, approval_status = $6, history = $7, updated_at = $8
		WHERE id = $1`

	result, err := tx.Exec(ctx, query,
		o.ID, additionalJSON, medHistoryJSON, o.PatientRecords,
		o.CarePlan, o.ApprovalStatus, historyJSON, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update order")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("order", o.ID.String())
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO pharmacy.patients (mrn, first_name, last_name, order_count)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (mrn) DO UPDATE SET
			order_count = pharmacy.patients.order_count + 1,
			updated_at = now()`,
		o.PatientMRN, o.PatientFirstName, o.PatientLastName,
	)
	if err != nil {
		return errors.Wrap(err, "failed to upsert patient")
	}

	if err := tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}

	return nil
}

// UpdateReview writes the review state: feedback, correction history,
// approval status, and the care plan (which changes when a regenerated
// plan is accepted).
func (r *PostgresRepository) UpdateReview(ctx context.Context, o *domain.Order) error {
	defer func(start time.Time) { metrics.RecordDBQuery("order_update_review", time.Since(start)) }(time.Now())

	feedbackJSON, err := json.Marshal(o.Feedback)
	if err != nil {
		return errors.Wrap(err, "failed to marshal feedback")
	}
	correctionsJSON, err := json.Marshal(o.CorrectionHistory)
	if err != nil {
		return errors.Wrap(err, "failed to marshal correction history")
	}
	historyJSON, err := json.Marshal(o.History)
	if err != nil {
		return errors.Wrap(err, "failed to marshal history")
	}

	query := `
		UPDATE pharmacy.orders SET
			care_plan = $2, approval_status = $3,
			feedback = $4, correction_history = $5, history = $6, updated_at = $7
		WHERE id = $1`

	result, err := r.pool.Exec(ctx, query,
		o.ID, o.CarePlan, o.ApprovalStatus,
		feedbackJSON, correctionsJSON, historyJSON, o.UpdatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to update order review")
	}
	if result.RowsAffected() == 0 {
		return errors.NotFound("order", o.ID.String())
	}

	return nil
}

// FindOrdersByMRN finds all orders carrying a medical record number
func (r *PostgresRepository) FindOrdersByMRN(ctx context.Context, mrn string) ([]domain.Order, error) {
	query := fmt.Sprintf(`SELECT %s FROM pharmacy.orders WHERE patient_mrn = $1 ORDER BY created_at`, orderColumns)
	return r.queryOrders(ctx, query, mrn)
}

// FindOrdersByPatientName finds all orders for a patient name,
// case-insensitively
func (r *PostgresRepository) FindOrdersByPatientName(ctx context.Context, firstName, lastName string) ([]domain.Order, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM pharmacy.orders
		WHERE LOWER(patient_first_name) = LOWER($1) AND LOWER(patient_last_name) = LOWER($2)
		ORDER BY created_at`, orderColumns)
	return r.queryOrders(ctx, query, firstName, lastName)
}

// FindOrdersByMatchKey finds orders matching the exact-duplicate tuple
func (r *PostgresRepository) FindOrdersByMatchKey(ctx context.Context, key domain.MatchKey) ([]domain.Order, error) {
	n := key.Normalized()
	query := fmt.Sprintf(`
		SELECT %s FROM pharmacy.orders
		WHERE patient_mrn = $1
		  AND LOWER(medication_name) = $2
		  AND primary_diagnosis = $3
		  AND provider_npi = $4
		ORDER BY created_at`, orderColumns)
	return r.queryOrders(ctx, query, n.MRN, n.Medication, n.Diagnosis, n.NPI)
}

// List lists orders with filters
func (r *PostgresRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, int, error) {
	defer func(start time.Time) { metrics.RecordDBQuery("order_list", time.Since(start)) }(time.Now())

	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("approval_status = $%d", argNum))
		args = append(args, *filter.Status)
		argNum++
	}

	if filter.MRN != "" {
		conditions = append(conditions, fmt.Sprintf("patient_mrn = $%d", argNum))
		args = append(args, filter.MRN)
		argNum++
	}

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(patient_first_name ILIKE $%d OR patient_last_name ILIKE $%d OR medication_name ILIKE $%d)",
			argNum, argNum, argNum))
		args = append(args, "%"+filter.Search+"%")
		argNum++
	}

	if filter.CreatedFrom != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", argNum))
		args = append(args, *filter.CreatedFrom)
		argNum++
	}

	if filter.CreatedTo != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", argNum))
		args = append(args, *filter.CreatedTo)
		argNum++
	}

	if filter.Medication != "" {
		conditions = append(conditions, fmt.Sprintf("medication_name ILIKE $%d", argNum))
		args = append(args, "%"+filter.Medication+"%")
		argNum++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM pharmacy.orders %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count orders")
	}

	orderBy := "created_at"
	if filter.OrderBy != "" {
		orderBy = filter.OrderBy
	}
	orderDir := "ASC"
	if filter.OrderDesc {
		orderDir = "DESC"
	}

	limit := 50
	if filter.Limit > 0 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT %s FROM pharmacy.orders
		%s
		ORDER BY %s %s
		LIMIT $%d OFFSET $%d`, orderColumns, whereClause, orderBy, orderDir, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	orders, err := r.queryOrders(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}

	return orders, total, nil
}

func (r *PostgresRepository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]domain.Order, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query orders")
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan order")
		}
		orders = append(orders, *o)
	}

	return orders, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	o := &domain.Order{}
	var additionalJSON, medHistoryJSON, feedbackJSON, correctionsJSON, historyJSON []byte

	err := row.Scan(
		&o.ID, &o.PatientFirstName, &o.PatientLastName, &o.PatientMRN,
		&o.PrimaryDiagnosis, &additionalJSON,
		&o.ReferringProvider, &o.ProviderNPI,
		&o.MedicationName, &medHistoryJSON, &o.PatientRecords,
		&o.CarePlan, &o.ApprovalStatus, &feedbackJSON, &correctionsJSON, &historyJSON,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(additionalJSON, &o.AdditionalDiagnoses); err != nil {
		o.AdditionalDiagnoses = []string{}
	}
	if err := json.Unmarshal(medHistoryJSON, &o.MedicationHistory); err != nil {
		o.MedicationHistory = []string{}
	}
	if err := json.Unmarshal(feedbackJSON, &o.Feedback); err != nil {
		o.Feedback = []domain.Feedback{}
	}
	if err := json.Unmarshal(correctionsJSON, &o.CorrectionHistory); err != nil {
		o.CorrectionHistory = []domain.CorrectionEntry{}
	}
	if err := json.Unmarshal(historyJSON, &o.History); err != nil {
		o.History = []domain.Snapshot{}
	}

	return o, nil
}
