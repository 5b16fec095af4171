package patient

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/platform/internal/shared/errors"
)

// Repository provides database operations for the patient registry
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new patient repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByMRN retrieves a patient by medical record number
func (r *Repository) GetByMRN(ctx context.Context, mrn string) (*Patient, error) {
	query := `
		SELECT mrn, first_name, last_name, order_count, created_at, updated_at
		FROM pharmacy.patients
		WHERE mrn = $1`

	p := &Patient{}
	err := r.pool.QueryRow(ctx, query, mrn).Scan(
		&p.MRN, &p.FirstName, &p.LastName, &p.OrderCount, &p.CreatedAt, &p.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("patient", mrn)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get patient")
	}

	return p, nil
}

// FindByName finds patients by name, case-insensitively
func (r *Repository) FindByName(ctx context.Context, firstName, lastName string) ([]Patient, error) {
	query := `
		SELECT mrn, first_name, last_name, order_count, created_at, updated_at
		FROM pharmacy.patients
		WHERE LOWER(first_name) = LOWER($1) AND LOWER(last_name) = LOWER($2)
		ORDER BY created_at`

	rows, err := r.pool.Query(ctx, query, firstName, lastName)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find patients by name")
	}
	defer rows.Close()

	return scanPatients(rows)
}

// List lists patients with optional name or MRN search
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Patient, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(first_name ILIKE $%d OR last_name ILIKE $%d OR mrn = $%d)", argNum, argNum, argNum+1))
		args = append(args, "%"+filter.Search+"%", filter.Search)
		argNum += 2
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM pharmacy.patients %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count patients")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT mrn, first_name, last_name, order_count, created_at, updated_at
		FROM pharmacy.patients
		%s
		ORDER BY last_name, first_name
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list patients")
	}
	defer rows.Close()

	patients, err := scanPatients(rows)
	if err != nil {
		return nil, 0, err
	}

	return patients, total, nil
}

func scanPatients(rows pgx.Rows) ([]Patient, error) {
	var patients []Patient
	for rows.Next() {
		var p Patient
		err := rows.Scan(&p.MRN, &p.FirstName, &p.LastName, &p.OrderCount, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan patient")
		}
		patients = append(patients, p)
	}
	return patients, rows.Err()
}
