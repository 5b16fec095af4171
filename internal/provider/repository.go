package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/platform/internal/shared/errors"
)

// Repository provides database operations for the provider registry
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new provider repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByNPI retrieves a provider by NPI
func (r *Repository) GetByNPI(ctx context.Context, npi string) (*Provider, error) {
	query := `
		SELECT npi, name, order_count, first_order_at, created_at, updated_at
		FROM pharmacy.providers
		WHERE npi = $1`

	p := &Provider{}
	err := r.pool.QueryRow(ctx, query, npi).Scan(
		&p.NPI, &p.Name, &p.OrderCount, &p.FirstOrderAt, &p.CreatedAt, &p.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, errors.NotFound("provider", npi)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get provider")
	}

	return p, nil
}

// FindByName finds providers by name, case-insensitively
func (r *Repository) FindByName(ctx context.Context, name string) ([]Provider, error) {
	query := `
		SELECT npi, name, order_count, first_order_at, created_at, updated_at
		FROM pharmacy.providers
		WHERE LOWER(name) = LOWER($1)
		ORDER BY first_order_at`

	rows, err := r.pool.Query(ctx, query, name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find providers by name")
	}
	defer rows.Close()

	return scanProviders(rows)
}

// List lists providers with optional name or NPI search
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Provider, int, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf(
			"(name ILIKE $%d OR npi = $%d)", argNum, argNum+1))
		args = append(args, "%"+filter.Search+"%", filter.Search)
		argNum += 2
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM pharmacy.providers %s", whereClause)
	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, errors.Wrap(err, "failed to count providers")
	}

	limit := 50
	if filter.Limit > 0 && filter.Limit <= 100 {
		limit = filter.Limit
	}

	query := fmt.Sprintf(`
		SELECT npi, name, order_count, first_order_at, created_at, updated_at
		FROM pharmacy.providers
		%s
		ORDER BY name
		LIMIT $%d OFFSET $%d`, whereClause, argNum, argNum+1)

	args = append(args, limit, filter.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to list providers")
	}
	defer rows.Close()

	providers, err := scanProviders(rows)
	if err != nil {
		return nil, 0, err
	}

	return providers, total, nil
}

func scanProviders(rows pgx.Rows) ([]Provider, error) {
	var providers []Provider
	for rows.Next() {
		var p Provider
		err := rows.Scan(&p.NPI, &p.Name, &p.OrderCount, &p.FirstOrderAt, &p.CreatedAt, &p.UpdatedAt)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan provider")
		}
		providers = append(providers, p)
	}
	return providers, rows.Err()
}
