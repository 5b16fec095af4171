package infrastructure

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carebridge/platform/internal/order/domain"
	"github.com/carebridge/platform/internal/shared/errors"
)

// ProviderDirectory implements domain.ProviderFinder against the
// provider registry. The duplicate detector only needs identity
// lookups, so this reads the registry directly instead of going
// through the provider module.
type ProviderDirectory struct {
	pool *pgxpool.Pool
}

// NewProviderDirectory creates a provider directory
func NewProviderDirectory(pool *pgxpool.Pool) *ProviderDirectory {
	return &ProviderDirectory{pool: pool}
}

// FindProviderByNPI returns the registry entry for an NPI, or nil when
// the NPI is unknown
func (d *ProviderDirectory) FindProviderByNPI(ctx context.Context, npi string) (*domain.ProviderRef, error) {
	ref := &domain.ProviderRef{}
	err := d.pool.QueryRow(ctx, `
		SELECT npi, name, first_order_at
		FROM pharmacy.providers
		WHERE npi = $1`, npi,
	).Scan(&ref.NPI, &ref.Name, &ref.FirstOrderAt)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up provider by NPI")
	}

	return ref, nil
}

// FindProvidersByName returns registry entries matching a provider
// name, case-insensitively
func (d *ProviderDirectory) FindProvidersByName(ctx context.Context, name string) ([]domain.ProviderRef, error) {
	rows, err := d.pool.Query(ctx, `
		SELECT npi, name, first_order_at
		FROM pharmacy.providers
		WHERE LOWER(name) = LOWER($1)
		ORDER BY first_order_at`, name)
	if err != nil {
		return nil, errors.Wrap(err, "failed to look up providers by name")
	}
	defer rows.Close()

	var refs []domain.ProviderRef
	for rows.Next() {
		var ref domain.ProviderRef
		if err := rows.Scan(&ref.NPI, &ref.Name, &ref.FirstOrderAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan provider")
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}
