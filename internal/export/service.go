// Package export produces bulk order exports (CSV, JSON) and care
// plan documents (PDF) from the order store.
package export

import (
	"context"
	"strings"
	"time"

	"github.com/carebridge/platform/internal/order/domain"
	"github.com/carebridge/platform/internal/shared/errors"
)

// Filter narrows the export to a creation-date window and a medication
// substring. All fields are optional and combine with AND semantics;
// both date bounds are inclusive.
type Filter struct {
	Start      *time.Time
	End        *time.Time
	Medication string
}

// Summary carries the aggregate counts over the matched orders
type Summary struct {
	TotalOrders         int `json:"totalOrders"`
	DistinctPatients    int `json:"distinctPatients"`
	DistinctProviders   int `json:"distinctProviders"`
	DistinctMedications int `json:"distinctMedications"`
}

// Result is a filtered export data set
type Result struct {
	Orders  []domain.Order
	Summary Summary
	Filter  Filter
}

// Lister is the order read surface the export engine needs
type Lister interface {
	List(ctx context.Context, filter domain.ListFilter) ([]domain.Order, int, error)
}

// Service runs export queries
type Service struct {
	orders  Lister
	maxRows int
}

// NewService creates an export service. maxRows caps a single export.
func NewService(orders Lister, maxRows int) *Service {
	if maxRows <= 0 {
		maxRows = 10000
	}
	return &Service{orders: orders, maxRows: maxRows}
}

// Run fetches the matching orders and computes the summary. Zero
// matches is an error that names the active filters, so the caller
// never hands out an empty file silently.
func (s *Service) Run(ctx context.Context, f Filter) (*Result, error) {
	listFilter := domain.ListFilter{
		CreatedFrom: f.Start,
		CreatedTo:   f.End,
		Medication:  strings.TrimSpace(f.Medication),
		OrderBy:     "created_at",
		Limit:       s.maxRows,
	}

	orders, _, err := s.orders.List(ctx, listFilter)
	if err != nil {
		return nil, err
	}

	if len(orders) == 0 {
		msg := "no orders match the export filters"
		if !listFilter.Active() {
			msg = "there are no orders to export"
		}
		return nil, errors.Validation(msg, activeFilters(f))
	}

	return &Result{
		Orders:  orders,
		Summary: summarize(orders),
		Filter:  f,
	}, nil
}

func summarize(orders []domain.Order) Summary {
	mrns := make(map[string]struct{})
	npis := make(map[string]struct{})
	medications := make(map[string]struct{})

	for _, o := range orders {
		mrns[o.PatientMRN] = struct{}{}
		npis[o.ProviderNPI] = struct{}{}
		medications[strings.ToLower(o.MedicationName)] = struct{}{}
	}

	return Summary{
		TotalOrders:         len(orders),
		DistinctPatients:    len(mrns),
		DistinctProviders:   len(npis),
		DistinctMedications: len(medications),
	}
}

func activeFilters(f Filter) map[string]string {
	active := make(map[string]string)
	if f.Start != nil {
		active["startDate"] = f.Start.Format("2006-01-02")
	}
	if f.End != nil {
		active["endDate"] = f.End.Format("2006-01-02")
	}
	if f.Medication != "" {
		active["medication"] = f.Medication
	}
	if len(active) == 0 {
		active["filters"] = "none"
	}
	return active
}
