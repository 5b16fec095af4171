// Package provider maintains the referring-provider registry derived
// from order submissions, keyed by NPI.
package provider

import (
	"time"

	"github.com/carebridge/platform/internal/shared/types"
)

// Provider is a registry entry keyed by National Provider Identifier
type Provider struct {
	NPI          types.NPI `json:"npi"`
	Name         string    `json:"name"`
	OrderCount   int       `json:"orderCount"`
	FirstOrderAt time.Time `json:"firstOrderAt"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// ListFilter narrows provider listings
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}
