// Package patient maintains the patient registry derived from order
// submissions. Patients are keyed by MRN and upserted as part of the
// order write, so this module is read-mostly.
package patient

import (
	"time"

	"github.com/carebridge/platform/internal/shared/types"
)

// Patient is a registry entry keyed by medical record number
type Patient struct {
	MRN        types.MRN `json:"mrn"`
	FirstName  string    `json:"firstName"`
	LastName   string    `json:"lastName"`
	OrderCount int       `json:"orderCount"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// ListFilter narrows patient listings
type ListFilter struct {
	Search string
	Limit  int
	Offset int
}
