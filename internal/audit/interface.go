package audit

import (
	"context"

	"github.com/carebridge/platform/internal/shared/types"
)

// AuditRepository defines the interface for audit storage operations.
// This allows swapping between PostgreSQL and KurrentDB implementations.
type AuditRepository interface {
	// Initialize loads initial state (last hash, sequence)
	Initialize(ctx context.Context) error

	// Append appends a new audit entry
	Append(ctx context.Context, entry *AuditEntry) error

	// FindByID finds an audit entry by ID
	FindByID(ctx context.Context, id types.ID) (*AuditEntry, error)

	// List lists audit entries with filters
	List(ctx context.Context, filter ListEntriesFilter) ([]*AuditEntry, int, error)

	// GetByResource gets audit entries for a specific resource
	GetByResource(ctx context.Context, resourceType string, resourceID types.ID, limit int) ([]*AuditEntry, error)

	// VerifyChain verifies the integrity of the audit chain
	VerifyChain(ctx context.Context, limit int, includeDetails bool) (*VerifyResult, error)

	// GetLastHash returns the last hash in the chain
	GetLastHash() string

	// GetSequence returns the current sequence number
	GetSequence() int64

	// Count returns the total number of audit entries
	Count(ctx context.Context) (int, error)
}

// VerifyResult contains detailed verification results
type VerifyResult struct {
	Valid          bool                `json:"valid"`
	Checked        int                 `json:"checked"`
	ContentValid   int                 `json:"content_valid"`   // Entries with valid content hash
	ContentInvalid int                 `json:"content_invalid"` // Entries with tampered content
	LinkageValid   int                 `json:"linkage_valid"`   // Entries with valid chain linkage
	LinkageInvalid int                 `json:"linkage_invalid"` // Entries with broken chain
	Violations     []string            `json:"violations,omitempty"`
	Entries        []VerifyEntryResult `json:"entries,omitempty"`
}

// VerifyEntryResult contains verification result for a single entry
type VerifyEntryResult struct {
	ID            types.ID `json:"id"`
	Sequence      int64    `json:"sequence"`
	Hash          string   `json:"hash"`
	ComputedHash  string   `json:"computed_hash,omitempty"` // Recalculated hash
	PrevHash      string   `json:"prev_hash"`
	Valid         bool     `json:"valid"`
	ContentValid  bool     `json:"content_valid"` // Hash matches content
	LinkageValid  bool     `json:"linkage_valid"` // Chain link is valid
	Action        string   `json:"action"`
	ViolationType string   `json:"violation_type,omitempty"` // "content", "linkage", "both"
}

// Ensure implementations satisfy the interface
var (
	_ AuditRepository = (*KurrentDBRepository)(nil)
	_ AuditRepository = (*PostgresRepository)(nil)
)
