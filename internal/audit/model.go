package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/carebridge/platform/internal/shared/types"
)

// canonicalJSON produces deterministic JSON output with sorted map keys.
// This is critical for hash verification - Go maps have random iteration
// order, so keys must be sorted for consistent hashing.
func canonicalJSON(v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}

// ActorType defines the type of actor
type ActorType string

const (
	ActorTypePharmacist ActorType = "pharmacist"
	ActorTypeTechnician ActorType = "technician"
	ActorTypeSystem     ActorType = "system"
	ActorTypeExternal   ActorType = "external"
)

// AuditEntry represents an immutable audit log entry. Entries form a
// hash chain: each entry's hash covers its content and the previous
// entry's hash, so tampering anywhere breaks verification downstream.
type AuditEntry struct {
	ID        types.ID  `json:"id"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prev_hash,omitempty"`

	// Actor
	ActorType   ActorType `json:"actor_type"`
	ActorID     types.ID  `json:"actor_id"`
	ActorName   string    `json:"actor_name,omitempty"`
	ActorIP     string    `json:"actor_ip,omitempty"`
	ActorDevice string    `json:"actor_device,omitempty"`

	// Action
	Action       string    `json:"action"`
	ResourceType string    `json:"resource_type"`
	ResourceID   *types.ID `json:"resource_id,omitempty"`

	// Changes
	Changes map[string]any `json:"changes,omitempty"`

	// Context
	CorrelationID *types.ID `json:"correlation_id,omitempty"`
	SessionID     *types.ID `json:"session_id,omitempty"`
	Justification string    `json:"justification,omitempty"`
}

// NewAuditEntry creates a new audit entry chained to prevHash
func NewAuditEntry(
	actorType ActorType,
	actorID types.ID,
	actorName string,
	action, resourceType string,
	resourceID *types.ID,
	changes map[string]any,
	prevHash string,
) *AuditEntry {
	entry := &AuditEntry{
		ID:           types.NewID(),
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:     prevHash,
		ActorType:    actorType,
		ActorID:      actorID,
		ActorName:    actorName,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Changes:      changes,
	}

	entry.Hash = entry.calculateHash()

	return entry
}

// calculateHash calculates the SHA-256 hash of the entry using
// canonical JSON for deterministic output regardless of map key
// ordering. Timestamps hash in UTC so verification is timezone-proof.
func (e *AuditEntry) calculateHash() string {
	data := map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"prev_hash":     e.PrevHash,
		"actor_type":    e.ActorType,
		"actor_id":      e.ActorID,
		"action":        e.Action,
		"resource_type": e.ResourceType,
	}

	if e.ActorName != "" {
		data["actor_name"] = e.ActorName
	}
	if e.ResourceID != nil {
		data["resource_id"] = e.ResourceID
	}
	if len(e.Changes) > 0 {
		data["changes"] = e.Changes
	}

	jsonData, _ := canonicalJSON(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// VerifyHash verifies the entry's hash
func (e *AuditEntry) VerifyHash() bool {
	return e.Hash == e.calculateHash()
}

// ComputeHash computes and returns the correct hash for this entry
func (e *AuditEntry) ComputeHash() string {
	return e.calculateHash()
}

// WithContext adds context information to the entry
func (e *AuditEntry) WithContext(correlationID, sessionID *types.ID, justification string) *AuditEntry {
	e.CorrelationID = correlationID
	e.SessionID = sessionID
	e.Justification = justification
	return e
}

// WithRequest adds request information to the entry
func (e *AuditEntry) WithRequest(ip, device string) *AuditEntry {
	e.ActorIP = ip
	e.ActorDevice = device
	return e
}

// ListEntriesFilter defines filters for listing audit entries
type ListEntriesFilter struct {
	ActorID      *types.ID  `json:"actor_id,omitempty"`
	ActorType    *ActorType `json:"actor_type,omitempty"`
	Action       string     `json:"action,omitempty"`
	ResourceType string     `json:"resource_type,omitempty"`
	ResourceID   *types.ID  `json:"resource_id,omitempty"`
	StartTime    *time.Time `json:"start_time,omitempty"`
	EndTime      *time.Time `json:"end_time,omitempty"`
	Limit        int        `json:"limit,omitempty"`
	Offset       int        `json:"offset,omitempty"`
}

// Common audit actions
const (
	// Orders
	ActionOrderCreated  = "order.created"
	ActionOrderUpdated  = "order.updated"
	ActionOrderReviewed = "order.reviewed"
	ActionOrderViewed   = "order.viewed"

	// Care plans
	ActionPlanGenerated   = "careplan.generated"
	ActionPlanRegenerated = "careplan.regenerated"
	ActionPlanAccepted    = "order.plan_accepted"

	// Exports of patient data
	ActionDataExported = "export.generated"

	// Sensitive lookups
	ActionPatientViewed = "patient.viewed"

	// Corrections - append-only corrections to previous entries.
	// Instead of modifying data, create a correction event that
	// references the original.
	ActionCorrection     = "correction"
	ActionCorrectionData = "correction.data"
	ActionCorrectionVoid = "correction.void"
)

// CorrectionReason defines standard reasons for corrections
type CorrectionReason string

const (
	CorrectionReasonDataEntry   CorrectionReason = "data_entry_error"
	CorrectionReasonClinical    CorrectionReason = "clinical_correction"
	CorrectionReasonRegulatory  CorrectionReason = "regulatory_requirement"
	CorrectionReasonSystemError CorrectionReason = "system_error"
	CorrectionReasonOther       CorrectionReason = "other"
)

// CorrectionEntry represents data needed for a correction event
type CorrectionEntry struct {
	OriginalEntryID   types.ID         `json:"original_entry_id"`
	OriginalAction    string           `json:"original_action"`
	OriginalTimestamp time.Time        `json:"original_timestamp"`
	Reason            CorrectionReason `json:"reason"`
	Justification     string           `json:"justification"`
	ApprovedBy        *types.ID        `json:"approved_by,omitempty"`
	OldValue          map[string]any   `json:"old_value,omitempty"`
	NewValue          map[string]any   `json:"new_value,omitempty"`
}

// NewCorrectionAuditEntry creates an audit entry for a correction.
// This maintains append-only integrity while allowing for corrections.
func NewCorrectionAuditEntry(
	actorType ActorType,
	actorID types.ID,
	actorName string,
	correction CorrectionEntry,
	prevHash string,
) *AuditEntry {
	changes := map[string]any{
		"correction": map[string]any{
			"original_entry_id":  correction.OriginalEntryID,
			"original_action":    correction.OriginalAction,
			"original_timestamp": correction.OriginalTimestamp,
			"reason":             correction.Reason,
			"justification":      correction.Justification,
			"old_value":          correction.OldValue,
			"new_value":          correction.NewValue,
		},
	}

	if correction.ApprovedBy != nil {
		changes["correction"].(map[string]any)["approved_by"] = correction.ApprovedBy
	}

	return NewAuditEntry(
		actorType,
		actorID,
		actorName,
		ActionCorrection,
		"correction",
		&correction.OriginalEntryID,
		changes,
		prevHash,
	)
}
