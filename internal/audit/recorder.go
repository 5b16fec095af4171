package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/carebridge/platform/internal/shared/events"
	"github.com/carebridge/platform/internal/shared/metrics"
)

// Recorder is a direct-write stand-in for the event bus. When no event
// store is configured, handlers publish through a Recorder and each
// event lands in the audit store synchronously instead of via the
// subscriber.
type Recorder struct {
	repo AuditRepository
}

// NewRecorder creates a recorder writing to the given audit store
func NewRecorder(repo AuditRepository) *Recorder {
	return &Recorder{repo: repo}
}

// Publish converts the event to an audit entry and appends it
func (r *Recorder) Publish(ctx context.Context, event events.Event) error {
	entry := eventToAuditEntry(event)
	if entry == nil {
		return nil
	}

	if err := r.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	metrics.RecordAuditEntry()
	return nil
}

// Subscribe is unsupported: the recorder has no stream to replay
func (r *Recorder) Subscribe(ctx context.Context, pattern string, consumerName string, handler events.Handler) error {
	return fmt.Errorf("audit recorder does not support subscriptions")
}

// Close is a no-op; the recorder owns no connection
func (r *Recorder) Close() {}

// Health reports whether the underlying audit store is reachable
func (r *Recorder) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := r.repo.Count(ctx)
	return err
}

var _ events.EventBus = (*Recorder)(nil)
