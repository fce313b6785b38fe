// Package lifecycle deletes chunks that are no longer wanted: a session's
// temporary documents on request, the permanent set before it is replaced,
// and temporary documents older than the retention age on a timer.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/54b3r/scoperag-go/internal/apperr"
	"github.com/54b3r/scoperag-go/internal/rag"
)

// DeleteBatchSize is the number of IDs removed per DeleteByIDs call.
const DeleteBatchSize = 100

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithMetrics sets the metrics sink.
func WithMetrics(metrics *Metrics) Option {
	return func(m *Manager) { m.metrics = metrics }
}

// WithClock overrides the time source used to compute expiry cutoffs.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// Manager performs filtered deletions against the index.
// It is safe for concurrent use.
type Manager struct {
	// index is the engine deletions run against.
	index rag.Index
	// indexName is checked before every deletion; a missing index holds
	// nothing to delete.
	indexName string
	// log records deletion counts.
	log *slog.Logger
	// metrics counts deletions and sweeps.
	metrics *Metrics
	// now is the clock used for expiry cutoffs.
	now func() time.Time
}

// NewManager constructs a Manager for the named index.
func NewManager(index rag.Index, indexName string, opts ...Option) *Manager {
	m := &Manager{
		index:     index,
		indexName: indexName,
		log:       slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// CleanupScope deletes every temporary chunk of scopeID. The shared global
// scope cannot be cleaned this way.
func (m *Manager) CleanupScope(ctx context.Context, scopeID string) (int, error) {
	if scopeID == "" {
		return 0, apperr.Validation("lifecycle.cleanup_scope", "sessionId is required")
	}
	if scopeID == rag.GlobalScope {
		return 0, apperr.Validation("lifecycle.cleanup_scope", "the global scope cannot be cleaned up")
	}
	return m.deleteMatching(ctx, "lifecycle.cleanup_scope", reasonSession, rag.InScope(scopeID, rag.Temporary))
}

// Cleanup deletes every chunk of scopeID with permanence p. Unlike
// CleanupScope it accepts the global scope, which is how operators clear the
// permanent set.
func (m *Manager) Cleanup(ctx context.Context, scopeID string, p rag.Permanence) (int, error) {
	if scopeID == "" {
		return 0, apperr.Validation("lifecycle.cleanup", "sessionId is required")
	}
	if p != rag.Permanent && p != rag.Temporary {
		return 0, apperr.Validation("lifecycle.cleanup", fmt.Sprintf("documentType must be %q or %q", rag.Permanent, rag.Temporary))
	}
	return m.deleteMatching(ctx, "lifecycle.cleanup", reasonCleanup, rag.InScope(scopeID, p))
}

// PurgePermanent deletes every permanent chunk.
func (m *Manager) PurgePermanent(ctx context.Context) (int, error) {
	return m.deleteMatching(ctx, "lifecycle.purge_permanent", reasonReplace, rag.AllPermanent())
}

// SweepExpired deletes temporary chunks uploaded more than maxAge ago.
func (m *Manager) SweepExpired(ctx context.Context, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, apperr.Validation("lifecycle.sweep", "max age must be positive")
	}
	cutoff := m.now().Add(-maxAge)
	n, err := m.deleteMatching(ctx, "lifecycle.sweep", reasonExpired, rag.ExpiredBefore(cutoff))
	m.metrics.sweep(err)
	return n, err
}

// deleteMatching finds every record matching f and deletes them in batches.
// On a failed batch it returns the count deleted so far with the error.
func (m *Manager) deleteMatching(ctx context.Context, op, reason string, f rag.Filter) (int, error) {
	if f.IsZero() {
		return 0, apperr.Validation(op, "refusing to delete with an empty filter")
	}

	exists, err := m.index.IndexExists(ctx, m.indexName)
	if err != nil {
		return 0, apperr.Dependency(op, "check index", err)
	}
	if !exists {
		return 0, nil
	}

	ids, err := m.index.FindIDs(ctx, f)
	if err != nil {
		return 0, apperr.Dependency(op, "find chunks", err)
	}

	deleted := 0
	for start := 0; start < len(ids); start += DeleteBatchSize {
		end := min(start+DeleteBatchSize, len(ids))
		if err := m.index.DeleteByIDs(ctx, ids[start:end]); err != nil {
			m.metrics.deleted(reason, deleted)
			return deleted, apperr.Dependency(op, "delete chunks", err)
		}
		deleted = end
	}

	m.metrics.deleted(reason, deleted)
	m.log.Info("lifecycle: chunks deleted",
		slog.String("op", op),
		slog.String("reason", reason),
		slog.Int("count", deleted),
	)
	return deleted, nil
}
