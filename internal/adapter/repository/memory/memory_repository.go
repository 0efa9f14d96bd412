// Package memory implements a bounded, in-memory log store for environments
// without persistent file access.
package memory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/V4T54L/callwatch/internal/domain"
)

const (
	DefaultCapacity     = 1000
	DefaultRetention    = time.Hour
	DefaultPreviewChars = 200
)

// Repository implements domain.EntryStore on a capped, insertion-ordered slice.
type Repository struct {
	capacity     int
	retention    time.Duration
	previewChars int
	forwarder    domain.Forwarder
	logger       *slog.Logger
	now          func() time.Time

	mu      sync.RWMutex
	entries []domain.Entry
}

// Option configures a Repository.
type Option func(*Repository)

// WithCapacity sets the maximum number of retained entries.
func WithCapacity(n int) Option {
	return func(r *Repository) {
		if n > 0 {
			r.capacity = n
		}
	}
}

// WithRetention sets the age after which Prune drops entries.
func WithRetention(d time.Duration) Option {
	return func(r *Repository) {
		if d > 0 {
			r.retention = d
		}
	}
}

// WithPreviewChars sets how many characters of call input/output are kept.
// A negative value keeps the full text.
func WithPreviewChars(n int) Option {
	return func(r *Repository) { r.previewChars = n }
}

// WithForwarder ships every appended entry to f on a best-effort basis.
func WithForwarder(f domain.Forwarder) Option {
	return func(r *Repository) { r.forwarder = f }
}

// WithClock overrides the time source used for pruning.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) { r.now = now }
}

// NewRepository creates an empty in-memory store.
func NewRepository(logger *slog.Logger, opts ...Option) *Repository {
	r := &Repository{
		capacity:     DefaultCapacity,
		retention:    DefaultRetention,
		previewChars: DefaultPreviewChars,
		logger:       logger.With("component", "memory_repository"),
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.entries = make([]domain.Entry, 0, r.capacity)
	return r
}

// Append stores the entry, evicting the oldest entries beyond capacity.
func (r *Repository) Append(ctx context.Context, entry domain.Entry) error {
	if call, ok := entry.(domain.APICallEntry); ok {
		entry = call.Truncated(r.previewChars)
	}
	entry = domain.Clone(entry)

	r.mu.Lock()
	r.entries = append(r.entries, entry)
	if over := len(r.entries) - r.capacity; over > 0 {
		kept := make([]domain.Entry, r.capacity)
		copy(kept, r.entries[over:])
		r.entries = kept
	}
	r.mu.Unlock()

	if r.forwarder != nil {
		r.forwarder.Forward(domain.Clone(entry))
	}
	return nil
}

// Recent returns at most limit entries of the selected kind, most recent first.
func (r *Repository) Recent(ctx context.Context, kind domain.Kind, limit int) ([]domain.Entry, error) {
	out := []domain.Entry{}
	if limit <= 0 {
		return out, nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if kind.Selects(r.entries[i].Kind()) {
			out = append(out, domain.Clone(r.entries[i]))
		}
	}
	return out, nil
}

// Search returns matching entries, most recent first, capped at domain.MaxSearchResults.
func (r *Repository) Search(ctx context.Context, keyword string, kind domain.Kind) ([]domain.Entry, error) {
	out := []domain.Entry{}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for i := len(r.entries) - 1; i >= 0 && len(out) < domain.MaxSearchResults; i-- {
		e := r.entries[i]
		if kind.Selects(e.Kind()) && domain.Matches(e, keyword) {
			out = append(out, domain.Clone(e))
		}
	}
	return out, nil
}

// Entries returns a copy of the retained entries of the selected kind in append order.
func (r *Repository) Entries(ctx context.Context, kind domain.Kind) ([]domain.Entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Entry, 0, len(r.entries))
	for _, e := range r.entries {
		if kind.Selects(e.Kind()) {
			out = append(out, domain.Clone(e))
		}
	}
	return out, nil
}

// Prune drops entries older than the retention window, evaluated now.
func (r *Repository) Prune(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.retention)

	r.mu.Lock()
	kept := r.entries[:0]
	for _, e := range r.entries {
		if !e.Time().Before(cutoff) {
			kept = append(kept, e)
		}
	}
	removed := len(r.entries) - len(kept)
	clear(r.entries[len(kept):])
	r.entries = kept
	r.mu.Unlock()

	if removed > 0 {
		r.logger.Info("Pruned old entries from memory", "count", removed)
	}
	return removed, nil
}

// Len returns the number of retained entries.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}
