// Package memory implements an in-process store.Repository fake, used by
// tests and as a degrade-to-local path when no Postgres DSN is configured.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/usorama/engg-context-gateway/store"
)

// Repository is an in-memory store.Repository.
type Repository struct {
	mu       sync.RWMutex
	queries  map[string]store.Query
	feedback map[string]store.Feedback
	tuning   map[string]store.TuningConfig
}

func New() *Repository {
	return &Repository{
		queries:  make(map[string]store.Query),
		feedback: make(map[string]store.Feedback),
		tuning:   make(map[string]store.TuningConfig),
	}
}

func (r *Repository) InsertQuery(ctx context.Context, q store.Query) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries[q.ID] = q
	return nil
}

func (r *Repository) GetQuery(ctx context.Context, id string) (store.Query, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	q, ok := r.queries[id]
	if !ok {
		return store.Query{}, store.ErrNotFound
	}
	return q, nil
}

func (r *Repository) QueryInWindow(ctx context.Context, project string, since time.Time) ([]store.Query, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []store.Query
	for _, q := range r.queries {
		if project != "" && q.Project != project {
			continue
		}
		if q.SubmittedAt.Before(since) {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func (r *Repository) AttachFeedback(ctx context.Context, f store.Feedback) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.queries[f.QueryID]; !ok {
		return store.ErrNotFound
	}
	if _, exists := r.feedback[f.QueryID]; exists {
		return store.ErrConflict
	}
	r.feedback[f.QueryID] = f
	return nil
}

func (r *Repository) GetFeedback(ctx context.Context, queryID string) (store.Feedback, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.feedback[queryID]
	if !ok {
		return store.Feedback{}, store.ErrNotFound
	}
	return f, nil
}

func (r *Repository) GetTuningConfig(ctx context.Context, project string) (store.TuningConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.tuning[project]
	if !ok {
		return store.TuningConfig{Project: project, Deltas: make(map[string]float64)}, nil
	}
	return cfg, nil
}

func (r *Repository) SaveTuningConfig(ctx context.Context, cfg store.TuningConfig) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tuning[cfg.Project] = cfg
	return nil
}
