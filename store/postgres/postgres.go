// Package postgres implements store.Repository against PostgreSQL via
// jackc/pgx/v5's connection pool, grounded on the pack's pgxpool.Pool
// dependency-injection pattern.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/usorama/engg-context-gateway/store"
)

// Repository is a pgxpool-backed store.Repository.
type Repository struct {
	pool *pgxpool.Pool
}

// New wraps an already-constructed pool.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Connect dials dsn and returns a ready Repository.
func Connect(ctx context.Context, dsn string) (*Repository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &Repository{pool: pool}, nil
}

func (r *Repository) Close() { r.pool.Close() }

func (r *Repository) InsertQuery(ctx context.Context, q store.Query) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO queries (id, project, text, intent, clarity, status, submitted_at,
			completed_at, vector_latency_ms, graph_latency_ms, semantic_count,
			structural_count, confidence, cache_hit, staleness_score, orphan_score,
			connectivity_score)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, completed_at = EXCLUDED.completed_at,
			vector_latency_ms = EXCLUDED.vector_latency_ms, graph_latency_ms = EXCLUDED.graph_latency_ms,
			semantic_count = EXCLUDED.semantic_count, structural_count = EXCLUDED.structural_count,
			confidence = EXCLUDED.confidence, cache_hit = EXCLUDED.cache_hit,
			staleness_score = EXCLUDED.staleness_score, orphan_score = EXCLUDED.orphan_score,
			connectivity_score = EXCLUDED.connectivity_score
	`, q.ID, q.Project, q.Text, q.Intent, q.Clarity, q.Status, q.SubmittedAt,
		q.CompletedAt, q.VectorLatencyMS, q.GraphLatencyMS, q.SemanticCount,
		q.StructuralCount, q.Confidence, q.CacheHit, q.StalenessScore, q.OrphanScore,
		q.ConnectivityScore)
	if err != nil {
		return fmt.Errorf("postgres: insert query: %w", err)
	}
	return nil
}

func (r *Repository) GetQuery(ctx context.Context, id string) (store.Query, error) {
	var q store.Query
	err := r.pool.QueryRow(ctx, `
		SELECT id, project, text, intent, clarity, status, submitted_at,
			completed_at, vector_latency_ms, graph_latency_ms, semantic_count,
			structural_count, confidence, cache_hit, staleness_score, orphan_score,
			connectivity_score
		FROM queries WHERE id = $1
	`, id).Scan(&q.ID, &q.Project, &q.Text, &q.Intent, &q.Clarity, &q.Status,
		&q.SubmittedAt, &q.CompletedAt, &q.VectorLatencyMS, &q.GraphLatencyMS,
		&q.SemanticCount, &q.StructuralCount, &q.Confidence, &q.CacheHit,
		&q.StalenessScore, &q.OrphanScore, &q.ConnectivityScore)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Query{}, store.ErrNotFound
	}
	if err != nil {
		return store.Query{}, fmt.Errorf("postgres: get query: %w", err)
	}
	return q, nil
}

func (r *Repository) QueryInWindow(ctx context.Context, project string, since time.Time) ([]store.Query, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, project, text, intent, clarity, status, submitted_at,
			completed_at, vector_latency_ms, graph_latency_ms, semantic_count,
			structural_count, confidence, cache_hit, staleness_score, orphan_score,
			connectivity_score
		FROM queries
		WHERE submitted_at >= $1 AND ($2 = '' OR project = $2)
	`, since, project)
	if err != nil {
		return nil, fmt.Errorf("postgres: query window: %w", err)
	}
	defer rows.Close()

	var out []store.Query
	for rows.Next() {
		var q store.Query
		if err := rows.Scan(&q.ID, &q.Project, &q.Text, &q.Intent, &q.Clarity, &q.Status,
			&q.SubmittedAt, &q.CompletedAt, &q.VectorLatencyMS, &q.GraphLatencyMS,
			&q.SemanticCount, &q.StructuralCount, &q.Confidence, &q.CacheHit,
			&q.StalenessScore, &q.OrphanScore, &q.ConnectivityScore); err != nil {
			return nil, fmt.Errorf("postgres: scan query row: %w", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *Repository) AttachFeedback(ctx context.Context, f store.Feedback) error {
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO feedback (query_id, rating, comment, created_at)
		SELECT $1, $2, $3, $4
		WHERE EXISTS (SELECT 1 FROM queries WHERE id = $1)
		ON CONFLICT (query_id) DO NOTHING
	`, f.QueryID, f.Rating, f.Comment, f.CreatedAt)
	if err != nil {
		return fmt.Errorf("postgres: attach feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetQuery(ctx, f.QueryID); err != nil {
			return store.ErrNotFound
		}
		return store.ErrConflict
	}
	return nil
}

func (r *Repository) GetFeedback(ctx context.Context, queryID string) (store.Feedback, error) {
	var f store.Feedback
	err := r.pool.QueryRow(ctx, `
		SELECT query_id, rating, comment, created_at FROM feedback WHERE query_id = $1
	`, queryID).Scan(&f.QueryID, &f.Rating, &f.Comment, &f.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Feedback{}, store.ErrNotFound
	}
	if err != nil {
		return store.Feedback{}, fmt.Errorf("postgres: get feedback: %w", err)
	}
	return f, nil
}

func (r *Repository) GetTuningConfig(ctx context.Context, project string) (store.TuningConfig, error) {
	var cfg store.TuningConfig
	var raw []byte
	err := r.pool.QueryRow(ctx, `
		SELECT project, deltas, tuning_count, last_tuned FROM tuning_configs WHERE project = $1
	`, project).Scan(&cfg.Project, &raw, &cfg.TuningCount, &cfg.LastTuned)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.TuningConfig{Project: project, Deltas: make(map[string]float64)}, nil
	}
	if err != nil {
		return store.TuningConfig{}, fmt.Errorf("postgres: get tuning config: %w", err)
	}
	if err := json.Unmarshal(raw, &cfg.Deltas); err != nil {
		return store.TuningConfig{}, fmt.Errorf("postgres: unmarshal deltas: %w", err)
	}
	return cfg, nil
}

func (r *Repository) SaveTuningConfig(ctx context.Context, cfg store.TuningConfig) error {
	raw, err := json.Marshal(cfg.Deltas)
	if err != nil {
		return fmt.Errorf("postgres: marshal deltas: %w", err)
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO tuning_configs (project, deltas, tuning_count, last_tuned)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (project) DO UPDATE SET
			deltas = EXCLUDED.deltas, tuning_count = EXCLUDED.tuning_count, last_tuned = EXCLUDED.last_tuned
	`, cfg.Project, raw, cfg.TuningCount, cfg.LastTuned)
	if err != nil {
		return fmt.Errorf("postgres: save tuning config: %w", err)
	}
	return nil
}
