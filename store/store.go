// Package store defines the Feedback & Metrics Store contract: persistence
// for Query records, Feedback, and per-project Tuning Configuration.
package store

import (
	"context"
	"time"
)

// QueryStatus is a Query record's terminal or in-flight state.
type QueryStatus string

const (
	QueryPendingClarification QueryStatus = "pending_clarification"
	QuerySuccess              QueryStatus = "success"
	QueryPartial              QueryStatus = "partial"
	QueryUnavailable          QueryStatus = "unavailable"
)

// Query is the persisted record of one request lifecycle.
type Query struct {
	ID              string
	Project         string
	Text            string
	Intent          string
	Clarity         string
	Status          QueryStatus
	SubmittedAt     time.Time
	CompletedAt     time.Time
	VectorLatencyMS int64
	GraphLatencyMS  int64
	SemanticCount   int
	StructuralCount int
	Confidence      float64
	CacheHit        bool

	// Scoring-weight signals recorded at completion time, consumed by the
	// Confidence Tuner to correlate weight candidates against feedback.
	StalenessScore    float64
	OrphanScore       float64
	ConnectivityScore float64
}

// FeedbackRating is the caller's verdict on a completed query.
type FeedbackRating string

const (
	RatingUseful    FeedbackRating = "useful"
	RatingNotUseful FeedbackRating = "not_useful"
	RatingPartial   FeedbackRating = "partial"
)

// Feedback references exactly one Query.
type Feedback struct {
	QueryID   string
	Rating    FeedbackRating
	Comment   string
	CreatedAt time.Time
}

// TuningConfig holds per-project deltas applied to scoring weights.
type TuningConfig struct {
	Project     string
	Deltas      map[string]float64
	TuningCount int
	LastTuned   time.Time
}

// ErrNotFound is returned when a query id is unknown or has no feedback.
var ErrNotFound = &notFoundError{}

type notFoundError struct{}

func (*notFoundError) Error() string { return "store: not found" }

// ErrConflict is returned when feedback is re-submitted for a query that
// already has one, per the one-Feedback-per-Query invariant.
var ErrConflict = &conflictError{}

type conflictError struct{}

func (*conflictError) Error() string { return "store: conflict" }

// Repository is the Feedback & Metrics Store's persistence contract.
type Repository interface {
	InsertQuery(ctx context.Context, q Query) error
	GetQuery(ctx context.Context, id string) (Query, error)
	QueryInWindow(ctx context.Context, project string, since time.Time) ([]Query, error)

	AttachFeedback(ctx context.Context, f Feedback) error
	GetFeedback(ctx context.Context, queryID string) (Feedback, error)

	GetTuningConfig(ctx context.Context, project string) (TuningConfig, error)
	SaveTuningConfig(ctx context.Context, cfg TuningConfig) error
}
