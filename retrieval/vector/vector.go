// Package vector implements the Vector Retriever: embed the query via the
// embedding fallback chain, search the configured vector store, normalize
// scores into [0,1], break ties, and truncate to top-K.
package vector

import (
	"context"
	"sort"

	"github.com/usorama/engg-context-gateway/ai"
	"github.com/usorama/engg-context-gateway/internal/logging"
)

// Match is a semantic match returned by a vector search.
type Match struct {
	ChunkID   string  `json:"chunk_id"`
	Score     float64 `json:"score"` // normalized to [0,1]
	Content   string  `json:"content"`
	Source    string  `json:"source"`
	LineStart int     `json:"line_start"`
	LineEnd   int     `json:"line_end"`
	Type      string  `json:"type"` // code, doc, comment
	Language  string  `json:"language"`
	Rank      int     `json:"rank"`
}

// Filter narrows a search by content type/language, in addition to the
// mandatory project tag.
type Filter struct {
	Type     string
	Language string
}

// SearchResult is what the backing Store returns, before normalization.
type SearchResult struct {
	ChunkID   string
	RawScore  float64
	Content   string
	Source    string
	LineStart int
	LineEnd   int
	Type      string
	Language  string
}

// Store abstracts the vector database: collection lifecycle, point upsert,
// and nearest-neighbor search with a project filter.
type Store interface {
	EnsureCollection(ctx context.Context, name string, dim int) error
	Search(ctx context.Context, project, queryText string, embedding []float32, filter Filter, topK int) ([]SearchResult, error)
}

// Embedder is the subset of ai.EmbeddingChain the retriever depends on.
type Embedder interface {
	Embed(ctx context.Context, text string, opts ai.EmbedOptions) ([]float32, error)
}

// Normalizer maps a backend's raw score into [0,1]. Distinct vector backends
// report different native ranges (Qdrant cosine similarity in [-1,1],
// Euclidean/Dot distance unbounded), so this is pluggable per configured
// distance metric.
type Normalizer func(raw float64) float64

// CosineNormalizer maps Qdrant's cosine-similarity range [-1,1] to [0,1].
func CosineNormalizer(raw float64) float64 {
	return (raw + 1) / 2
}

// DistanceNormalizer maps a raw distance (Euclidean/Dot) into a similarity
// via 1-distance, clamped to [0,1].
func DistanceNormalizer(raw float64) float64 {
	v := 1 - raw
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

const defaultTopK = 20

// Retriever composes an Embedder and a Store to satisfy the Vector Retriever
// component contract.
type Retriever struct {
	embedder   Embedder
	store      Store
	normalize  Normalizer
	logger     logging.Logger
}

// New builds a Retriever. normalize is applied to every raw score returned
// by store; pass CosineNormalizer for a cosine-distance-configured store.
func New(embedder Embedder, store Store, normalize Normalizer, logger logging.Logger) *Retriever {
	if normalize == nil {
		normalize = CosineNormalizer
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Retriever{embedder: embedder, store: store, normalize: normalize, logger: logger.WithComponent("retrieval/vector")}
}

// Response is the Vector Retriever's output, including a warning string set
// on degraded paths (semantic_unavailable) per spec §4.3.
type Response struct {
	Matches []Match
	Warning string
}

// Retrieve executes the embed → search → normalize → truncate pipeline.
func (r *Retriever) Retrieve(ctx context.Context, query, project string, topK int, filter Filter) Response {
	if topK <= 0 {
		topK = defaultTopK
	}

	embedding, err := r.embedder.Embed(ctx, query, ai.EmbedOptions{})
	if err != nil {
		r.logger.WarnContext(ctx, "embedding chain unavailable", map[string]interface{}{"error": err.Error()})
		return Response{Warning: "semantic_unavailable"}
	}

	results, err := r.store.Search(ctx, project, query, embedding, filter, topK)
	if err != nil {
		r.logger.WarnContext(ctx, "vector store unavailable", map[string]interface{}{"error": err.Error()})
		return Response{Warning: "semantic_unavailable"}
	}

	matches := make([]Match, 0, len(results))
	for _, res := range results {
		matches = append(matches, Match{
			ChunkID:   res.ChunkID,
			Score:     r.normalize(res.RawScore),
			Content:   res.Content,
			Source:    res.Source,
			LineStart: res.LineStart,
			LineEnd:   res.LineEnd,
			Type:      res.Type,
			Language:  res.Language,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		if matches[i].Source != matches[j].Source {
			return matches[i].Source < matches[j].Source
		}
		return matches[i].LineStart < matches[j].LineStart
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	for i := range matches {
		matches[i].Rank = i + 1
	}

	return Response{Matches: matches}
}
