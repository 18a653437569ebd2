package vector

import (
	"context"
	"math"
	"sort"
	"sync"
)

type memoryPoint struct {
	result    SearchResult
	project   string
	embedding []float32
}

// MemoryStore is an in-process Store fake, grounded on the map-based
// simplicity of the teacher's InMemoryStore. Used by tests and as the
// degrade-to-local path when no vector store URL is configured.
type MemoryStore struct {
	mu     sync.RWMutex
	points []memoryPoint
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	return nil
}

// Upsert inserts or replaces a chunk for the given project.
func (m *MemoryStore) Upsert(project string, result SearchResult, embedding []float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.points {
		if p.project == project && p.result.ChunkID == result.ChunkID {
			m.points[i] = memoryPoint{result: result, project: project, embedding: embedding}
			return
		}
	}
	m.points = append(m.points, memoryPoint{result: result, project: project, embedding: embedding})
}

// Search performs brute-force cosine similarity over stored points matching
// project and the optional filter.
func (m *MemoryStore) Search(ctx context.Context, project, queryText string, embedding []float32, filter Filter, topK int) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		result SearchResult
		score  float64
	}
	var matches []scored
	for _, p := range m.points {
		if p.project != project {
			continue
		}
		if filter.Type != "" && p.result.Type != filter.Type {
			continue
		}
		if filter.Language != "" && p.result.Language != filter.Language {
			continue
		}
		matches = append(matches, scored{result: p.result, score: cosineSimilarity(embedding, p.embedding)})
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if topK > 0 && len(matches) > topK {
		matches = matches[:topK]
	}

	out := make([]SearchResult, len(matches))
	for i, s := range matches {
		r := s.result
		r.RawScore = s.score
		out[i] = r
	}
	return out, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
