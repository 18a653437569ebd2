package vector

import (
	"context"
	"fmt"

	qdrant "github.com/qdrant/go-client/qdrant"
)

// QdrantStore wraps the Qdrant gRPC client for collection management and
// nearest-neighbor search with cosine distance and a project-tag filter.
type QdrantStore struct {
	points     qdrant.PointsClient
	collections qdrant.CollectionsClient
}

// NewQdrantStore builds a Store over an already-dialed gRPC connection.
func NewQdrantStore(conn qdrant.ClientConnInterface) *QdrantStore {
	return &QdrantStore{
		points:      qdrant.NewPointsClient(conn),
		collections: qdrant.NewCollectionsClient(conn),
	}
}

func (s *QdrantStore) EnsureCollection(ctx context.Context, name string, dim int) error {
	_, err := s.collections.Get(ctx, &qdrant.GetCollectionInfoRequest{CollectionName: name})
	if err == nil {
		return nil
	}

	_, err = s.collections.Create(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: &qdrant.VectorsConfig{
			Config: &qdrant.VectorsConfig_Params{
				Params: &qdrant.VectorParams{
					Size:     uint64(dim),
					Distance: qdrant.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("qdrant: create collection %s: %w", name, err)
	}
	return nil
}

func (s *QdrantStore) Search(ctx context.Context, project, queryText string, embedding []float32, filter Filter, topK int) ([]SearchResult, error) {
	must := []*qdrant.Condition{
		matchKeyword("project", project),
	}
	if filter.Type != "" {
		must = append(must, matchKeyword("type", filter.Type))
	}
	if filter.Language != "" {
		must = append(must, matchKeyword("language", filter.Language))
	}

	limit := uint64(topK)
	resp, err := s.points.Search(ctx, &qdrant.SearchPoints{
		CollectionName: project,
		Vector:         embedding,
		Limit:          limit,
		Filter:         &qdrant.Filter{Must: must},
		WithPayload:    &qdrant.WithPayloadSelector{SelectorOptions: &qdrant.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant: search: %w", err)
	}

	results := make([]SearchResult, 0, len(resp.GetResult()))
	for _, pt := range resp.GetResult() {
		payload := pt.GetPayload()
		results = append(results, SearchResult{
			ChunkID:   pointIDString(pt.GetId()),
			RawScore:  float64(pt.GetScore()),
			Content:   stringField(payload, "content"),
			Source:    stringField(payload, "source"),
			LineStart: intField(payload, "line_start"),
			LineEnd:   intField(payload, "line_end"),
			Type:      stringField(payload, "type"),
			Language:  stringField(payload, "language"),
		})
	}
	return results, nil
}

func matchKeyword(field, value string) *qdrant.Condition {
	return &qdrant.Condition{
		ConditionOneOf: &qdrant.Condition_Field{
			Field: &qdrant.FieldCondition{
				Key:   field,
				Match: &qdrant.Match{MatchValue: &qdrant.Match_Keyword{Keyword: value}},
			},
		},
	}
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	switch v := id.PointIdOptions.(type) {
	case *qdrant.PointId_Uuid:
		return v.Uuid
	case *qdrant.PointId_Num:
		return fmt.Sprintf("%d", v.Num)
	default:
		return ""
	}
}

func stringField(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

func intField(payload map[string]*qdrant.Value, key string) int {
	v, ok := payload[key]
	if !ok {
		return 0
	}
	return int(v.GetIntegerValue())
}
