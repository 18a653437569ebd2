package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type erroringStore struct{}

func (erroringStore) ResolveAnchors(ctx context.Context, project, query string) ([]Node, error) {
	return nil, errors.New("connection refused")
}
func (erroringStore) Traverse(ctx context.Context, project string, anchors []Node, kinds []RelationKind, maxDepth, maxEdges int) ([]Relationship, error) {
	return nil, errors.New("connection refused")
}
func (erroringStore) TopConnected(ctx context.Context, project string, nodeType NodeType, limit int) ([]Node, error) {
	return nil, errors.New("connection refused")
}

func TestRetrieveResolvesAnchorsAndTraverses(t *testing.T) {
	store := NewMemoryStore()
	store.AddNode("proj", Node{Name: "AuthHandler", Type: NodeClass, Path: "auth.go"})
	store.AddNode("proj", Node{Name: "Login", Type: NodeFunction, Path: "auth.go"})
	store.AddNode("proj", Node{Name: "Validate", Type: NodeFunction, Path: "validate.go"})
	store.AddEdge("proj", "AuthHandler", "Login", RelDefines)
	store.AddEdge("proj", "Login", "Validate", RelCalls)

	r := New(store, nil)
	resp := r.Retrieve(context.Background(), "AuthHandler", "proj", nil, 2, 50)

	require.Empty(t, resp.Warning)
	require.NotEmpty(t, resp.Relationships)
	assert.Equal(t, "AuthHandler", resp.Relationships[0].Source)
}

func TestRetrieveRanksByPathLengthThenRelationKind(t *testing.T) {
	store := NewMemoryStore()
	store.AddNode("proj", Node{Name: "A"})
	store.AddNode("proj", Node{Name: "B"})
	store.AddNode("proj", Node{Name: "C"})
	store.AddEdge("proj", "A", "B", RelImports)
	store.AddEdge("proj", "A", "C", RelDefines)

	r := New(store, nil)
	resp := r.Retrieve(context.Background(), "A", "proj", nil, 1, 50)

	require.Len(t, resp.Relationships, 2)
	assert.Equal(t, RelDefines, resp.Relationships[0].Relation)
	assert.Equal(t, RelImports, resp.Relationships[1].Relation)
}

func TestRetrieveFallsBackToTopConnectedWhenNoAnchors(t *testing.T) {
	store := NewMemoryStore()
	store.AddNode("proj", Node{Name: "Hub"})
	store.AddNode("proj", Node{Name: "Leaf"})
	store.AddEdge("proj", "Hub", "Leaf", RelCalls)
	store.AddEdge("proj", "Hub", "Leaf", RelImports)

	r := New(store, nil)
	resp := r.Retrieve(context.Background(), "nonexistent-term-xyz", "proj", nil, 2, 50)

	require.Empty(t, resp.Warning)
	require.NotEmpty(t, resp.Relationships)
}

func TestRetrieveStoreFailureReturnsWarning(t *testing.T) {
	r := New(erroringStore{}, nil)
	resp := r.Retrieve(context.Background(), "q", "proj", nil, 2, 50)

	assert.Equal(t, "structural_unavailable", resp.Warning)
	assert.Empty(t, resp.Relationships)
}
