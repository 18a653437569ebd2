// Package graph implements the Graph Retriever: name-anchored lookup,
// bounded breadth-first traversal along allowed relation kinds, and
// path-length/relation-kind/source-name ranking, with a degree-bounded sampling
// fallback when no anchors resolve.
package graph

import (
	"context"
	"sort"

	"github.com/usorama/engg-context-gateway/internal/logging"
)

// NodeType is one of the externally-owned graph node types.
type NodeType string

const (
	NodeFile      NodeType = "File"
	NodeClass     NodeType = "Class"
	NodeFunction  NodeType = "Function"
	NodeDocument  NodeType = "Document"
	NodeComponent NodeType = "Component"
	NodeCapability NodeType = "Capability"
	NodeFeature   NodeType = "Feature"
)

// RelationKind is one of the externally-owned directed edge types.
type RelationKind string

const (
	RelDefines    RelationKind = "DEFINES"
	RelCalls      RelationKind = "CALLS"
	RelImports    RelationKind = "IMPORTS"
	RelDependsOn  RelationKind = "DEPENDS_ON"
	RelHasComponent RelationKind = "HAS_COMPONENT"
	RelExtends    RelationKind = "EXTENDS"
	RelImplements RelationKind = "IMPLEMENTS"
)

// relationPriority orders relation kinds for ranking: DEFINES > CALLS >
// IMPORTS > DEPENDS_ON > others.
var relationPriority = map[RelationKind]int{
	RelDefines:   0,
	RelCalls:     1,
	RelImports:   2,
	RelDependsOn: 3,
}

func priorityOf(k RelationKind) int {
	if p, ok := relationPriority[k]; ok {
		return p
	}
	return 4
}

// Node is an externally-owned graph node.
type Node struct {
	Name     string
	Type     NodeType
	Path     string
	LineFrom int
	LineTo   int
	Project  string
	Degree   int
}

// Relationship is the derived structural relationship returned to callers.
type Relationship struct {
	Source      string       `json:"source"`
	Target      string       `json:"target"`
	Relation    RelationKind `json:"relation"`
	Path        []string     `json:"path"`
	Explanation string       `json:"explanation"`
}

// Store abstracts the graph database: anchor resolution, bounded traversal,
// and degree-bounded sampling.
type Store interface {
	ResolveAnchors(ctx context.Context, project, query string) ([]Node, error)
	Traverse(ctx context.Context, project string, anchors []Node, kinds []RelationKind, maxDepth, maxEdges int) ([]Relationship, error)
	TopConnected(ctx context.Context, project string, nodeType NodeType, limit int) ([]Node, error)
}

const (
	defaultMaxDepth = 2
	defaultMaxEdges = 50
)

// Retriever composes a Store to satisfy the Graph Retriever component
// contract.
type Retriever struct {
	store  Store
	logger logging.Logger
}

func New(store Store, logger logging.Logger) *Retriever {
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &Retriever{store: store, logger: logger.WithComponent("retrieval/graph")}
}

// Response is the Graph Retriever's output, with a warning string set on
// the degraded path (structural_unavailable) per spec §4.4.
type Response struct {
	Relationships []Relationship
	Warning       string
}

// Retrieve resolves anchors for query, traverses from them, and ranks the
// result; if no anchors resolve it falls back to degree-bounded sampling.
func (r *Retriever) Retrieve(ctx context.Context, query, project string, kinds []RelationKind, maxDepth, maxEdges int) Response {
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}
	if maxEdges <= 0 {
		maxEdges = defaultMaxEdges
	}

	anchors, err := r.store.ResolveAnchors(ctx, project, query)
	if err != nil {
		r.logger.WarnContext(ctx, "graph store unavailable", map[string]interface{}{"error": err.Error()})
		return Response{Warning: "structural_unavailable"}
	}

	if len(anchors) == 0 {
		nodes, err := r.store.TopConnected(ctx, project, "", maxEdges)
		if err != nil {
			r.logger.WarnContext(ctx, "graph store unavailable", map[string]interface{}{"error": err.Error()})
			return Response{Warning: "structural_unavailable"}
		}
		rels := make([]Relationship, 0, len(nodes))
		for _, n := range nodes {
			rels = append(rels, Relationship{Source: n.Name, Target: n.Name, Relation: "", Path: []string{n.Name}})
		}
		return Response{Relationships: rank(rels, maxEdges)}
	}

	rels, err := r.store.Traverse(ctx, project, anchors, kinds, maxDepth, maxEdges)
	if err != nil {
		r.logger.WarnContext(ctx, "graph store unavailable", map[string]interface{}{"error": err.Error()})
		return Response{Warning: "structural_unavailable"}
	}

	return Response{Relationships: rank(rels, maxEdges)}
}

// rank orders by path length ascending, then relation-kind priority, then
// source node name ascending, truncated to limit. The source node's file
// path is not a sort key.
func rank(rels []Relationship, limit int) []Relationship {
	sort.SliceStable(rels, func(i, j int) bool {
		li, lj := len(rels[i].Path), len(rels[j].Path)
		if li != lj {
			return li < lj
		}
		pi, pj := priorityOf(rels[i].Relation), priorityOf(rels[j].Relation)
		if pi != pj {
			return pi < pj
		}
		return rels[i].Source < rels[j].Source
	})
	if len(rels) > limit {
		rels = rels[:limit]
	}
	return rels
}
