package graph

import (
	"context"
	"sort"
	"strings"
	"sync"
)

type memoryEdge struct {
	from, to string
	relation RelationKind
}

// MemoryStore is an in-process adjacency-list Store fake, grounded on the
// map-based simplicity of the teacher's InMemoryStore. Used by tests and as
// the degrade-to-local path when no graph database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	nodes map[string]Node // keyed by project+"/"+name
	edges []memoryEdge
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{nodes: make(map[string]Node)}
}

func key(project, name string) string { return project + "/" + name }

// AddNode registers a node under project.
func (m *MemoryStore) AddNode(project string, n Node) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n.Project = project
	m.nodes[key(project, n.Name)] = n
}

// AddEdge records a directed relationship between two node names.
func (m *MemoryStore) AddEdge(project, from, to string, relation RelationKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.edges = append(m.edges, memoryEdge{from: key(project, from), to: key(project, to), relation: relation})
}

func (m *MemoryStore) ResolveAnchors(ctx context.Context, project, query string) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var exact, fuzzy []Node
	q := strings.ToLower(query)
	for k, n := range m.nodes {
		if !strings.HasPrefix(k, project+"/") {
			continue
		}
		if n.Name == query || n.Path == query {
			exact = append(exact, n)
			continue
		}
		if strings.Contains(strings.ToLower(n.Name), q) {
			fuzzy = append(fuzzy, n)
		}
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return fuzzy, nil
}

func (m *MemoryStore) Traverse(ctx context.Context, project string, anchors []Node, kinds []RelationKind, maxDepth, maxEdges int) ([]Relationship, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	allowed := make(map[RelationKind]bool)
	for _, k := range kinds {
		allowed[k] = true
	}

	type frontierEntry struct {
		key  string
		path []string
	}

	var frontier []frontierEntry
	visited := map[string]bool{}
	for _, a := range anchors {
		k := key(project, a.Name)
		frontier = append(frontier, frontierEntry{key: k, path: []string{a.Name}})
		visited[k] = true
	}

	var rels []Relationship
	for depth := 0; depth < maxDepth && len(frontier) > 0 && len(rels) < maxEdges; depth++ {
		var next []frontierEntry
		for _, f := range frontier {
			for _, e := range m.edges {
				if e.from != f.key {
					continue
				}
				if len(allowed) > 0 && !allowed[e.relation] {
					continue
				}
				target := m.nodes[e.to]
				newPath := append(append([]string{}, f.path...), target.Name)
				rels = append(rels, Relationship{
					Source:   f.path[0],
					Target:   target.Name,
					Relation: e.relation,
					Path:     newPath,
				})
				if !visited[e.to] {
					visited[e.to] = true
					next = append(next, frontierEntry{key: e.to, path: newPath})
				}
				if len(rels) >= maxEdges {
					break
				}
			}
		}
		frontier = next
	}
	return rels, nil
}

func (m *MemoryStore) TopConnected(ctx context.Context, project string, nodeType NodeType, limit int) ([]Node, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	degree := map[string]int{}
	for _, e := range m.edges {
		degree[e.from]++
		degree[e.to]++
	}

	var nodes []Node
	for k, n := range m.nodes {
		if !strings.HasPrefix(k, project+"/") {
			continue
		}
		if nodeType != "" && n.Type != nodeType {
			continue
		}
		n.Degree = degree[k]
		nodes = append(nodes, n)
	}

	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Degree != nodes[j].Degree {
			return nodes[i].Degree > nodes[j].Degree
		}
		return nodes[i].Name < nodes[j].Name
	})
	if len(nodes) > limit {
		nodes = nodes[:limit]
	}
	return nodes, nil
}
