package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Neo4jStore wraps a bolt routing driver session pool and issues
// parameterized Cypher for anchor resolution, bounded traversal, and
// degree-bounded sampling.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
}

// NewNeo4jStore builds a Store from an already-constructed driver.
func NewNeo4jStore(driver neo4j.DriverWithContext) *Neo4jStore {
	return &Neo4jStore{driver: driver}
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
}

// ResolveAnchors finds nodes whose qualified name or path matches query,
// exactly first, falling back to a case-insensitive substring match.
func (s *Neo4jStore) ResolveAnchors(ctx context.Context, project, query string) ([]Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.Run(ctx, `
		MATCH (n)
		WHERE n.project = $project AND (n.name = $query OR n.path = $query
		      OR toLower(n.name) CONTAINS toLower($query))
		RETURN n.name AS name, labels(n)[0] AS type, n.path AS path,
		       coalesce(n.lineFrom, 0) AS lineFrom, coalesce(n.lineTo, 0) AS lineTo,
		       coalesce(n.name = $query OR n.path = $query, false) AS exact
		ORDER BY exact DESC
		LIMIT 10
	`, map[string]interface{}{"project": project, "query": query})
	if err != nil {
		return nil, fmt.Errorf("neo4j: resolve anchors: %w", err)
	}

	var exact, fuzzy []Node
	for result.Next(ctx) {
		rec := result.Record()
		if v, ok := rec.Get("exact"); ok && v == true {
			exact = append(exact, recordToNode(rec, project))
		} else {
			fuzzy = append(fuzzy, recordToNode(rec, project))
		}
	}
	if err := result.Err(); err != nil {
		return nil, err
	}
	if len(exact) > 0 {
		return exact, nil
	}
	return fuzzy, nil
}

// Traverse performs a bounded BFS from anchors along kinds up to maxDepth,
// returning at most maxEdges relationships.
func (s *Neo4jStore) Traverse(ctx context.Context, project string, anchors []Node, kinds []RelationKind, maxDepth, maxEdges int) ([]Relationship, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	relTypes := relationTypesClause(kinds)
	names := make([]string, len(anchors))
	for i, a := range anchors {
		names[i] = a.Name
	}

	query := fmt.Sprintf(`
		MATCH (a) WHERE a.project = $project AND a.name IN $names
		MATCH path = (a)-[r%s*1..%d]->(b)
		WHERE b.project = $project
		RETURN a.name AS source, b.name AS target, type(last(relationships(path))) AS relation,
		       [n IN nodes(path) | n.name] AS hops
		LIMIT %d
	`, relTypes, maxDepth, maxEdges)

	result, err := session.Run(ctx, query, map[string]interface{}{"project": project, "names": names})
	if err != nil {
		return nil, fmt.Errorf("neo4j: traverse: %w", err)
	}

	var rels []Relationship
	for result.Next(ctx) {
		rec := result.Record()
		source, _ := rec.Get("source")
		target, _ := rec.Get("target")
		relation, _ := rec.Get("relation")
		hopsRaw, _ := rec.Get("hops")

		var hops []string
		if list, ok := hopsRaw.([]interface{}); ok {
			for _, h := range list {
				if s, ok := h.(string); ok {
					hops = append(hops, s)
				}
			}
		}

		rels = append(rels, Relationship{
			Source:   fmt.Sprintf("%v", source),
			Target:   fmt.Sprintf("%v", target),
			Relation: RelationKind(fmt.Sprintf("%v", relation)),
			Path:     hops,
		})
	}
	return rels, result.Err()
}

// TopConnected returns the most-connected nodes of nodeType in project,
// used as the degree-bounded sampling fallback when no anchors resolve.
func (s *Neo4jStore) TopConnected(ctx context.Context, project string, nodeType NodeType, limit int) ([]Node, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	typeFilter := ""
	if nodeType != "" {
		typeFilter = fmt.Sprintf(":%s", nodeType)
	}

	query := fmt.Sprintf(`
		MATCH (n%s)-[r]-()
		WHERE n.project = $project
		WITH n, count(r) AS degree
		RETURN n.name AS name, labels(n)[0] AS type, n.path AS path, degree
		ORDER BY degree DESC
		LIMIT %d
	`, typeFilter, limit)

	result, err := session.Run(ctx, query, map[string]interface{}{"project": project})
	if err != nil {
		return nil, fmt.Errorf("neo4j: top connected: %w", err)
	}

	var nodes []Node
	for result.Next(ctx) {
		rec := result.Record()
		n := recordToNode(rec, project)
		if degree, ok := rec.Get("degree"); ok {
			if d, ok := degree.(int64); ok {
				n.Degree = int(d)
			}
		}
		nodes = append(nodes, n)
	}
	return nodes, result.Err()
}

func recordToNode(rec *neo4j.Record, project string) Node {
	name, _ := rec.Get("name")
	typ, _ := rec.Get("type")
	path, _ := rec.Get("path")
	n := Node{
		Name:    fmt.Sprintf("%v", name),
		Type:    NodeType(fmt.Sprintf("%v", typ)),
		Path:    fmt.Sprintf("%v", path),
		Project: project,
	}
	if lf, ok := rec.Get("lineFrom"); ok {
		if v, ok := lf.(int64); ok {
			n.LineFrom = int(v)
		}
	}
	if lt, ok := rec.Get("lineTo"); ok {
		if v, ok := lt.(int64); ok {
			n.LineTo = int(v)
		}
	}
	return n
}

func relationTypesClause(kinds []RelationKind) string {
	if len(kinds) == 0 {
		return ""
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = string(k)
	}
	return ":" + strings.Join(names, "|")
}
