// Package clarify implements the deterministic Clarification Generator:
// given a query and its classification, produces an ordered list of
// clarification questions bounded to three per round.
package clarify

import (
	"sort"
	"strings"

	"github.com/usorama/engg-context-gateway/query/classifier"
)

// Question is one clarification prompt.
type Question struct {
	Key         string
	Text        string
	Options     []string
	MultiChoice bool
	Required    bool
}

// Generator produces clarification questions for a classified query.
type Generator interface {
	Generate(query string, result classifier.Result) []Question
}

const maxQuestions = 3

// domainAspects maps a recognized domain term to the follow-up question it
// triggers when the query mentions it.
var domainAspects = map[string]Question{
	"auth": {
		Key:         "aspect",
		Text:        "Which part of authentication — login flow, token validation, or session management?",
		Options:     []string{"login flow", "token validation", "session management"},
		MultiChoice: false,
		Required:    true,
	},
	"cache": {
		Key:         "aspect",
		Text:        "Which caching concern — invalidation, population, or backing store choice?",
		Options:     []string{"invalidation", "population", "backing store"},
		MultiChoice: false,
		Required:    true,
	},
	"database": {
		Key:         "aspect",
		Text:        "Which database concern — schema, query performance, or connection handling?",
		Options:     []string{"schema", "query performance", "connection handling"},
		MultiChoice: false,
		Required:    true,
	},
	"api": {
		Key:         "aspect",
		Text:        "Which API concern — request handling, response shape, or versioning?",
		Options:     []string{"request handling", "response shape", "versioning"},
		MultiChoice: false,
		Required:    true,
	},
	"deploy": {
		Key:         "aspect",
		Text:        "Which deployment concern — build, rollout, or rollback?",
		Options:     []string{"build", "rollout", "rollback"},
		MultiChoice: false,
		Required:    true,
	},
}

var domainTermOrder = []string{"auth", "cache", "database", "api", "deploy"}

var scopeQuestion = Question{
	Key:      "scope",
	Text:     "Should this apply to a specific file or component, or the whole project?",
	Required: true,
}

var goalQuestion = Question{
	Key:      "goal",
	Text:     "What's the end goal — understanding the code, fixing a bug, or making a change?",
	Options:  []string{"understand", "fix a bug", "make a change"},
	Required: false,
}

// Heuristic is the default, deterministic Generator.
type Heuristic struct{}

func New() Heuristic { return Heuristic{} }

// Generate is deterministic for identical (query, result): it injects a
// domain-aspect question for the first recognized domain term mentioned in
// query, and only when no term is mentioned falls back to scope and goal
// questions; required questions first, truncated to three.
func (Heuristic) Generate(query string, result classifier.Result) []Question {
	if result.Clarity == classifier.ClarityClear {
		return nil
	}

	q := strings.ToLower(query)
	var questions []Question

	for _, term := range domainTermOrder {
		if strings.Contains(q, term) {
			questions = append(questions, domainAspects[term])
			break
		}
	}

	if len(questions) == 0 {
		questions = append(questions, scopeQuestion, goalQuestion)
	}

	sort.SliceStable(questions, func(i, j int) bool {
		if questions[i].Required != questions[j].Required {
			return questions[i].Required
		}
		return false
	})

	if len(questions) > maxQuestions {
		questions = questions[:maxQuestions]
	}
	return questions
}
