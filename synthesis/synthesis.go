// Package synthesis implements the Synthesis Engine: it assembles a context
// document from retrieved evidence, calls the synthesis fallback chain under
// a fixed system prompt contract, parses citations back out of the answer,
// and scores a deterministic confidence value.
package synthesis

import (
	"context"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/usorama/engg-context-gateway/ai"
	"github.com/usorama/engg-context-gateway/retrieval/graph"
	"github.com/usorama/engg-context-gateway/retrieval/vector"
)

// Mode selects whether synthesis runs at all.
type Mode string

const (
	ModeSynthesized Mode = "synthesized"
	ModeRaw         Mode = "raw"
)

// Citation is a single evidence reference carried forward into the answer.
type Citation struct {
	Source    string  `json:"source"`
	LineStart int     `json:"line_start"`
	LineEnd   int     `json:"line_end"`
	Score     float64 `json:"score"`
	Graph     string  `json:"graph,omitempty"`
}

// Insights is the compact summary record returned alongside the answer.
type Insights struct {
	Summary         string   `json:"summary"`
	KeyFindings     []string `json:"key_findings"`
	Recommendations []string `json:"recommendations"`
}

// Answer is the Synthesis Engine's full output.
type Answer struct {
	Text       string     `json:"text"`
	Confidence float64    `json:"confidence"`
	Citations  []Citation `json:"citations"`
	Insights   Insights   `json:"insights"`
}

var (
	sourceCitation = regexp.MustCompile(`\[Source:\s*([^\]]+)\]`)
	graphCitation  = regexp.MustCompile(`\[Graph:\s*([^\]]+)\]`)
)

// InsufficientEvidenceText is the designated answer text when neither
// retrieval path returned anything to ground an answer in.
const InsufficientEvidenceText = "Insufficient evidence in the indexed corpus to answer this query."

const systemPrompt = `You answer engineering questions using only the context provided below.
Cite every factual claim using the markers already present in the context:
use [Source: path:start-end] for retrieved code or documents and
[Graph: A -> B] for structural relationships. If the context does not
contain enough evidence to answer, say so explicitly rather than guessing.`

// Engine composes a synthesis chain with citation parsing and confidence
// scoring.
type Engine struct {
	chain *ai.SynthesisChain
}

func New(chain *ai.SynthesisChain) *Engine {
	return &Engine{chain: chain}
}

// Synthesize builds the context document, calls the chain (unless mode is
// raw), parses citations, and computes confidence.
func (e *Engine) Synthesize(ctx context.Context, query string, matches []vector.Match, rels []graph.Relationship, mode Mode) (Answer, error) {
	if mode == ModeRaw {
		return Answer{Citations: rawCitations(matches), Confidence: confidence(matches, rels, 0)}, nil
	}

	if len(matches) == 0 && len(rels) == 0 {
		return Answer{Text: InsufficientEvidenceText, Confidence: 0}, nil
	}

	doc := buildContextDocument(matches, rels)
	userPrompt := fmt.Sprintf("Question: %s\n\nContext:\n%s", query, doc)

	opts := ai.SynthesizeOptions{Temperature: 0, Seed: 42, MaxTokens: 1024}
	text, err := e.chain.Synthesize(ctx, systemPrompt, userPrompt, opts)
	if err != nil {
		return Answer{}, fmt.Errorf("synthesis: %w", err)
	}

	citations := parseCitations(text, matches, rels)
	if len(citations) == 0 {
		citations = rawCitations(matches)
	}

	return Answer{
		Text:       text,
		Confidence: confidence(matches, rels, len(citations)),
		Citations:  citations,
		Insights:   deriveInsights(text, citations),
	}, nil
}

// buildContextDocument concatenates semantic matches with [Source: ...]
// markers and structural relationships with [Graph: ...] markers.
func buildContextDocument(matches []vector.Match, rels []graph.Relationship) string {
	var b strings.Builder
	for _, m := range matches {
		fmt.Fprintf(&b, "[Source: %s:%d-%d]\n%s\n\n", m.Source, m.LineStart, m.LineEnd, m.Content)
	}
	for _, r := range rels {
		fmt.Fprintf(&b, "[Graph: %s -> %s] (%s)\n\n", r.Source, r.Target, r.Relation)
	}
	return b.String()
}

// parseCitations extracts [Source: ...] and [Graph: ...] markers from text.
// A source marker that names a retrieved match carries forward that match's
// score and line range; any other source marker keeps its parsed path and
// range with a zero score. Graph markers are returned as written and are not
// checked against rels.
func parseCitations(text string, matches []vector.Match, rels []graph.Relationship) []Citation {
	var out []Citation

	bySource := make(map[string]vector.Match, len(matches))
	for _, m := range matches {
		bySource[fmt.Sprintf("%s:%d-%d", m.Source, m.LineStart, m.LineEnd)] = m
	}

	for _, g := range sourceCitation.FindAllStringSubmatch(text, -1) {
		ref := strings.TrimSpace(g[1])
		if m, ok := bySource[ref]; ok {
			out = append(out, Citation{Source: m.Source, LineStart: m.LineStart, LineEnd: m.LineEnd, Score: m.Score})
			continue
		}
		if source, start, end, ok := parseSourceRef(ref); ok {
			out = append(out, Citation{Source: source, LineStart: start, LineEnd: end})
		}
	}

	for _, g := range graphCitation.FindAllStringSubmatch(text, -1) {
		out = append(out, Citation{Graph: strings.TrimSpace(g[1])})
	}

	_ = rels
	return out
}

func parseSourceRef(ref string) (source string, start, end int, ok bool) {
	idx := strings.LastIndex(ref, ":")
	if idx < 0 {
		return ref, 0, 0, true
	}
	source = ref[:idx]
	rangePart := ref[idx+1:]
	parts := strings.SplitN(rangePart, "-", 2)
	if len(parts) != 2 {
		return ref, 0, 0, true
	}
	s, err1 := strconv.Atoi(parts[0])
	e, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil {
		return ref, 0, 0, true
	}
	return source, s, e, true
}

// rawCitations synthesizes citations from the top 3 semantic matches when
// no citations parse from the answer, or when running in raw mode.
func rawCitations(matches []vector.Match) []Citation {
	limit := 3
	if len(matches) < limit {
		limit = len(matches)
	}
	out := make([]Citation, 0, limit)
	for _, m := range matches[:limit] {
		out = append(out, Citation{Source: m.Source, LineStart: m.LineStart, LineEnd: m.LineEnd, Score: m.Score})
	}
	return out
}

// confidence = 0.7*mean(top-K semantic score) + 0.1*(any structural) +
// 0.2*min(citations_found/3, 1).
func confidence(matches []vector.Match, rels []graph.Relationship, citationsFound int) float64 {
	var meanScore float64
	if len(matches) > 0 {
		var sum float64
		for _, m := range matches {
			sum += m.Score
		}
		meanScore = sum / float64(len(matches))
	}

	structural := 0.0
	if len(rels) > 0 {
		structural = 1.0
	}

	citationTerm := math.Min(float64(citationsFound)/3.0, 1.0)

	return 0.7*meanScore + 0.1*structural + 0.2*citationTerm
}

func deriveInsights(text string, citations []Citation) Insights {
	sentences := strings.FieldsFunc(text, func(r rune) bool { return r == '.' || r == '\n' })
	summary := ""
	if len(sentences) > 0 {
		summary = strings.TrimSpace(sentences[0])
	}

	var findings []string
	for i, s := range sentences {
		if i == 0 {
			continue
		}
		s = strings.TrimSpace(s)
		if s != "" {
			findings = append(findings, s)
		}
		if len(findings) >= 3 {
			break
		}
	}

	return Insights{Summary: summary, KeyFindings: findings}
}
