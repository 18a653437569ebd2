package synthesis

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usorama/engg-context-gateway/ai"
	"github.com/usorama/engg-context-gateway/internal/logging"
	"github.com/usorama/engg-context-gateway/retrieval/graph"
	"github.com/usorama/engg-context-gateway/retrieval/vector"
)

type fakeSynthesisProvider struct {
	name string
	text string
	err  error
}

func (f *fakeSynthesisProvider) Name() string { return f.name }
func (f *fakeSynthesisProvider) Synthesize(ctx context.Context, systemPrompt, userPrompt string, opts ai.SynthesizeOptions) (string, error) {
	return f.text, f.err
}

func newTestEngine(t *testing.T, text string) *Engine {
	t.Helper()
	chain, err := ai.NewSynthesisChain(logging.NoOp{}, &fakeSynthesisProvider{name: "fake", text: text})
	require.NoError(t, err)
	return New(chain)
}

func sampleMatches() []vector.Match {
	return []vector.Match{
		{Source: "auth.go", LineStart: 10, LineEnd: 20, Score: 0.9, Content: "func Login() {}"},
		{Source: "validate.go", LineStart: 1, LineEnd: 5, Score: 0.8, Content: "func Validate() {}"},
	}
}

func sampleRelationships() []graph.Relationship {
	return []graph.Relationship{{Source: "Login", Target: "Validate", Relation: graph.RelCalls}}
}

func TestSynthesizeParsesSourceCitations(t *testing.T) {
	e := newTestEngine(t, "The login flow calls Validate [Source: auth.go:10-20].")
	answer, err := e.Synthesize(context.Background(), "how does login work", sampleMatches(), sampleRelationships(), ModeSynthesized)

	require.NoError(t, err)
	require.Len(t, answer.Citations, 1)
	assert.Equal(t, "auth.go", answer.Citations[0].Source)
	assert.Equal(t, 10, answer.Citations[0].LineStart)
	assert.Equal(t, 20, answer.Citations[0].LineEnd)
}

func TestSynthesizeParsesGraphCitations(t *testing.T) {
	e := newTestEngine(t, "Login invokes Validate [Graph: Login -> Validate].")
	answer, err := e.Synthesize(context.Background(), "q", sampleMatches(), sampleRelationships(), ModeSynthesized)

	require.NoError(t, err)
	require.NotEmpty(t, answer.Citations)
	assert.Equal(t, "Login -> Validate", answer.Citations[len(answer.Citations)-1].Graph)
}

func TestSynthesizeFallsBackToTopThreeWhenNoCitationsParse(t *testing.T) {
	e := newTestEngine(t, "Insufficient evidence to answer precisely.")
	answer, err := e.Synthesize(context.Background(), "q", sampleMatches(), sampleRelationships(), ModeSynthesized)

	require.NoError(t, err)
	assert.Len(t, answer.Citations, 2) // only 2 matches supplied, capped at min(3, len)
}

func TestSynthesizeComputesConfidence(t *testing.T) {
	e := newTestEngine(t, "Answer [Source: auth.go:10-20] [Source: validate.go:1-5].")
	answer, err := e.Synthesize(context.Background(), "q", sampleMatches(), sampleRelationships(), ModeSynthesized)

	require.NoError(t, err)
	// mean score 0.85, structural present, 2/3 citations
	expected := 0.7*0.85 + 0.1*1.0 + 0.2*(2.0/3.0)
	assert.InDelta(t, expected, answer.Confidence, 1e-6)
}

func TestSynthesizeRawModeSkipsChain(t *testing.T) {
	e := New(nil)
	answer, err := e.Synthesize(context.Background(), "q", sampleMatches(), sampleRelationships(), ModeRaw)

	require.NoError(t, err)
	assert.Empty(t, answer.Text)
	assert.Len(t, answer.Citations, 2)
}

func TestBuildContextDocumentIncludesMarkers(t *testing.T) {
	doc := buildContextDocument(sampleMatches(), sampleRelationships())
	assert.Contains(t, doc, "[Source: auth.go:10-20]")
	assert.Contains(t, doc, "[Graph: Login -> Validate]")
}
