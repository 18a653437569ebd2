package orchestrator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usorama/engg-context-gateway/ai"
	"github.com/usorama/engg-context-gateway/conversation"
	"github.com/usorama/engg-context-gateway/query/classifier"
	"github.com/usorama/engg-context-gateway/query/clarify"
	"github.com/usorama/engg-context-gateway/resilience/breaker"
	"github.com/usorama/engg-context-gateway/retrieval/graph"
	"github.com/usorama/engg-context-gateway/retrieval/vector"
	"github.com/usorama/engg-context-gateway/store"
	"github.com/usorama/engg-context-gateway/store/memory"
	"github.com/usorama/engg-context-gateway/synthesis"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Name() string { return "fake" }
func (fakeEmbedder) Embed(ctx context.Context, text string, opts ai.EmbedOptions) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type fakeSynth struct{ text string }

func (f fakeSynth) Name() string { return "fake" }
func (f fakeSynth) Synthesize(ctx context.Context, systemPrompt, userPrompt string, opts ai.SynthesizeOptions) (string, error) {
	return f.text, nil
}

func newTestOrchestrator(t *testing.T) *Orchestrator {
	t.Helper()

	vecStore := vector.NewMemoryStore()
	vecStore.Upsert("proj", vector.SearchResult{
		ChunkID: "c1", Content: "type AuthService struct{}", Source: "auth/service.go",
		LineStart: 1, LineEnd: 10, Type: "code",
	}, []float32{1, 0, 0})

	embedChain, err := ai.NewEmbeddingChain(nil, fakeEmbedder{})
	require.NoError(t, err)
	vecRet := vector.New(embedChain, vecStore, vector.CosineNormalizer, nil)

	graphStore := graph.NewMemoryStore()
	graphStore.AddNode("proj", graph.Node{Name: "AuthService", Type: graph.NodeClass, Path: "auth/service.go"})
	graphRet := graph.New(graphStore, nil)

	synthChain, err := ai.NewSynthesisChain(nil, fakeSynth{text: "The AuthService class handles login. [Source: auth/service.go:1-10]"})
	require.NoError(t, err)
	synthEngine := synthesis.New(synthChain)

	return New(Deps{
		Classifier:     classifier.New(),
		Clarifier:      clarify.New(),
		Conv:           conversation.New(nil, nil),
		VectorRet:      vecRet,
		GraphRet:       graphRet,
		Synth:          synthEngine,
		Repo:           memory.New(),
		VectorBreaker:  breaker.New(breaker.DefaultParams("vector")),
		GraphBreaker:   breaker.New(breaker.DefaultParams("graph")),
	})
}

func TestHandleClearQueryReturnsQueryResponse(t *testing.T) {
	o := newTestOrchestrator(t)

	resp, err := o.Handle(context.Background(), Request{
		Query: "Show me the AuthService class", Project: "proj", Mode: ModeOneShot,
	})

	require.NoError(t, err)
	assert.Empty(t, resp.Type)
	assert.Contains(t, []Status{StatusSuccess, StatusPartial}, resp.Status)
	require.NotNil(t, resp.Results)
	require.NotEmpty(t, resp.Results.Semantic.Matches)
	assert.Equal(t, "auth/service.go", resp.Results.Semantic.Matches[0].Source)
}

func TestHandleAmbiguousQueryStartsConversation(t *testing.T) {
	o := newTestOrchestrator(t)

	resp, err := o.Handle(context.Background(), Request{
		Query: "How does it handle auth?", Mode: ModeAuto,
	})

	require.NoError(t, err)
	assert.Equal(t, "conversation", resp.Type)
	assert.Equal(t, 1, resp.Round)
	assert.Equal(t, 3, resp.MaxRounds)
	require.NotNil(t, resp.Clarifications)
	require.NotEmpty(t, resp.Clarifications.Questions)
	assert.Equal(t, "aspect", resp.Clarifications.Questions[0].Key)
}

func TestContinueConverges(t *testing.T) {
	o := newTestOrchestrator(t)

	start, err := o.Handle(context.Background(), Request{Query: "How does it handle auth?", Project: "proj", Mode: ModeAuto})
	require.NoError(t, err)
	require.Equal(t, "conversation", start.Type)

	resp, err := o.Continue(context.Background(), ContinueRequest{
		ConversationID: start.ConversationID,
		Answers:        map[string]string{"aspect": "login flow", "scope": "all components"},
	})

	require.NoError(t, err)
	assert.Contains(t, []Status{StatusSuccess, StatusPartial}, resp.Status)
	assert.Equal(t, 2, resp.Meta.ConversationRounds)

	_, stillThere := o.conv.Get(context.Background(), start.ConversationID)
	assert.False(t, stillThere)
}

func TestHandleBothBackendsUnavailableIsUnavailable(t *testing.T) {
	o := newTestOrchestrator(t)
	// Trip both breakers open by forcing failures through Execute directly.
	for i := 0; i < 10; i++ {
		_ = o.breakers["vector"].Execute(context.Background(), func() error { return assertErr })
		_ = o.breakers["graph"].Execute(context.Background(), func() error { return assertErr })
	}

	resp, err := o.Handle(context.Background(), Request{Query: "Show me the AuthService class", Project: "proj", Mode: ModeOneShot})

	require.NoError(t, err)
	assert.Equal(t, StatusUnavailable, resp.Status)
	assert.Nil(t, resp.Results)
	assert.NotEmpty(t, resp.Warnings)
}

var assertErr = &testFailure{}

type testFailure struct{}

func (*testFailure) Error() string { return "forced failure" }

func TestHandlePersistsQueryRecord(t *testing.T) {
	o := newTestOrchestrator(t)

	resp, err := o.Handle(context.Background(), Request{
		Query: "Show me the AuthService class", Project: "proj", Mode: ModeOneShot, RequestID: "req-1",
	})
	require.NoError(t, err)
	assert.Equal(t, "req-1", resp.RequestID)

	q, err := o.repo.GetQuery(context.Background(), "req-1")
	require.NoError(t, err)
	assert.Equal(t, store.QueryStatus(resp.Status), q.Status)
}
