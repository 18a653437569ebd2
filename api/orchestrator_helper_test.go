package api

import (
	"context"
	"testing"

	"github.com/usorama/engg-context-gateway/ai"
	"github.com/usorama/engg-context-gateway/conversation"
	"github.com/usorama/engg-context-gateway/query/classifier"
	"github.com/usorama/engg-context-gateway/query/clarify"
	"github.com/usorama/engg-context-gateway/resilience/breaker"
	"github.com/usorama/engg-context-gateway/retrieval/graph"
	"github.com/usorama/engg-context-gateway/retrieval/vector"
	"github.com/usorama/engg-context-gateway/store"
	"github.com/usorama/engg-context-gateway/synthesis"
	"github.com/usorama/engg-context-gateway/orchestrator"
)

type fakeEmbedder struct{}

func (fakeEmbedder) Name() string { return "fake" }
func (fakeEmbedder) Embed(ctx context.Context, text string, opts ai.EmbedOptions) ([]float32, error) {
	return []float32{1, 0, 0}, nil
}

type fakeSynth struct{}

func (fakeSynth) Name() string { return "fake" }
func (fakeSynth) Synthesize(ctx context.Context, systemPrompt, userPrompt string, opts ai.SynthesizeOptions) (string, error) {
	return "The AuthService class handles login. [Source: auth/service.go:1-10]", nil
}

func newFakeEmbedChain() (*ai.EmbeddingChain, error) {
	return ai.NewEmbeddingChain(nil, fakeEmbedder{})
}

func newOrchestratorForTest(t *testing.T, vecRet *vector.Retriever, graphRet *graph.Retriever, repo store.Repository) *orchestrator.Orchestrator {
	t.Helper()

	synthChain, err := ai.NewSynthesisChain(nil, fakeSynth{})
	if err != nil {
		t.Fatalf("building synthesis chain: %v", err)
	}

	return orchestrator.New(orchestrator.Deps{
		Classifier:    classifier.New(),
		Clarifier:     clarify.New(),
		Conv:          conversation.New(nil, nil),
		VectorRet:     vecRet,
		GraphRet:      graphRet,
		Synth:         synthesis.New(synthChain),
		Repo:          repo,
		VectorBreaker: breaker.New(breaker.DefaultParams("vector")),
		GraphBreaker:  breaker.New(breaker.DefaultParams("graph")),
	})
}
