package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usorama/engg-context-gateway/conversation"
	"github.com/usorama/engg-context-gateway/health"
	"github.com/usorama/engg-context-gateway/retrieval/graph"
	"github.com/usorama/engg-context-gateway/retrieval/vector"
	"github.com/usorama/engg-context-gateway/store"
	"github.com/usorama/engg-context-gateway/store/memory"
)

func newTestRouter(t *testing.T) (http.Handler, store.Repository) {
	t.Helper()

	vecStore := vector.NewMemoryStore()
	graphStore := graph.NewMemoryStore()
	repo := memory.New()

	embedChain, err := newFakeEmbedChain()
	require.NoError(t, err)
	vecRet := vector.New(embedChain, vecStore, vector.CosineNormalizer, nil)
	graphRet := graph.New(graphStore, nil)

	orch := newOrchestratorForTest(t, vecRet, graphRet, repo)
	conv := conversation.New(nil, nil)
	hm := health.New(nil)
	hm.Register("vector", func(ctx context.Context) (time.Duration, error) { return time.Millisecond, nil }, 0)

	router := NewRouter(Deps{
		Orchestrator: orch, Conv: conv, Repo: repo, Health: hm,
		Providers: func() []ProviderStatus { return []ProviderStatus{{Name: "ollama", State: "closed"}} },
	})
	return router, repo
}

func TestHandleQueryEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	body, _ := json.Marshal(map[string]string{"query": "Show me the AuthService class", "project": "proj"})
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleQueryMissingBody(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleFeedbackConflict(t *testing.T) {
	router, repo := newTestRouter(t)
	require.NoError(t, repo.InsertQuery(context.Background(), store.Query{ID: "q1", SubmittedAt: time.Now()}))

	body, _ := json.Marshal(map[string]string{"request_id": "q1", "feedback": "useful"})
	req := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code)

	req2 := httptest.NewRequest(http.MethodPost, "/feedback", bytes.NewReader(body))
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	assert.Equal(t, http.StatusConflict, rec2.Code)
}

func TestHandleHealthEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Status)
}

func TestHandleProvidersEndpoint(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/providers", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []ProviderStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "ollama", resp[0].Name)
}

func TestHandleConversationNotFound(t *testing.T) {
	router, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/query/conversation/unknown", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
