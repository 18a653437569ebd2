// Package orchestrator implements the Hybrid Query Orchestrator: the
// composition root that wires the classifier, clarifier, conversation
// manager, vector/graph retrievers, and synthesis engine into the query
// request/response lifecycle described in the gateway's query contract.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/usorama/engg-context-gateway/conversation"
	"github.com/usorama/engg-context-gateway/internal/logging"
	"github.com/usorama/engg-context-gateway/query/classifier"
	"github.com/usorama/engg-context-gateway/query/clarify"
	"github.com/usorama/engg-context-gateway/resilience/breaker"
	"github.com/usorama/engg-context-gateway/retrieval/graph"
	"github.com/usorama/engg-context-gateway/retrieval/vector"
	"github.com/usorama/engg-context-gateway/store"
	"github.com/usorama/engg-context-gateway/synthesis"
)

// Mode is the caller-requested interaction mode.
type Mode string

const (
	ModeOneShot       Mode = "one-shot"
	ModeConversational Mode = "conversational"
	ModeAuto          Mode = "auto"
)

// Status is the outcome of a completed (non-conversation) query response.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusPartial     Status = "partial"
	StatusUnavailable Status = "unavailable"
)

const fallbackMessage = "Evidence backends are currently unavailable; try again shortly."

// Request is an inbound /query or /query/continue request, normalized.
type Request struct {
	Query         string
	Project       string
	Mode          Mode
	SynthesisMode synthesis.Mode
	RequestID     string
}

// ClarificationBlock is the clarification payload of a Conversation Response.
type ClarificationBlock struct {
	Questions []clarify.Question `json:"questions"`
	Message   string             `json:"message"`
}

// ResponseMeta is the Query Response's meta block.
type ResponseMeta struct {
	BackendLatenciesMS map[string]int64 `json:"backend_latencies_ms,omitempty"`
	CacheHit           bool              `json:"cache_hit"`
	ConversationRounds int               `json:"conversation_rounds,omitempty"`
	OriginalQuery      string            `json:"original_query,omitempty"`
	DetectedIntent     string            `json:"detected_intent,omitempty"`
	Confidence         float64           `json:"confidence,omitempty"`
}

// Results bundles the retrieved evidence returned alongside a Query
// Response.
type Results struct {
	Semantic struct {
		Matches []vector.Match `json:"matches"`
	} `json:"semantic"`
	Structural struct {
		Relationships []graph.Relationship `json:"relationships"`
	} `json:"structural"`
}

// Response is the fixed-shape tagged variant returned by both /query and
// /query/continue: a Conversation Response when Type == "conversation", a
// Query Response otherwise.
type Response struct {
	Type string `json:"type,omitempty"`

	// Query Response fields.
	RequestID string           `json:"request_id,omitempty"`
	Status    Status           `json:"status,omitempty"`
	Answer    *synthesis.Answer `json:"answer,omitempty"`
	Results   *Results         `json:"results,omitempty"`
	Warnings  []string         `json:"warnings,omitempty"`
	Meta      ResponseMeta     `json:"meta"`

	// Conversation Response fields.
	ConversationID string               `json:"conversation_id,omitempty"`
	Round          int                  `json:"round,omitempty"`
	MaxRounds      int                  `json:"max_rounds,omitempty"`
	Phase          string               `json:"phase,omitempty"`
	Clarifications *ClarificationBlock  `json:"clarifications,omitempty"`
}

// ContinueRequest is the /query/continue payload.
type ContinueRequest struct {
	ConversationID string
	Answers        map[string]string
}

// Orchestrator is the single, process-wide constructed composition root. It
// is built once at startup and injected into HTTP handlers; it holds no
// package-level state of its own.
type Orchestrator struct {
	classifier classifier.Classifier
	clarifier  clarify.Generator
	conv       *conversation.Manager
	vectorRet  *vector.Retriever
	graphRet   *graph.Retriever
	synth      *synthesis.Engine
	repo       store.Repository
	logger     logging.Logger

	breakers map[string]breaker.Breaker

	vectorDeadline time.Duration
	graphDeadline  time.Duration
}

// Deps bundles the Orchestrator's constructor dependencies.
type Deps struct {
	Classifier classifier.Classifier
	Clarifier  clarify.Generator
	Conv       *conversation.Manager
	VectorRet  *vector.Retriever
	GraphRet   *graph.Retriever
	Synth      *synthesis.Engine
	Repo       store.Repository
	Logger     logging.Logger

	VectorBreaker breaker.Breaker
	GraphBreaker  breaker.Breaker

	VectorDeadline time.Duration
	GraphDeadline  time.Duration
}

const (
	defaultVectorDeadline = 2 * time.Second
	defaultGraphDeadline  = 2 * time.Second
)

// New builds an Orchestrator over the supplied dependencies.
func New(d Deps) *Orchestrator {
	if d.Logger == nil {
		d.Logger = logging.NoOp{}
	}
	vd, gd := d.VectorDeadline, d.GraphDeadline
	if vd <= 0 {
		vd = defaultVectorDeadline
	}
	if gd <= 0 {
		gd = defaultGraphDeadline
	}
	return &Orchestrator{
		classifier:     d.Classifier,
		clarifier:      d.Clarifier,
		conv:           d.Conv,
		vectorRet:      d.VectorRet,
		graphRet:       d.GraphRet,
		synth:          d.Synth,
		repo:           d.Repo,
		logger:         d.Logger.WithComponent("orchestrator"),
		breakers:       map[string]breaker.Breaker{"vector": d.VectorBreaker, "graph": d.GraphBreaker},
		vectorDeadline: vd,
		graphDeadline:  gd,
	}
}

// Handle runs the end-to-end request lifecycle of spec §4.9.
func (o *Orchestrator) Handle(ctx context.Context, req Request) (Response, error) {
	requestID := req.RequestID
	if requestID == "" {
		requestID = uuid.NewString()
	}
	submittedAt := time.Now()

	result := o.classifier.Classify(req.Query)

	wantsConversation := req.Mode == ModeConversational ||
		((req.Mode == ModeAuto || req.Mode == "") && result.Clarity != classifier.ClarityClear)

	if wantsConversation {
		state := o.conv.Start(ctx, req.Query)
		questions := o.clarifier.Generate(req.Query, result)

		o.persistQuery(ctx, store.Query{
			ID: state.ID, Project: req.Project, Text: req.Query,
			Intent: string(result.Intent), Clarity: string(result.Clarity),
			Status: store.QueryPendingClarification, SubmittedAt: submittedAt,
		})

		return conversationResponse(state, questions, req.Query, result), nil
	}

	return o.runRetrieval(ctx, requestID, req.Query, req.Project, req.SynthesisMode, result, submittedAt, 0)
}

// Continue implements spec §4.9's conversation continuation: merge answers
// into collected context, decide sufficiency, and either rewrite the query
// and run retrieval or ask a further round of clarifications.
func (o *Orchestrator) Continue(ctx context.Context, req ContinueRequest) (Response, error) {
	state, ok := o.conv.Get(ctx, req.ConversationID)
	if !ok {
		return Response{}, errConversationNotFound
	}

	for k, v := range req.Answers {
		state, ok = o.conv.AddContext(ctx, req.ConversationID, k, v)
		if !ok {
			return Response{}, errConversationNotFound
		}
	}

	nonEmpty := 0
	for _, v := range state.Context {
		if s, ok := v.(string); !ok || s != "" {
			nonEmpty++
		}
	}
	sufficient := nonEmpty >= 2 || state.Round >= state.MaxRounds

	if !sufficient {
		state, _ = o.conv.Advance(ctx, req.ConversationID)
		result := classifier.Result{Clarity: classifier.ClarityAmbiguous, Intent: classifier.IntentUnknown}
		questions := o.clarifier.Generate(state.Query, result)
		return conversationResponse(state, questions, state.Query, result), nil
	}

	rewritten := rewriteQuery(state.Query, state.Context)
	// The converging continuation itself consumes a round beyond the one
	// Start opened; End doesn't advance Round, so account for it here.
	rounds := state.Round + 1
	_, _ = o.conv.End(ctx, req.ConversationID)

	// Handle recorded the conversation's project on its pending Query record.
	project := ""
	if o.repo != nil {
		if q, err := o.repo.GetQuery(ctx, req.ConversationID); err == nil {
			project = q.Project
		}
	}

	result := o.classifier.Classify(rewritten)
	resp, err := o.runRetrieval(ctx, req.ConversationID, rewritten, project, synthesis.ModeSynthesized, result, time.Now(), rounds)
	return resp, err
}

// rewriteQuery appends a compact descriptor of the collected context to the
// original query, deterministically ordered by key.
func rewriteQuery(original string, ctxMap map[string]interface{}) string {
	if len(ctxMap) == 0 {
		return original
	}
	keys := make([]string, 0, len(ctxMap))
	for k := range ctxMap {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(original)
	b.WriteString(" (context:")
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v;", k, ctxMap[k])
	}
	b.WriteString(")")
	return b.String()
}

var errConversationNotFound = errors.New("orchestrator: conversation not found")

// ErrConversationNotFound is returned by Continue when the conversation id
// is unknown or already terminal.
func ErrConversationNotFound() error { return errConversationNotFound }

func conversationResponse(s conversation.State, questions []clarify.Question, originalQuery string, result classifier.Result) Response {
	message := "A few clarifying questions will help narrow this down."
	if len(questions) == 0 {
		message = "No further clarification needed."
	}
	return Response{
		Type:           "conversation",
		ConversationID: s.ID,
		Round:          s.Round,
		MaxRounds:      s.MaxRounds,
		Phase:          string(s.Phase),
		Clarifications: &ClarificationBlock{Questions: questions, Message: message},
		Meta: ResponseMeta{
			OriginalQuery:  originalQuery,
			DetectedIntent: string(result.Intent),
			Confidence:     result.Confidence,
		},
	}
}

// runRetrieval executes steps 4-7 of spec §4.9: parallel vector/graph
// retrieval under independent deadlines and circuit breakers, optional
// synthesis, and Query record persistence.
func (o *Orchestrator) runRetrieval(ctx context.Context, requestID, query, project string, synthMode synthesis.Mode, result classifier.Result, submittedAt time.Time, conversationRounds int) (Response, error) {
	if synthMode == "" {
		synthMode = synthesis.ModeSynthesized
	}

	type vecOutcome struct {
		resp    vector.Response
		latency time.Duration
		ok      bool
	}
	type graphOutcome struct {
		resp    graph.Response
		latency time.Duration
		ok      bool
	}

	vecCh := make(chan vecOutcome, 1)
	graphCh := make(chan graphOutcome, 1)

	go func() {
		vctx, cancel := context.WithTimeout(ctx, o.vectorDeadline)
		defer cancel()
		start := time.Now()
		var resp vector.Response
		ok := true
		err := o.breakers["vector"].Execute(vctx, func() error {
			resp = o.vectorRet.Retrieve(vctx, query, project, 0, vector.Filter{})
			if resp.Warning != "" {
				return errors.New(resp.Warning)
			}
			return nil
		})
		if err != nil {
			ok = false
			if resp.Warning == "" {
				resp.Warning = "semantic_unavailable"
			}
		}
		vecCh <- vecOutcome{resp: resp, latency: time.Since(start), ok: ok}
	}()

	go func() {
		gctx, cancel := context.WithTimeout(ctx, o.graphDeadline)
		defer cancel()
		start := time.Now()
		var resp graph.Response
		ok := true
		err := o.breakers["graph"].Execute(gctx, func() error {
			resp = o.graphRet.Retrieve(gctx, query, project, nil, 0, 0)
			if resp.Warning != "" {
				return errors.New(resp.Warning)
			}
			return nil
		})
		if err != nil {
			ok = false
			if resp.Warning == "" {
				resp.Warning = "structural_unavailable"
			}
		}
		graphCh <- graphOutcome{resp: resp, latency: time.Since(start), ok: ok}
	}()

	vecOut := <-vecCh
	graphOut := <-graphCh

	var warnings []string
	latencies := map[string]int64{}
	if vecOut.ok {
		latencies["vector"] = vecOut.latency.Milliseconds()
	} else {
		warnings = append(warnings, vecOut.resp.Warning)
	}
	if graphOut.ok {
		latencies["graph"] = graphOut.latency.Milliseconds()
	} else {
		warnings = append(warnings, graphOut.resp.Warning)
	}

	var backendStatus Status
	switch {
	case !vecOut.ok && !graphOut.ok:
		backendStatus = StatusUnavailable
	case !vecOut.ok || !graphOut.ok:
		backendStatus = StatusPartial
	default:
		backendStatus = StatusSuccess
	}

	resp := Response{
		RequestID: requestID,
		Status:    backendStatus,
		Warnings:  warnings,
		Meta: ResponseMeta{
			BackendLatenciesMS: latencies,
			ConversationRounds: conversationRounds,
			DetectedIntent:     string(result.Intent),
		},
	}

	if backendStatus == StatusUnavailable {
		resp.Meta.Confidence = 0
		o.persistQuery(ctx, store.Query{
			ID: requestID, Project: project, Text: query, Intent: string(result.Intent),
			Clarity: string(result.Clarity), Status: store.QueryUnavailable,
			SubmittedAt: submittedAt, CompletedAt: time.Now(),
			VectorLatencyMS: latencies["vector"], GraphLatencyMS: latencies["graph"],
		})
		resp.Warnings = append(resp.Warnings, fallbackMessage)
		return resp, nil
	}

	results := &Results{}
	results.Semantic.Matches = vecOut.resp.Matches
	if results.Semantic.Matches == nil {
		results.Semantic.Matches = []vector.Match{}
	}
	results.Structural.Relationships = graphOut.resp.Relationships
	if results.Structural.Relationships == nil {
		results.Structural.Relationships = []graph.Relationship{}
	}
	resp.Results = results

	var answer synthesis.Answer
	if o.synth != nil {
		var err error
		answer, err = o.synth.Synthesize(ctx, query, vecOut.resp.Matches, graphOut.resp.Relationships, synthMode)
		if err != nil {
			o.logger.WarnContext(ctx, "synthesis failed", map[string]interface{}{"error": err.Error()})
		} else {
			resp.Answer = &answer
			resp.Meta.Confidence = answer.Confidence
		}
	}

	connectivity := 0.0
	if len(graphOut.resp.Relationships) > 0 {
		connectivity = 1.0
	}
	orphan := 0.0
	if len(graphOut.resp.Relationships) > 0 {
		for _, r := range graphOut.resp.Relationships {
			if r.Relation == "" {
				orphan++
			}
		}
		orphan /= float64(len(graphOut.resp.Relationships))
	}
	staleness := 1.0
	if len(vecOut.resp.Matches) > 0 {
		var sum float64
		for _, m := range vecOut.resp.Matches {
			sum += m.Score
		}
		staleness = 1 - sum/float64(len(vecOut.resp.Matches))
	}

	// Both backends answered but found no evidence at all: under synthesized
	// mode there is nothing to ground an answer in, so report unavailable
	// even though neither backend itself failed.
	status := backendStatus
	if synthMode == synthesis.ModeSynthesized && len(vecOut.resp.Matches) == 0 && len(graphOut.resp.Relationships) == 0 {
		status = StatusUnavailable
	}
	resp.Status = status

	o.persistQuery(ctx, store.Query{
		ID: requestID, Project: project, Text: query, Intent: string(result.Intent),
		Clarity: string(result.Clarity), Status: store.QueryStatus(status),
		SubmittedAt: submittedAt, CompletedAt: time.Now(),
		VectorLatencyMS: latencies["vector"], GraphLatencyMS: latencies["graph"],
		SemanticCount: len(vecOut.resp.Matches), StructuralCount: len(graphOut.resp.Relationships),
		Confidence: resp.Meta.Confidence,
		StalenessScore: staleness, OrphanScore: orphan, ConnectivityScore: connectivity,
	})

	return resp, nil
}

func (o *Orchestrator) persistQuery(ctx context.Context, q store.Query) {
	if o.repo == nil {
		return
	}
	if err := o.repo.InsertQuery(ctx, q); err != nil {
		o.logger.WarnContext(ctx, "failed to persist query record", map[string]interface{}{"error": err.Error(), "query_id": q.ID})
	}
}
