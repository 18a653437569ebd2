// Command gateway is the engineering context gateway's composition root: it
// loads configuration, constructs every store/retriever/provider adapter,
// wires health monitoring into the circuit breakers and recovery engine, and
// serves the HTTP API until an interrupt or terminate signal arrives.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/v9"
	"github.com/slack-go/slack"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/usorama/engg-context-gateway/ai"
	"github.com/usorama/engg-context-gateway/ai/providers/anthropiclike"
	"github.com/usorama/engg-context-gateway/ai/providers/bedrock"
	"github.com/usorama/engg-context-gateway/ai/providers/ollama"
	"github.com/usorama/engg-context-gateway/ai/providers/openaicompat"
	"github.com/usorama/engg-context-gateway/api"
	"github.com/usorama/engg-context-gateway/conversation"
	"github.com/usorama/engg-context-gateway/health"
	"github.com/usorama/engg-context-gateway/internal/config"
	"github.com/usorama/engg-context-gateway/internal/logging"
	"github.com/usorama/engg-context-gateway/orchestrator"
	"github.com/usorama/engg-context-gateway/query/classifier"
	"github.com/usorama/engg-context-gateway/query/clarify"
	"github.com/usorama/engg-context-gateway/recovery"
	"github.com/usorama/engg-context-gateway/resilience/breaker"
	"github.com/usorama/engg-context-gateway/retrieval/graph"
	"github.com/usorama/engg-context-gateway/retrieval/vector"
	"github.com/usorama/engg-context-gateway/store"
	"github.com/usorama/engg-context-gateway/store/memory"
	"github.com/usorama/engg-context-gateway/store/postgres"
	"github.com/usorama/engg-context-gateway/synthesis"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("gateway: loading config: %v", err)
	}

	logger := logging.New("engg-context-gateway")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	vecStore, closeVec := buildVectorStore(ctx, cfg, logger)
	defer closeVec()

	graphStore, closeGraph := buildGraphStore(ctx, cfg, logger)
	defer closeGraph()

	var sharedCache *redis.Client
	if cfg.SharedCacheURL != "" {
		opts, err := redis.ParseURL(cfg.SharedCacheURL)
		if err != nil {
			logger.Warn("invalid shared cache URL, conversations will run local-only", map[string]interface{}{"error": err.Error()})
		} else {
			sharedCache = redis.NewClient(opts)
		}
	}

	var convShared conversation.SharedStore
	if sharedCache != nil {
		convShared = conversation.NewRedisStore(sharedCache)
	}
	convMgr := conversation.New(convShared, logger,
		conversation.WithMaxRounds(cfg.ConversationMaxRounds),
		conversation.WithTTL(cfg.ConversationTTL))

	embedChain, synthChain, providerNames := buildProviderChains(ctx, cfg, logger)

	vecRet := vector.New(embedChain, vecStore, vector.CosineNormalizer, logger)
	graphRet := graph.New(graphStore, logger)
	synthEngine := synthesis.New(synthChain)

	repo := buildRepository(ctx, cfg, logger)

	vecBreaker := breaker.New(breaker.Params{Name: "vector", Threshold: uint32(cfg.BreakerThreshold), ResetTimeout: cfg.BreakerResetTimeout, HalfOpenRequests: 1})
	graphBreaker := breaker.New(breaker.Params{Name: "graph", Threshold: uint32(cfg.BreakerThreshold), ResetTimeout: cfg.BreakerResetTimeout, HalfOpenRequests: 1})

	orch := orchestrator.New(orchestrator.Deps{
		Classifier:    classifier.New(),
		Clarifier:     clarify.New(),
		Conv:          convMgr,
		VectorRet:     vecRet,
		GraphRet:      graphRet,
		Synth:         synthEngine,
		Repo:          repo,
		Logger:        logger,
		VectorBreaker: vecBreaker,
		GraphBreaker:  graphBreaker,
	})

	healthMonitor := buildHealthMonitor(cfg, logger, vecStore, graphStore, sharedCache, embedChain)
	healthMonitor.Start(ctx)
	defer healthMonitor.Stop()

	breaker.Cascade(ctx, healthMonitor, map[string]*breaker.CircuitBreaker{
		"vector": vecBreaker, "graph": graphBreaker,
	})

	recoveryEngine := buildRecoveryEngine(cfg, logger, sharedCache)
	recovery.Watch(ctx, healthMonitor, recoveryEngine)

	router := api.NewRouter(api.Deps{
		Orchestrator: orch,
		Conv:         convMgr,
		Repo:         repo,
		Health:       healthMonitor,
		Logger:       logger,
		Providers: func() []api.ProviderStatus {
			statuses := make([]api.ProviderStatus, 0, len(providerNames))
			for _, name := range providerNames {
				statuses = append(statuses, api.ProviderStatus{Name: name, State: "unknown"})
			}
			return statuses
		},
	})

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("gateway listening", map[string]interface{}{"addr": cfg.HTTPAddr})
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server stopped unexpectedly", map[string]interface{}{"error": err.Error()})
		}
	}()

	<-sigCh
	logger.Info("shutdown signal received", nil)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}

func buildVectorStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (vector.Store, func()) {
	if cfg.VectorStoreURL == "" {
		logger.Info("no vector store configured, using in-memory store", nil)
		return vector.NewMemoryStore(), func() {}
	}

	conn, err := grpc.NewClient(cfg.VectorStoreURL, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		logger.Error("dialing vector store, falling back to in-memory", map[string]interface{}{"error": err.Error()})
		return vector.NewMemoryStore(), func() {}
	}

	store := vector.NewQdrantStore(conn)
	if err := store.EnsureCollection(ctx, cfg.VectorCollection, cfg.EmbeddingDim); err != nil {
		logger.Warn("ensuring vector collection", map[string]interface{}{"error": err.Error()})
	}
	return store, func() { _ = conn.Close() }
}

func buildGraphStore(ctx context.Context, cfg *config.Config, logger logging.Logger) (graph.Store, func()) {
	if cfg.GraphStoreURL == "" {
		logger.Info("no graph store configured, using in-memory store", nil)
		return graph.NewMemoryStore(), func() {}
	}

	driver, err := neo4j.NewDriverWithContext(cfg.GraphStoreURL, neo4j.BasicAuth(cfg.GraphStoreUser, cfg.GraphStorePass, ""))
	if err != nil {
		logger.Error("connecting to graph store, falling back to in-memory", map[string]interface{}{"error": err.Error()})
		return graph.NewMemoryStore(), func() {}
	}
	return graph.NewNeo4jStore(driver), func() { _ = driver.Close(ctx) }
}

func buildRepository(ctx context.Context, cfg *config.Config, logger logging.Logger) store.Repository {
	if cfg.PostgresDSN == "" {
		logger.Info("no Postgres DSN configured, using in-memory feedback store", nil)
		return memory.New()
	}

	repo, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Error("connecting to Postgres, falling back to in-memory store", map[string]interface{}{"error": err.Error()})
		return memory.New()
	}
	return repo
}

// buildProviderChains builds the embedding and synthesis fallback chains in
// priority order: local Ollama runtime first, Bedrock next when AWS
// credentials resolve, then the configured hosted-API adapter last.
func buildProviderChains(ctx context.Context, cfg *config.Config, logger logging.Logger) (*ai.EmbeddingChain, *ai.SynthesisChain, []string) {
	var embedProviders []ai.EmbeddingProvider
	var synthProviders []ai.SynthesisProvider
	var names []string

	localModel := cfg.EmbeddingModel
	ollamaProvider := ollama.New("http://localhost:11434", localModel)
	embedProviders = append(embedProviders, ollamaProvider)
	synthProviders = append(synthProviders, ollamaProvider)
	names = append(names, "ollama")

	if awsCfg, err := awsconfig.LoadDefaultConfig(ctx); err == nil {
		bedrockProvider := bedrock.New(awsCfg, cfg.SynthesisModel, cfg.EmbeddingModel)
		embedProviders = append(embedProviders, bedrockProvider)
		synthProviders = append(synthProviders, bedrockProvider)
		names = append(names, "bedrock")
	} else {
		logger.Info("no AWS credentials resolved, skipping Bedrock provider", map[string]interface{}{"error": err.Error()})
	}

	switch cfg.SynthesisProvider {
	case "openai":
		if cfg.SynthesisAPIKey != "" {
			p := openaicompat.New("openai", cfg.SynthesisAPIKey, cfg.SynthesisAPIURL, cfg.EmbeddingModel, cfg.SynthesisModel)
			embedProviders = append(embedProviders, p)
			synthProviders = append(synthProviders, p)
			names = append(names, "openai")
		}
	case "anthropic":
		if cfg.SynthesisAPIKey != "" {
			p := anthropiclike.New("anthropic", cfg.SynthesisAPIKey, cfg.SynthesisAPIURL, cfg.SynthesisModel)
			synthProviders = append(synthProviders, p)
			names = append(names, "anthropic")
		}
	}

	embedChain, err := ai.NewEmbeddingChain(logger, embedProviders...)
	if err != nil {
		log.Fatalf("gateway: building embedding chain: %v", err)
	}
	synthChain, err := ai.NewSynthesisChain(logger, synthProviders...)
	if err != nil {
		log.Fatalf("gateway: building synthesis chain: %v", err)
	}
	return embedChain, synthChain, names
}

func buildHealthMonitor(cfg *config.Config, logger logging.Logger, vecStore vector.Store, graphStore graph.Store, cache *redis.Client, embedChain *ai.EmbeddingChain) *health.Monitor {
	m := health.New(logger, health.WithInterval(cfg.HealthProbeInterval))

	m.Register("vector", func(ctx context.Context) (time.Duration, error) {
		start := time.Now()
		_, err := vecStore.Search(ctx, "__health__", "", []float32{0}, vector.Filter{}, 1)
		return time.Since(start), err
	}, 500*time.Millisecond)

	m.Register("graph", func(ctx context.Context) (time.Duration, error) {
		start := time.Now()
		_, err := graphStore.ResolveAnchors(ctx, "__health__", "")
		return time.Since(start), err
	}, 500*time.Millisecond)

	if cache != nil {
		m.Register("cache", func(ctx context.Context) (time.Duration, error) {
			start := time.Now()
			err := cache.Ping(ctx).Err()
			return time.Since(start), err
		}, 50*time.Millisecond)
	}

	m.Register("embedding", func(ctx context.Context) (time.Duration, error) {
		start := time.Now()
		_, err := embedChain.Embed(ctx, "healthcheck", ai.EmbedOptions{})
		return time.Since(start), err
	}, time.Second)

	return m
}

func buildRecoveryEngine(cfg *config.Config, logger logging.Logger, cache *redis.Client) *recovery.Engine {
	var slackClient *slack.Client
	if cfg.SlackWebhookURL != "" {
		slackClient = slack.New(cfg.SlackWebhookURL)
	}

	executor := recovery.NewDefaultExecutor(cache, slackClient, cfg.SlackChannel, nil, nil)

	rules := []recovery.Rule{
		{ServicePattern: anyService("cache"), MinConsecutiveFails: 3, Action: recovery.ActionClearCache, MaxAttempts: 3},
		{ServicePattern: anyService("vector|graph|embedding"), MinConsecutiveFails: 5, Action: recovery.ActionReconnect, MaxAttempts: 3},
	}

	return recovery.New(rules, executor, logger,
		recovery.WithCooldown(cfg.RecoveryCooldown),
		recovery.WithHourlyCap(cfg.RecoveryHourlyCap))
}

func anyService(pattern string) *regexp.Regexp {
	return regexp.MustCompile("^(" + pattern + ")$")
}
