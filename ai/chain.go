package ai

import (
	"context"
	"errors"
	"time"

	"github.com/usorama/engg-context-gateway/internal/logging"
	"github.com/usorama/engg-context-gateway/internal/xerrors"
)

// backoffSteps are the bounded inter-provider delays the Fallback
// Orchestrator applies between attempts within a single logical request.
var backoffSteps = []time.Duration{0, 50 * time.Millisecond, 200 * time.Millisecond}

// EmbeddingChain holds an ordered provider list for the embedding role and
// implements the classified-failure routing table, sticky-head-per-request
// selection, and cross-request cooldown demotion.
type EmbeddingChain struct {
	providers []EmbeddingProvider
	logger    logging.Logger
	cooldown  *cooldownTracker
}

// NewEmbeddingChain builds a chain over providers in priority order.
func NewEmbeddingChain(logger logging.Logger, providers ...EmbeddingProvider) (*EmbeddingChain, error) {
	if len(providers) == 0 {
		return nil, errors.New("ai: at least one embedding provider required")
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &EmbeddingChain{
		providers: providers,
		logger:    logger.WithComponent("ai/chain"),
		cooldown:  newCooldownTracker(3, 5*time.Minute, 2*time.Minute),
	}, nil
}

// Embed tries each non-demoted provider in order, per the failure-class
// action table: timeout/unavailable/rate_limited advance; model_not_found
// advances with a warning; auth fails fast; other advances once then fails.
func (c *EmbeddingChain) Embed(ctx context.Context, text string, opts EmbedOptions) ([]float32, error) {
	now := time.Now()
	var otherFailed bool

	for i, p := range c.providers {
		if c.cooldown.Demoted(p.Name(), now) {
			c.logger.Debug("provider in cooldown, skipping", map[string]interface{}{"provider": p.Name()})
			continue
		}
		if i > 0 && i-1 < len(backoffSteps) {
			select {
			case <-time.After(backoffSteps[i-1]):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		vec, err := p.Embed(ctx, text, opts)
		if err == nil {
			c.cooldown.RecordSuccess(p.Name())
			return vec, nil
		}

		var perr *ProviderError
		class := ErrOther
		if errors.As(err, &perr) {
			class = perr.Class
		}
		c.cooldown.RecordFailure(p.Name(), now)
		c.logger.WarnContext(ctx, "embedding provider failed", map[string]interface{}{
			"provider": p.Name(), "class": class, "error": err.Error(),
		})

		switch class {
		case ErrAuth:
			return nil, xerrors.New("ai.Embed", xerrors.KindAuth, err)
		case ErrTimeout, ErrUnavailable, ErrRateLimited:
			continue
		case ErrModelNotFound:
			c.logger.WarnContext(ctx, "configuration drift: model not found", map[string]interface{}{"provider": p.Name()})
			continue
		default:
			if otherFailed {
				return nil, xerrors.New("ai.Embed", xerrors.KindInternal, err)
			}
			otherFailed = true
			continue
		}
	}

	return nil, xerrors.New("ai.Embed", xerrors.KindUnavailable, xerrors.ErrRetryExhausted)
}

// SynthesisChain is the same orchestration for the synthesis role.
type SynthesisChain struct {
	providers []SynthesisProvider
	logger    logging.Logger
	cooldown  *cooldownTracker
}

func NewSynthesisChain(logger logging.Logger, providers ...SynthesisProvider) (*SynthesisChain, error) {
	if len(providers) == 0 {
		return nil, errors.New("ai: at least one synthesis provider required")
	}
	if logger == nil {
		logger = logging.NoOp{}
	}
	return &SynthesisChain{
		providers: providers,
		logger:    logger.WithComponent("ai/chain"),
		cooldown:  newCooldownTracker(3, 5*time.Minute, 2*time.Minute),
	}, nil
}

func (c *SynthesisChain) Synthesize(ctx context.Context, systemPrompt, userPrompt string, opts SynthesizeOptions) (string, error) {
	now := time.Now()
	var otherFailed bool

	for i, p := range c.providers {
		if c.cooldown.Demoted(p.Name(), now) {
			continue
		}
		if i > 0 && i-1 < len(backoffSteps) {
			select {
			case <-time.After(backoffSteps[i-1]):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		text, err := p.Synthesize(ctx, systemPrompt, userPrompt, opts)
		if err == nil {
			c.cooldown.RecordSuccess(p.Name())
			return text, nil
		}

		var perr *ProviderError
		class := ErrOther
		if errors.As(err, &perr) {
			class = perr.Class
		}
		c.cooldown.RecordFailure(p.Name(), now)
		c.logger.WarnContext(ctx, "synthesis provider failed", map[string]interface{}{
			"provider": p.Name(), "class": class, "error": err.Error(),
		})

		switch class {
		case ErrAuth:
			return "", xerrors.New("ai.Synthesize", xerrors.KindAuth, err)
		case ErrTimeout, ErrUnavailable, ErrRateLimited:
			continue
		case ErrModelNotFound:
			c.logger.WarnContext(ctx, "configuration drift: model not found", map[string]interface{}{"provider": p.Name()})
			continue
		default:
			if otherFailed {
				return "", xerrors.New("ai.Synthesize", xerrors.KindInternal, err)
			}
			otherFailed = true
			continue
		}
	}

	return "", xerrors.New("ai.Synthesize", xerrors.KindUnavailable, xerrors.ErrRetryExhausted)
}
