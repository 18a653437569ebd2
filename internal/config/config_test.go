package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONVERSATION_MAX_ROUNDS", "")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.ConversationMaxRounds)
	assert.Equal(t, 3600*time.Second, cfg.ConversationTTL)
	assert.Equal(t, 768, cfg.EmbeddingDim)
	assert.Equal(t, 0.3, cfg.SynthesisTemp)
}

func TestLoadOverridesFromEnv(t *testing.T) {
	t.Setenv("CONVERSATION_MAX_ROUNDS", "5")
	t.Setenv("HEALTH_PROBE_INTERVAL", "10s")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.ConversationMaxRounds)
	assert.Equal(t, 10*time.Second, cfg.HealthProbeInterval)
}
