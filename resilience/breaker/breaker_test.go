package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/usorama/engg-context-gateway/health"
)

func TestExecuteOpensAfterThreshold(t *testing.T) {
	b := New(Params{Name: "svc", Threshold: 3, ResetTimeout: 50 * time.Millisecond, HalfOpenRequests: 1})

	failing := func() error { return errors.New("boom") }
	for i := 0; i < 3; i++ {
		_ = b.Execute(context.Background(), failing)
	}

	assert.Equal(t, "open", b.GetState())
	err := b.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)
}

func TestExecuteHalfOpensAfterResetTimeout(t *testing.T) {
	b := New(Params{Name: "svc", Threshold: 1, ResetTimeout: 20 * time.Millisecond, HalfOpenRequests: 1})

	_ = b.Execute(context.Background(), func() error { return errors.New("boom") })
	require.Equal(t, "open", b.GetState())

	time.Sleep(30 * time.Millisecond)
	err := b.Execute(context.Background(), func() error { return nil })
	require.NoError(t, err)
	assert.Equal(t, "closed", b.GetState())
}

func TestForceOpenLatchesRegardlessOfOutcome(t *testing.T) {
	b := New(DefaultParams("svc"))
	b.ForceOpen()

	err := b.Execute(context.Background(), func() error { return nil })
	assert.ErrorIs(t, err, ErrOpen)

	b.Reset()
	err = b.Execute(context.Background(), func() error { return nil })
	assert.NoError(t, err)
}

func TestCascadeForcesOpenOnUnhealthy(t *testing.T) {
	monitor := health.New(nil, health.WithInterval(5*time.Millisecond))
	monitor.Register("svc", func(ctx context.Context) (time.Duration, error) {
		return 0, errors.New("down")
	}, 0)

	b := New(DefaultParams("svc"))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	Cascade(ctx, monitor, map[string]*CircuitBreaker{"svc": b})
	monitor.Start(ctx)
	defer monitor.Stop()

	require.Eventually(t, func() bool {
		return b.GetState() == "open"
	}, time.Second, 10*time.Millisecond)
}
