package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingOverwritesOldest(t *testing.T) {
	r := NewRing(2)
	r.Push(Result{Service: "a"})
	r.Push(Result{Service: "b"})
	r.Push(Result{Service: "c"})

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "b", snap[0].Service)
	assert.Equal(t, "c", snap[1].Service)
}

func TestProbeOnceMarksUnhealthyAfterThreeFailures(t *testing.T) {
	m := New(nil)
	m.Register("svc", func(ctx context.Context) (time.Duration, error) {
		return 0, errors.New("down")
	}, 0)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.probeOnce(ctx, "svc")
	}

	snap, ok := m.Snapshot("svc")
	require.True(t, ok)
	assert.Equal(t, StatusUnhealthy, snap.Status)
	assert.Equal(t, 3, snap.ConsecutiveFailures)
}

func TestProbeOnceResetsFailuresOnSuccess(t *testing.T) {
	m := New(nil)
	fail := true
	m.Register("svc", func(ctx context.Context) (time.Duration, error) {
		if fail {
			return 0, errors.New("down")
		}
		return time.Millisecond, nil
	}, 0)

	ctx := context.Background()
	m.probeOnce(ctx, "svc")
	m.probeOnce(ctx, "svc")
	fail = false
	m.probeOnce(ctx, "svc")

	snap, ok := m.Snapshot("svc")
	require.True(t, ok)
	assert.Equal(t, 0, snap.ConsecutiveFailures)
	assert.Equal(t, StatusHealthy, snap.Status)
}

func TestProbeOnceMarksDegradedOnSustainedSlowness(t *testing.T) {
	m := New(nil)
	m.Register("svc", func(ctx context.Context) (time.Duration, error) {
		return 100 * time.Millisecond, nil
	}, 10*time.Millisecond)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		m.probeOnce(ctx, "svc")
	}

	snap, ok := m.Snapshot("svc")
	require.True(t, ok)
	assert.Equal(t, StatusDegraded, snap.Status)
}

func TestSubscribeReceivesProbeResults(t *testing.T) {
	m := New(nil)
	m.Register("svc", func(ctx context.Context) (time.Duration, error) {
		return time.Millisecond, nil
	}, 0)
	ch := m.Subscribe()

	m.probeOnce(context.Background(), "svc")

	select {
	case res := <-ch:
		assert.Equal(t, "svc", res.Service)
	case <-time.After(time.Second):
		t.Fatal("expected a probe result on the subscription channel")
	}
}

func TestOverallStatusReflectsWorstService(t *testing.T) {
	m := New(nil)
	m.Register("healthy-svc", func(ctx context.Context) (time.Duration, error) {
		return time.Millisecond, nil
	}, 0)
	m.Register("down-svc", func(ctx context.Context) (time.Duration, error) {
		return 0, errors.New("down")
	}, 0)

	ctx := context.Background()
	m.probeOnce(ctx, "healthy-svc")
	for i := 0; i < 3; i++ {
		m.probeOnce(ctx, "down-svc")
	}

	assert.Equal(t, StatusUnhealthy, m.OverallStatus())
}
