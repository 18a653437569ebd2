package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCreatesAnalyzingRoundOne(t *testing.T) {
	m := New(NewMemoryStore(), nil)
	s := m.Start(context.Background(), "how does auth work")

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, PhaseAnalyzing, s.Phase)
	assert.Empty(t, s.Context)
}

func TestAddContextPersistsAndRefreshesTTL(t *testing.T) {
	m := New(NewMemoryStore(), nil)
	s := m.Start(context.Background(), "q")

	s2, ok := m.AddContext(context.Background(), s.ID, "component", "auth")
	require.True(t, ok)
	assert.Equal(t, "auth", s2.Context["component"])

	got, ok := m.Get(context.Background(), s.ID)
	require.True(t, ok)
	assert.Equal(t, "auth", got.Context["component"])
}

func TestAdvanceIncrementsUntilMaxThenCompletes(t *testing.T) {
	m := New(NewMemoryStore(), nil, WithMaxRounds(2))
	s := m.Start(context.Background(), "q")

	s2, ok := m.Advance(context.Background(), s.ID)
	require.True(t, ok)
	assert.Equal(t, 2, s2.Round)
	assert.Equal(t, PhaseAnalyzing, s2.Phase)

	s3, ok := m.Advance(context.Background(), s.ID)
	require.True(t, ok)
	assert.Equal(t, PhaseCompleted, s3.Phase)
}

func TestEndRemovesFromBothTiers(t *testing.T) {
	shared := NewMemoryStore()
	m := New(shared, nil)
	s := m.Start(context.Background(), "q")

	final, ok := m.End(context.Background(), s.ID)
	require.True(t, ok)
	assert.Equal(t, PhaseCompleted, final.Phase)

	_, ok = m.Get(context.Background(), s.ID)
	assert.False(t, ok)

	_, ok, _ = shared.Load(context.Background(), s.ID)
	assert.False(t, ok)
}

type failingStore struct{}

func (failingStore) Save(ctx context.Context, s State, ttl time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Load(ctx context.Context, id string) (State, bool, error) {
	return State{}, false, errors.New("connection refused")
}
func (failingStore) Refresh(ctx context.Context, id string, ttl time.Duration) error {
	return errors.New("connection refused")
}
func (failingStore) Delete(ctx context.Context, id string) error {
	return errors.New("connection refused")
}

func TestDegradesToLocalOnlyWhenSharedUnavailable(t *testing.T) {
	m := New(failingStore{}, nil)
	s := m.Start(context.Background(), "q")

	got, ok := m.Get(context.Background(), s.ID)
	require.True(t, ok, "local cache should still serve reads after a failed shared write")
	assert.Equal(t, s.ID, got.ID)

	s2, ok := m.AddContext(context.Background(), s.ID, "k", "v")
	require.True(t, ok)
	assert.Equal(t, "v", s2.Context["k"])
}

func TestGetMissReturnsFalse(t *testing.T) {
	m := New(NewMemoryStore(), nil)
	_, ok := m.Get(context.Background(), "nonexistent")
	assert.False(t, ok)
}
