package store

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chrlshc/Huntaze-sub010/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMonitor_ProbeTransitions(t *testing.T) {
	s, mr := newTestRedisStore(t, "")

	var changes []bool
	m, err := NewMonitor(s, time.Minute, logger.NewNop(), WithOnChange(func(h bool) {
		changes = append(changes, h)
	}))
	require.NoError(t, err)
	assert.True(t, m.Healthy())

	m.probe(context.Background())
	assert.Empty(t, changes, "no transition while healthy")

	mr.Close()
	m.probe(context.Background())
	assert.False(t, m.Healthy())

	require.NoError(t, mr.Restart())
	m.probe(context.Background())
	assert.True(t, m.Healthy())

	assert.Equal(t, []bool{false, true}, changes)
}

func TestMonitor_StartSchedulesProbe(t *testing.T) {
	s, mr := newTestRedisStore(t, "")

	var down atomic.Bool
	m, err := NewMonitor(s, 20*time.Millisecond, logger.NewNop(),
		WithProbeTimeout(50*time.Millisecond),
		WithOnChange(func(h bool) { down.Store(!h) }))
	require.NoError(t, err)

	require.NoError(t, m.Start())
	require.NoError(t, m.Start(), "second start is a no-op")
	defer m.Stop()

	mr.Close()
	assert.Eventually(t, down.Load, 2*time.Second, 10*time.Millisecond)
}

func TestMonitor_UnavailableStoreNeverProbed(t *testing.T) {
	m, err := NewMonitor(NewUnavailableStore("off"), time.Millisecond, logger.NewNop())
	require.NoError(t, err)

	require.NoError(t, m.Start())
	assert.False(t, m.Healthy())
	assert.NoError(t, m.Stop())
}
