package remap

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestState_RunDeliversAllKeys(t *testing.T) {
	s := NewState()
	var got []string
	n, err := s.Run(context.Background(), []string{"d", "d"}, func(_ context.Context, k string) error {
		assert.True(t, s.IsPerforming())
		got = append(got, k)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"d", "d"}, got)
	assert.False(t, s.IsPerforming())
}

func TestState_ForceStopBetweenKeys(t *testing.T) {
	s := NewState()
	delivered := 0
	n, err := s.Run(context.Background(), []string{"j", "j", "j", "j"}, func(_ context.Context, _ string) error {
		delivered++
		if delivered == 2 {
			assert.True(t, s.ForceStop())
		}
		return nil
	})
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, delivered)
	assert.Equal(t, uint64(1), s.Stops())
	assert.False(t, s.IsPerforming())
}

func TestState_ForceStopIdle(t *testing.T) {
	s := NewState()
	assert.False(t, s.ForceStop())
	assert.Equal(t, uint64(0), s.Stops())
}

func TestState_BeginTwice(t *testing.T) {
	s := NewState()
	tok, err := s.Begin(context.Background())
	require.NoError(t, err)

	_, err = s.Begin(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	s.End(tok)
	s.End(tok)
	assert.False(t, s.IsPerforming())
	assert.True(t, tok.Stopped())
}

func TestState_RunPropagatesKeyError(t *testing.T) {
	s := NewState()
	boom := errors.New("bad key")
	n, err := s.Run(context.Background(), []string{"a", "b"}, func(_ context.Context, k string) error {
		if k == "b" {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, n)
}

func TestState_RunHonoursParentCancel(t *testing.T) {
	s := NewState()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := s.Run(ctx, []string{"x"}, func(context.Context, string) error { return nil })
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 0, n)
}
