package cron

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunNow(t *testing.T) {
	calls := 0
	var deadline bool
	s := NewScheduler("0 6 * * *", func(ctx context.Context) error {
		calls++
		_, deadline = ctx.Deadline()
		return nil
	}, time.Minute, discard())

	s.RunNow()
	assert.Equal(t, 1, calls)
	assert.True(t, deadline)

	// A failing job is logged, not propagated.
	s.job = func(ctx context.Context) error { return errors.New("db down") }
	assert.NotPanics(t, s.RunNow)
}

func TestScheduler_StartRejectsBadSpec(t *testing.T) {
	s := NewScheduler("every day", func(context.Context) error { return nil }, time.Minute, discard())
	assert.Error(t, s.Start())
}

func TestScheduler_StartAndStop(t *testing.T) {
	s := NewScheduler("0 6 * * *", func(context.Context) error { return nil }, time.Minute, discard())
	assert.True(t, s.Next().IsZero())

	require.NoError(t, s.Start())
	next := s.Next()
	assert.False(t, next.IsZero())
	assert.Equal(t, 6, next.Hour())

	<-s.Stop().Done()
}
