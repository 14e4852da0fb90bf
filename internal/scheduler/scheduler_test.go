package scheduler

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func TestJobType_String(t *testing.T) {
	assert.Equal(t, "startup", JobTypeStartup.String())
	assert.Equal(t, "scheduled", JobTypeScheduled.String())
	assert.Equal(t, "manual", JobTypeManual.String())
	assert.Equal(t, "unknown", JobType(42).String())
}

func TestScheduler_RunsOnStartupAndInterval(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(func(context.Context) error {
		runs.Add(1)
		return nil
	}, 20*time.Millisecond, true, quietLogger())

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()

	after := runs.Load()
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, after, runs.Load(), "no runs after Stop")
}

func TestScheduler_NoStartupRun(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(func(context.Context) error {
		runs.Add(1)
		return nil
	}, time.Hour, false, quietLogger())

	s.Start()
	time.Sleep(30 * time.Millisecond)
	s.Stop()
	assert.Equal(t, int32(0), runs.Load())
}

func TestScheduler_TriggerRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var runs atomic.Int32

	s := NewScheduler(func(ctx context.Context) error {
		runs.Add(1)
		started <- struct{}{}
		select {
		case <-release:
		case <-ctx.Done():
		}
		return nil
	}, time.Hour, false, quietLogger())
	defer s.Stop()

	require.NoError(t, s.Trigger())
	<-started
	assert.True(t, s.IsRunning())
	assert.ErrorIs(t, s.Trigger(), ErrRunInProgress)

	close(release)
	require.Eventually(t, func() bool { return !s.IsRunning() }, time.Second, 5*time.Millisecond)

	require.NoError(t, s.Trigger())
	<-started
	assert.Equal(t, int32(2), runs.Load())
}

func TestScheduler_StopCancelsRun(t *testing.T) {
	cancelled := make(chan struct{})
	s := NewScheduler(func(ctx context.Context) error {
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	}, time.Hour, true, quietLogger())

	s.Start()
	require.Eventually(t, s.IsRunning, time.Second, 5*time.Millisecond)
	s.Stop()

	select {
	case <-cancelled:
	default:
		t.Fatal("run was not cancelled by Stop")
	}
	assert.Error(t, s.Trigger())
}

func TestScheduler_JobErrorsAndPanicsDoNotStopScheduling(t *testing.T) {
	var runs atomic.Int32
	s := NewScheduler(func(context.Context) error {
		switch runs.Add(1) {
		case 1:
			return errors.New("site down")
		case 2:
			panic("unexpected")
		}
		return nil
	}, 10*time.Millisecond, true, quietLogger())

	s.Start()
	require.Eventually(t, func() bool { return runs.Load() >= 3 }, 2*time.Second, 5*time.Millisecond)
	s.Stop()
}
