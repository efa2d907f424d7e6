package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
)

func TestNewService_InvalidSchedule(t *testing.T) {
	_, err := NewService("every now and then", func(ctx context.Context) (bool, error) { return true, nil }, arbor.NewLogger())
	assert.ErrorContains(t, err, "invalid watch schedule")
}

func TestTrigger_RecordsOutcome(t *testing.T) {
	results := []bool{true, false}
	var calls atomic.Int32
	s, err := NewService("@every 1h", func(ctx context.Context) (bool, error) {
		n := calls.Add(1)
		return results[n-1], nil
	}, arbor.NewLogger())
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, s.Trigger())
	s.Wait()
	status := s.Status()
	assert.Equal(t, 1, status.Runs)
	assert.True(t, status.LastPassed)
	assert.NotNil(t, status.LastRun)
	assert.NotNil(t, status.NextRun)

	require.NoError(t, s.Trigger())
	s.Wait()
	status = s.Status()
	assert.Equal(t, 2, status.Runs)
	assert.Equal(t, 1, status.Failures)
	assert.False(t, status.LastPassed)
}

func TestTrigger_SkipsOverlappingRuns(t *testing.T) {
	release := make(chan struct{})
	s, err := NewService("@every 1h", func(ctx context.Context) (bool, error) {
		<-release
		return true, nil
	}, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, s.Trigger())
	assert.ErrorIs(t, s.Trigger(), ErrAlreadyRunning)
	assert.True(t, s.Status().IsRunning)

	close(release)
	s.Wait()
	status := s.Status()
	assert.Equal(t, 1, status.Runs)
	assert.Equal(t, 1, status.Skipped)
	assert.False(t, status.IsRunning)
}

func TestTrigger_ErrorsAndPanicsAreFailures(t *testing.T) {
	var calls atomic.Int32
	s, err := NewService("@every 1h", func(ctx context.Context) (bool, error) {
		if calls.Add(1) == 1 {
			return false, errors.New("browser failed to start")
		}
		panic("boom")
	}, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	require.NoError(t, s.Trigger())
	s.Wait()
	assert.Equal(t, "browser failed to start", s.Status().LastError)

	require.NoError(t, s.Trigger())
	s.Wait()
	status := s.Status()
	assert.Contains(t, status.LastError, "run panicked: boom")
	assert.Equal(t, 2, status.Failures)
}

func TestStop_CancelsRunningRun(t *testing.T) {
	started := make(chan struct{})
	s, err := NewService("@every 1h", func(ctx context.Context) (bool, error) {
		close(started)
		<-ctx.Done()
		return false, ctx.Err()
	}, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Trigger())
	<-started

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return after cancelling the run")
	}
	assert.Error(t, s.Trigger(), "stopped scheduler refuses runs")
}

func TestScheduledTickRuns(t *testing.T) {
	ran := make(chan struct{}, 1)
	s, err := NewService("@every 1s", func(ctx context.Context) (bool, error) {
		select {
		case ran <- struct{}{}:
		default:
		}
		return true, nil
	}, arbor.NewLogger())
	require.NoError(t, err)
	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	select {
	case <-ran:
	case <-time.After(3 * time.Second):
		t.Fatal("scheduled run did not fire")
	}
}
