package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStartRegistersPendingRun(t *testing.T) {
	tr := NewPipelineTracker()
	state := tr.Start("run-1", "case-1", "full_analysis", 3)
	require.Equal(t, RunPending, state.Status)
	require.Equal(t, 3, state.StagesTotal)

	got, ok := tr.Get("run-1")
	require.True(t, ok)
	require.Equal(t, state, got)
}

func TestGetUnknownRunReturnsFalse(t *testing.T) {
	tr := NewPipelineTracker()
	_, ok := tr.Get("missing")
	require.False(t, ok)
}

func TestUpdateMutatesStateAndNotifiesSubscriber(t *testing.T) {
	tr := NewPipelineTracker()
	tr.Start("run-1", "case-1", "full_analysis", 1)

	ch, unsubscribe, ok := tr.Subscribe("run-1")
	require.True(t, ok)
	defer unsubscribe()

	tr.Update("run-1", func(s *RunState) { s.Status = RunRunning })

	select {
	case got := <-ch:
		require.Equal(t, RunRunning, got.Status)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for subscriber notification")
	}

	current, _ := tr.Get("run-1")
	require.Equal(t, RunRunning, current.Status)
}

func TestUpdateOnUnknownRunIsNoop(t *testing.T) {
	tr := NewPipelineTracker()
	require.NotPanics(t, func() {
		tr.Update("missing", func(s *RunState) { s.Status = RunFailed })
	})
}

func TestSubscribeOnUnknownRunReturnsFalse(t *testing.T) {
	tr := NewPipelineTracker()
	ch, _, ok := tr.Subscribe("missing")
	require.False(t, ok)
	require.Nil(t, ch)
}

func TestUpdateDropsWhenSubscriberChannelFull(t *testing.T) {
	tr := NewPipelineTracker()
	tr.Start("run-1", "case-1", "full_analysis", 1)

	ch, unsubscribe, ok := tr.Subscribe("run-1")
	require.True(t, ok)
	defer unsubscribe()

	// Fill the buffered-by-one channel without draining it.
	tr.Update("run-1", func(s *RunState) { s.Message = "first" })
	// This second update should be dropped, not block.
	done := make(chan struct{})
	go func() {
		tr.Update("run-1", func(s *RunState) { s.Message = "second" })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Update blocked on a full subscriber channel")
	}

	got := <-ch
	require.Equal(t, "first", got.Message)
}

func TestUnsubscribeStopsFurtherDelivery(t *testing.T) {
	tr := NewPipelineTracker()
	tr.Start("run-1", "case-1", "full_analysis", 1)

	ch, unsubscribe, _ := tr.Subscribe("run-1")
	unsubscribe()

	tr.Update("run-1", func(s *RunState) { s.Message = "after unsubscribe" })

	_, open := <-ch
	require.False(t, open)
}
