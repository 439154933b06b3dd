package notify

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evidentia-ai/evidentia/internal/model"
)

type recordingSink struct {
	mu       sync.Mutex
	received []Kind
	fail     bool
}

func (s *recordingSink) Send(_ context.Context, kind Kind, _ any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("sink unavailable")
	}
	s.received = append(s.received, kind)
	return nil
}

type recordingLedger struct {
	mu   sync.Mutex
	logs []model.PushLog
}

func (l *recordingLedger) CreatePushLog(_ context.Context, log model.PushLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.logs = append(l.logs, log)
	return nil
}

func TestNotifyDeliversToRegisteredSink(t *testing.T) {
	sink := &recordingSink{}
	h := New(nil, nil)
	h.Register("user-1", sink)

	h.Notify(context.Background(), "user-1", KindPipelineProgress, map[string]any{"pct": 50})

	require.Len(t, sink.received, 1)
	assert.Equal(t, KindPipelineProgress, sink.received[0])
}

func TestNotifyToUnregisteredUserIsANoop(t *testing.T) {
	h := New(nil, nil)
	require.NotPanics(t, func() {
		h.Notify(context.Background(), "ghost", KindAlert, nil)
	})
}

func TestFailingSinkIsDeregistered(t *testing.T) {
	sink := &recordingSink{fail: true}
	h := New(nil, nil)
	h.Register("user-1", sink)

	h.Notify(context.Background(), "user-1", KindAlert, "boom")
	require.Equal(t, 0, h.RegisteredUsers())

	// A second notify must not panic or attempt delivery again.
	h.Notify(context.Background(), "user-1", KindAlert, "boom again")
	require.Empty(t, sink.received)
}

func TestUnregisterRemovesOnlyTheNamedSink(t *testing.T) {
	h := New(nil, nil)
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}
	idA := h.Register("user-1", sinkA)
	h.Register("user-1", sinkB)

	h.Unregister("user-1", idA)
	h.Notify(context.Background(), "user-1", KindCrawlerDone, nil)

	assert.Empty(t, sinkA.received)
	assert.Len(t, sinkB.received, 1)
}

func TestBroadcastReachesEveryRegisteredUser(t *testing.T) {
	h := New(nil, nil)
	sinkA := &recordingSink{}
	sinkB := &recordingSink{}
	h.Register("user-1", sinkA)
	h.Register("user-2", sinkB)

	h.Broadcast(context.Background(), KindCollectionDone, nil)

	assert.Len(t, sinkA.received, 1)
	assert.Len(t, sinkB.received, 1)
}

func TestNotifyRecordsDeliveryInLedger(t *testing.T) {
	ledger := &recordingLedger{}
	h := New(ledger, nil)
	h.Register("user-1", &recordingSink{})

	h.Notify(context.Background(), "user-1", KindCronResult, "ok")

	require.Len(t, ledger.logs, 1)
	assert.True(t, ledger.logs[0].Delivered)
	assert.Equal(t, "user-1", ledger.logs[0].UserID)
}

func TestNotifyRecordsFailedDeliveryInLedger(t *testing.T) {
	ledger := &recordingLedger{}
	h := New(ledger, nil)
	h.Register("user-1", &recordingSink{fail: true})

	h.Notify(context.Background(), "user-1", KindAlert, "boom")

	require.Len(t, ledger.logs, 1)
	assert.False(t, ledger.logs[0].Delivered)
	assert.NotEmpty(t, ledger.logs[0].Error)
}

func TestRegisteredUsersCountsDistinctUsers(t *testing.T) {
	h := New(nil, nil)
	h.Register("user-1", &recordingSink{})
	h.Register("user-1", &recordingSink{})
	h.Register("user-2", &recordingSink{})

	assert.Equal(t, 2, h.RegisteredUsers())
}
