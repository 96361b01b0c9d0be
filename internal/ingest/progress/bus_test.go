package progress

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

type fakeRefresher struct {
	mu   sync.Mutex
	hits []string
}

func (f *fakeRefresher) RecordProgress(sessionID string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hits = append(f.hits, sessionID)
	return nil
}

func TestBus_PublishFansOutToAllSubscribers(t *testing.T) {
	bus := New(nil, nil, nil)
	_, ch1 := bus.Subscribe(4)
	_, ch2 := bus.Subscribe(4)

	bus.Publish(context.Background(), types.Event{JobID: "j1", Kind: types.EventChunkingComplete})

	select {
	case e := <-ch1:
		require.Equal(t, types.EventChunkingComplete, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber 1 did not receive event")
	}
	select {
	case e := <-ch2:
		require.Equal(t, types.EventChunkingComplete, e.Kind)
	case <-time.After(time.Second):
		t.Fatal("subscriber 2 did not receive event")
	}
}

func TestBus_PublishNeverBlocksOnFullSubscriber(t *testing.T) {
	bus := New(nil, nil, nil)
	_, ch := bus.Subscribe(1)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(context.Background(), types.Event{JobID: "j1", Kind: types.EventHeartbeat})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full, undrained subscriber channel")
	}
	require.Len(t, ch, 1)
}

func TestBus_UnsubscribeClosesChannel(t *testing.T) {
	bus := New(nil, nil, nil)
	id, ch := bus.Subscribe(1)
	bus.Unsubscribe(id)

	_, ok := <-ch
	require.False(t, ok)
}

func TestBus_PublishRefreshesSessionProgress(t *testing.T) {
	refresher := &fakeRefresher{}
	bus := New(refresher, nil, nil)

	bus.Publish(context.Background(), types.Event{JobID: "j1", SessionID: "s1", Kind: types.EventProgressUpdate})

	refresher.mu.Lock()
	defer refresher.mu.Unlock()
	require.Equal(t, []string{"s1"}, refresher.hits)
}
