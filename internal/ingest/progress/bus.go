// Package progress implements C8 ProgressBus (§4.8): a typed, lossy,
// fan-out event channel. Publication never blocks the pipeline — a full
// subscriber channel simply drops the event rather than back-pressuring
// the publisher, matching "delivery is best-effort to subscribers;
// missing subscribers do not affect correctness."
package progress

import (
	"context"
	"encoding/json"
	"sync"

	kafka "github.com/segmentio/kafka-go"

	"github.com/autollama/autollama-sub002/internal/ingest/obs"
	"github.com/autollama/autollama-sub002/internal/ingest/types"
)

// SessionRefresher is the narrow session.Tracker capability ProgressBus
// needs: every published event refreshes the owning session's
// last_progress_update (§4.8).
type SessionRefresher interface {
	RecordProgress(sessionID string, processedDelta int) error
}

// Bus is a fan-out, best-effort event channel, grounded on the
// subscriber-channel-map shape common to the pack's pub/sub adapters
// (e.g. internal/orchestrator's Kafka reader/writer split a single
// incoming stream across worker channels); here the split runs the other
// direction, one publisher fanning out to many subscriber channels.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[int]chan types.Event
	nextID      int

	sessions SessionRefresher
	log      obs.Logger
	metrics  obs.Metrics

	kafkaWriter *kafka.Writer
}

// New constructs a Bus. sessions may be nil (no session-clock refresh,
// e.g. in tests); log/metrics may be nil.
func New(sessions SessionRefresher, log obs.Logger, metrics obs.Metrics) *Bus {
	if log == nil {
		log = obs.NoopLogger{}
	}
	if metrics == nil {
		metrics = obs.NoopMetrics{}
	}
	return &Bus{subscribers: make(map[int]chan types.Event), sessions: sessions, log: log, metrics: metrics}
}

// WithKafkaMirror attaches a best-effort Kafka mirror: every published
// event is also written (async, fire-and-forget) to brokers/topic, so an
// external system can observe progress without holding a subscriber
// channel open against this process's lifetime.
func WithKafkaMirror(b *Bus, brokers []string, topic string) *Bus {
	b.kafkaWriter = &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Topic:    topic,
		Balancer: &kafka.LeastBytes{},
		Async:    true,
	}
	return b
}

// Close releases the Kafka writer, if any.
func (b *Bus) Close() error {
	if b.kafkaWriter != nil {
		return b.kafkaWriter.Close()
	}
	return nil
}

// Subscribe registers a new lossy channel of the given buffer size and
// returns its id (for Unsubscribe) and the receive-only channel.
func (b *Bus) Subscribe(bufferSize int) (int, <-chan types.Event) {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	ch := make(chan types.Event, bufferSize)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subscribers[id] = ch
	b.mu.Unlock()
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Bus) Unsubscribe(id int) {
	b.mu.Lock()
	ch, ok := b.subscribers[id]
	if ok {
		delete(b.subscribers, id)
	}
	b.mu.Unlock()
	if ok {
		close(ch)
	}
}

// Publish fans event out to every subscriber without blocking; a
// subscriber whose channel is full simply misses this event. It also
// refreshes the owning session's progress clock and mirrors to Kafka if
// configured.
func (b *Bus) Publish(ctx context.Context, event types.Event) {
	b.mu.RLock()
	targets := make([]chan types.Event, 0, len(b.subscribers))
	for _, ch := range b.subscribers {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.metrics.IncCounter("ingest_progress_events_dropped_total", map[string]string{"kind": string(event.Kind)})
		}
	}

	if b.sessions != nil && event.SessionID != "" {
		// A pure progress-clock refresh: no chunk was actually completed by
		// most event kinds (e.g. heartbeat, job_queued), so the delta is 0.
		if err := b.sessions.RecordProgress(event.SessionID, 0); err != nil {
			b.log.Debug("progress event for unknown session", map[string]any{"session_id": event.SessionID, "kind": string(event.Kind)})
		}
	}

	b.metrics.IncCounter("ingest_progress_events_published_total", map[string]string{"kind": string(event.Kind)})
	b.mirrorToKafka(ctx, event)
}

func (b *Bus) mirrorToKafka(ctx context.Context, event types.Event) {
	if b.kafkaWriter == nil {
		return
	}
	payload, err := json.Marshal(event)
	if err != nil {
		b.log.Error("marshal progress event for kafka mirror failed", map[string]any{"error": err.Error()})
		return
	}
	if err := b.kafkaWriter.WriteMessages(ctx, kafka.Message{Key: []byte(event.JobID), Value: payload}); err != nil {
		b.log.Error("kafka progress mirror write failed", map[string]any{"error": err.Error()})
	}
}
