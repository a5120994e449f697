package audit

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestPublisherStampsEvents(t *testing.T) {
	p := NewPublisher(4, nil, testLogger())

	p.Emit(context.Background(), Event{Action: ActionDocumentSigned, SubjectID: "user-1"})

	select {
	case got := <-p.Inbox():
		assert.False(t, got.Timestamp.IsZero())
		assert.Equal(t, CategorySignature, got.Category)
	default:
		t.Fatal("event was not enqueued")
	}
}

func TestPublisherDropsWhenFull(t *testing.T) {
	p := NewPublisher(1, nil, testLogger())

	p.Emit(context.Background(), Event{Action: ActionDocumentCreated})
	p.Emit(context.Background(), Event{Action: ActionDocumentSubmitted})

	// The second emit must not have blocked; only one event is queued.
	assert.Len(t, p.Inbox(), 1)
}

func TestWorkerPersistsAndForwards(t *testing.T) {
	store := NewMemoryStore()
	sink := &captureSink{}
	inbox := make(chan Event, 4)
	w := NewWorker(store, sink, inbox, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(done)
	}()

	inbox <- Event{Action: ActionIdentityVerified, SubjectID: "user-1", Timestamp: time.Now()}

	require.Eventually(t, func() bool {
		events, err := store.ListBySubject(context.Background(), "user-1")
		return err == nil && len(events) == 1 && sink.Count() == 1
	}, time.Second, 10*time.Millisecond)

	cancel()
	<-done
}

func TestWorkerSinkFailureIsFailOpen(t *testing.T) {
	store := NewMemoryStore()
	sink := &captureSink{err: errors.New("broker down")}
	inbox := make(chan Event, 1)
	w := NewWorker(store, sink, inbox, testLogger())

	inbox <- Event{Action: ActionDocumentSigned, SubjectID: "user-2", Timestamp: time.Now()}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = w.Run(ctx) // drains before returning

	events, err := store.ListBySubject(context.Background(), "user-2")
	require.NoError(t, err)
	assert.Len(t, events, 1, "store write survives sink failure")
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (c *captureSink) Publish(_ context.Context, e Event) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return nil
}

func (c *captureSink) Count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}
