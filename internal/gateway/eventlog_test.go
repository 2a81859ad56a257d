package gateway

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type capturingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (s *capturingSink) Publish(event Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func (s *capturingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func TestEventLogRecordAssignsIDAndTimestamp(t *testing.T) {
	log := NewEventLog(10, nil)
	now := time.Now()

	log.Record(Event{Type: EventConnection, ConnectionID: "conn-1"}, now)

	events := log.Recent(10)
	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].ID)
	assert.Equal(t, now, events[0].Timestamp)
}

func TestEventLogEvictsOldestFirst(t *testing.T) {
	log := NewEventLog(3, nil)
	now := time.Now()

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		log.Record(Event{ID: id, Type: EventError}, now)
	}

	assert.Equal(t, 3, log.Len())
	events := log.Recent(10)
	assert.Equal(t, "c", events[0].ID)
	assert.Equal(t, "e", events[2].ID)
}

func TestEventLogRecentLimit(t *testing.T) {
	log := NewEventLog(10, nil)
	now := time.Now()
	for _, id := range []string{"a", "b", "c"} {
		log.Record(Event{ID: id, Type: EventError}, now)
	}

	events := log.Recent(2)
	require.Len(t, events, 2)
	assert.Equal(t, "b", events[0].ID)
	assert.Equal(t, "c", events[1].ID)
}

func TestEventLogForwardsToSink(t *testing.T) {
	sink := &capturingSink{}
	log := NewEventLog(10, sink)

	log.Record(Event{Type: EventSubscription, Channel: "logs"}, time.Now())

	assert.Eventually(t, func() bool { return sink.count() == 1 }, time.Second, 10*time.Millisecond)
}

type blockedSink struct {
	release chan struct{}
}

func (s *blockedSink) Publish(Event) error {
	<-s.release
	return nil
}

func TestEventLogRecordNeverBlocksOnStalledSink(t *testing.T) {
	sink := &blockedSink{release: make(chan struct{})}
	defer close(sink.release)
	log := NewEventLog(1000, sink)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < sinkBuffer*2; i++ {
			log.Record(Event{Type: EventError}, time.Now())
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a stalled sink")
	}
	// Overflow only sheds events for the sink; the log keeps them all.
	assert.Equal(t, sinkBuffer*2, log.Len())
}

func TestEventLogSinkFailureDoesNotAffectLog(t *testing.T) {
	sink := &capturingSink{err: errors.New("broker down")}
	log := NewEventLog(10, sink)

	log.Record(Event{Type: EventError}, time.Now())

	assert.Equal(t, 1, log.Len())
}
