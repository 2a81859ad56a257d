package gateway

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Subscription is one connection's registered interest in a channel, with an
// optional flat key -> expected-value filter over message payload fields.
// The filter is replaced on re-subscribe, so reads go through the mutex: a
// broadcast may be matching against it while the owner swaps it out.
type Subscription struct {
	ID           string
	ConnectionID string
	Channel      string
	CreatedAt    time.Time

	mu          sync.Mutex
	filter      map[string]any
	lastMessage time.Time
	delivered   uint64
}

// Matches reports whether a payload satisfies every key/value predicate in
// the filter. Matching is exact equality on top-level payload fields; an
// absent or empty filter matches everything.
func (s *Subscription) Matches(payload map[string]any) bool {
	s.mu.Lock()
	filter := s.filter
	s.mu.Unlock()
	if len(filter) == 0 {
		return true
	}
	for key, expected := range filter {
		actual, ok := payload[key]
		if !ok || actual != expected {
			return false
		}
	}
	return true
}

// Filter returns the current payload filter.
func (s *Subscription) Filter() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

func (s *Subscription) setFilter(filter map[string]any) {
	s.mu.Lock()
	s.filter = filter
	s.mu.Unlock()
}

// MarkDelivered bumps the delivered counter and the lastMessage timestamp.
func (s *Subscription) MarkDelivered(now time.Time) {
	s.mu.Lock()
	s.delivered++
	s.lastMessage = now
	s.mu.Unlock()
}

func (s *Subscription) Delivered() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

func (s *Subscription) LastMessage() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastMessage
}

// SubscriptionIndex maps channel -> subscribing connections and connection ->
// its subscriptions. One coarse lock guards both maps so capacity checks and
// inserts are atomic with respect to each other.
type SubscriptionIndex struct {
	mu        sync.RWMutex
	byChannel map[string]map[string]*Subscription
	byConn    map[string]map[string]*Subscription
}

func NewSubscriptionIndex() *SubscriptionIndex {
	return &SubscriptionIndex{
		byChannel: make(map[string]map[string]*Subscription),
		byConn:    make(map[string]map[string]*Subscription),
	}
}

// Add creates a subscription for (connectionID, channel), enforcing the
// channel's subscriber cap. Re-subscribing replaces the previous filter
// (last-write-wins) instead of creating a duplicate, and never counts
// against the cap.
func (idx *SubscriptionIndex) Add(connectionID, channel string, filter map[string]any, maxSubscribers int, now time.Time) (*Subscription, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	chanSubs := idx.byChannel[channel]
	if existing, ok := chanSubs[connectionID]; ok {
		existing.setFilter(filter)
		return existing, nil
	}
	if maxSubscribers > 0 && len(chanSubs) >= maxSubscribers {
		return nil, ErrChannelFull
	}

	sub := &Subscription{
		ID:           uuid.New().String(),
		ConnectionID: connectionID,
		Channel:      channel,
		filter:       filter,
		CreatedAt:    now,
	}
	if chanSubs == nil {
		chanSubs = make(map[string]*Subscription)
		idx.byChannel[channel] = chanSubs
	}
	chanSubs[connectionID] = sub

	connSubs := idx.byConn[connectionID]
	if connSubs == nil {
		connSubs = make(map[string]*Subscription)
		idx.byConn[connectionID] = connSubs
	}
	connSubs[channel] = sub
	return sub, nil
}

// Remove deletes the subscription for (connectionID, channel). Idempotent;
// the second return reports whether anything was actually removed.
func (idx *SubscriptionIndex) Remove(connectionID, channel string) (*Subscription, bool) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	connSubs, ok := idx.byConn[connectionID]
	if !ok {
		return nil, false
	}
	sub, ok := connSubs[channel]
	if !ok {
		return nil, false
	}
	delete(connSubs, channel)
	if len(connSubs) == 0 {
		delete(idx.byConn, connectionID)
	}
	if chanSubs, ok := idx.byChannel[channel]; ok {
		delete(chanSubs, connectionID)
		if len(chanSubs) == 0 {
			delete(idx.byChannel, channel)
		}
	}
	return sub, true
}

// RemoveConnection drops every subscription held by the connection and
// returns them. Atomic with respect to broadcast recipient selection: a
// broadcast either snapshots the subscription before this runs or never
// sees it.
func (idx *SubscriptionIndex) RemoveConnection(connectionID string) []*Subscription {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	connSubs, ok := idx.byConn[connectionID]
	if !ok {
		return nil
	}
	removed := make([]*Subscription, 0, len(connSubs))
	for channel, sub := range connSubs {
		removed = append(removed, sub)
		if chanSubs, ok := idx.byChannel[channel]; ok {
			delete(chanSubs, connectionID)
			if len(chanSubs) == 0 {
				delete(idx.byChannel, channel)
			}
		}
	}
	delete(idx.byConn, connectionID)
	return removed
}

// SubscribersOf returns a snapshot of the channel's current subscriptions.
func (idx *SubscriptionIndex) SubscribersOf(channel string) []*Subscription {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	chanSubs := idx.byChannel[channel]
	out := make([]*Subscription, 0, len(chanSubs))
	for _, sub := range chanSubs {
		out = append(out, sub)
	}
	return out
}

// ForConnection returns a snapshot of the connection's subscriptions.
func (idx *SubscriptionIndex) ForConnection(connectionID string) []*Subscription {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	connSubs := idx.byConn[connectionID]
	out := make([]*Subscription, 0, len(connSubs))
	for _, sub := range connSubs {
		out = append(out, sub)
	}
	return out
}

// CountForChannel returns the live subscriber count for a channel.
func (idx *SubscriptionIndex) CountForChannel(channel string) int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byChannel[channel])
}
