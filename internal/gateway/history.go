package gateway

import "sync"

// HistoryRing is a bounded, ordered buffer of recently published messages
// used to answer backfill requests. The bound is a single entry count for
// the whole gateway instance; the oldest entry is evicted once exceeded.
type HistoryRing struct {
	mu      sync.RWMutex
	max     int
	entries []*Message
}

func NewHistoryRing(max int) *HistoryRing {
	if max <= 0 {
		max = 1000
	}
	return &HistoryRing{max: max}
}

// Append adds a published message. Oldest-first eviction past the maximum.
func (h *HistoryRing) Append(msg *Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, msg)
	if len(h.entries) > h.max {
		over := len(h.entries) - h.max
		h.entries = append(h.entries[:0:0], h.entries[over:]...)
	}
}

// Recent returns up to limit of the channel's most recent messages in
// chronological order, oldest first.
func (h *HistoryRing) Recent(channel string, limit int) []*Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if limit <= 0 {
		return nil
	}
	// limit is client-controlled; never allocate past what is retained.
	if limit > len(h.entries) {
		limit = len(h.entries)
	}
	out := make([]*Message, 0, limit)
	for i := len(h.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if h.entries[i].Channel == channel {
			out = append(out, h.entries[i])
		}
	}
	// Collected newest-first; reverse into chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Len returns the total number of retained entries across all channels.
func (h *HistoryRing) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.entries)
}

// CountForChannel returns the retained entry count for one channel.
func (h *HistoryRing) CountForChannel(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, msg := range h.entries {
		if msg.Channel == channel {
			n++
		}
	}
	return n
}
