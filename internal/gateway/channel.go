package gateway

import (
	"slices"
	"strings"
	"sync"
	"time"
)

// Channel is a named broadcast topic with its own permissions, rate limits
// and capacity. The name is immutable once registered.
type Channel struct {
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Category          string    `json:"category"`
	Permissions       []string  `json:"permissions"`
	MessagesPerMinute int       `json:"messagesPerMinute"`
	MessagesPerHour   int       `json:"messagesPerHour"`
	MaxSubscribers    int       `json:"maxSubscribers"`
	RetentionDays     int       `json:"retentionDays"`
	Active            bool      `json:"active"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// Allows reports whether the given role may subscribe to or publish on the
// channel. An empty permission list admits every authenticated role.
func (c *Channel) Allows(role string) bool {
	if len(c.Permissions) == 0 {
		return true
	}
	return slices.Contains(c.Permissions, role)
}

// ChannelRegistry holds the named channel definitions. Read-mostly after
// bootstrap, so a RWMutex is enough.
type ChannelRegistry struct {
	mu       sync.RWMutex
	channels map[string]*Channel
}

// NewChannelRegistry creates a registry seeded with the fixed bootstrap set.
func NewChannelRegistry(now time.Time) *ChannelRegistry {
	r := &ChannelRegistry{channels: make(map[string]*Channel)}
	for _, ch := range bootstrapChannels(now) {
		r.channels[ch.Name] = ch
	}
	return r
}

func bootstrapChannels(now time.Time) []*Channel {
	mk := func(name, description, category string, perms []string, perMin, perHour, maxSubs int) *Channel {
		return &Channel{
			Name:              name,
			Description:       description,
			Category:          category,
			Permissions:       perms,
			MessagesPerMinute: perMin,
			MessagesPerHour:   perHour,
			MaxSubscribers:    maxSubs,
			RetentionDays:     7,
			Active:            true,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
	}
	return []*Channel{
		mk("system", "System announcements and service state changes", "system",
			[]string{"admin"}, 60, 1000, 100),
		mk("notifications", "User-facing notifications", "general",
			[]string{"admin", "user"}, 120, 2000, 500),
		mk("logs", "Live log stream from managed services", "observability",
			[]string{"admin"}, 300, 5000, 50),
		mk("metrics", "Host and service metrics samples", "observability",
			[]string{"admin", "user"}, 600, 10000, 200),
		mk("backups", "Backup job status events", "operations",
			[]string{"admin"}, 20, 200, 50),
	}
}

// Get returns the channel definition for name, if registered.
func (r *ChannelRegistry) Get(name string) (*Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ch, ok
}

// List returns a snapshot of all registered channels, sorted by name.
func (r *ChannelRegistry) List() []*Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, ch)
	}
	slices.SortFunc(out, func(a, b *Channel) int {
		return strings.Compare(a.Name, b.Name)
	})
	return out
}

// IsActive reports whether the named channel exists and is active.
func (r *ChannelRegistry) IsActive(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[name]
	return ok && ch.Active
}

// Register adds an administratively defined channel. At most one channel per
// name may exist.
func (r *ChannelRegistry) Register(ch *Channel) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.channels[ch.Name]; exists {
		return ErrChannelExists
	}
	r.channels[ch.Name] = ch
	return nil
}

// Deactivate flags the channel inactive; existing subscriptions must be
// forced off by the caller before the channel can be considered gone.
func (r *ChannelRegistry) Deactivate(name string, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	ch, ok := r.channels[name]
	if !ok {
		return false
	}
	ch.Active = false
	ch.UpdatedAt = now
	return true
}
