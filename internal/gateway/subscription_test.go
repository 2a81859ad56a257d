package gateway

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubscriptionMatches(t *testing.T) {
	sub := &Subscription{filter: map[string]any{"region": "us"}}

	assert.True(t, sub.Matches(map[string]any{"region": "us", "value": 1.0}))
	assert.False(t, sub.Matches(map[string]any{"region": "eu"}))
	assert.False(t, sub.Matches(map[string]any{"value": 1.0}))
	assert.False(t, sub.Matches(nil))
}

func TestSubscriptionMatchesEmptyFilter(t *testing.T) {
	sub := &Subscription{}
	assert.True(t, sub.Matches(nil))
	assert.True(t, sub.Matches(map[string]any{"anything": "goes"}))
}

func TestSubscriptionMatchesMultiplePredicates(t *testing.T) {
	sub := &Subscription{filter: map[string]any{"region": "us", "tier": "prod"}}

	assert.True(t, sub.Matches(map[string]any{"region": "us", "tier": "prod", "x": 1.0}))
	assert.False(t, sub.Matches(map[string]any{"region": "us", "tier": "staging"}))
	assert.False(t, sub.Matches(map[string]any{"region": "us"}))
}

func TestIndexAddAndRemove(t *testing.T) {
	idx := NewSubscriptionIndex()
	now := time.Now()

	sub, err := idx.Add("conn-1", "metrics", nil, 10, now)
	require.NoError(t, err)
	assert.Equal(t, "conn-1", sub.ConnectionID)
	assert.Equal(t, 1, idx.CountForChannel("metrics"))

	removed, ok := idx.Remove("conn-1", "metrics")
	assert.True(t, ok)
	assert.Equal(t, sub.ID, removed.ID)
	assert.Equal(t, 0, idx.CountForChannel("metrics"))
}

func TestIndexRemoveIsIdempotent(t *testing.T) {
	idx := NewSubscriptionIndex()

	_, ok := idx.Remove("conn-1", "metrics")
	assert.False(t, ok)

	_, err := idx.Add("conn-1", "metrics", nil, 10, time.Now())
	require.NoError(t, err)

	_, ok = idx.Remove("conn-1", "metrics")
	assert.True(t, ok)
	_, ok = idx.Remove("conn-1", "metrics")
	assert.False(t, ok)
}

func TestIndexResubscribeReplacesFilter(t *testing.T) {
	idx := NewSubscriptionIndex()
	now := time.Now()

	first, err := idx.Add("conn-1", "metrics", map[string]any{"region": "us"}, 10, now)
	require.NoError(t, err)

	second, err := idx.Add("conn-1", "metrics", map[string]any{"region": "eu"}, 10, now)
	require.NoError(t, err)

	// Last write wins; no duplicate subscription is created.
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, idx.CountForChannel("metrics"))
	assert.Equal(t, map[string]any{"region": "eu"}, second.Filter())
}

func TestIndexConcurrentResubscribeAndMatch(t *testing.T) {
	idx := NewSubscriptionIndex()
	sub, err := idx.Add("conn-1", "metrics", map[string]any{"region": "us"}, 0, time.Now())
	require.NoError(t, err)

	// Filter replacement must be safe against a broadcast matching on a
	// snapshot of the same subscription.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 1000; i++ {
			region := "us"
			if i%2 == 1 {
				region = "eu"
			}
			idx.Add("conn-1", "metrics", map[string]any{"region": region}, 0, time.Now())
		}
	}()
	for i := 0; i < 1000; i++ {
		sub.Matches(map[string]any{"region": "us"})
	}
	<-done
}

func TestIndexEnforcesSubscriberCap(t *testing.T) {
	idx := NewSubscriptionIndex()
	now := time.Now()

	_, err := idx.Add("conn-1", "metrics", nil, 2, now)
	require.NoError(t, err)
	_, err = idx.Add("conn-2", "metrics", nil, 2, now)
	require.NoError(t, err)

	_, err = idx.Add("conn-3", "metrics", nil, 2, now)
	assert.ErrorIs(t, err, ErrChannelFull)
	assert.Equal(t, 2, idx.CountForChannel("metrics"))

	// Re-subscribing an existing member never counts against the cap.
	_, err = idx.Add("conn-2", "metrics", map[string]any{"k": "v"}, 2, now)
	assert.NoError(t, err)
}

func TestIndexConcurrentSubscribeNeverOvershootsCap(t *testing.T) {
	idx := NewSubscriptionIndex()
	const maxSubs = 5

	done := make(chan struct{})
	for i := 0; i < 50; i++ {
		go func(n int) {
			defer func() { done <- struct{}{} }()
			idx.Add(fmt.Sprintf("conn-%d", n), "metrics", nil, maxSubs, time.Now())
		}(i)
	}
	for i := 0; i < 50; i++ {
		<-done
	}
	assert.Equal(t, maxSubs, idx.CountForChannel("metrics"))
}

func TestIndexRemoveConnection(t *testing.T) {
	idx := NewSubscriptionIndex()
	now := time.Now()

	_, err := idx.Add("conn-1", "metrics", nil, 0, now)
	require.NoError(t, err)
	_, err = idx.Add("conn-1", "logs", nil, 0, now)
	require.NoError(t, err)
	_, err = idx.Add("conn-2", "metrics", nil, 0, now)
	require.NoError(t, err)

	removed := idx.RemoveConnection("conn-1")
	assert.Len(t, removed, 2)
	assert.Equal(t, 1, idx.CountForChannel("metrics"))
	assert.Equal(t, 0, idx.CountForChannel("logs"))
	assert.Empty(t, idx.ForConnection("conn-1"))

	assert.Nil(t, idx.RemoveConnection("conn-1"))
}
