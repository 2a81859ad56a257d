package gateway

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBootstrap(t *testing.T) {
	r := NewChannelRegistry(time.Now())

	for _, name := range []string{"system", "notifications", "logs", "metrics", "backups"} {
		ch, ok := r.Get(name)
		require.True(t, ok, "bootstrap channel %s missing", name)
		assert.True(t, ch.Active)
		assert.NotEmpty(t, ch.Permissions)
	}
	assert.Len(t, r.List(), 5)
}

func TestChannelAllows(t *testing.T) {
	r := NewChannelRegistry(time.Now())

	logs, _ := r.Get("logs")
	assert.True(t, logs.Allows("admin"))
	assert.False(t, logs.Allows("user"))

	notifications, _ := r.Get("notifications")
	assert.True(t, notifications.Allows("user"))

	open := &Channel{Name: "open"}
	assert.True(t, open.Allows("anyone"))
}

func TestRegistryRegisterRejectsDuplicates(t *testing.T) {
	r := NewChannelRegistry(time.Now())

	err := r.Register(&Channel{Name: "deploys", Active: true})
	require.NoError(t, err)

	err = r.Register(&Channel{Name: "deploys"})
	assert.ErrorIs(t, err, ErrChannelExists)

	err = r.Register(&Channel{Name: "system"})
	assert.ErrorIs(t, err, ErrChannelExists)
}

func TestRegistryDeactivate(t *testing.T) {
	r := NewChannelRegistry(time.Now())

	assert.True(t, r.IsActive("logs"))
	assert.True(t, r.Deactivate("logs", time.Now()))
	assert.False(t, r.IsActive("logs"))

	// The definition survives deactivation.
	_, ok := r.Get("logs")
	assert.True(t, ok)

	assert.False(t, r.Deactivate("nope", time.Now()))
	assert.False(t, r.IsActive("nope"))
}

func TestRegistryListSorted(t *testing.T) {
	r := NewChannelRegistry(time.Now())
	channels := r.List()

	for i := 1; i < len(channels); i++ {
		assert.Less(t, channels[i-1].Name, channels[i].Name)
	}
}
