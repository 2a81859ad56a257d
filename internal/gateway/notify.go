package gateway

import "fmt"

// Server-originated publish wrappers used by the provisioning and monitoring
// subsystems. Each is a thin wrapper over broadcast against a fixed channel;
// there is no sender connection, so sender permission and sender budget
// checks do not apply, but per-recipient filters and budgets still do.

func (g *Gateway) systemPublish(channelName string, msgType MessageType, payload map[string]any) (int, error) {
	channel, ok := g.registry.Get(channelName)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrChannelNotFound, channelName)
	}
	if !channel.Active {
		return 0, fmt.Errorf("%w: %s", ErrChannelInactive, channelName)
	}
	return g.broadcast(channel, msgType, "", payload), nil
}

// SendSystemNotification broadcasts a service state change on the system
// channel.
func (g *Gateway) SendSystemNotification(payload map[string]any) (int, error) {
	return g.systemPublish("system", MessageTypeSystem, payload)
}

// SendLogMessage broadcasts a log line on the logs channel.
func (g *Gateway) SendLogMessage(payload map[string]any) (int, error) {
	return g.systemPublish("logs", MessageTypeLog, payload)
}

// SendMetrics broadcasts a metrics sample on the metrics channel.
func (g *Gateway) SendMetrics(payload map[string]any) (int, error) {
	return g.systemPublish("metrics", MessageTypeMetrics, payload)
}

// SendBackupStatus broadcasts a backup job status event on the backups
// channel.
func (g *Gateway) SendBackupStatus(payload map[string]any) (int, error) {
	return g.systemPublish("backups", MessageTypeBackup, payload)
}
