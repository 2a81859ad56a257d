package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// AuthResult is the verdict returned by the external identity provider.
type AuthResult struct {
	Authenticated bool
	UserID        string
	Role          string
}

// Authenticator is the collaborator interface to the identity provider that
// vets the handshake credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, token, userID, role string) (AuthResult, error)
}

// HandshakeParams carries the credentials and peer details extracted from
// the upgrade request.
type HandshakeParams struct {
	Token      string
	UserID     string
	Role       string
	RemoteAddr string
	UserAgent  string
}

// Hooks are optional callbacks fired on connection lifecycle transitions,
// e.g. to maintain presence state in Redis. They run synchronously and must
// be cheap.
type Hooks struct {
	OnConnect    func(c *Connection)
	OnDisconnect func(c *Connection, reason string)
}

// Config bounds the gateway's in-memory state.
type Config struct {
	MaxConnections      int
	HeartbeatInterval   time.Duration
	HistorySize         int
	EventLogSize        int
	DefaultHistoryLimit int
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.MaxConnections <= 0 {
		out.MaxConnections = 1000
	}
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = 30 * time.Second
	}
	if out.HistorySize <= 0 {
		out.HistorySize = 1000
	}
	if out.EventLogSize <= 0 {
		out.EventLogSize = 10000
	}
	if out.DefaultHistoryLimit <= 0 {
		out.DefaultHistoryLimit = 50
	}
	return out
}

// Gateway owns the messaging state and coordinates every component: it
// authenticates connections, dispatches inbound frames, fans out publishes
// and evicts dead peers. All state is constructed here and passed by
// reference; there is no package-level mutable state.
type Gateway struct {
	cfg       Config
	clock     clock.Clock
	auth      Authenticator
	logger    *slog.Logger
	hooks     Hooks
	limiter   RateLimiter
	eventSink EventSink

	registry *ChannelRegistry
	conns    *ConnectionTable
	subs     *SubscriptionIndex
	history  *HistoryRing
	events   *EventLog
	metrics  *Metrics

	pubMu    sync.Mutex
	pubLocks map[string]*sync.Mutex
}

// Option customizes gateway construction.
type Option func(*Gateway)

// WithClock injects a clock, used by tests to drive liveness and rate-limit
// windows deterministically.
func WithClock(clk clock.Clock) Option {
	return func(g *Gateway) { g.clock = clk }
}

// WithRateLimiter swaps the in-memory limiter, e.g. for the Redis-backed one
// in multi-instance deployments.
func WithRateLimiter(l RateLimiter) Option {
	return func(g *Gateway) { g.limiter = l }
}

// WithEventSink mirrors the event log to an external sink.
func WithEventSink(sink EventSink) Option {
	return func(g *Gateway) { g.eventSink = sink }
}

// WithHooks registers lifecycle callbacks.
func WithHooks(hooks Hooks) Option {
	return func(g *Gateway) { g.hooks = hooks }
}

// WithLogger overrides the default logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

func New(cfg Config, auth Authenticator, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:    cfg.withDefaults(),
		auth:   auth,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.clock == nil {
		g.clock = clock.New()
	}
	if g.limiter == nil {
		g.limiter = NewSlidingWindowLimiter(g.clock)
	}
	g.registry = NewChannelRegistry(g.clock.Now())
	g.conns = NewConnectionTable()
	g.subs = NewSubscriptionIndex()
	g.history = NewHistoryRing(g.cfg.HistorySize)
	g.events = NewEventLog(g.cfg.EventLogSize, g.eventSink)
	g.metrics = NewMetrics()
	g.pubLocks = make(map[string]*sync.Mutex)
	return g
}

func (g *Gateway) Registry() *ChannelRegistry { return g.registry }
func (g *Gateway) Events() *EventLog          { return g.events }
func (g *Gateway) Metrics() *Metrics          { return g.metrics }
func (g *Gateway) ConnectionCount() int       { return g.conns.Len() }

// SubscriberCount returns the live subscriber count for a channel.
func (g *Gateway) SubscriberCount(channel string) int {
	return g.subs.CountForChannel(channel)
}

// AcceptConnection runs the capacity check and authentication handshake for
// a freshly upgraded transport. On success the connection is registered and
// welcomed; on failure the transport is closed with a status code the client
// can branch on and nothing is added to gateway state.
func (g *Gateway) AcceptConnection(ctx context.Context, transport Transport, params HandshakeParams) (*Connection, error) {
	if g.conns.Len() >= g.cfg.MaxConnections {
		rejectTransport(transport, CloseCapacityExceeded, "connection capacity exceeded")
		g.logger.Warn("Connection rejected, gateway at capacity", "remoteAddr", params.RemoteAddr)
		return nil, ErrGatewayFull
	}

	result, err := g.auth.Authenticate(ctx, params.Token, params.UserID, params.Role)
	if err != nil || !result.Authenticated {
		rejectTransport(transport, CloseAuthenticationFailed, "authentication failed")
		g.logger.Info("Connection rejected, authentication failed",
			"remoteAddr", params.RemoteAddr, "userID", params.UserID, "error", err)
		return nil, ErrAuthenticationFailed
	}

	now := g.clock.Now()
	conn := NewConnection(transport, Identity{
		UserID: result.UserID,
		Role:   result.Role,
		Token:  params.Token,
	}, params.RemoteAddr, params.UserAgent, now)
	// The early capacity check races against concurrent handshakes; the
	// insert itself is the authoritative gate.
	if !g.conns.AddWithin(conn, g.cfg.MaxConnections) {
		rejectTransport(transport, CloseCapacityExceeded, "connection capacity exceeded")
		g.logger.Warn("Connection rejected, gateway at capacity", "remoteAddr", params.RemoteAddr)
		return nil, ErrGatewayFull
	}
	g.metrics.Connections.Add(1)

	g.events.Record(Event{
		Type:         EventConnection,
		ConnectionID: conn.ID,
		UserID:       conn.UserID(),
		Detail:       params.RemoteAddr,
	}, now)

	if g.hooks.OnConnect != nil {
		g.hooks.OnConnect(conn)
	}

	g.logger.Info("Connection established",
		"connectionID", conn.ID, "userID", conn.UserID(), "role", conn.Role(), "remoteAddr", params.RemoteAddr)

	welcome := NewNotification(map[string]any{
		"clientId": conn.ID,
		"userId":   conn.UserID(),
		"role":     conn.Role(),
		"channels": g.visibleChannelNames(conn.Role()),
	})
	if err := g.send(conn, welcome); err != nil {
		g.logger.Debug("Failed to send welcome", "connectionID", conn.ID, "error", err)
	}
	return conn, nil
}

func rejectTransport(transport Transport, code int, reason string) {
	c := &Connection{transport: transport, metadata: map[string]any{}}
	c.Close(code, reason)
}

// Disconnect tears down the connection, removing it and all its
// subscriptions exactly once.
func (g *Gateway) Disconnect(conn *Connection, reason string, closeCode int) {
	if !g.conns.Remove(conn.ID) {
		return
	}
	conn.Close(closeCode, reason)
	removed := g.subs.RemoveConnection(conn.ID)
	g.limiter.Forget(conn.ID)
	g.metrics.Disconnections.Add(1)

	now := g.clock.Now()
	g.events.Record(Event{
		Type:         EventDisconnection,
		ConnectionID: conn.ID,
		UserID:       conn.UserID(),
		Detail:       reason,
	}, now)

	if g.hooks.OnDisconnect != nil {
		g.hooks.OnDisconnect(conn, reason)
	}

	g.logger.Info("Connection closed",
		"connectionID", conn.ID, "userID", conn.UserID(), "reason", reason, "subscriptions", len(removed))
}

// Dispatch decodes and routes one inbound frame. A frame that fails to parse
// or validate only produces an error frame back to the sender; every
// accepted frame ends in exactly one response to the sender.
func (g *Gateway) Dispatch(conn *Connection, raw []byte) {
	start := g.clock.Now()
	g.metrics.MessagesReceived.Add(1)

	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.logger.Debug("Failed to decode frame", "connectionID", conn.ID, "error", err)
		g.sendError(conn, "", CodeInvalidMessage, "invalid message format")
		return
	}
	if err := msg.Validate(); err != nil {
		code := CodeInvalidMessage
		if !msg.Type.IsValid() {
			code = CodeUnknownType
		}
		g.sendError(conn, msg.ID, code, fmt.Sprintf("invalid message: %v", err))
		return
	}

	conn.Touch(start)

	switch msg.Type {
	case MessageTypeSubscribe:
		g.handleSubscribe(conn, &msg)
	case MessageTypeUnsubscribe:
		g.handleUnsubscribe(conn, &msg)
	case MessageTypePublish:
		g.handlePublish(conn, &msg)
	case MessageTypePing:
		g.send(conn, NewPong(msg.ID))
	case MessageTypePong:
		conn.ClearAwaitingPong()
	case MessageTypeGetChannels:
		g.handleGetChannels(conn, &msg)
	case MessageTypeGetSubscriptions:
		g.handleGetSubscriptions(conn, &msg)
	case MessageTypeGetHistory:
		g.handleGetHistory(conn, &msg)
	case MessageTypeRequest:
		g.handleRequest(conn, &msg)
	default:
		g.sendError(conn, msg.ID, CodeUnknownType,
			fmt.Sprintf("unsupported message type: %s", msg.Type))
	}

	g.metrics.ObserveDispatch(g.clock.Since(start))
}

// checkChannelAccess runs the shared validate-then-mutate preamble for
// subscribe, publish and history: existence, activity, then permission.
func (g *Gateway) checkChannelAccess(conn *Connection, name string) (*Channel, string, string) {
	channel, ok := g.registry.Get(name)
	if !ok {
		return nil, CodeChannelNotFound, fmt.Sprintf("Channel not found: %s", name)
	}
	if !channel.Active {
		return nil, CodeChannelInactive, fmt.Sprintf("Channel inactive: %s", name)
	}
	if !channel.Allows(conn.Role()) {
		g.events.Record(Event{
			Type:         EventPermissionDenied,
			ConnectionID: conn.ID,
			UserID:       conn.UserID(),
			Channel:      name,
		}, g.clock.Now())
		return nil, CodePermissionDenied, fmt.Sprintf("Permission denied for channel: %s", name)
	}
	return channel, "", ""
}

func (g *Gateway) handleSubscribe(conn *Connection, msg *Message) {
	channel, code, detail := g.checkChannelAccess(conn, msg.Channel)
	if channel == nil {
		g.sendError(conn, msg.ID, code, detail)
		return
	}
	if !g.limiter.CheckAndConsume(conn.ID, channel) {
		g.recordRateLimited(conn, channel.Name)
		g.sendError(conn, msg.ID, CodeRateLimited,
			fmt.Sprintf("Rate limit exceeded for channel: %s", channel.Name))
		return
	}

	now := g.clock.Now()
	sub, err := g.subs.Add(conn.ID, channel.Name, normalizeFilter(msg.Filters), channel.MaxSubscribers, now)
	if err != nil {
		g.sendError(conn, msg.ID, CodeChannelFull,
			fmt.Sprintf("Channel full: %s", channel.Name))
		return
	}

	g.events.Record(Event{
		Type:         EventSubscription,
		ConnectionID: conn.ID,
		UserID:       conn.UserID(),
		Channel:      channel.Name,
	}, now)
	g.logger.Debug("Subscribed", "connectionID", conn.ID, "channel", channel.Name, "subscriptionID", sub.ID)

	g.send(conn, NewResponse(msg.ID, map[string]any{
		"subscribed": true,
		"channel":    channel.Name,
	}))
}

func (g *Gateway) handleUnsubscribe(conn *Connection, msg *Message) {
	if msg.Channel == "" {
		g.sendError(conn, msg.ID, CodeMissingChannel, "channel is required")
		return
	}
	// Idempotent: the ack is the same whether or not a subscription existed,
	// but only an actual removal is logged.
	if _, removed := g.subs.Remove(conn.ID, msg.Channel); removed {
		g.events.Record(Event{
			Type:         EventUnsubscription,
			ConnectionID: conn.ID,
			UserID:       conn.UserID(),
			Channel:      msg.Channel,
		}, g.clock.Now())
		g.logger.Debug("Unsubscribed", "connectionID", conn.ID, "channel", msg.Channel)
	}
	g.send(conn, NewResponse(msg.ID, map[string]any{
		"unsubscribed": true,
		"channel":      msg.Channel,
	}))
}

func (g *Gateway) handlePublish(conn *Connection, msg *Message) {
	channel, code, detail := g.checkChannelAccess(conn, msg.Channel)
	if channel == nil {
		g.sendError(conn, msg.ID, code, detail)
		return
	}
	if !g.limiter.CheckAndConsume(conn.ID, channel) {
		g.recordRateLimited(conn, channel.Name)
		g.sendError(conn, msg.ID, CodeRateLimited,
			fmt.Sprintf("Rate limit exceeded for channel: %s", channel.Name))
		return
	}

	delivered := g.broadcast(channel, MessageTypeMessage, conn.ID, msg.Data)

	g.send(conn, NewResponse(msg.ID, map[string]any{
		"published":  true,
		"channel":    channel.Name,
		"recipients": delivered,
	}))
}

// broadcast stamps, retains and fans out one message to the channel's
// current subscribers. Fan-out is best effort per recipient: a failed or
// filtered delivery never affects the others. Returns the delivery count.
//
// Publishes to the same channel are serialized from history append through
// delivery, so every subscriber observes them in the order history records
// them even when publishers run on separate read loops.
func (g *Gateway) broadcast(channel *Channel, msgType MessageType, from string, payload map[string]any) int {
	lock := g.publishLock(channel.Name)
	lock.Lock()
	defer lock.Unlock()

	now := g.clock.Now()
	out := NewBroadcast(msgType, channel.Name, from, payload, now)
	g.history.Append(out)
	g.metrics.Broadcasts.Add(1)

	delivered := 0
	for _, sub := range g.subs.SubscribersOf(channel.Name) {
		recipient, ok := g.conns.Get(sub.ConnectionID)
		if !ok || recipient.IsClosed() {
			continue
		}
		if !sub.Matches(payload) {
			continue
		}
		// Per-recipient budget, independent from the sender's.
		if !g.limiter.CheckAndConsume(recipient.ID, channel) {
			g.recordRateLimited(recipient, channel.Name)
			continue
		}
		if err := g.send(recipient, out); err != nil {
			g.logger.Warn("Broadcast delivery failed",
				"connectionID", recipient.ID, "channel", channel.Name, "error", err)
			g.events.Record(Event{
				Type:         EventError,
				ConnectionID: recipient.ID,
				Channel:      channel.Name,
				Detail:       "delivery failed: " + err.Error(),
			}, now)
			g.Disconnect(recipient, "transport write failed", CloseInternalError)
			continue
		}
		sub.MarkDelivered(now)
		delivered++
	}
	return delivered
}

func (g *Gateway) publishLock(channel string) *sync.Mutex {
	g.pubMu.Lock()
	defer g.pubMu.Unlock()
	lock := g.pubLocks[channel]
	if lock == nil {
		lock = &sync.Mutex{}
		g.pubLocks[channel] = lock
	}
	return lock
}

func (g *Gateway) handleGetChannels(conn *Connection, msg *Message) {
	g.send(conn, NewResponse(msg.ID, map[string]any{
		"channels": g.channelViews(conn.Role()),
	}))
}

func (g *Gateway) handleGetSubscriptions(conn *Connection, msg *Message) {
	subs := g.subs.ForConnection(conn.ID)
	views := make([]map[string]any, 0, len(subs))
	for _, sub := range subs {
		views = append(views, map[string]any{
			"id":        sub.ID,
			"channel":   sub.Channel,
			"filters":   sub.Filter(),
			"createdAt": sub.CreatedAt.UnixMilli(),
			"delivered": sub.Delivered(),
		})
	}
	g.send(conn, NewResponse(msg.ID, map[string]any{
		"subscriptions": views,
	}))
}

func (g *Gateway) handleGetHistory(conn *Connection, msg *Message) {
	name, _ := msg.Data["channel"].(string)
	if name == "" {
		g.sendError(conn, msg.ID, CodeMissingChannel, "data.channel is required")
		return
	}
	channel, code, detail := g.checkChannelAccess(conn, name)
	if channel == nil {
		g.sendError(conn, msg.ID, code, detail)
		return
	}
	limit := g.cfg.DefaultHistoryLimit
	if v, ok := msg.Data["limit"].(float64); ok && v > 0 {
		limit = int(v)
	}
	entries := g.history.Recent(channel.Name, limit)
	g.send(conn, NewResponse(msg.ID, map[string]any{
		"channel":  channel.Name,
		"messages": entries,
	}))
}

// handleRequest routes a generic request frame by data.action to the same
// handlers as the dedicated query types, answering with a response frame.
func (g *Gateway) handleRequest(conn *Connection, msg *Message) {
	action, _ := msg.Data["action"].(string)
	switch action {
	case "channels":
		g.handleGetChannels(conn, msg)
	case "subscriptions":
		g.handleGetSubscriptions(conn, msg)
	case "history":
		g.handleGetHistory(conn, msg)
	case "stats":
		g.send(conn, NewResponse(msg.ID, g.Stats()))
	default:
		g.sendError(conn, msg.ID, CodeUnknownAction,
			fmt.Sprintf("unknown request action: %s", action))
	}
}

// Stats reports gateway health for the stats action and the admin endpoint.
func (g *Gateway) Stats() map[string]any {
	stats := g.metrics.Snapshot()
	stats["activeConnections"] = g.conns.Len()
	stats["events"] = g.events.Len()
	stats["historyEntries"] = g.history.Len()
	return stats
}

// SweepLiveness evicts connections that never answered the previous ping,
// then pings the rest.
func (g *Gateway) SweepLiveness() {
	for _, conn := range g.conns.All() {
		if conn.AwaitingPong() {
			g.Disconnect(conn, "liveness timeout", CloseNormalShutdown)
			continue
		}
		conn.MarkAwaitingPong()
		if err := g.send(conn, NewPing()); err != nil {
			g.logger.Debug("Heartbeat ping failed", "connectionID", conn.ID, "error", err)
			g.Disconnect(conn, "transport write failed", CloseInternalError)
		}
	}
}

// Shutdown closes every connection with the normal-shutdown status.
func (g *Gateway) Shutdown() {
	for _, conn := range g.conns.All() {
		g.Disconnect(conn, "gateway shutting down", CloseNormalShutdown)
	}
	g.logger.Info("Gateway shut down")
}

func (g *Gateway) send(conn *Connection, msg *Message) error {
	err := conn.Send(msg)
	if err == nil {
		g.metrics.MessagesSent.Add(1)
	}
	return err
}

func (g *Gateway) sendError(conn *Connection, responseTo, code, message string) {
	g.metrics.Errors.Add(1)
	if err := g.send(conn, NewErrorMessage(responseTo, code, message)); err != nil {
		g.logger.Debug("Failed to send error frame", "connectionID", conn.ID, "error", err)
	}
}

func (g *Gateway) recordRateLimited(conn *Connection, channel string) {
	g.metrics.RateLimited.Add(1)
	g.events.Record(Event{
		Type:         EventRateLimited,
		ConnectionID: conn.ID,
		UserID:       conn.UserID(),
		Channel:      channel,
	}, g.clock.Now())
}

func (g *Gateway) visibleChannelNames(role string) []string {
	channels := g.registry.List()
	names := make([]string, 0, len(channels))
	for _, ch := range channels {
		if ch.Active && ch.Allows(role) {
			names = append(names, ch.Name)
		}
	}
	return names
}

func (g *Gateway) channelViews(role string) []map[string]any {
	channels := g.registry.List()
	views := make([]map[string]any, 0, len(channels))
	for _, ch := range channels {
		if !ch.Allows(role) {
			continue
		}
		views = append(views, map[string]any{
			"name":        ch.Name,
			"description": ch.Description,
			"category":    ch.Category,
			"subscribers": g.subs.CountForChannel(ch.Name),
			"active":      ch.Active,
		})
	}
	return views
}

func normalizeFilter(filters map[string]any) map[string]any {
	if len(filters) == 0 {
		return nil
	}
	return filters
}
