package gateway

import (
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/gorilla/websocket"
)

// maxFrameSize bounds inbound frames from a peer.
const maxFrameSize = 64 * 1024

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		if customOrigins := os.Getenv("ALLOWED_ORIGINS"); customOrigins != "" {
			for _, allowed := range strings.Split(customOrigins, ",") {
				if origin == strings.TrimSpace(allowed) {
					return true
				}
			}
		}
		return strings.Contains(origin, "localhost") || strings.Contains(origin, "127.0.0.1")
	},
}

// handshakeParams extracts credentials from the upgrade request. Query
// parameters take precedence; headers are the fallback for clients that
// cannot set a query string.
func handshakeParams(r *http.Request) HandshakeParams {
	q := r.URL.Query()
	token := q.Get("token")
	if token == "" {
		token = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	}
	userID := q.Get("userId")
	if userID == "" {
		userID = r.Header.Get("X-User-Id")
	}
	role := q.Get("role")
	if role == "" {
		role = r.Header.Get("X-User-Role")
	}
	return HandshakeParams{
		Token:      token,
		UserID:     userID,
		Role:       role,
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
}

// ServeWS upgrades the request, runs the handshake and pumps inbound frames
// into Dispatch until the peer goes away.
func (g *Gateway) ServeWS(w http.ResponseWriter, r *http.Request) {
	wsConn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade WebSocket connection", "remoteAddr", r.RemoteAddr, "error", err)
		return
	}

	conn, err := g.AcceptConnection(r.Context(), wsConn, handshakeParams(r))
	if err != nil {
		// AcceptConnection already closed the transport with a status code.
		return
	}

	go g.readLoop(conn, wsConn)
}

func (g *Gateway) readLoop(conn *Connection, wsConn *websocket.Conn) {
	defer g.Disconnect(conn, "transport closed", CloseNormalShutdown)

	wsConn.SetReadLimit(maxFrameSize)
	for {
		_, raw, err := wsConn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.logger.Debug("WebSocket read error", "connectionID", conn.ID, "error", err)
			}
			return
		}
		g.Dispatch(conn, raw)
	}
}
