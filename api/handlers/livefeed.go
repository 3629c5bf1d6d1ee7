package handlers

import (
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/fleetline/voice-dispatch-api/models"
)

// WebSocket upgrader
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Adjust CORS as needed, e.g., check r.Header.Get("Origin")
	},
}

// LiveFeed fans applied status transitions out to connected dashboard
// clients so the call board updates without polling.
type LiveFeed struct {
	clients map[*websocket.Conn]struct{}
	mutex   sync.Mutex
}

// NewLiveFeed returns an empty hub.
func NewLiveFeed() *LiveFeed {
	return &LiveFeed{clients: make(map[*websocket.Conn]struct{})}
}

// LiveHandler upgrades the connection and parks it in the hub until the
// client goes away.
func (f *LiveFeed) LiveHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		zap.S().Errorw("websocket upgrade failed", "error", err)
		return
	}

	f.mutex.Lock()
	f.clients[conn] = struct{}{}
	f.mutex.Unlock()
	zap.S().Debugw("live feed client connected", "remote", conn.RemoteAddr())

	// keep the connection alive until the client drops it
	for {
		if _, _, err := conn.NextReader(); err != nil {
			break
		}
	}

	f.mutex.Lock()
	delete(f.clients, conn)
	f.mutex.Unlock()
	conn.Close()
	zap.S().Debugw("live feed client disconnected", "remote", conn.RemoteAddr())
}

// BroadcastStatus pushes one status update to every connected client.
// Safe to call on a nil hub, which keeps the webhook path decoupled
// from whether the feed is wired up.
func (f *LiveFeed) BroadcastStatus(callID string, status models.CallStatus, updatedAt time.Time) {
	if f == nil {
		return
	}

	f.mutex.Lock()
	defer f.mutex.Unlock()

	for conn := range f.clients {
		err := conn.WriteJSON(map[string]interface{}{
			"call_id":    callID,
			"status":     status,
			"updated_at": updatedAt,
		})
		if err != nil {
			zap.S().Warnw("dropping live feed client", "error", err)
			delete(f.clients, conn)
			conn.Close()
		}
	}
}
