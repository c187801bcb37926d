// Package live pushes "campaign changed" notifications to connected player
// views over WebSocket. Events are advisory; clients re-fetch over REST.
package live

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// EventTypeCampaignChanged is the only event type currently sent.
const EventTypeCampaignChanged = "campaign.changed"

// Resources named in events.
const (
	ResourceCampaign  = "campaign"
	ResourceNode      = "node"
	ResourceEdge      = "edge"
	ResourceEncounter = "encounter"
	ResourceEnemy     = "enemy"
	ResourceLoot      = "loot"
	ResourceDrawing   = "drawing"
)

// Actions named in events.
const (
	ActionCreated = "created"
	ActionUpdated = "updated"
	ActionDeleted = "deleted"
	ActionMoved   = "moved"
)

// Event is the JSON frame sent to subscribers.
type Event struct {
	Type       string `json:"type"`
	CampaignID string `json:"campaignId"`
	Resource   string `json:"resource"`
	Action     string `json:"action"`
}

// Publisher announces campaign changes. Implementations must not block.
type Publisher interface {
	Publish(campaignID, resource, action string)
}

// Connection tuning.
const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 16
)

type subscriber struct {
	conn       *websocket.Conn
	campaignID string
	send       chan []byte
}

// Hub tracks subscribers per campaign. Each connection has its own writer
// goroutine, so a slow client never blocks a publisher; one whose buffer
// fills up is disconnected.
type Hub struct {
	mu          sync.Mutex
	subscribers map[string]map[*subscriber]struct{}
	metrics     *Metrics
	logger      *slog.Logger
}

// NewHub creates a new Hub. metrics and logger may be nil.
func NewHub(metrics *Metrics, logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		subscribers: make(map[string]map[*subscriber]struct{}),
		metrics:     metrics,
		logger:      logger,
	}
}

// Serve subscribes conn to campaignID and blocks until the client goes away.
// The connection is closed on return.
func (h *Hub) Serve(conn *websocket.Conn, campaignID string) {
	s := &subscriber{
		conn:       conn,
		campaignID: campaignID,
		send:       make(chan []byte, sendBuffer),
	}
	h.subscribe(s)
	defer h.unsubscribe(s)

	go h.writePump(s)
	h.readPump(s)
}

// Publish sends a campaign.changed event to every subscriber of campaignID.
func (h *Hub) Publish(campaignID, resource, action string) {
	data, err := json.Marshal(Event{
		Type:       EventTypeCampaignChanged,
		CampaignID: campaignID,
		Resource:   resource,
		Action:     action,
	})
	if err != nil {
		h.logger.Error("failed to marshal live event", slog.String("error", err.Error()))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.subscribers[campaignID]
	if len(subs) == 0 {
		return
	}
	h.metrics.incEvents(resource, action)
	for s := range subs {
		select {
		case s.send <- data:
		default:
			h.logger.Warn("dropping slow live subscriber", slog.String("campaign_id", campaignID))
			h.removeLocked(s)
		}
	}
}

// ConnectionCount returns the number of subscribers of a campaign.
func (h *Hub) ConnectionCount(campaignID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers[campaignID])
}

// Close disconnects every subscriber. Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, subs := range h.subscribers {
		for s := range subs {
			h.removeLocked(s)
		}
	}
}

func (h *Hub) subscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscribers[s.campaignID] == nil {
		h.subscribers[s.campaignID] = make(map[*subscriber]struct{})
	}
	h.subscribers[s.campaignID][s] = struct{}{}
	h.metrics.incConnections()
}

func (h *Hub) unsubscribe(s *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(s)
}

// removeLocked is a no-op for a subscriber that is already gone, so the
// send channel is closed exactly once.
func (h *Hub) removeLocked(s *subscriber) {
	subs, ok := h.subscribers[s.campaignID]
	if !ok {
		return
	}
	if _, ok := subs[s]; !ok {
		return
	}
	delete(subs, s)
	if len(subs) == 0 {
		delete(h.subscribers, s.campaignID)
	}
	close(s.send)
	h.metrics.decConnections()
}

func (h *Hub) writePump(s *subscriber) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump discards client frames; reading is how disconnects are noticed.
func (h *Hub) readPump(s *subscriber) {
	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("live connection closed unexpectedly",
					slog.String("error", err.Error()),
					slog.String("campaign_id", s.campaignID),
				)
			}
			return
		}
	}
}
