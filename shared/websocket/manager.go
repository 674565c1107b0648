package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/aaronwang/lot-auction/shared/broadcast"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Source hands out per-lot event subscriptions. *broadcast.Hub satisfies it,
// and so does the auction service.
type Source interface {
	Subscribe(lotID string) *broadcast.Subscription
	Unsubscribe(sub *broadcast.Subscription)
}

// Manager bridges websocket connections to lot subscriptions
type Manager struct {
	source Source
	logger *zap.Logger

	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // lotID -> connected clients
}

// Client represents a WebSocket client watching one lot
type Client struct {
	ID    string
	LotID string
	Conn  *websocket.Conn

	sub  *broadcast.Subscription
	once sync.Once
}

// Welcome is the first frame sent on every connection
type Welcome struct {
	Type     string `json:"type"`
	LotID    string `json:"lot_id"`
	ClientID string `json:"client_id"`
}

// NewManager creates a new WebSocket manager
func NewManager(source Source, logger *zap.Logger) *Manager {
	return &Manager{
		source:  source,
		logger:  logger,
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Serve subscribes conn to lotID and pumps events to it until either side
// goes away. It returns immediately; the pumps run in their own goroutines.
func (m *Manager) Serve(conn *websocket.Conn, lotID string) *Client {
	client := &Client{
		ID:    uuid.New().String(),
		LotID: lotID,
		Conn:  conn,
		sub:   m.source.Subscribe(lotID),
	}

	m.mu.Lock()
	set, ok := m.clients[lotID]
	if !ok {
		set = make(map[*Client]struct{})
		m.clients[lotID] = set
	}
	set[client] = struct{}{}
	m.mu.Unlock()

	m.logger.Debug("Client subscribed", zap.String("client_id", client.ID), zap.String("lot_id", lotID))

	go m.writePump(client)
	go m.readPump(client)
	return client
}

// SubscriberCount returns the number of clients watching a lot
func (m *Manager) SubscriberCount(lotID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[lotID])
}

// release drops the client's subscription and closes the connection. Safe to
// call from both pumps.
func (m *Manager) release(c *Client) {
	c.once.Do(func() {
		m.source.Unsubscribe(c.sub)

		m.mu.Lock()
		if set, ok := m.clients[c.LotID]; ok {
			delete(set, c)
			if len(set) == 0 {
				delete(m.clients, c.LotID)
			}
		}
		m.mu.Unlock()

		c.Conn.Close()
		m.logger.Debug("Client unsubscribed", zap.String("client_id", c.ID), zap.String("lot_id", c.LotID))
	})
}

// writePump forwards lot events to the connection. A closed subscription
// means the client was evicted as too slow or the lot was deleted.
func (m *Manager) writePump(c *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		m.release(c)
	}()

	if err := m.writeJSON(c, Welcome{Type: "connected", LotID: c.LotID, ClientID: c.ID}); err != nil {
		return
	}

	for {
		select {
		case event, ok := <-c.sub.C:
			if !ok {
				c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.Conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "subscription ended"))
				return
			}
			if err := m.writeJSON(c, event); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (m *Manager) writeJSON(c *Client, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		m.logger.Warn("Failed to encode frame", zap.String("lot_id", c.LotID), zap.Error(err))
		return err
	}
	c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteMessage(websocket.TextMessage, payload)
}

// readPump only watches for disconnects and keeps the read deadline fresh;
// clients have nothing to say after connecting.
func (m *Manager) readPump(c *Client) {
	defer m.release(c)

	c.Conn.SetReadLimit(512)
	c.Conn.SetReadDeadline(time.Now().Add(pongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				m.logger.Debug("WebSocket error", zap.String("client_id", c.ID), zap.Error(err))
			}
			return
		}
	}
}

var _ Source = (*broadcast.Hub)(nil)
