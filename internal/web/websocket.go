// internal/web/websocket.go
package web

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"camwatch/internal/metrics"
	"camwatch/internal/monitoring"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type WSMessage struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

type WSClient struct {
	conn *websocket.Conn
	send chan WSMessage
	hub  *Hub
}

// Hub fans orchestrator events out to connected dashboards. Slow clients
// are dropped instead of blocking a check.
type Hub struct {
	mu      sync.Mutex
	clients map[*WSClient]bool
	metrics *metrics.Collector
}

func NewHub(collector *metrics.Collector) *Hub {
	return &Hub{clients: make(map[*WSClient]bool), metrics: collector}
}

func (s *Server) handleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logrus.WithError(err).Error("Failed to upgrade websocket")
		return
	}

	client := &WSClient{
		conn: conn,
		send: make(chan WSMessage, 256),
		hub:  s.hub,
	}
	s.hub.register(client)

	go client.writePump()
	go client.readPump()
}

func (s *Server) publish(ev monitoring.Event) {
	var data interface{} = ev.Record
	if ev.Type == monitoring.EventRun {
		data = ev.Run
	}
	s.hub.Broadcast(WSMessage{Type: ev.Type, Data: data})
}

func (h *Hub) register(c *WSClient) {
	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()
	h.metrics.RecordWebSocketConnection(1)
}

func (h *Hub) unregister(c *WSClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		h.metrics.RecordWebSocketConnection(-1)
	}
}

func (h *Hub) Broadcast(message WSMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client.send <- message:
		default:
			close(client.send)
			delete(h.clients, client)
			h.metrics.RecordWebSocketConnection(-1)
		}
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*WSClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()
	for _, c := range clients {
		h.unregister(c)
	}
}

func (c *WSClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteJSON(message); err != nil {
				c.hub.unregister(c)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.hub.unregister(c)
				return
			}
		}
	}
}

func (c *WSClient) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}
