package ui

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send small control messages.
	maxMessageSize = 4096
)

// clientMessage is what the page may send over the socket.
type clientMessage struct {
	Type string `json:"type"`
}

// clientSet tracks connected websocket clients by id.
type clientSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (cs *clientSet) add(id string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.ids == nil {
		cs.ids = make(map[string]struct{})
	}
	cs.ids[id] = struct{}{}
	return len(cs.ids)
}

func (cs *clientSet) remove(id string) int {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	delete(cs.ids, id)
	return len(cs.ids)
}

// Clients is the number of connected websocket clients.
func (s *Server) Clients() int {
	s.clients.mu.Lock()
	defer s.clients.mu.Unlock()
	return len(s.clients.ids)
}

type wsClient struct {
	id     string
	server *Server
	conn   *websocket.Conn
	events chan Event
}

func (s *Server) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range s.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	// Same host is always allowed.
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// handleWebSocket upgrades the connection, sends the current view and then
// streams every published event.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "err", err)
		return
	}

	var events chan Event
	if s.bus != nil {
		events = s.bus.Subscribe()
	}
	c := &wsClient{
		id:     uuid.New().String(),
		server: s,
		conn:   conn,
		events: events,
	}

	n := s.clients.add(c.id)
	s.metrics.UpdateClients(n)
	s.logger.Info("dashboard client connected", "client_id", c.id, "clients", n)

	go c.writePump()
	go c.readPump()
}

func (c *wsClient) close() {
	if c.server.bus != nil && c.events != nil {
		c.server.bus.Unsubscribe(c.events)
	}
	n := c.server.clients.remove(c.id)
	c.server.metrics.UpdateClients(n)
	c.server.logger.Info("dashboard client disconnected", "client_id", c.id, "clients", n)
}

// readPump handles pongs and control messages until the peer goes away.
func (c *wsClient) readPump() {
	defer func() {
		c.close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.Warn("websocket read failed", "client_id", c.id, "err", err)
			}
			return
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.server.logger.Debug("ignoring malformed websocket message", "client_id", c.id, "err", err)
			continue
		}
		switch msg.Type {
		case "refresh":
			c.server.refresher.Refresh()
		case "ping":
		default:
			c.server.logger.Debug("unknown websocket message", "client_id", c.id, "type", msg.Type)
		}
	}
}

// writePump sends the initial view, then bus events and keepalive pings.
func (c *wsClient) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	view := c.server.rc.View()
	if err := c.write(Event{Type: EventView, Timestamp: time.Now(), View: &view}); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-c.events:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(ev); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsClient) write(ev Event) error {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(ev)
}
