// Package devserver implements the Update Channel Server of spec.md §4.7:
// a long-lived bidirectional message transport that accepts client
// subscriptions and broadcasts UpdatePackets (and error overlays) to every
// connected browser.
package devserver

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/bcentdev/soku/internal/hmr"
	"github.com/gorilla/websocket"
)

// clientQueueSize bounds how many packets a slow client can fall behind by
// before the server starts dropping its oldest queued update.
const clientQueueSize = 32

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn     *websocket.Conn
	send     chan hmr.UpdatePacket
	seq      uint64 // last acked seq, updated from client "ack" messages
	mu       sync.Mutex
	close    chan struct{}
	lastKind hmr.UpdateKind
	lastMods string
}

// Server is the Update Channel Server: single-writer dispatcher, many
// readers (spec.md §5's concurrency model for the client set).
type Server struct {
	mu             sync.Mutex
	clients        map[*client]bool
	idleTimeout    time.Duration
	lastFullReload *hmr.UpdatePacket
}

// New constructs a Server. idleTimeout is spec.md §5's "the update-channel
// server times out idle sockets after a configurable interval"; zero
// disables the timeout.
func New(idleTimeout time.Duration) *Server {
	return &Server{clients: map[*client]bool{}, idleTimeout: idleTimeout}
}

// HandleWS upgrades an HTTP request to the websocket transport and services
// one client's subscribe/ack messages until it disconnects. Clients connect
// at a known path (spec.md §6) and send {"type":"subscribe"} on connect.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &client{conn: conn, send: make(chan hmr.UpdatePacket, clientQueueSize), close: make(chan struct{})}

	s.mu.Lock()
	s.clients[c] = true
	lastFull := s.lastFullReload
	s.mu.Unlock()

	// A client that connects mid-session receives the last FullReload
	// broadcast since the most recent BuildOk immediately, not just future
	// broadcasts. BuildError packets are not replayed to late joiners.
	if lastFull != nil {
		c.send <- *lastFull
	}

	go s.writeLoop(c)
	s.readLoop(c)
}

func (s *Server) writeLoop(c *client) {
	defer c.conn.Close()
	for {
		select {
		case pkt, ok := <-c.send:
			if !ok {
				return
			}
			if s.idleTimeout > 0 {
				_ = c.conn.SetWriteDeadline(time.Now().Add(s.idleTimeout))
			}
			data, err := json.Marshal(pkt)
			if err != nil {
				continue
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-c.close:
			return
		}
	}
}

func (s *Server) readLoop(c *client) {
	defer s.disconnect(c)
	if s.idleTimeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	}
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if s.idleTimeout > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}
		var msg struct {
			Type string `json:"type"`
			Seq  uint64 `json:"seq"`
		}
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		switch msg.Type {
		case "ack":
			c.mu.Lock()
			if msg.Seq > c.seq {
				c.seq = msg.Seq
			}
			c.mu.Unlock()
		case "subscribe":
			// No state transition needed: HandleWS already enrolled the
			// client before the first message is read.
		}
	}
}

func (s *Server) disconnect(c *client) {
	s.mu.Lock()
	delete(s.clients, c)
	s.mu.Unlock()
	close(c.close)
}

// Broadcast fans pkt out to every connected client. Per spec.md §4.7: "the
// server must deduplicate concurrent identical updates and must drop queued
// updates older than the latest FullReload." A FullReload clears every
// client's pending queue first so stale targeted updates never arrive after
// it. A packet whose kind and module-id list equal those of the last packet
// offered to that client is dropped as a duplicate, except BuildError,
// which is always delivered.
func (s *Server) Broadcast(pkt hmr.UpdatePacket) {
	s.mu.Lock()
	if pkt.Kind == hmr.FullReload {
		s.lastFullReload = &pkt
	} else if pkt.Kind == hmr.BuildOk {
		s.lastFullReload = nil
	}
	clients := make([]*client, 0, len(s.clients))
	for c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		s.deliver(c, pkt)
	}
}

func (s *Server) deliver(c *client, pkt hmr.UpdatePacket) {
	if pkt.Kind == hmr.FullReload {
		s.drain(c)
	}

	modsKey := joinModuleIds(pkt.ModuleIds)
	c.mu.Lock()
	duplicate := c.lastKind == pkt.Kind && c.lastMods == modsKey && pkt.Kind != hmr.BuildError
	c.lastKind, c.lastMods = pkt.Kind, modsKey
	c.mu.Unlock()
	if duplicate {
		return
	}

	select {
	case c.send <- pkt:
	default:
		// Slow client: drop its oldest queued packet to make room, per
		// spec.md §5's bounded-queue model rather than blocking the
		// single-writer dispatcher on one stuck socket.
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- pkt:
		default:
		}
	}
}

func (s *Server) drain(c *client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

func joinModuleIds(ids []string) string {
	out := ""
	for i, id := range ids {
		if i > 0 {
			out += ","
		}
		out += id
	}
	return out
}

// ClientCount reports the number of currently connected clients.
func (s *Server) ClientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}
