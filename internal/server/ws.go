package server

import (
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/colonyops/folio/internal/viewer"
)

const writeWait = 5 * time.Second

// client is one websocket subscriber. It holds at most one pending state;
// a newer state replaces an unsent one.
type client struct {
	conn *websocket.Conn
	send chan viewer.State
	done chan struct{}
	once sync.Once
}

func (c *client) push(st viewer.State) {
	for {
		select {
		case <-c.done:
			return
		case c.send <- st:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.Close()
	})
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Debug().Err(err).Msg("websocket upgrade")
		return
	}

	c := &client{
		conn: conn,
		send: make(chan viewer.State, 1),
		done: make(chan struct{}),
	}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		c.close()
	}()

	c.push(s.viewer.State())
	go s.writePump(c)

	// Inbound messages are ignored; reading detects the peer going away.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Debug().Err(err).Msg("websocket read")
			}
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	for {
		select {
		case <-c.done:
			return
		case st := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(st); err != nil {
				s.log.Debug().Err(err).Msg("websocket write")
				c.close()
				return
			}
		}
	}
}

// broadcast runs on the event bus goroutine for every state change.
func (s *Server) broadcast(st viewer.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.push(st)
	}
}

// checkOrigin accepts same-host and loopback origins, or any origin when
// AllowAll is set.
func (s *Server) checkOrigin(r *http.Request) bool {
	if s.cfg.AllowAll {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return u.Host == r.Host
}
