package server

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// ProgressEvent is pushed to websocket subscribers while long pipeline
// operations run.
type ProgressEvent struct {
	Stage   string  `json:"stage"`
	Pct     float64 `json:"pct"`
	Message string  `json:"message"`
}

// progressHub fans progress events out to connected websocket clients.
// Slow or dead clients are dropped rather than blocking a broadcast.
type progressHub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

func newProgressHub() *progressHub {
	return &progressHub{clients: make(map[*websocket.Conn]struct{})}
}

func (h *progressHub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	h.mu.Lock()
	h.clients[conn] = struct{}{}
	h.mu.Unlock()
	log.Debug().Str("remote", conn.RemoteAddr().String()).Msg("progress subscriber connected")

	// Reader loop only detects disconnects; subscribers never send.
	go func() {
		defer h.drop(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (h *progressHub) drop(conn *websocket.Conn) {
	h.mu.Lock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		conn.Close()
	}
	h.mu.Unlock()
}

// Broadcast sends the event to every connected subscriber. The mutex is
// held across the writes: gorilla connections allow at most one writer,
// and concurrent pipeline runs broadcast from separate goroutines.
func (h *progressHub) Broadcast(ev ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		if err := c.WriteJSON(ev); err != nil {
			delete(h.clients, c)
			c.Close()
		}
	}
}

func (h *progressHub) closeAll() {
	h.mu.Lock()
	for c := range h.clients {
		c.Close()
	}
	h.clients = make(map[*websocket.Conn]struct{})
	h.mu.Unlock()
}
