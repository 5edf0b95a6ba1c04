package webhook

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/markerd/internal/eventbus"
	"github.com/dokzlo13/markerd/internal/state"
)

const writeWait = 2 * time.Second

var upgrader = websocket.Upgrader{} // same-origin only

// client is one websocket connection. Writes are serialized by mu.
type client struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *client) write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// Hub streams DeviceState snapshots to websocket clients in core sequence order.
type Hub struct {
	slot *state.Slot[state.DeviceState]

	mu      sync.Mutex
	clients map[*client]struct{}

	seqMu   sync.Mutex
	lastSeq uint64
}

// NewHub creates a hub. New clients first receive the latest snapshot in slot.
func NewHub(slot *state.Slot[state.DeviceState]) *Hub {
	return &Hub{slot: slot, clients: make(map[*client]struct{})}
}

// Register streams every state_changed event to connected clients.
func (h *Hub) Register(bus *eventbus.Bus) {
	bus.Subscribe(eventbus.EventTypeStateChanged, h.onStateChanged)
}

// onStateChanged broadcasts a snapshot unless a newer one already went out.
func (h *Hub) onStateChanged(e eventbus.Event) {
	if _, ok := e.Data["state"].(state.DeviceState); !ok {
		return
	}
	seq, _ := e.Data["seq"].(uint64)

	h.seqMu.Lock()
	defer h.seqMu.Unlock()

	if seq != 0 && seq <= h.lastSeq {
		log.Debug().Uint64("seq", seq).Uint64("last", h.lastSeq).Msg("Dropping stale websocket snapshot")
		return
	}

	payload, err := json.Marshal(e.Data["state"])
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode state for websocket")
		return
	}
	h.Broadcast(payload)
	if seq != 0 {
		h.lastSeq = seq
	}
}

// ServeHTTP upgrades the request and keeps the client until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Debug().Err(err).Msg("Websocket upgrade failed")
		return
	}
	c := &client{conn: conn}

	if snap, ok := h.slot.Latest(); ok {
		if payload, err := json.Marshal(snap); err == nil {
			if err := c.write(payload); err != nil {
				conn.Close()
				return
			}
		}
	}

	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	log.Debug().Int("clients", n).Msg("Websocket client connected")

	// Drain reads to notice the close frame; clients never send commands here.
	go func() {
		defer h.remove(c)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

// Broadcast sends payload to every client, dropping the ones that fail.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		if err := c.write(payload); err != nil {
			log.Debug().Err(err).Msg("Dropping websocket client")
			h.remove(c)
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := h.clients
	h.clients = make(map[*client]struct{})
	h.mu.Unlock()

	for c := range clients {
		c.conn.Close()
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()
	if ok {
		c.conn.Close()
	}
}
