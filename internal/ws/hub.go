package ws

import (
	"log"
	"sync"

	"github.com/gorilla/websocket"

	"chat-backbone/internal/realtime"
)

// sessionCloser is the slice of realtime.Session the hub needs; the
// indirection keeps teardown testable without live transports.
type sessionCloser interface {
	Unsubscribe()
}

type client struct {
	info    ConnInfo
	session sessionCloser
}

// Hub tracks the open realtime sessions, one per websocket client,
// keyed by conversation.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*websocket.Conn]*client
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[string]map[*websocket.Conn]*client)}
}

// Add registers a websocket connection and the subscription session
// feeding it.
func (h *Hub) Add(conversationID string, conn *websocket.Conn, info ConnInfo, session sessionCloser) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conversationID]; !ok {
		h.clients[conversationID] = make(map[*websocket.Conn]*client)
	}
	h.clients[conversationID][conn] = &client{info: info, session: session}
}

// Remove drops a connection and tears down its session. Safe to call
// for connections the hub no longer tracks.
func (h *Hub) Remove(conversationID string, conn *websocket.Conn) {
	h.mu.Lock()
	cl, ok := h.clients[conversationID][conn]
	if ok {
		delete(h.clients[conversationID], conn)
		if len(h.clients[conversationID]) == 0 {
			delete(h.clients, conversationID)
		}
	}
	h.mu.Unlock()

	if ok && cl.session != nil {
		cl.session.Unsubscribe()
	}
}

// SessionCount reports how many clients watch one conversation.
func (h *Hub) SessionCount(conversationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[conversationID])
}

// CloseAll tears down every tracked session, used on shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	var all []*client
	var conns []*websocket.Conn
	for _, byConn := range h.clients {
		for conn, cl := range byConn {
			all = append(all, cl)
			conns = append(conns, conn)
		}
	}
	h.clients = make(map[string]map[*websocket.Conn]*client)
	h.mu.Unlock()

	for i, cl := range all {
		if cl.session != nil {
			cl.session.Unsubscribe()
		}
		if conns[i] != nil {
			if err := conns[i].Close(); err != nil {
				log.Printf("websocket close during shutdown: %v", err)
			}
		}
	}
}

var _ sessionCloser = (*realtime.Session)(nil)
