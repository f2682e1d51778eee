package panel

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsWriteWait  = 10 * time.Second
	wsSendBuffer = 64
)

// WebSocketTransport serves the protocol to any number of browser clients.
// Notifications are broadcast to every connected client.
type WebSocketTransport struct {
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*wsClient
	handler func(Request)
	closed  bool
}

type wsClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// NewWebSocketTransport returns a transport that only upgrades requests
// without an Origin header or from the host serving the panel.
func NewWebSocketTransport() *WebSocketTransport {
	return &WebSocketTransport{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[string]*wsClient),
	}
}

func (t *WebSocketTransport) OnMessage(handler func(Request)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
}

func (t *WebSocketTransport) Post(n Notification) error {
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}

	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, client := range t.clients {
		select {
		case client.send <- data:
		default:
			log.Printf("[CommitKit][WS] Dropping %s for slow client %s", n.Command, client.id)
		}
	}
	return nil
}

// Clients reports the number of connected clients.
func (t *WebSocketTransport) Clients() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.clients)
}

// ServeHTTP upgrades the connection and reads requests until the client
// goes away.
func (t *WebSocketTransport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[CommitKit][WS] Upgrade error: %v", err)
		return
	}

	client := &wsClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, wsSendBuffer),
	}
	if !t.register(client) {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closing"),
			time.Now().Add(wsWriteWait))
		conn.Close()
		return
	}
	defer t.unregister(client)

	go client.writePump()

	log.Printf("[CommitKit][WS] Client %s connected", client.id)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[CommitKit][WS] Read error: %v", err)
			}
			break
		}

		var req Request
		if err := json.Unmarshal(raw, &req); err != nil || req.Command == "" {
			log.Printf("[CommitKit][WS] Invalid message from %s: %v", client.id, err)
			continue
		}

		t.mu.RLock()
		handler := t.handler
		t.mu.RUnlock()
		if handler != nil {
			handler(req)
		}
	}
}

func (t *WebSocketTransport) register(client *wsClient) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return false
	}
	t.clients[client.id] = client
	return true
}

func (t *WebSocketTransport) unregister(client *wsClient) {
	t.mu.Lock()
	_, ok := t.clients[client.id]
	delete(t.clients, client.id)
	t.mu.Unlock()

	if ok {
		close(client.send)
		log.Printf("[CommitKit][WS] Client %s disconnected", client.id)
	}
}

// Close disconnects every client and refuses new ones.
func (t *WebSocketTransport) Close() {
	t.mu.Lock()
	t.closed = true
	clients := make([]*wsClient, 0, len(t.clients))
	for id, client := range t.clients {
		clients = append(clients, client)
		delete(t.clients, id)
	}
	t.mu.Unlock()

	for _, client := range clients {
		close(client.send)
	}
}

// writePump is the only writer of the connection. It closes the connection
// once send is closed.
func (c *wsClient) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("[CommitKit][WS] Write error for %s: %v", c.id, err)
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(wsWriteWait))
}
