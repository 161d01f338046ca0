package main

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// ClientEvent is what a connected client may send: a chat message or a
// typing indicator, both scoped to one of the client's matches.
type ClientEvent struct {
	Type    string `json:"type"` // "message" | "typing"
	MatchID string `json:"match_id"`
	Body    string `json:"body,omitempty"`
}

// ServerEvent represents a server-sent event
type ServerEvent struct {
	Type string `json:"type"` // "message" | "typing" | "matched" | "deck" | "info" | "error"
	From string `json:"from,omitempty"`
	Data any    `json:"data,omitempty"`
}

// Client represents a WebSocket client connection
type Client struct {
	userID string
	conn   *websocket.Conn
	send   chan ServerEvent
	store  Store
}

// Hub manages WebSocket client connections
type Hub struct {
	clientsByUser map[string]map[*Client]bool
	mu            sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clientsByUser: make(map[string]map[*Client]bool),
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.clientsByUser[c.userID] == nil {
		h.clientsByUser[c.userID] = make(map[*Client]bool)
	}
	h.clientsByUser[c.userID][c] = true
	wsConnections.Inc()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if peers, ok := h.clientsByUser[c.userID]; ok {
		if peers[c] {
			wsConnections.Dec()
		}
		delete(peers, c)
		if len(peers) == 0 {
			delete(h.clientsByUser, c.userID)
		}
	}
}

// SendToUser delivers evt to every connection the user has open.
func (h *Hub) SendToUser(userID string, evt ServerEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if peers, ok := h.clientsByUser[userID]; ok {
		for c := range peers {
			select {
			case c.send <- evt:
			default:
				// Drop message if user's buffer is full
			}
		}
	}
}

// ConnectedUsers lists the users with at least one open connection.
func (h *Hub) ConnectedUsers() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]string, 0, len(h.clientsByUser))
	for userID := range h.clientsByUser {
		out = append(out, userID)
	}
	return out
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// For development: allow the app dev server origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

func wsHandler(store Store, hub *Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("WS upgrade error for user %s: %v", userID, err)
			return
		}

		client := &Client{
			userID: userID,
			conn:   conn,
			send:   make(chan ServerEvent, 16),
			store:  store,
		}
		hub.register(client)

		// Announce connection to this client
		client.send <- ServerEvent{Type: "info", Data: "connected"}

		// Start writer
		go clientWriter(client)
		// Start reader (blocks)
		clientReader(client, hub)
	}
}

// userIDFromRequest authenticates a WS handshake. Tries the Authorization
// header first, then the token query param (browsers can't set headers on
// WebSocket connections).
func userIDFromRequest(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && auth[:7] == "Bearer " {
		if id, ok := parseToken(auth[7:]); ok {
			return id, true
		}
	}
	if q := r.URL.Query().Get("token"); q != "" {
		return parseToken(q)
	}
	return "", false
}

func clientReader(c *Client, hub *Hub) {
	defer func() {
		hub.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(1 << 20)
	_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		var evt ClientEvent
		if err := c.conn.ReadJSON(&evt); err != nil {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		match, err := c.store.GetMatch(ctx, evt.MatchID)
		if err != nil || !match.Has(c.userID) {
			cancel()
			c.send <- ServerEvent{Type: "error", Data: "unknown match"}
			continue
		}

		switch evt.Type {
		case "message":
			msg, err := saveMatchMessage(ctx, c.store, match, c.userID, evt.Body)
			cancel()
			if err != nil {
				log.Println("cannot save chat message:", err)
				c.send <- ServerEvent{Type: "error", Data: "cannot send message"}
				continue
			}

			out := ServerEvent{Type: "message", From: c.userID, Data: msg}
			// Relay to the peer and echo back so the sender UI updates too.
			for _, uid := range match.UserIDs {
				hub.SendToUser(uid, out)
			}

		case "typing":
			cancel()
			hub.SendToUser(match.Peer(c.userID), ServerEvent{Type: "typing", From: c.userID})

		default:
			cancel()
			c.send <- ServerEvent{Type: "error", Data: "unknown message type"}
		}
	}
}

func clientWriter(c *Client) {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case evt, ok := <-c.send:
			if !ok {
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(evt); err != nil {
				return
			}
		case <-ticker.C:
			// ping to keep the connection alive
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// saveMatchMessage persists one chat message with the sender's display
// snapshot frozen in, so history keeps the name/photo from send time.
func saveMatchMessage(ctx context.Context, store Store, match *Match, senderID, body string) (*MatchMessage, error) {
	msg := &MatchMessage{
		MatchID:  match.ID,
		SenderID: senderID,
	}
	if snap := match.Users[senderID]; snap != nil {
		if snap.DisplayName != nil {
			msg.DisplayName = *snap.DisplayName
		}
		msg.PhotoURL = snap.FirstPhoto()
	}
	if p, err := store.GetProfile(ctx, senderID); err == nil {
		if p.DisplayName != nil {
			msg.DisplayName = *p.DisplayName
		}
		msg.PhotoURL = p.FirstPhoto()
	}
	msg.Body = body
	return store.AppendMessage(ctx, msg)
}
