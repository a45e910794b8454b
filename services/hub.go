package services

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// Hub streams quiz events to connected recruiter dashboards. It implements
// EventSink so the engine can publish to it directly.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan QuizEvent
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mutex      sync.RWMutex
}

// Client is one monitor connection. A non-zero trackID limits the stream to
// that track.
type Client struct {
	hub         *Hub
	id          string
	socket      *websocket.Conn
	send        chan []byte
	recruiterID uint
	trackID     uint
}

type Message struct {
	Type    string      `json:"type"`
	Payload interface{} `json:"payload"`
}

type subscribePayload struct {
	TrackID uint `json:"track_id"`
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan QuizEvent, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run owns client registration and fan-out until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			total := len(h.clients)
			h.mutex.Unlock()
			log.Printf("Monitor client registered: %s (recruiter %d) - Total clients: %d", client.id, client.recruiterID, total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				log.Printf("Monitor client unregistered: %s (recruiter %d) - Total clients: %d", client.id, client.recruiterID, len(h.clients))
			}
			h.mutex.Unlock()

		case event := <-h.broadcast:
			h.deliver(event)
		}
	}
}

func (h *Hub) deliver(event QuizEvent) {
	data, err := json.Marshal(Message{Type: string(event.Type), Payload: event})
	if err != nil {
		log.Printf("Error marshaling event message: %v", err)
		return
	}

	h.mutex.Lock()
	defer h.mutex.Unlock()
	for client := range h.clients {
		if client.trackID != 0 && client.trackID != event.TrackID {
			continue
		}
		select {
		case client.send <- data:
		default:
			log.Printf("Monitor client %s send buffer full, closing connection", client.id)
			close(client.send)
			delete(h.clients, client)
		}
	}
}

// Publish queues an event for delivery. When the queue is full the event is
// dropped for monitors; it has already been committed.
func (h *Hub) Publish(ctx context.Context, event QuizEvent) error {
	select {
	case h.broadcast <- event:
	default:
		log.Printf("Monitor hub queue full, dropping %s for session %s", event.Type, event.SessionID)
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// RegisterClient starts serving conn. It returns nil and closes conn when the
// hub has stopped.
func (h *Hub) RegisterClient(conn *websocket.Conn, recruiterID uint) *Client {
	client := &Client{
		hub:         h,
		id:          uuid.NewString(),
		socket:      conn,
		send:        make(chan []byte, 256),
		recruiterID: recruiterID,
	}

	select {
	case h.register <- client:
	case <-h.done:
		log.Printf("Monitor hub stopped, rejecting client for recruiter %d", recruiterID)
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(writeWait))
		conn.Close()
		return nil
	}

	go client.writePump()
	go client.readPump()

	return client
}

// UnregisterClient removes a client. After Run has returned it is a no-op;
// Run already closed every client's send channel.
func (h *Hub) UnregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.UnregisterClient(c)
		c.socket.Close()
	}()

	c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		return c.socket.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: %v", err)
			}
			break
		}

		var msg struct {
			Type    string          `json:"type"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("Error unmarshaling message: %v", err)
			continue
		}
		c.handleMessage(msg.Type, msg.Payload)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.socket.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.socket.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) reply(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}

	c.hub.mutex.RLock()
	defer c.hub.mutex.RUnlock()
	if !c.hub.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) handleMessage(msgType string, payload json.RawMessage) {
	switch msgType {
	case "ping":
		c.reply(Message{Type: "pong", Payload: "pong"})

	case "subscribe":
		var sub subscribePayload
		if err := json.Unmarshal(payload, &sub); err != nil {
			log.Printf("Invalid subscribe payload from client %s: %v", c.id, err)
			return
		}
		c.hub.mutex.Lock()
		c.trackID = sub.TrackID
		c.hub.mutex.Unlock()
		log.Printf("Monitor client %s subscribed to track %d", c.id, sub.TrackID)
		c.reply(Message{Type: "subscribed", Payload: sub})

	case "unsubscribe":
		c.hub.mutex.Lock()
		c.trackID = 0
		c.hub.mutex.Unlock()
		c.reply(Message{Type: "subscribed", Payload: subscribePayload{}})

	default:
		log.Printf("Unknown message type: %s from monitor client %s", msgType, c.id)
	}
}
