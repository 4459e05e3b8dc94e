package ws

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// BookingEvent is pushed to connected clients whenever a booking changes
// status, including the initial pending status at creation.
type BookingEvent struct {
	BookingID uint      `json:"booking_id"`
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

type ClientConnection struct {
	Hub    *Hub
	Conn   *websocket.Conn
	Send   chan []byte
	UserID uint
	mu     sync.Mutex
}

type Hub struct {
	Clients    map[*ClientConnection]bool
	Register   chan *ClientConnection
	Unregister chan *ClientConnection
	events     chan BookingEvent
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		Clients:    make(map[*ClientConnection]bool),
		Register:   make(chan *ClientConnection),
		Unregister: make(chan *ClientConnection),
		events:     make(chan BookingEvent, 64),
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.Register:
			h.mu.Lock()
			h.Clients[client] = true
			h.mu.Unlock()

		case client := <-h.Unregister:
			h.mu.Lock()
			if _, ok := h.Clients[client]; ok {
				delete(h.Clients, client)
				close(client.Send)
			}
			h.mu.Unlock()

		case event := <-h.events:
			h.broadcast(event)
		}
	}
}

// Publish queues a booking event for broadcast. It never blocks the caller;
// if the hub is saturated the event is dropped and logged.
func (h *Hub) Publish(event BookingEvent) {
	select {
	case h.events <- event:
	default:
		log.Printf("event hub full, dropping event for booking %d", event.BookingID)
	}
}

func (h *Hub) broadcast(event BookingEvent) {
	jsonMsg, err := json.Marshal(event)
	if err != nil {
		log.Printf("error marshaling booking event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.Clients {
		client.mu.Lock()
		select {
		case client.Send <- jsonMsg:
		default:
			close(client.Send)
			delete(h.Clients, client)
		}
		client.mu.Unlock()
	}
}

// WritePump pumps queued messages to the websocket connection.
func (c *ClientConnection) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// ReadPump drains the connection so pings are answered and closes are seen.
// Clients do not send application messages; anything received is discarded.
func (c *ClientConnection) ReadPump() {
	defer func() {
		c.Hub.Unregister <- c
		c.Conn.Close()
	}()

	c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("error: %v", err)
			}
			break
		}
	}
}
