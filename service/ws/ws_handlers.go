package ws

import (
	"log"
	"net/http"

	"github.com/careslot/careslot-server/cmd/utils"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub *Hub
}

// NewHandler starts the event hub and returns the websocket handler bound
// to it.
func NewHandler() *Handler {
	hub := NewHub()
	go hub.Run()

	return &Handler{hub: hub}
}

func (h *Handler) Hub() *Hub {
	return h.hub
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/ws", utils.AuthMiddleware(h.HandleWebSocket))
}

// HandleWebSocket upgrades the connection and subscribes it to booking events.
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	userID, err := utils.GetUserIDFromContext(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}

	log.Printf("WebSocket connection established for user %d", userID)

	client := &ClientConnection{
		Hub:    h.hub,
		Conn:   conn,
		Send:   make(chan []byte, 256),
		UserID: userID,
	}

	h.hub.Register <- client

	go client.WritePump()
	go client.ReadPump()
}
