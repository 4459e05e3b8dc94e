package allocation

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/careslot/careslot-server/cmd/utils"
	"github.com/careslot/careslot-server/service/ws"
	"github.com/gorilla/mux"
)

type Handler struct {
	coordinator *Coordinator
	hub         *ws.Hub
}

func NewHandler(coordinator *Coordinator, hub *ws.Hub) *Handler {
	return &Handler{coordinator: coordinator, hub: hub}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings", utils.AuthMiddleware(h.CreateBooking)).Methods("POST")
}

// CreateBooking claims a credit and creates a pending booking in one
// transactional unit.
func (h *Handler) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var createRequest struct {
		Time       time.Time `json:"time"`
		ProviderID uint      `json:"provider_id"`
		PatientID  *uint     `json:"patient_id,omitempty"`
	}

	if err := json.NewDecoder(r.Body).Decode(&createRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	booking, err := h.coordinator.CreateBooking(r.Context(), CreateBookingRequest{
		Time:       createRequest.Time,
		ProviderID: createRequest.ProviderID,
		PatientID:  createRequest.PatientID,
	})
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	if h.hub != nil {
		h.hub.Publish(ws.BookingEvent{
			BookingID: booking.ID,
			Reference: booking.Reference,
			Status:    booking.Status,
			Timestamp: time.Now(),
		})
	}

	utils.WriteJSON(w, http.StatusCreated, booking)
}
