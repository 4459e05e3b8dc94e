package booking

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/careslot/careslot-server/cmd/models"
	"github.com/careslot/careslot-server/cmd/utils"
	"github.com/careslot/careslot-server/service/notifications"
	"github.com/careslot/careslot-server/service/stats"
	"github.com/careslot/careslot-server/service/ws"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type Handler struct {
	db        *gorm.DB
	lifecycle *Lifecycle
	stats     *stats.Aggregator
	hub       *ws.Hub
	notifier  *notifications.NotificationHandler
	mailer    *notifications.Mailer
}

func NewHandler(db *gorm.DB, hub *ws.Hub, notifier *notifications.NotificationHandler, mailer *notifications.Mailer) *Handler {
	return &Handler{
		db:        db,
		lifecycle: NewLifecycle(db),
		stats:     stats.New(db),
		hub:       hub,
		notifier:  notifier,
		mailer:    mailer,
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/bookings/user/{userId}", utils.AuthMiddleware(h.GetUserBookings)).Methods("GET")
	router.HandleFunc("/bookings/{id}", utils.AuthMiddleware(h.GetBooking)).Methods("GET")
	router.HandleFunc("/bookings/{id}/history", utils.AuthMiddleware(h.GetBookingHistory)).Methods("GET")
	router.HandleFunc("/bookings/{id}/status", utils.AuthMiddleware(h.UpdateBookingStatus)).Methods("PATCH")
}

// GetBooking retrieves a specific booking by ID
func (h *Handler) GetBooking(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	booking, err := h.lifecycle.ByID(r.Context(), uint(bookingID))
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, booking)
}

// GetBookingHistory returns the booking's status audit trail, oldest first.
func (h *Handler) GetBookingHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	history, err := h.lifecycle.History(r.Context(), uint(bookingID))
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"booking_id": bookingID,
		"history":    history,
	})
}

// UpdateBookingStatus applies a lifecycle transition and notifies the
// patient out of band.
func (h *Handler) UpdateBookingStatus(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	bookingID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid booking ID", http.StatusBadRequest)
		return
	}

	var statusUpdate struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&statusUpdate); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	booking, err := h.lifecycle.Transition(r.Context(), uint(bookingID), statusUpdate.Status)
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
	h.notifyPatient(booking)

	utils.WriteJSON(w, http.StatusOK, booking)
}

// notifyPatient fires best-effort email and push notifications for the
// booking's patient. Anonymous bookings have nobody to notify.
func (h *Handler) notifyPatient(booking *models.Booking) {
	if booking.PatientID == nil {
		return
	}
	patientID := *booking.PatientID

	var patient models.User
	if err := h.db.First(&patient, patientID).Error; err != nil {
		log.Printf("Error loading patient %d for notification: %v", patientID, err)
		return
	}

	go func() {
		if h.mailer != nil {
			if err := h.mailer.SendBookingStatusEmail(patient.Email, booking.Reference, booking.Status); err != nil {
				log.Printf("Error sending booking status email: %v", err)
			}
		}
		if h.notifier != nil {
			h.notifier.PushBookingStatus(patientID, booking.Reference, booking.Status)
		}
	}()
}

// GetUserBookings lists bookings for a user in a caller-supplied role.
// The role is explicit: one booking row cannot tell us what the caller is.
func (h *Handler) GetUserBookings(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	userID, err := strconv.ParseUint(vars["userId"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid user ID", http.StatusBadRequest)
		return
	}

	role := r.URL.Query().Get("role")
	if role != models.RolePatient && role != models.RoleProvider {
		utils.WriteError(w, utils.Validation("role must be %q or %q", models.RolePatient, models.RoleProvider))
		return
	}

	var user models.User
	if err := h.db.First(&user, userID).Error; err != nil {
		utils.WriteError(w, utils.NotFound("user %d not found", userID))
		return
	}
	if !user.HasRole(role) {
		utils.WriteError(w, utils.Validation("user %d does not hold the %s role", userID, role))
		return
	}

	if role == models.RoleProvider {
		bookings, err := h.lifecycle.ForProvider(r.Context(), uint(userID))
		if err != nil {
			utils.WriteError(w, err)
			return
		}
		providerStats, err := h.stats.ProviderStats(r.Context(), uint(userID))
		if err != nil {
			utils.WriteError(w, err)
			return
		}
		utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"bookings": bookings,
			"total":    len(bookings),
			"stats":    providerStats,
		})
		return
	}

	bookings, err := h.lifecycle.ForPatient(r.Context(), uint(userID))
	if err != nil {
		utils.WriteError(w, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"bookings": bookings,
		"total":    len(bookings),
	})
}
