package credit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/careslot/careslot-server/cmd/models"
	"github.com/careslot/careslot-server/cmd/utils"
	"github.com/careslot/careslot-server/service/ledger"
	"github.com/careslot/careslot-server/service/stats"
	"github.com/gorilla/mux"
	"gorm.io/gorm"
)

type Handler struct {
	db     *gorm.DB
	ledger *ledger.Ledger
	stats  *stats.Aggregator
}

func NewHandler(db *gorm.DB) *Handler {
	return &Handler{
		db:     db,
		ledger: ledger.New(db),
		stats:  stats.New(db),
	}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/credits", utils.AuthMiddleware(h.GrantCredit)).Methods("POST")
	router.HandleFunc("/patients/{id}/credits", utils.AuthMiddleware(h.GetPatientCredits)).Methods("GET")
}

// GrantCredit issues a credit to a user.
func (h *Handler) GrantCredit(w http.ResponseWriter, r *http.Request) {
	var grantRequest struct {
		UserID    uint      `json:"user_id"`
		Type      string    `json:"type"`
		ExpiresAt time.Time `json:"expires_at"`
	}

	if err := json.NewDecoder(r.Body).Decode(&grantRequest); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	credit, err := h.ledger.Grant(r.Context(), grantRequest.UserID, grantRequest.Type, grantRequest.ExpiresAt)
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusCreated, credit)
}

// GetPatientCredits returns the credits a patient owns together with monthly
// usage statistics.
func (h *Handler) GetPatientCredits(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	patientID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		http.Error(w, "Invalid patient ID", http.StatusBadRequest)
		return
	}

	var patient models.User
	if err := h.db.First(&patient, patientID).Error; err != nil {
		utils.WriteError(w, utils.NotFound("patient %d not found", patientID))
		return
	}
	if !patient.HasRole(models.RolePatient) {
		utils.WriteError(w, utils.Validation("user %d is not a patient", patientID))
		return
	}

	credits, err := h.ledger.ForUser(r.Context(), uint(patientID))
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	usage, err := h.stats.PatientCreditStats(r.Context(), uint(patientID))
	if err != nil {
		utils.WriteError(w, err)
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"credits": credits,
		"total":   len(credits),
		"usage":   usage,
	})
}
