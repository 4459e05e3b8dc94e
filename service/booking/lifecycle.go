package booking

import (
	"context"
	"errors"
	"time"

	"github.com/careslot/careslot-server/cmd/models"
	"github.com/careslot/careslot-server/cmd/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// allowedTransitions is the full status state machine. Absence means the
// transition is rejected.
var allowedTransitions = map[string]map[string]bool{
	models.StatusPending: {
		models.StatusConfirmed: true,
		models.StatusCanceled:  true,
	},
	models.StatusConfirmed: {
		models.StatusCanceled:    true,
		models.StatusRescheduled: true,
		models.StatusCompleted:   true,
	},
	models.StatusRescheduled: {
		models.StatusConfirmed: true,
	},
}

// CanTransition reports whether a booking may move from one status to another.
func CanTransition(from, to string) bool {
	return allowedTransitions[from][to]
}

// Lifecycle owns the booking status state machine and its history log.
type Lifecycle struct {
	db *gorm.DB
}

func NewLifecycle(db *gorm.DB) *Lifecycle {
	return &Lifecycle{db: db}
}

// Create persists a new booking with status pending together with its initial
// history row. It runs inside the caller's transaction so a booking can never
// exist without its first audit entry.
func (s *Lifecycle) Create(tx *gorm.DB, booking *models.Booking) error {
	if booking.Reference == "" {
		booking.Reference = uuid.NewString()
	}
	booking.Status = models.StatusPending

	if err := tx.Create(booking).Error; err != nil {
		return utils.Internal(err)
	}

	history := models.BookingStatusHistory{
		BookingID: booking.ID,
		Status:    models.StatusPending,
		Timestamp: time.Now(),
	}
	if err := tx.Create(&history).Error; err != nil {
		return utils.Internal(err)
	}
	return nil
}

// Transition moves a booking to newStatus, appending a history row, all in
// one transaction. The status update is guarded by the booking's version so a
// transition computed from a stale read affects zero rows and fails with a
// conflict instead of silently overwriting a concurrent change.
func (s *Lifecycle) Transition(ctx context.Context, bookingID uint, newStatus string) (*models.Booking, error) {
	if !models.KnownStatus(newStatus) {
		return nil, utils.Validation("unknown status %q", newStatus)
	}

	var booking models.Booking
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&booking, bookingID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return utils.NotFound("booking %d not found", bookingID)
			}
			return utils.Internal(err)
		}

		if !CanTransition(booking.Status, newStatus) {
			return utils.InvalidTransition("cannot move booking %d from %s to %s",
				bookingID, booking.Status, newStatus)
		}

		res := tx.Model(&models.Booking{}).
			Where("id = ? AND version = ?", booking.ID, booking.Version).
			Updates(map[string]interface{}{
				"status":  newStatus,
				"version": booking.Version + 1,
			})
		if res.Error != nil {
			return utils.Internal(res.Error)
		}
		if res.RowsAffected == 0 {
			return utils.Conflict("booking %d was modified concurrently", bookingID)
		}

		ts := time.Now()
		var last models.BookingStatusHistory
		err := tx.Where("booking_id = ?", booking.ID).
			Order("timestamp DESC").
			First(&last).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Internal(err)
		}
		// History rows are strictly ordered per booking; nudge the clock
		// forward if two transitions land within timer resolution.
		if err == nil && !ts.After(last.Timestamp) {
			ts = last.Timestamp.Add(time.Microsecond)
		}

		history := models.BookingStatusHistory{
			BookingID: booking.ID,
			Status:    newStatus,
			Timestamp: ts,
		}
		if err := tx.Create(&history).Error; err != nil {
			return utils.Internal(err)
		}

		booking.Status = newStatus
		booking.Version++
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// History returns the booking's status trail ascending by timestamp.
func (s *Lifecycle) History(ctx context.Context, bookingID uint) ([]models.BookingStatusHistory, error) {
	var exists int64
	if err := s.db.WithContext(ctx).Model(&models.Booking{}).
		Where("id = ?", bookingID).
		Count(&exists).Error; err != nil {
		return nil, utils.Internal(err)
	}
	if exists == 0 {
		return nil, utils.NotFound("booking %d not found", bookingID)
	}

	var history []models.BookingStatusHistory
	if err := s.db.WithContext(ctx).
		Where("booking_id = ?", bookingID).
		Order("timestamp ASC").
		Find(&history).Error; err != nil {
		return nil, utils.Internal(err)
	}
	return history, nil
}

// ByID fetches a single booking with its participants.
func (s *Lifecycle) ByID(ctx context.Context, bookingID uint) (*models.Booking, error) {
	var booking models.Booking
	err := s.db.WithContext(ctx).Preload("Patient").Preload("Provider").
		First(&booking, bookingID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("booking %d not found", bookingID)
	}
	if err != nil {
		return nil, utils.Internal(err)
	}
	return &booking, nil
}

// ForPatient lists a patient's bookings, soonest first. Anonymous bookings
// have a NULL patient ID and never match.
func (s *Lifecycle) ForPatient(ctx context.Context, patientID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := s.db.WithContext(ctx).
		Where("patient_id = ?", patientID).
		Preload("Provider").
		Order("time ASC").
		Find(&bookings).Error; err != nil {
		return nil, utils.Internal(err)
	}
	return bookings, nil
}

// ForProvider lists a provider's bookings, soonest first.
func (s *Lifecycle) ForProvider(ctx context.Context, providerID uint) ([]models.Booking, error) {
	var bookings []models.Booking
	if err := s.db.WithContext(ctx).
		Where("provider_id = ?", providerID).
		Preload("Patient").
		Order("time ASC").
		Find(&bookings).Error; err != nil {
		return nil, utils.Internal(err)
	}
	return bookings, nil
}
