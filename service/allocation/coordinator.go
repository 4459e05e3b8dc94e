package allocation

import (
	"context"
	"errors"
	"time"

	"github.com/careslot/careslot-server/cmd/models"
	"github.com/careslot/careslot-server/cmd/utils"
	"github.com/careslot/careslot-server/config"
	"github.com/careslot/careslot-server/service/booking"
	"github.com/careslot/careslot-server/service/ledger"
	"gorm.io/gorm"
)

// Coordinator orchestrates booking creation: one transaction claims a credit
// and creates the booking plus its initial history row, so no partial result
// is ever visible. Claim races are retried a bounded number of times before
// the caller sees a retryable failure.
type Coordinator struct {
	db        *gorm.DB
	ledger    *ledger.Ledger
	lifecycle *booking.Lifecycle

	retries      int
	retryDelay   time.Duration
	claimTimeout time.Duration
	anonPolicy   string
}

func NewCoordinator(db *gorm.DB, cfg config.Config) *Coordinator {
	return &Coordinator{
		db:           db,
		ledger:       ledger.New(db),
		lifecycle:    booking.NewLifecycle(db),
		retries:      cfg.ClaimRetries,
		retryDelay:   cfg.ClaimRetryDelay,
		claimTimeout: cfg.ClaimTimeout,
		anonPolicy:   cfg.AnonFundingPolicy,
	}
}

type CreateBookingRequest struct {
	Time       time.Time
	ProviderID uint
	PatientID  *uint
}

// CreateBooking validates the request, resolves the funding user, then runs
// claim-and-create with bounded retries on contention.
func (c *Coordinator) CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error) {
	fundingUser, err := c.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.retryDelay):
			case <-ctx.Done():
				return nil, utils.Transient("booking creation canceled: %v", ctx.Err())
			}
		}

		b, err := c.attempt(ctx, req, fundingUser)
		if err == nil {
			return b, nil
		}
		if !utils.Retryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}

// validate rejects malformed input before any transaction opens and returns
// the ID of the user whose credit pool funds the booking.
func (c *Coordinator) validate(ctx context.Context, req CreateBookingRequest) (uint, error) {
	if !req.Time.After(time.Now()) {
		return 0, utils.Validation("booking time must be in the future")
	}
	if req.ProviderID == 0 {
		return 0, utils.Validation("provider ID is required")
	}
	if req.PatientID != nil && *req.PatientID == 0 {
		return 0, utils.Validation("patient ID must be a valid identifier")
	}

	var provider models.User
	err := c.db.WithContext(ctx).First(&provider, req.ProviderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, utils.NotFound("provider %d not found", req.ProviderID)
	}
	if err != nil {
		return 0, utils.Internal(err)
	}
	if !provider.HasRole(models.RoleProvider) {
		return 0, utils.Validation("user %d is not a provider", req.ProviderID)
	}

	if req.PatientID != nil {
		var patient models.User
		err := c.db.WithContext(ctx).First(&patient, *req.PatientID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, utils.NotFound("patient %d not found", *req.PatientID)
		}
		if err != nil {
			return 0, utils.Internal(err)
		}
		return *req.PatientID, nil
	}

	// Anonymous booking: which pool is charged is deployment policy.
	switch c.anonPolicy {
	case config.AnonFundingProvider:
		return req.ProviderID, nil
	default:
		return 0, utils.Validation("anonymous bookings are disabled")
	}
}

// attempt runs one claim-and-create transaction. Any failure inside rolls the
// whole unit back: no orphaned claim, no booking without a credit or without
// its initial history row.
func (c *Coordinator) attempt(ctx context.Context, req CreateBookingRequest, fundingUser uint) (*models.Booking, error) {
	ctx, cancel := context.WithTimeout(ctx, c.claimTimeout)
	defer cancel()

	now := time.Now()
	var created models.Booking
	err := c.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		credit, err := c.ledger.NextClaimable(tx, fundingUser, now)
		if err != nil {
			return err
		}

		created = models.Booking{
			Time:       req.Time,
			PatientID:  req.PatientID,
			ProviderID: req.ProviderID,
			CreditID:   credit.ID,
		}
		if err := c.lifecycle.Create(tx, &created); err != nil {
			return err
		}

		return c.ledger.Claim(tx, credit.ID, created.ID, now)
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, utils.Transient("credit claim timed out")
		}
		return nil, err
	}
	return &created, nil
}
