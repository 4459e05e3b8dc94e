package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/careslot/careslot-server/cmd/models"
	"github.com/careslot/careslot-server/cmd/utils"
	"gorm.io/gorm"
)

// Ledger owns credit claiming and availability queries. Claiming is split in
// two steps that run inside the caller's transaction: NextClaimable picks a
// candidate, Claim binds it to a booking with a guarded update. Two
// transactions racing for the same credit both pass NextClaimable, but only
// one guarded update can flip booking_id from NULL; the loser sees zero rows
// affected and gets a conflict instead of a double claim.
type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// NextClaimable returns an unexpired, unconsumed credit owned by ownerID,
// oldest expiry first so credits are burned before they lapse.
func (l *Ledger) NextClaimable(tx *gorm.DB, ownerID uint, now time.Time) (*models.Credit, error) {
	var credit models.Credit
	err := tx.Where("user_id = ? AND booking_id IS NULL AND expires_at > ?", ownerID, now).
		Order("expires_at ASC").
		First(&credit).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, utils.NotFound("no credit available for user %d", ownerID)
	}
	if err != nil {
		return nil, utils.Internal(err)
	}
	return &credit, nil
}

// Claim associates the credit with a booking. The WHERE clause re-checks the
// unconsumed and unexpired conditions so a claim that lost a race, or raced
// past the expiry, affects zero rows and fails with a conflict.
func (l *Ledger) Claim(tx *gorm.DB, creditID, bookingID uint, now time.Time) error {
	res := tx.Model(&models.Credit{}).
		Where("id = ? AND booking_id IS NULL AND expires_at > ?", creditID, now).
		Update("booking_id", bookingID)
	if res.Error != nil {
		return utils.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.Conflict("credit %d was claimed concurrently", creditID)
	}
	return nil
}

// Release clears a credit's booking association. Used only as a compensating
// action; normal rollback is handled by the enclosing transaction.
func (l *Ledger) Release(ctx context.Context, creditID uint) error {
	res := l.db.WithContext(ctx).Model(&models.Credit{}).
		Where("id = ?", creditID).
		Update("booking_id", nil)
	if res.Error != nil {
		return utils.Internal(res.Error)
	}
	if res.RowsAffected == 0 {
		return utils.NotFound("credit %d not found", creditID)
	}
	return nil
}

// TotalOwned counts every credit the user has ever owned, consumed or not.
// It is the denominator for usage percentages.
func (l *Ledger) TotalOwned(ctx context.Context, ownerID uint) (int64, error) {
	var count int64
	if err := l.db.WithContext(ctx).Model(&models.Credit{}).
		Where("user_id = ?", ownerID).
		Count(&count).Error; err != nil {
		return 0, utils.Internal(err)
	}
	return count, nil
}

// ForUser lists the user's credits, unconsumed first, nearest expiry first.
func (l *Ledger) ForUser(ctx context.Context, ownerID uint) ([]models.Credit, error) {
	var credits []models.Credit
	if err := l.db.WithContext(ctx).
		Where("user_id = ?", ownerID).
		Order("booking_id IS NOT NULL, expires_at ASC").
		Find(&credits).Error; err != nil {
		return nil, utils.Internal(err)
	}
	return credits, nil
}

// Grant issues a new credit to a user.
func (l *Ledger) Grant(ctx context.Context, ownerID uint, creditType string, expiresAt time.Time) (*models.Credit, error) {
	if ownerID == 0 {
		return nil, utils.Validation("owner ID is required")
	}
	if creditType == "" {
		return nil, utils.Validation("credit type is required")
	}
	if !expiresAt.After(time.Now()) {
		return nil, utils.Validation("expiration must be in the future")
	}

	credit := models.Credit{
		Type:      creditType,
		ExpiresAt: expiresAt,
		UserID:    ownerID,
	}
	if err := l.db.WithContext(ctx).Create(&credit).Error; err != nil {
		return nil, utils.Internal(err)
	}
	return &credit, nil
}
