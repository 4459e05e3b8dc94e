package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/careslot/careslot-server/cmd/models"
	"github.com/careslot/careslot-server/cmd/utils"
	"github.com/careslot/careslot-server/service/testutil"
	"gorm.io/gorm"
)

func TestGrantValidation(t *testing.T) {
	db := testutil.OpenDB(t)
	l := New(db)
	ctx := context.Background()

	if _, err := l.Grant(ctx, 0, "session", time.Now().Add(time.Hour)); utils.KindOf(err) != utils.KindValidation {
		t.Errorf("Grant with zero owner: kind = %v, want validation", utils.KindOf(err))
	}
	if _, err := l.Grant(ctx, 1, "", time.Now().Add(time.Hour)); utils.KindOf(err) != utils.KindValidation {
		t.Errorf("Grant with empty type: kind = %v, want validation", utils.KindOf(err))
	}
	if _, err := l.Grant(ctx, 1, "session", time.Now().Add(-time.Hour)); utils.KindOf(err) != utils.KindValidation {
		t.Errorf("Grant with past expiry: kind = %v, want validation", utils.KindOf(err))
	}
}

func TestNextClaimableSkipsExpiredAndConsumed(t *testing.T) {
	db := testutil.OpenDB(t)
	l := New(db)
	now := time.Now()

	owner := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)

	testutil.GrantCredit(t, db, owner.ID, now.Add(-time.Hour)) // expired
	consumed := testutil.GrantCredit(t, db, owner.ID, now.Add(time.Hour))
	bookingID := uint(99)
	if err := db.Model(consumed).Update("booking_id", bookingID).Error; err != nil {
		t.Fatalf("marking credit consumed: %v", err)
	}
	valid := testutil.GrantCredit(t, db, owner.ID, now.Add(2*time.Hour))

	credit, err := l.NextClaimable(db, owner.ID, now)
	if err != nil {
		t.Fatalf("NextClaimable: %v", err)
	}
	if credit.ID != valid.ID {
		t.Errorf("NextClaimable picked credit %d, want %d", credit.ID, valid.ID)
	}
}

func TestNextClaimablePrefersNearestExpiry(t *testing.T) {
	db := testutil.OpenDB(t)
	l := New(db)
	now := time.Now()

	owner := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)
	testutil.GrantCredit(t, db, owner.ID, now.Add(48*time.Hour))
	soonest := testutil.GrantCredit(t, db, owner.ID, now.Add(time.Hour))

	credit, err := l.NextClaimable(db, owner.ID, now)
	if err != nil {
		t.Fatalf("NextClaimable: %v", err)
	}
	if credit.ID != soonest.ID {
		t.Errorf("NextClaimable picked credit %d, want soonest-expiry credit %d", credit.ID, soonest.ID)
	}
}

func TestNextClaimableNotFound(t *testing.T) {
	db := testutil.OpenDB(t)
	l := New(db)

	owner := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)

	_, err := l.NextClaimable(db, owner.ID, time.Now())
	if utils.KindOf(err) != utils.KindNotFound {
		t.Errorf("NextClaimable on empty pool: kind = %v, want not_found", utils.KindOf(err))
	}
}

func TestClaimBindsCreditExactlyOnce(t *testing.T) {
	db := testutil.OpenDB(t)
	l := New(db)
	now := time.Now()

	owner := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)
	credit := testutil.GrantCredit(t, db, owner.ID, now.Add(time.Hour))

	if err := l.Claim(db, credit.ID, 1, now); err != nil {
		t.Fatalf("first claim: %v", err)
	}

	err := l.Claim(db, credit.ID, 2, now)
	if utils.KindOf(err) != utils.KindConflict {
		t.Fatalf("second claim: kind = %v, want conflict", utils.KindOf(err))
	}

	var stored models.Credit
	if err := db.First(&stored, credit.ID).Error; err != nil {
		t.Fatalf("loading credit: %v", err)
	}
	if stored.BookingID == nil || *stored.BookingID != 1 {
		t.Errorf("credit bound to %v, want first claimant's booking 1", stored.BookingID)
	}
}

func TestClaimRejectsExpiredCredit(t *testing.T) {
	db := testutil.OpenDB(t)
	l := New(db)

	owner := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)
	credit := testutil.GrantCredit(t, db, owner.ID, time.Now().Add(time.Minute))

	err := l.Claim(db, credit.ID, 1, time.Now().Add(time.Hour))
	if utils.KindOf(err) != utils.KindConflict {
		t.Errorf("claiming past expiry: kind = %v, want conflict", utils.KindOf(err))
	}
}

func TestRelease(t *testing.T) {
	db := testutil.OpenDB(t)
	l := New(db)
	ctx := context.Background()
	now := time.Now()

	owner := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)
	credit := testutil.GrantCredit(t, db, owner.ID, now.Add(time.Hour))

	if err := l.Claim(db, credit.ID, 1, now); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := l.Release(ctx, credit.ID); err != nil {
		t.Fatalf("release: %v", err)
	}

	var stored models.Credit
	if err := db.First(&stored, credit.ID).Error; err != nil {
		t.Fatalf("loading credit: %v", err)
	}
	if stored.BookingID != nil {
		t.Errorf("released credit still bound to booking %d", *stored.BookingID)
	}

	if err := l.Release(ctx, 12345); utils.KindOf(err) != utils.KindNotFound {
		t.Errorf("releasing unknown credit: kind = %v, want not_found", utils.KindOf(err))
	}
}

func TestTotalOwnedCountsConsumedAndExpired(t *testing.T) {
	db := testutil.OpenDB(t)
	l := New(db)
	ctx := context.Background()
	now := time.Now()

	owner := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)
	testutil.GrantCredit(t, db, owner.ID, now.Add(-time.Hour))
	credit := testutil.GrantCredit(t, db, owner.ID, now.Add(time.Hour))
	if err := l.Claim(db, credit.ID, 1, now); err != nil {
		t.Fatalf("claim: %v", err)
	}

	total, err := l.TotalOwned(ctx, owner.ID)
	if err != nil {
		t.Fatalf("TotalOwned: %v", err)
	}
	if total != 2 {
		t.Errorf("TotalOwned = %d, want 2", total)
	}
}

// TestConcurrentClaims drives N contending claimants at a pool of K credits
// and expects exactly K winners; every loser gets not_found or conflict,
// never a double-claimed credit.
func TestConcurrentClaims(t *testing.T) {
	db := testutil.OpenDB(t)
	l := New(db)
	now := time.Now()

	const pool = 3
	const claimants = 8

	owner := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)
	for i := 0; i < pool; i++ {
		testutil.GrantCredit(t, db, owner.ID, now.Add(time.Hour))
	}

	var wg sync.WaitGroup
	results := make([]error, claimants)
	for i := 0; i < claimants; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			results[n] = db.Transaction(func(tx *gorm.DB) error {
				credit, err := l.NextClaimable(tx, owner.ID, now)
				if err != nil {
					return err
				}
				// Distinct synthetic booking IDs; the allocation
				// coordinator normally supplies real ones.
				return l.Claim(tx, credit.ID, uint(n+1), now)
			})
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		switch utils.KindOf(err) {
		case utils.KindNotFound, utils.KindConflict:
		default:
			t.Errorf("unexpected loser error: %v", err)
		}
	}
	if wins != pool {
		t.Fatalf("winners = %d, want exactly %d", wins, pool)
	}

	var consumed int64
	if err := db.Model(&models.Credit{}).Where("booking_id IS NOT NULL").Count(&consumed).Error; err != nil {
		t.Fatalf("counting consumed credits: %v", err)
	}
	if consumed != pool {
		t.Errorf("consumed credits = %d, want %d", consumed, pool)
	}
}
