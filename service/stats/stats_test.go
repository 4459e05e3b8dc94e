package stats_test

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/careslot/careslot-server/cmd/models"
	"github.com/careslot/careslot-server/service/booking"
	"github.com/careslot/careslot-server/service/stats"
	"github.com/careslot/careslot-server/service/testutil"
	"gorm.io/gorm"
)

// seedBooking creates a booking through the lifecycle manager and walks it
// through the given transitions, so statistics are computed from the same
// rows the write path produces.
func seedBooking(t *testing.T, db *gorm.DB, patientID *uint, providerID uint, at time.Time, transitions ...string) *models.Booking {
	t.Helper()

	lifecycle := booking.NewLifecycle(db)

	ownerID := providerID
	if patientID != nil {
		ownerID = *patientID
	}
	credit := testutil.GrantCredit(t, db, ownerID, at.Add(24*time.Hour))

	b := models.Booking{
		Time:       at,
		PatientID:  patientID,
		ProviderID: providerID,
		CreditID:   credit.ID,
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		return lifecycle.Create(tx, &b)
	})
	if err != nil {
		t.Fatalf("creating booking: %v", err)
	}
	if err := db.Model(credit).Update("booking_id", b.ID).Error; err != nil {
		t.Fatalf("binding credit: %v", err)
	}

	for _, status := range transitions {
		if _, err := lifecycle.Transition(context.Background(), b.ID, status); err != nil {
			t.Fatalf("transition to %s: %v", status, err)
		}
	}
	return &b
}

func TestProviderStatsCountsCurrentStatusOnly(t *testing.T) {
	db := testutil.OpenDB(t)
	a := stats.New(db)
	ctx := context.Background()

	provider := testutil.CreateUser(t, db, "provider@example.com", models.RoleProvider)
	patient := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)
	at := time.Now().Add(24 * time.Hour)

	// Canceled directly.
	seedBooking(t, db, &patient.ID, provider.ID, at,
		models.StatusCanceled)
	// Rescheduled and still rescheduled.
	seedBooking(t, db, &patient.ID, provider.ID, at,
		models.StatusConfirmed, models.StatusRescheduled)
	// Rescheduled on the way, but canceled now: counts once, as canceled.
	seedBooking(t, db, &patient.ID, provider.ID, at,
		models.StatusConfirmed, models.StatusRescheduled, models.StatusConfirmed, models.StatusCanceled)
	// Completed: counts as neither.
	seedBooking(t, db, &patient.ID, provider.ID, at,
		models.StatusConfirmed, models.StatusCompleted)

	stats, err := a.ProviderStats(ctx, provider.ID)
	if err != nil {
		t.Fatalf("ProviderStats: %v", err)
	}
	if stats.Canceled != 2 {
		t.Errorf("Canceled = %d, want 2", stats.Canceled)
	}
	if stats.Rescheduled != 1 {
		t.Errorf("Rescheduled = %d, want 1", stats.Rescheduled)
	}
}

func TestProviderStatsScopedToProvider(t *testing.T) {
	db := testutil.OpenDB(t)
	a := stats.New(db)

	provider := testutil.CreateUser(t, db, "provider@example.com", models.RoleProvider)
	other := testutil.CreateUser(t, db, "other@example.com", models.RoleProvider)
	patient := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)

	seedBooking(t, db, &patient.ID, other.ID, time.Now().Add(24*time.Hour),
		models.StatusCanceled)

	stats, err := a.ProviderStats(context.Background(), provider.ID)
	if err != nil {
		t.Fatalf("ProviderStats: %v", err)
	}
	if stats.Canceled != 0 || stats.Rescheduled != 0 {
		t.Errorf("stats = %+v, want zero counts for uninvolved provider", stats)
	}
}

func TestPatientCreditStatsMonthlyGrouping(t *testing.T) {
	db := testutil.OpenDB(t)
	a := stats.New(db)
	ctx := context.Background()

	provider := testutil.CreateUser(t, db, "provider@example.com", models.RoleProvider)
	patient := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)

	march := time.Date(2027, time.March, 10, 9, 0, 0, 0, time.UTC)
	april := time.Date(2027, time.April, 5, 9, 0, 0, 0, time.UTC)

	// Two confirmed credit-backed bookings in March, one in April.
	seedBooking(t, db, &patient.ID, provider.ID, march, models.StatusConfirmed)
	seedBooking(t, db, &patient.ID, provider.ID, march.AddDate(0, 0, 7), models.StatusConfirmed)
	seedBooking(t, db, &patient.ID, provider.ID, april, models.StatusConfirmed)
	// Pending and canceled bookings never count.
	seedBooking(t, db, &patient.ID, provider.ID, march.AddDate(0, 0, 1))
	seedBooking(t, db, &patient.ID, provider.ID, april.AddDate(0, 0, 1), models.StatusCanceled)

	// 5 credits granted above; give the patient one more that stays unused.
	testutil.GrantCredit(t, db, patient.ID, april.AddDate(1, 0, 0))

	usage, err := a.PatientCreditStats(ctx, patient.ID)
	if err != nil {
		t.Fatalf("PatientCreditStats: %v", err)
	}

	if len(usage) != 2 {
		t.Fatalf("usage rows = %d, want 2 (March and April)", len(usage))
	}

	totalOwned := 6.0
	if usage[0].Year != 2027 || usage[0].Month != int(time.March) {
		t.Errorf("usage[0] = %d-%d, want 2027-3", usage[0].Year, usage[0].Month)
	}
	if usage[0].CreditsUsed != 2 {
		t.Errorf("March credits used = %d, want 2", usage[0].CreditsUsed)
	}
	if want := 2 / totalOwned * 100; math.Abs(usage[0].PercentageUsed-want) > 1e-9 {
		t.Errorf("March percentage = %f, want %f", usage[0].PercentageUsed, want)
	}

	if usage[1].Year != 2027 || usage[1].Month != int(time.April) {
		t.Errorf("usage[1] = %d-%d, want 2027-4", usage[1].Year, usage[1].Month)
	}
	if usage[1].CreditsUsed != 1 {
		t.Errorf("April credits used = %d, want 1", usage[1].CreditsUsed)
	}
	if want := 1 / totalOwned * 100; math.Abs(usage[1].PercentageUsed-want) > 1e-9 {
		t.Errorf("April percentage = %f, want %f", usage[1].PercentageUsed, want)
	}
}

func TestPatientCreditStatsZeroOwnedCredits(t *testing.T) {
	db := testutil.OpenDB(t)
	a := stats.New(db)

	provider := testutil.CreateUser(t, db, "provider@example.com", models.RoleProvider)
	patient := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)

	// A confirmed booking funded from the provider's pool: the patient has
	// never owned a credit, so the denominator floors at one.
	credit := testutil.GrantCredit(t, db, provider.ID, time.Now().Add(48*time.Hour))
	b := models.Booking{
		Reference:  "zero-owned",
		Time:       time.Now().Add(24 * time.Hour),
		Status:     models.StatusConfirmed,
		PatientID:  &patient.ID,
		ProviderID: provider.ID,
		CreditID:   credit.ID,
	}
	if err := db.Create(&b).Error; err != nil {
		t.Fatalf("creating booking: %v", err)
	}

	usage, err := a.PatientCreditStats(context.Background(), patient.ID)
	if err != nil {
		t.Fatalf("PatientCreditStats: %v", err)
	}
	if len(usage) != 1 {
		t.Fatalf("usage rows = %d, want 1", len(usage))
	}
	if usage[0].CreditsUsed != 1 {
		t.Errorf("credits used = %d, want 1", usage[0].CreditsUsed)
	}
	if want := 100.0; math.Abs(usage[0].PercentageUsed-want) > 1e-9 {
		t.Errorf("percentage with zero owned credits = %f, want %f", usage[0].PercentageUsed, want)
	}
}

func TestPatientCreditStatsExcludesAnonymousBookings(t *testing.T) {
	db := testutil.OpenDB(t)
	a := stats.New(db)

	provider := testutil.CreateUser(t, db, "provider@example.com", models.RoleProvider)
	patient := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)

	seedBooking(t, db, nil, provider.ID, time.Now().Add(24*time.Hour), models.StatusConfirmed)

	usage, err := a.PatientCreditStats(context.Background(), patient.ID)
	if err != nil {
		t.Fatalf("PatientCreditStats: %v", err)
	}
	if len(usage) != 0 {
		t.Errorf("usage rows = %d, want 0 — anonymous bookings are not patient activity", len(usage))
	}
}

func TestPatientCreditStatsEmpty(t *testing.T) {
	db := testutil.OpenDB(t)
	a := stats.New(db)

	patient := testutil.CreateUser(t, db, "patient@example.com", models.RolePatient)

	usage, err := a.PatientCreditStats(context.Background(), patient.ID)
	if err != nil {
		t.Fatalf("PatientCreditStats: %v", err)
	}
	if len(usage) != 0 {
		t.Errorf("usage rows = %d, want 0", len(usage))
	}
}
