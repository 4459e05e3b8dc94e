package stats

import (
	"context"
	"sort"
	"time"

	"github.com/careslot/careslot-server/cmd/models"
	"github.com/careslot/careslot-server/cmd/utils"
	"gorm.io/gorm"
)

// Aggregator computes reporting figures from committed bookings and credits.
// It never writes.
type Aggregator struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Aggregator {
	return &Aggregator{db: db}
}

type ProviderStats struct {
	Canceled    int64 `json:"canceled"`
	Rescheduled int64 `json:"rescheduled"`
}

// ProviderStats counts distinct bookings by their current status. A booking
// that was rescheduled and later canceled counts once, as canceled.
func (a *Aggregator) ProviderStats(ctx context.Context, providerID uint) (*ProviderStats, error) {
	type statusCount struct {
		Status string
		Total  int64
	}

	var rows []statusCount
	err := a.db.WithContext(ctx).Model(&models.Booking{}).
		Select("status, count(*) AS total").
		Where("provider_id = ? AND status IN ?", providerID,
			[]string{models.StatusCanceled, models.StatusRescheduled}).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, utils.Internal(err)
	}

	stats := &ProviderStats{}
	for _, row := range rows {
		switch row.Status {
		case models.StatusCanceled:
			stats.Canceled = row.Total
		case models.StatusRescheduled:
			stats.Rescheduled = row.Total
		}
	}
	return stats, nil
}

type MonthlyCreditUsage struct {
	Year           int     `json:"year"`
	Month          int     `json:"month"`
	CreditsUsed    int     `json:"credits_used"`
	PercentageUsed float64 `json:"percentage_used"`
}

// PatientCreditStats reports, per calendar month of booking time, how many
// distinct credits the patient consumed through confirmed bookings, and what
// share of every credit the patient ever owned that represents. Months with
// no confirmed credit-backed booking produce no row. The denominator is
// floored at one so a patient with zero credits still gets a well defined
// percentage.
func (a *Aggregator) PatientCreditStats(ctx context.Context, patientID uint) ([]MonthlyCreditUsage, error) {
	var totalOwned int64
	if err := a.db.WithContext(ctx).Model(&models.Credit{}).
		Where("user_id = ?", patientID).
		Count(&totalOwned).Error; err != nil {
		return nil, utils.Internal(err)
	}
	denominator := totalOwned
	if denominator < 1 {
		denominator = 1
	}

	type bookingRow struct {
		Time     time.Time
		CreditID uint
	}
	var rows []bookingRow
	err := a.db.WithContext(ctx).Model(&models.Booking{}).
		Select("time, credit_id").
		Where("patient_id = ? AND status = ?", patientID, models.StatusConfirmed).
		Scan(&rows).Error
	if err != nil {
		return nil, utils.Internal(err)
	}

	type yearMonth struct {
		year  int
		month int
	}
	buckets := make(map[yearMonth]map[uint]bool)
	for _, row := range rows {
		key := yearMonth{row.Time.Year(), int(row.Time.Month())}
		if buckets[key] == nil {
			buckets[key] = make(map[uint]bool)
		}
		buckets[key][row.CreditID] = true
	}

	usage := make([]MonthlyCreditUsage, 0, len(buckets))
	for key, credits := range buckets {
		used := len(credits)
		usage = append(usage, MonthlyCreditUsage{
			Year:           key.year,
			Month:          key.month,
			CreditsUsed:    used,
			PercentageUsed: float64(used) / float64(denominator) * 100,
		})
	}
	sort.Slice(usage, func(i, j int) bool {
		if usage[i].Year != usage[j].Year {
			return usage[i].Year < usage[j].Year
		}
		return usage[i].Month < usage[j].Month
	})
	return usage, nil
}
