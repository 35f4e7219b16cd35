package domain_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/car-rental/backend/internal/domain"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func mustRange(t *testing.T, start, end time.Time) domain.DateRange {
	t.Helper()
	r, err := domain.NewDateRange(start, end)
	require.NoError(t, err)
	return r
}

func TestNewDateRange_StartAfterEnd(t *testing.T) {
	_, err := domain.NewDateRange(date(2024, 1, 5), date(2024, 1, 1))

	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestNewDateRange_DropsTimeOfDay(t *testing.T) {
	r := mustRange(t,
		time.Date(2024, 1, 1, 15, 30, 0, 0, time.UTC),
		time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC), // same day, earlier hour
	)

	assert.Equal(t, date(2024, 1, 1), r.Start)
	assert.Equal(t, 1, r.Days())
}

func TestDay_KeepsCalendarDateOfLocation(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	late := time.Date(2024, 1, 5, 23, 0, 0, 0, loc) // already the 6th in UTC

	assert.Equal(t, date(2024, 1, 5), domain.Day(late))
}

func TestOverlaps_Cases(t *testing.T) {
	base := [2]time.Time{date(2024, 1, 10), date(2024, 1, 20)}

	cases := []struct {
		name string
		b    [2]time.Time
		want bool
	}{
		{"identical", base, true},
		{"touching at end", [2]time.Time{date(2024, 1, 20), date(2024, 1, 25)}, true},
		{"touching at start", [2]time.Time{date(2024, 1, 1), date(2024, 1, 10)}, true},
		{"contained", [2]time.Time{date(2024, 1, 12), date(2024, 1, 13)}, true},
		{"containing", [2]time.Time{date(2024, 1, 1), date(2024, 2, 1)}, true},
		{"day after", [2]time.Time{date(2024, 1, 21), date(2024, 1, 25)}, false},
		{"day before", [2]time.Time{date(2024, 1, 1), date(2024, 1, 9)}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := domain.Overlaps(base[0], base[1], tc.b[0], tc.b[1])
			assert.Equal(t, tc.want, got)
			// symmetry
			assert.Equal(t, got, domain.Overlaps(tc.b[0], tc.b[1], base[0], base[1]))
		})
	}
}

func TestOverlaps_Reflexive(t *testing.T) {
	start := date(2024, 2, 27)
	for i := 0; i < 40; i++ {
		a := mustRange(t, start, start.AddDate(0, 0, i))
		assert.True(t, a.Overlaps(a), "range %s must overlap itself", a)
	}
}

func TestOverlaps_SymmetricGrid(t *testing.T) {
	origin := date(2024, 3, 1)
	var ranges []domain.DateRange
	for s := 0; s < 6; s++ {
		for l := 0; l < 4; l++ {
			ranges = append(ranges, mustRange(t, origin.AddDate(0, 0, s), origin.AddDate(0, 0, s+l)))
		}
	}
	for _, a := range ranges {
		for _, b := range ranges {
			assert.Equal(t, a.Overlaps(b), b.Overlaps(a), "%s vs %s", a, b)
		}
	}
}

func TestClip(t *testing.T) {
	period := mustRange(t, date(2024, 1, 1), date(2024, 1, 10))

	t.Run("partially after", func(t *testing.T) {
		r := mustRange(t, date(2024, 1, 3), date(2024, 1, 12))

		got, ok := r.Clip(period)

		require.True(t, ok)
		assert.Equal(t, date(2024, 1, 3), got.Start)
		assert.Equal(t, date(2024, 1, 10), got.End)
		assert.Equal(t, 8, got.Days())
		// inputs untouched
		assert.Equal(t, date(2024, 1, 12), r.End)
		assert.Equal(t, date(2024, 1, 1), period.Start)
	})

	t.Run("partially before", func(t *testing.T) {
		r := mustRange(t, date(2023, 12, 25), date(2024, 1, 2))

		got, ok := r.Clip(period)

		require.True(t, ok)
		assert.Equal(t, 2, got.Days())
	})

	t.Run("disjoint", func(t *testing.T) {
		r := mustRange(t, date(2024, 1, 11), date(2024, 1, 12))

		_, ok := r.Clip(period)

		assert.False(t, ok)
	})

	t.Run("covering", func(t *testing.T) {
		r := mustRange(t, date(2023, 1, 1), date(2025, 1, 1))

		got, ok := r.Clip(period)

		require.True(t, ok)
		assert.Equal(t, period, got)
	})
}

func TestInclusiveDayCount(t *testing.T) {
	assert.Equal(t, 1, domain.InclusiveDayCount(date(2024, 1, 1), date(2024, 1, 1)))
	assert.Equal(t, 5, domain.InclusiveDayCount(date(2024, 1, 1), date(2024, 1, 5)))
	assert.Equal(t, 29, domain.InclusiveDayCount(date(2024, 2, 1), date(2024, 2, 29))) // leap year
	assert.Equal(t, 366, domain.InclusiveDayCount(date(2024, 1, 1), date(2024, 12, 31)))
	assert.Equal(t, 0, domain.InclusiveDayCount(date(2024, 1, 2), date(2024, 1, 1)))
}

func TestParsePaymentMethod(t *testing.T) {
	m, err := domain.ParsePaymentMethod(" PayPal ")
	require.NoError(t, err)
	assert.Equal(t, domain.MethodPayPal, m)

	m, err = domain.ParsePaymentMethod("STRIPE")
	require.NoError(t, err)
	assert.Equal(t, domain.MethodStripe, m)

	_, err = domain.ParsePaymentMethod("bitcoin")
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestReservationState_String(t *testing.T) {
	assert.Equal(t, "FAILED_NEEDS_COMPENSATION", domain.StateFailedNeedsCompensation.String())
	assert.Equal(t, "CHECKING_AVAILABILITY", domain.StateCheckingAvailability.String())
	assert.Equal(t, "UNKNOWN", domain.ReservationState(99).String())
	assert.True(t, domain.StateRejected.Terminal())
	assert.False(t, domain.StatePricing.Terminal())
}
