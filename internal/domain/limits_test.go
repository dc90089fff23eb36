package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestResetIfStale_SameDayKeepsUsage(t *testing.T) {
	last := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 14, 21, 30, 0, 0, time.UTC)

	rec := ResetIfStale(LimitRecord{
		DailyLimitMicros:   100_000_000,
		MonthlyLimitMicros: 1_000_000_000,
		DailyUsedMicros:    90_000_000,
		MonthlyUsedMicros:  400_000_000,
		LastResetAt:        last,
	}, now)

	assert.Equal(t, int64(90_000_000), rec.DailyUsedMicros)
	assert.Equal(t, int64(400_000_000), rec.MonthlyUsedMicros)
	assert.Equal(t, last, rec.LastResetAt)
}

func TestResetIfStale_DayRolloverZeroesDailyOnly(t *testing.T) {
	last := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	now := time.Date(2026, 3, 15, 0, 5, 0, 0, time.UTC)

	rec := ResetIfStale(LimitRecord{
		DailyUsedMicros:   90_000_000,
		MonthlyUsedMicros: 400_000_000,
		LastResetAt:       last,
	}, now)

	assert.Zero(t, rec.DailyUsedMicros)
	assert.Equal(t, int64(400_000_000), rec.MonthlyUsedMicros)
	assert.Equal(t, now, rec.LastResetAt)
}

func TestResetIfStale_MonthRolloverZeroesBoth(t *testing.T) {
	last := time.Date(2026, 3, 31, 23, 0, 0, 0, time.UTC)
	now := time.Date(2026, 4, 1, 0, 5, 0, 0, time.UTC)

	rec := ResetIfStale(LimitRecord{
		DailyUsedMicros:   90_000_000,
		MonthlyUsedMicros: 400_000_000,
		LastResetAt:       last,
	}, now)

	assert.Zero(t, rec.DailyUsedMicros)
	assert.Zero(t, rec.MonthlyUsedMicros)
	assert.Equal(t, now, rec.LastResetAt)
}

func TestResetIfStale_YearRollover(t *testing.T) {
	// Same month number, different year still counts as a month rollover.
	last := time.Date(2025, 4, 10, 12, 0, 0, 0, time.UTC)
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

	rec := ResetIfStale(LimitRecord{
		DailyUsedMicros:   1,
		MonthlyUsedMicros: 1,
		LastResetAt:       last,
	}, now)

	assert.Zero(t, rec.DailyUsedMicros)
	assert.Zero(t, rec.MonthlyUsedMicros)
}

func TestRemaining(t *testing.T) {
	rec := LimitRecord{
		DailyLimitMicros:   100_000_000,
		MonthlyLimitMicros: 1_000_000_000,
		DailyUsedMicros:    90_000_000,
		MonthlyUsedMicros:  1_200_000_000,
	}

	assert.Equal(t, int64(10_000_000), rec.DailyRemaining())
	// Overspent counters clamp to zero instead of going negative.
	assert.Zero(t, rec.MonthlyRemaining())
}
