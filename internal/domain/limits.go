package domain

import "time"

// LimitRecord is a user's rolling withdrawal usage against daily and
// monthly caps. All amounts are micros.
type LimitRecord struct {
	DailyLimitMicros   int64
	MonthlyLimitMicros int64
	DailyUsedMicros    int64
	MonthlyUsedMicros  int64
	LastResetAt        time.Time
}

// DefaultLimits returns a fresh limit record with the platform defaults.
func DefaultLimits(now time.Time) LimitRecord {
	return LimitRecord{
		DailyLimitMicros:   DefaultDailyLimitMicros,
		MonthlyLimitMicros: DefaultMonthlyLimitMicros,
		LastResetAt:        now.UTC(),
	}
}

// ResetIfStale zeroes the daily counter when the UTC calendar day has rolled
// over since LastResetAt, and the monthly counter on month rollover. It is a
// pure function; callers apply the result inside the same transaction that
// reads or bumps the counters, so no scheduled reset job is needed.
func ResetIfStale(rec LimitRecord, now time.Time) LimitRecord {
	now = now.UTC()
	last := rec.LastResetAt.UTC()

	ly, lm, ld := last.Date()
	ny, nm, nd := now.Date()

	if ly != ny || lm != nm {
		rec.DailyUsedMicros = 0
		rec.MonthlyUsedMicros = 0
		rec.LastResetAt = now
		return rec
	}
	if ld != nd {
		rec.DailyUsedMicros = 0
		rec.LastResetAt = now
	}
	return rec
}

// DailyRemaining returns the unused portion of the daily cap.
func (r LimitRecord) DailyRemaining() int64 {
	if r.DailyUsedMicros >= r.DailyLimitMicros {
		return 0
	}
	return r.DailyLimitMicros - r.DailyUsedMicros
}

// MonthlyRemaining returns the unused portion of the monthly cap.
func (r LimitRecord) MonthlyRemaining() int64 {
	if r.MonthlyUsedMicros >= r.MonthlyLimitMicros {
		return 0
	}
	return r.MonthlyLimitMicros - r.MonthlyUsedMicros
}
