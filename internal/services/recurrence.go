// Package services implements the recurring-transaction and projection
// engine: occurrence scheduling, amortization, idempotent generation and
// cash-flow forecasting.
//
// This file implements occurrence computation. Each frequency maps to a
// stepper that knows how to produce the n-th occurrence of a definition,
// so the same arithmetic serves both cursor advancement (generation) and
// window enumeration (forecast simulation).
package services

import (
	"fmt"
	"time"

	"grana/internal/core"
)

// occurrenceStepper produces the n-th occurrence (n >= 0) of a recurring
// definition. Occurrences are anchored to the definition's start date;
// the n-th is always derived from the anchor, never from the (n-1)-th.
type occurrenceStepper interface {
	occurrence(def core.RecurringTransaction, n int) time.Time
	// lowerIndex returns an index whose occurrence is guaranteed to be
	// at or before t. It may undershoot, never overshoot.
	lowerIndex(def core.RecurringTransaction, t time.Time) int
}

// dayStepper advances by a fixed number of days per occurrence.
type dayStepper struct {
	days int
}

func (s dayStepper) occurrence(def core.RecurringTransaction, n int) time.Time {
	return core.DateOnly(def.StartDate).AddDate(0, 0, n*s.days)
}

func (s dayStepper) lowerIndex(def core.RecurringTransaction, t time.Time) int {
	elapsed := int(core.DateOnly(t).Sub(core.DateOnly(def.StartDate)) / (24 * time.Hour))
	if elapsed <= 0 {
		return 0
	}
	n := elapsed/s.days - 1
	if n < 0 {
		return 0
	}
	return n
}

// monthStepper advances by a fixed number of calendar months and resolves
// the day of month per the definition's policy (explicit day clamped to
// the target month, or the literal last day).
type monthStepper struct {
	months int
}

func (s monthStepper) occurrence(def core.RecurringTransaction, n int) time.Time {
	return core.StepMonths(def.StartDate, n*s.months, def.DayOfMonth, def.UseLastDay)
}

func (s monthStepper) lowerIndex(def core.RecurringTransaction, t time.Time) int {
	n := core.MonthsBetween(def.StartDate, t)/s.months - 1
	if n < 0 {
		return 0
	}
	return n
}

// frequencySteppers maps each supported frequency to its stepper.
var frequencySteppers = map[core.Frequency]occurrenceStepper{
	core.Daily:      dayStepper{days: 1},
	core.Weekly:     dayStepper{days: 7},
	core.Biweekly:   dayStepper{days: 14},
	core.Monthly:    monthStepper{months: 1},
	core.Bimonthly:  monthStepper{months: 2},
	core.Quarterly:  monthStepper{months: 3},
	core.Semiannual: monthStepper{months: 6},
	core.Annual:     monthStepper{months: 12},
}

// Scheduler computes occurrence dates for recurring definitions. It is
// stateless and safe for concurrent use.
type Scheduler struct{}

func (Scheduler) stepperFor(def core.RecurringTransaction) (occurrenceStepper, error) {
	if err := def.ValidateSchedule(); err != nil {
		return nil, err
	}
	st, ok := frequencySteppers[def.Frequency]
	if !ok {
		return nil, fmt.Errorf("no stepper for frequency %q: %w", def.Frequency, core.ErrInvalidFrequency)
	}
	return st, nil
}

// NextAfter returns the first occurrence strictly after the given time.
// The definition's end date is not applied here: the caller decides
// whether a cursor past the end date matters. The result is never before
// the definition's start date.
func (s Scheduler) NextAfter(def core.RecurringTransaction, after time.Time) (time.Time, error) {
	st, err := s.stepperFor(def)
	if err != nil {
		return time.Time{}, err
	}
	afterDate := core.DateOnly(after)
	startDate := core.DateOnly(def.StartDate)
	for n := st.lowerIndex(def, afterDate); ; n++ {
		occ := st.occurrence(def, n)
		if occ.After(afterDate) && !occ.Before(startDate) {
			return occ, nil
		}
	}
}

// Occurrences enumerates every occurrence in [windowStart, windowEnd],
// bounded by the definition's start and end dates. This is the forecast
// simulation mode: it never touches persisted state.
func (s Scheduler) Occurrences(def core.RecurringTransaction, windowStart, windowEnd time.Time) ([]time.Time, error) {
	st, err := s.stepperFor(def)
	if err != nil {
		return nil, err
	}
	lower := core.DateOnly(windowStart)
	if start := core.DateOnly(def.StartDate); start.After(lower) {
		lower = start
	}
	upper := core.DateOnly(windowEnd)
	if !def.EndDate.IsZero() {
		if end := core.DateOnly(def.EndDate); end.Before(upper) {
			upper = end
		}
	}
	if upper.Before(lower) {
		return nil, nil
	}

	var out []time.Time
	for n := st.lowerIndex(def, lower); ; n++ {
		occ := st.occurrence(def, n)
		if occ.After(upper) {
			break
		}
		if occ.Before(lower) {
			continue
		}
		out = append(out, occ)
	}
	return out, nil
}
