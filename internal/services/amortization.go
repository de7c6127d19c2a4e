package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"grana/internal/core"
)

// ScheduleTerms are the inputs of an amortization run. MonthlyRate is a
// fraction per month (0.01 = 1% a month).
type ScheduleTerms struct {
	Principal    decimal.Decimal
	MonthlyRate  decimal.Decimal
	Installments int
	Type         core.AmortizationType
	StartDate    time.Time
	// BulletInterestOnly makes intermediate bullet periods pay interest
	// as they accrue; otherwise interest compounds into the balloon.
	BulletInterestOnly bool
}

// TermsForDebt extracts schedule terms from a debt.
func TermsForDebt(d core.Debt) ScheduleTerms {
	return ScheduleTerms{
		Principal:          d.Principal,
		MonthlyRate:        d.MonthlyRate,
		Installments:       d.TotalInstallments,
		Type:               d.Type,
		StartDate:          d.StartDate,
		BulletInterestOnly: d.BulletInterestOnly,
	}
}

func (t ScheduleTerms) validate() error {
	if t.Installments < 1 {
		return core.ErrInvalidInstallments
	}
	if t.Principal.LessThanOrEqual(decimal.Zero) {
		return core.ErrInvalidPrincipal
	}
	if t.MonthlyRate.IsNegative() {
		return core.ErrNegativeRate
	}
	if !t.Type.Valid() {
		return core.ErrInvalidAmortization
	}
	if t.StartDate.IsZero() {
		return fmt.Errorf("schedule start date cannot be zero")
	}
	return nil
}

// GenerateSchedule turns debt terms into an ordered installment schedule.
// Pure and deterministic: no I/O, no clock reads.
//
// All intermediate arithmetic stays at full decimal precision; each
// installment's interest is rounded to the currency unit and the last
// installment absorbs the rounding residue so that the principal portions
// sum exactly to the original principal and the remaining balance ends
// at zero. Due dates advance one calendar month per installment from the
// start date, clamped to shorter months.
func GenerateSchedule(t ScheduleTerms) ([]core.DebtInstallment, error) {
	if err := t.validate(); err != nil {
		return nil, err
	}
	switch t.Type {
	case core.AmortizationPrice:
		return priceSchedule(t), nil
	case core.AmortizationSAC:
		return sacSchedule(t), nil
	case core.AmortizationBullet:
		return bulletSchedule(t), nil
	}
	return nil, core.ErrInvalidAmortization
}

// dueDate resolves installment i (1..n) against the start date's day,
// clamped to the end of shorter months.
func (t ScheduleTerms) dueDate(i int) time.Time {
	return core.StepMonths(t.StartDate, i, t.StartDate.Day(), false)
}

// priceSchedule implements the French (annuity) system: constant total
// installment A = P*r / (1 - (1+r)^-n), shrinking interest portion.
func priceSchedule(t ScheduleTerms) []core.DebtInstallment {
	n := t.Installments
	one := decimal.NewFromInt(1)
	nDec := decimal.NewFromInt(int64(n))

	var payment decimal.Decimal
	if t.MonthlyRate.IsZero() {
		payment = core.RoundCurrency(t.Principal.Div(nDec))
	} else {
		factor := one.Add(t.MonthlyRate).Pow(nDec)
		payment = core.RoundCurrency(t.Principal.Mul(t.MonthlyRate).Mul(factor).Div(factor.Sub(one)))
	}

	schedule := make([]core.DebtInstallment, 0, n)
	remaining := t.Principal
	for i := 1; i <= n; i++ {
		interest := core.RoundCurrency(remaining.Mul(t.MonthlyRate))
		principal := payment.Sub(interest)
		total := payment
		if i == n {
			// Terminal installment absorbs the rounding residue.
			principal = remaining
			total = principal.Add(interest)
		}
		remaining = remaining.Sub(principal)
		schedule = append(schedule, core.DebtInstallment{
			Sequence:         i,
			DueDate:          t.dueDate(i),
			TotalAmount:      total,
			PrincipalAmount:  principal,
			InterestAmount:   interest,
			RemainingBalance: remaining,
		})
	}
	return schedule
}

// sacSchedule implements the constant-amortization system: fixed
// principal portion, interest on the outstanding balance, so the total
// installment shrinks over time.
func sacSchedule(t ScheduleTerms) []core.DebtInstallment {
	n := t.Installments
	base := core.RoundCurrency(t.Principal.Div(decimal.NewFromInt(int64(n))))

	schedule := make([]core.DebtInstallment, 0, n)
	remaining := t.Principal
	for i := 1; i <= n; i++ {
		interest := core.RoundCurrency(remaining.Mul(t.MonthlyRate))
		principal := base
		if i == n {
			principal = remaining
		}
		remaining = remaining.Sub(principal)
		schedule = append(schedule, core.DebtInstallment{
			Sequence:         i,
			DueDate:          t.dueDate(i),
			TotalAmount:      principal.Add(interest),
			PrincipalAmount:  principal,
			InterestAmount:   interest,
			RemainingBalance: remaining,
		})
	}
	return schedule
}

// bulletSchedule repays the whole principal in the final installment.
// Intermediate periods either pay interest as it accrues or carry
// nothing while interest compounds into the balloon, per the terms.
func bulletSchedule(t ScheduleTerms) []core.DebtInstallment {
	n := t.Installments
	one := decimal.NewFromInt(1)
	periodInterest := core.RoundCurrency(t.Principal.Mul(t.MonthlyRate))

	schedule := make([]core.DebtInstallment, 0, n)
	for i := 1; i < n; i++ {
		interest := decimal.Zero
		if t.BulletInterestOnly {
			interest = periodInterest
		}
		schedule = append(schedule, core.DebtInstallment{
			Sequence:         i,
			DueDate:          t.dueDate(i),
			TotalAmount:      interest,
			PrincipalAmount:  decimal.Zero,
			InterestAmount:   interest,
			RemainingBalance: t.Principal,
		})
	}

	finalInterest := periodInterest
	if !t.BulletInterestOnly {
		// Unpaid interest compounds: balloon carries P*((1+r)^n - 1).
		factor := one.Add(t.MonthlyRate).Pow(decimal.NewFromInt(int64(n)))
		finalInterest = core.RoundCurrency(t.Principal.Mul(factor.Sub(one)))
	}
	schedule = append(schedule, core.DebtInstallment{
		Sequence:         n,
		DueDate:          t.dueDate(n),
		TotalAmount:      t.Principal.Add(finalInterest),
		PrincipalAmount:  t.Principal,
		InterestAmount:   finalInterest,
		RemainingBalance: decimal.Zero,
	})
	return schedule
}
