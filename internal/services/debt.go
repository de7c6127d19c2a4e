package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"grana/internal/core"

	"github.com/shopspring/decimal"
)

// DebtStore is the persistence surface for debt schedules.
// ReplaceDebtInstallments swaps the full installment set atomically.
type DebtStore interface {
	GetDebt(ctx context.Context, debtID int64) (core.Debt, error)
	GetDebtInstallments(ctx context.Context, debtID int64) ([]core.DebtInstallment, error)
	ReplaceDebtInstallments(ctx context.Context, debtID int64, installments []core.DebtInstallment) error
	MarkInstallmentPaid(ctx context.Context, debtID int64, sequence int, paidDate time.Time, transactionID int64) error
	UpdateDebtProgress(ctx context.Context, debtID int64, balance decimal.Decimal, installmentsPaid int, status core.DebtStatus) error
}

// DebtService orchestrates schedule generation and settlement
// bookkeeping around the pure amortization engine.
type DebtService struct {
	store DebtStore
}

func NewDebtService(store DebtStore) *DebtService {
	return &DebtService{store: store}
}

// PreviewSchedule computes a schedule without persisting anything.
func (s *DebtService) PreviewSchedule(terms ScheduleTerms) ([]core.DebtInstallment, error) {
	return GenerateSchedule(terms)
}

// RegenerateSchedule replaces a debt's full installment set from its
// current terms. A schedule with any paid installment is never touched:
// the caller must settle or cancel the debt instead.
func (s *DebtService) RegenerateSchedule(ctx context.Context, debtID int64) ([]core.DebtInstallment, error) {
	debt, err := s.store.GetDebt(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if debt.Status != core.DebtActive {
		return nil, fmt.Errorf("debt %d is %s: %w", debtID, debt.Status, core.ErrScheduleHasPayments)
	}
	if debt.InstallmentsPaid > 0 {
		return nil, core.ErrScheduleHasPayments
	}

	existing, err := s.store.GetDebtInstallments(ctx, debtID)
	if err != nil {
		return nil, err
	}
	for _, inst := range existing {
		if !inst.PaidDate.IsZero() {
			return nil, core.ErrScheduleHasPayments
		}
	}

	schedule, err := GenerateSchedule(TermsForDebt(debt))
	if err != nil {
		return nil, err
	}
	for i := range schedule {
		schedule[i].DebtID = debtID
	}
	if err := s.store.ReplaceDebtInstallments(ctx, debtID, schedule); err != nil {
		return nil, fmt.Errorf("replace installments: %w", err)
	}
	if err := s.store.UpdateDebtProgress(ctx, debtID, debt.Principal, 0, core.DebtActive); err != nil {
		return nil, fmt.Errorf("reset debt progress: %w", err)
	}

	slog.InfoContext(ctx, "Debt schedule regenerated",
		"debt_id", debtID,
		"type", debt.Type,
		"installments", len(schedule))
	return schedule, nil
}

// PayInstallment marks the next due installment paid, links the settled
// ledger transaction and rolls the debt's balance forward. Installments
// are paid in sequence order; paying an already-paid installment is a
// no-op. The final payment settles the debt.
func (s *DebtService) PayInstallment(ctx context.Context, debtID int64, sequence int, transactionID int64, paidDate time.Time) error {
	debt, err := s.store.GetDebt(ctx, debtID)
	if err != nil {
		return err
	}
	installments, err := s.store.GetDebtInstallments(ctx, debtID)
	if err != nil {
		return err
	}

	var target *core.DebtInstallment
	for i := range installments {
		if installments[i].Sequence == sequence {
			target = &installments[i]
			break
		}
	}
	if target == nil {
		return core.ErrInstallmentNotFound
	}
	if !target.PaidDate.IsZero() {
		// Retry of a settled payment; nothing to do.
		return nil
	}
	if sequence != debt.InstallmentsPaid+1 {
		return fmt.Errorf("installment %d of debt %d paid out of order (next is %d)",
			sequence, debtID, debt.InstallmentsPaid+1)
	}

	if err := s.store.MarkInstallmentPaid(ctx, debtID, sequence, core.DateOnly(paidDate), transactionID); err != nil {
		return fmt.Errorf("mark installment paid: %w", err)
	}

	paid := debt.InstallmentsPaid + 1
	balance := target.RemainingBalance
	status := core.DebtActive
	if paid == debt.TotalInstallments {
		status = core.DebtSettled
		balance = decimal.Zero
	}
	if err := s.store.UpdateDebtProgress(ctx, debtID, balance, paid, status); err != nil {
		return fmt.Errorf("update debt progress: %w", err)
	}

	slog.InfoContext(ctx, "Debt installment paid",
		"debt_id", debtID,
		"sequence", sequence,
		"remaining_balance", balance.StringFixed(core.CurrencyPlaces),
		"status", status)
	return nil
}

// EnsureSchedule generates and persists the schedule for a debt that has
// none yet. It is safe to call repeatedly.
func (s *DebtService) EnsureSchedule(ctx context.Context, debtID int64) ([]core.DebtInstallment, error) {
	existing, err := s.store.GetDebtInstallments(ctx, debtID)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return existing, nil
	}
	schedule, err := s.RegenerateSchedule(ctx, debtID)
	if err != nil && errors.Is(err, core.ErrScheduleHasPayments) {
		// No installments but payments recorded on the debt itself:
		// data integrity problem, surface it.
		return nil, fmt.Errorf("debt %d has payment progress but no schedule: %w", debtID, err)
	}
	return schedule, err
}
