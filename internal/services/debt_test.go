package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"grana/internal/core"
	"grana/internal/storage"
)

func seedDebt(t *testing.T, repo *storage.MemoryRepository) int64 {
	t.Helper()
	id, err := repo.CreateDebt(context.Background(), core.Debt{
		UserID:            1,
		Description:       "Car loan",
		Principal:         decimal.RequireFromString("12000"),
		CurrentBalance:    decimal.RequireFromString("12000"),
		MonthlyRate:       decimal.RequireFromString("0.01"),
		Type:              core.AmortizationPrice,
		TotalInstallments: 12,
		StartDate:         core.NewDate(2024, 1, 10),
		Status:            core.DebtActive,
	})
	if err != nil {
		t.Fatalf("seed debt: %v", err)
	}
	return id
}

func TestEnsureScheduleIsIdempotent(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewDebtService(repo)
	ctx := context.Background()
	debtID := seedDebt(t, repo)

	first, err := svc.EnsureSchedule(ctx, debtID)
	if err != nil {
		t.Fatalf("EnsureSchedule() error: %v", err)
	}
	if len(first) != 12 {
		t.Fatalf("got %d installments, want 12", len(first))
	}

	second, err := svc.EnsureSchedule(ctx, debtID)
	if err != nil {
		t.Fatalf("second EnsureSchedule() error: %v", err)
	}
	if len(second) != 12 {
		t.Fatalf("second call got %d installments, want 12", len(second))
	}
	if second[0].ID != first[0].ID {
		t.Error("second call replaced the persisted schedule")
	}
}

func TestRegenerateScheduleResetsProgress(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewDebtService(repo)
	ctx := context.Background()
	debtID := seedDebt(t, repo)

	if _, err := svc.RegenerateSchedule(ctx, debtID); err != nil {
		t.Fatalf("RegenerateSchedule() error: %v", err)
	}

	debt, err := repo.GetDebt(ctx, debtID)
	if err != nil {
		t.Fatalf("GetDebt() error: %v", err)
	}
	if got := debt.CurrentBalance.StringFixed(2); got != "12000.00" {
		t.Errorf("balance after regenerate = %s, want 12000.00", got)
	}
	if debt.InstallmentsPaid != 0 {
		t.Errorf("installments paid = %d, want 0", debt.InstallmentsPaid)
	}
}

func TestRegenerateScheduleRejectsPaidSchedules(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewDebtService(repo)
	ctx := context.Background()
	debtID := seedDebt(t, repo)

	if _, err := svc.EnsureSchedule(ctx, debtID); err != nil {
		t.Fatalf("EnsureSchedule() error: %v", err)
	}
	if err := svc.PayInstallment(ctx, debtID, 1, 0, core.NewDate(2024, 2, 10)); err != nil {
		t.Fatalf("PayInstallment() error: %v", err)
	}

	if _, err := svc.RegenerateSchedule(ctx, debtID); !errors.Is(err, core.ErrScheduleHasPayments) {
		t.Errorf("RegenerateSchedule() = %v, want %v", err, core.ErrScheduleHasPayments)
	}
}

func TestRegenerateScheduleUnknownDebt(t *testing.T) {
	svc := NewDebtService(storage.NewMemoryRepository())
	if _, err := svc.RegenerateSchedule(context.Background(), 99); !errors.Is(err, core.ErrDebtNotFound) {
		t.Errorf("RegenerateSchedule() = %v, want %v", err, core.ErrDebtNotFound)
	}
}

func TestPayInstallmentRollsBalanceForward(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewDebtService(repo)
	ctx := context.Background()
	debtID := seedDebt(t, repo)

	if _, err := svc.EnsureSchedule(ctx, debtID); err != nil {
		t.Fatalf("EnsureSchedule() error: %v", err)
	}

	if err := svc.PayInstallment(ctx, debtID, 1, 42, core.NewDate(2024, 2, 10)); err != nil {
		t.Fatalf("PayInstallment() error: %v", err)
	}

	debt, err := repo.GetDebt(ctx, debtID)
	if err != nil {
		t.Fatalf("GetDebt() error: %v", err)
	}
	if got := debt.CurrentBalance.StringFixed(2); got != "11053.81" {
		t.Errorf("balance after first payment = %s, want 11053.81", got)
	}
	if debt.InstallmentsPaid != 1 {
		t.Errorf("installments paid = %d, want 1", debt.InstallmentsPaid)
	}

	installments, err := repo.GetDebtInstallments(ctx, debtID)
	if err != nil {
		t.Fatalf("GetDebtInstallments() error: %v", err)
	}
	if installments[0].PaidDate.IsZero() {
		t.Error("first installment not marked paid")
	}
	if installments[0].TransactionID != 42 {
		t.Errorf("linked transaction = %d, want 42", installments[0].TransactionID)
	}
}

func TestPayInstallmentEnforcesOrder(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewDebtService(repo)
	ctx := context.Background()
	debtID := seedDebt(t, repo)

	if _, err := svc.EnsureSchedule(ctx, debtID); err != nil {
		t.Fatalf("EnsureSchedule() error: %v", err)
	}

	if err := svc.PayInstallment(ctx, debtID, 3, 0, core.NewDate(2024, 2, 10)); err == nil {
		t.Error("out-of-order payment accepted")
	}

	if err := svc.PayInstallment(ctx, debtID, 99, 0, core.NewDate(2024, 2, 10)); !errors.Is(err, core.ErrInstallmentNotFound) {
		t.Errorf("unknown sequence: got %v, want %v", err, core.ErrInstallmentNotFound)
	}
}

func TestPayInstallmentRetryIsNoOp(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewDebtService(repo)
	ctx := context.Background()
	debtID := seedDebt(t, repo)

	if _, err := svc.EnsureSchedule(ctx, debtID); err != nil {
		t.Fatalf("EnsureSchedule() error: %v", err)
	}
	if err := svc.PayInstallment(ctx, debtID, 1, 0, core.NewDate(2024, 2, 10)); err != nil {
		t.Fatalf("PayInstallment() error: %v", err)
	}
	if err := svc.PayInstallment(ctx, debtID, 1, 0, core.NewDate(2024, 2, 11)); err != nil {
		t.Errorf("retry of paid installment: %v, want nil", err)
	}

	debt, err := repo.GetDebt(ctx, debtID)
	if err != nil {
		t.Fatalf("GetDebt() error: %v", err)
	}
	if debt.InstallmentsPaid != 1 {
		t.Errorf("retry advanced installments paid to %d", debt.InstallmentsPaid)
	}
}

func TestFinalPaymentSettlesDebt(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewDebtService(repo)
	ctx := context.Background()
	debtID := seedDebt(t, repo)

	if _, err := svc.EnsureSchedule(ctx, debtID); err != nil {
		t.Fatalf("EnsureSchedule() error: %v", err)
	}
	for seq := 1; seq <= 12; seq++ {
		if err := svc.PayInstallment(ctx, debtID, seq, 0, core.NewDate(2024, 1+seq, 10)); err != nil {
			t.Fatalf("PayInstallment(%d) error: %v", seq, err)
		}
	}

	debt, err := repo.GetDebt(ctx, debtID)
	if err != nil {
		t.Fatalf("GetDebt() error: %v", err)
	}
	if debt.Status != core.DebtSettled {
		t.Errorf("status = %s, want %s", debt.Status, core.DebtSettled)
	}
	if !debt.CurrentBalance.IsZero() {
		t.Errorf("settled balance = %s, want 0", debt.CurrentBalance)
	}
}

func TestPreviewScheduleDoesNotPersist(t *testing.T) {
	repo := storage.NewMemoryRepository()
	svc := NewDebtService(repo)
	debtID := seedDebt(t, repo)

	schedule, err := svc.PreviewSchedule(ScheduleTerms{
		Principal:    decimal.RequireFromString("5000"),
		MonthlyRate:  decimal.RequireFromString("0.02"),
		Installments: 6,
		Type:         core.AmortizationSAC,
		StartDate:    core.NewDate(2024, 5, 1),
	})
	if err != nil {
		t.Fatalf("PreviewSchedule() error: %v", err)
	}
	if len(schedule) != 6 {
		t.Errorf("got %d installments, want 6", len(schedule))
	}

	persisted, err := repo.GetDebtInstallments(context.Background(), debtID)
	if err != nil {
		t.Fatalf("GetDebtInstallments() error: %v", err)
	}
	if len(persisted) != 0 {
		t.Errorf("preview persisted %d installments", len(persisted))
	}
}
