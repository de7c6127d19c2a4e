package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"grana/internal/core"
	"grana/internal/storage"
)

func fixedNow(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestForecastRejectsNonPositiveHorizon(t *testing.T) {
	engine := NewForecastEngine(storage.NewMemoryRepository())
	for _, months := range []int{0, -3} {
		if _, err := engine.Forecast(context.Background(), 1, months); !errors.Is(err, core.ErrInvalidHorizon) {
			t.Errorf("Forecast(months=%d) = %v, want %v", months, err, core.ErrInvalidHorizon)
		}
	}
}

func TestForecastProjectsBalanceTrajectory(t *testing.T) {
	repo := storage.NewMemoryRepository()
	ctx := context.Background()

	accID := seedAccount(t, repo, 1) // initial balance 1000

	// Pending electricity bill inside the window.
	if _, err := repo.InsertTransaction(ctx, core.Transaction{
		UserID:      1,
		AccountID:   accID,
		Description: "Electricity",
		Direction:   core.Expense,
		Amount:      decimal.RequireFromString("200"),
		Status:      core.TransactionPending,
		DueDate:     core.NewDate(2024, 3, 15),
	}); err != nil {
		t.Fatalf("seed pending transaction: %v", err)
	}

	// Monthly salary on the 1st, simulated inside the window.
	seedRecurring(t, repo, salaryDef(1, accID))

	engine := NewForecastEngine(repo)
	engine.now = fixedNow(core.NewDate(2024, 3, 10))

	forecast, err := engine.Forecast(ctx, 1, 2)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}

	if got := forecast.StartingBalance.StringFixed(2); got != "1000.00" {
		t.Errorf("starting balance = %s, want 1000.00", got)
	}

	// Window is [2024-03-10, 2024-05-10]: the bill on Mar 15 and
	// salaries on Apr 1 and May 1.
	if len(forecast.DataPoints) != 3 {
		t.Fatalf("got %d data points, want 3: %+v", len(forecast.DataPoints), forecast.DataPoints)
	}

	wantBalances := []struct {
		date    time.Time
		balance string
	}{
		{core.NewDate(2024, 3, 15), "800.00"},
		{core.NewDate(2024, 4, 1), "3800.00"},
		{core.NewDate(2024, 5, 1), "6800.00"},
	}
	for i, want := range wantBalances {
		p := forecast.DataPoints[i]
		if !p.Date.Equal(want.date) {
			t.Errorf("point %d date = %v, want %v", i, p.Date, want.date)
		}
		if got := p.Balance.StringFixed(2); got != want.balance {
			t.Errorf("point %d balance = %s, want %s", i, got, want.balance)
		}
		if p.Estimated {
			t.Errorf("point %d flagged estimated with only fixed amounts", i)
		}
	}

	// Balance conservation: the last balance equals starting plus all
	// incoming minus all outgoing.
	net := forecast.StartingBalance
	for _, p := range forecast.DataPoints {
		net = net.Add(p.Incoming).Sub(p.Outgoing)
	}
	if last := forecast.DataPoints[len(forecast.DataPoints)-1].Balance; !last.Equal(net) {
		t.Errorf("final balance %s != starting + net flows %s", last, net)
	}
}

func TestForecastStartingBalanceIncludesLedger(t *testing.T) {
	repo := storage.NewMemoryRepository()
	ctx := context.Background()
	accID := seedAccount(t, repo, 1)

	// Settled movement changes the starting balance.
	if _, err := repo.InsertTransaction(ctx, core.Transaction{
		UserID:      1,
		AccountID:   accID,
		Description: "Groceries",
		Direction:   core.Expense,
		Amount:      decimal.RequireFromString("150"),
		Status:      core.TransactionSettled,
		DueDate:     core.NewDate(2024, 2, 20),
	}); err != nil {
		t.Fatalf("seed settled transaction: %v", err)
	}

	engine := NewForecastEngine(repo)
	engine.now = fixedNow(core.NewDate(2024, 3, 10))

	forecast, err := engine.Forecast(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}
	if got := forecast.StartingBalance.StringFixed(2); got != "850.00" {
		t.Errorf("starting balance = %s, want 850.00", got)
	}
}

func TestForecastMergesSameDayEvents(t *testing.T) {
	repo := storage.NewMemoryRepository()
	ctx := context.Background()
	accID := seedAccount(t, repo, 1)

	day := core.NewDate(2024, 3, 20)
	for _, tx := range []core.Transaction{
		{UserID: 1, AccountID: accID, Description: "Refund", Direction: core.Income,
			Amount: decimal.RequireFromString("50"), Status: core.TransactionPending, DueDate: day},
		{UserID: 1, AccountID: accID, Description: "Internet", Direction: core.Expense,
			Amount: decimal.RequireFromString("80"), Status: core.TransactionPending, DueDate: day},
	} {
		if _, err := repo.InsertTransaction(ctx, tx); err != nil {
			t.Fatalf("seed transaction: %v", err)
		}
	}

	engine := NewForecastEngine(repo)
	engine.now = fixedNow(core.NewDate(2024, 3, 10))

	forecast, err := engine.Forecast(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}
	if len(forecast.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1", len(forecast.DataPoints))
	}
	p := forecast.DataPoints[0]
	if got := p.Incoming.StringFixed(2); got != "50.00" {
		t.Errorf("incoming = %s, want 50.00", got)
	}
	if got := p.Outgoing.StringFixed(2); got != "80.00" {
		t.Errorf("outgoing = %s, want 80.00", got)
	}
	if got := p.Balance.StringFixed(2); got != "970.00" {
		t.Errorf("balance = %s, want 970.00", got)
	}
}

func TestForecastFlagsVariableEstimates(t *testing.T) {
	repo := storage.NewMemoryRepository()
	accID := seedAccount(t, repo, 1)

	def := salaryDef(1, accID)
	def.Description = "Groceries budget"
	def.Direction = core.Expense
	def.AmountMode = core.AmountVariable
	def.Amount = decimal.RequireFromString("400")
	seedRecurring(t, repo, def)

	engine := NewForecastEngine(repo)
	engine.now = fixedNow(core.NewDate(2024, 3, 10))

	forecast, err := engine.Forecast(context.Background(), 1, 1)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}
	if len(forecast.DataPoints) == 0 {
		t.Fatal("no data points projected")
	}
	for _, p := range forecast.DataPoints {
		if !p.Estimated {
			t.Errorf("point %v not flagged estimated", p.Date)
		}
	}
}

func TestForecastIncludesDebtInstallments(t *testing.T) {
	repo := storage.NewMemoryRepository()
	ctx := context.Background()
	accID := seedAccount(t, repo, 1)

	debtID, err := repo.CreateDebt(ctx, core.Debt{
		UserID:            1,
		Description:       "Car loan",
		Principal:         decimal.RequireFromString("12000"),
		CurrentBalance:    decimal.RequireFromString("12000"),
		MonthlyRate:       decimal.RequireFromString("0.01"),
		Type:              core.AmortizationPrice,
		TotalInstallments: 12,
		StartDate:         core.NewDate(2024, 2, 10),
		Status:            core.DebtActive,
		AccountID:         accID,
	})
	if err != nil {
		t.Fatalf("seed debt: %v", err)
	}

	engine := NewForecastEngine(repo)
	engine.now = fixedNow(core.NewDate(2024, 3, 1))

	// No persisted schedule: the engine computes one on the fly.
	forecast, err := engine.Forecast(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Forecast() error: %v", err)
	}
	if len(forecast.DataPoints) != 1 {
		t.Fatalf("got %d data points, want 1 (installment on Mar 10): %+v", len(forecast.DataPoints), forecast.DataPoints)
	}
	p := forecast.DataPoints[0]
	if !p.Date.Equal(core.NewDate(2024, 3, 10)) {
		t.Errorf("installment date = %v, want 2024-03-10", p.Date)
	}
	if got := p.Outgoing.StringFixed(2); got != "1066.19" {
		t.Errorf("installment outgoing = %s, want 1066.19", got)
	}

	// A paid installment drops out of the projection.
	debts := NewDebtService(repo)
	if _, err := debts.EnsureSchedule(ctx, debtID); err != nil {
		t.Fatalf("EnsureSchedule() error: %v", err)
	}
	txID, err := repo.InsertTransaction(ctx, core.Transaction{
		UserID:      1,
		AccountID:   accID,
		Description: "Car loan 1/12",
		Direction:   core.Expense,
		Amount:      decimal.RequireFromString("1066.19"),
		Status:      core.TransactionSettled,
		DueDate:     core.NewDate(2024, 3, 10),
	})
	if err != nil {
		t.Fatalf("seed settlement transaction: %v", err)
	}
	if err := debts.PayInstallment(ctx, debtID, 1, txID, core.NewDate(2024, 3, 10)); err != nil {
		t.Fatalf("PayInstallment() error: %v", err)
	}

	forecast, err = engine.Forecast(ctx, 1, 1)
	if err != nil {
		t.Fatalf("Forecast() error after payment: %v", err)
	}
	for _, p := range forecast.DataPoints {
		if p.Date.Equal(core.NewDate(2024, 3, 10)) && !p.Outgoing.IsZero() {
			t.Errorf("paid installment still projected: %+v", p)
		}
	}
}
