package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"grana/internal/core"
)

// AccountReader exposes balances for the forecast's starting point.
type AccountReader interface {
	GetActiveAccounts(ctx context.Context, userID int64) ([]core.Account, error)
	GetLedgerTotal(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error)
}

// PendingReader returns unpaid ledger transactions due inside a window.
type PendingReader interface {
	GetPendingTransactions(ctx context.Context, userID int64, from, to time.Time) ([]core.Transaction, error)
}

// RecurringReader returns active recurring definitions for simulation.
type RecurringReader interface {
	GetActiveRecurringTransactions(ctx context.Context, userID int64) ([]core.RecurringTransaction, error)
}

// DebtReader exposes debts linked to in-scope accounts and their
// persisted schedules.
type DebtReader interface {
	GetActiveDebtsLinkedToAccounts(ctx context.Context, userID int64) ([]core.Debt, error)
	GetDebtInstallments(ctx context.Context, debtID int64) ([]core.DebtInstallment, error)
}

// ForecastStore bundles the read surfaces the engine consumes. The
// sqlite and memory repositories both satisfy it.
type ForecastStore interface {
	AccountReader
	PendingReader
	RecurringReader
	DebtReader
}

// ForecastEngine projects a forward balance trajectory from current
// balances, pending transactions, simulated recurrences and debt
// installments. It is a pure projection: it never writes, and holds no
// locks while simulating.
type ForecastEngine struct {
	store     ForecastStore
	scheduler Scheduler
	now       func() time.Time
}

func NewForecastEngine(store ForecastStore) *ForecastEngine {
	return &ForecastEngine{store: store, now: time.Now}
}

// projectedEvent is one dated cash movement before merging.
type projectedEvent struct {
	date        time.Time
	amount      decimal.Decimal // signed: income positive, expense negative
	description string
	estimated   bool
}

// Forecast computes the balance trajectory over the next horizonMonths
// months. Data points are ordered ascending by date; same-day events are
// summed into one incoming/outgoing pair; the running balance starts
// from the sum of active account balances.
func (e *ForecastEngine) Forecast(ctx context.Context, userID int64, horizonMonths int) (core.CashFlowForecast, error) {
	if horizonMonths <= 0 {
		return core.CashFlowForecast{}, core.ErrInvalidHorizon
	}

	today := core.DateOnly(e.now())
	end := today.AddDate(0, horizonMonths, 0)

	starting, err := e.startingBalance(ctx, userID, today)
	if err != nil {
		return core.CashFlowForecast{}, err
	}

	var events []projectedEvent
	pending, err := e.pendingEvents(ctx, userID, today, end)
	if err != nil {
		return core.CashFlowForecast{}, err
	}
	events = append(events, pending...)

	simulated, err := e.recurringEvents(ctx, userID, today, end)
	if err != nil {
		return core.CashFlowForecast{}, err
	}
	events = append(events, simulated...)

	installments, err := e.debtEvents(ctx, userID, today, end)
	if err != nil {
		return core.CashFlowForecast{}, err
	}
	events = append(events, installments...)

	forecast := core.CashFlowForecast{
		StartingBalance: starting,
		DataPoints:      mergeEvents(starting, events),
	}
	slog.DebugContext(ctx, "Forecast computed",
		"user_id", userID,
		"horizon_months", horizonMonths,
		"events", len(events),
		"data_points", len(forecast.DataPoints))
	return forecast, nil
}

// startingBalance sums initial balance plus settled ledger movement for
// every active account. Ledger totals are fetched concurrently; an
// account with no history still contributes its initial balance.
func (e *ForecastEngine) startingBalance(ctx context.Context, userID int64, asOf time.Time) (decimal.Decimal, error) {
	accounts, err := e.store.GetActiveAccounts(ctx, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("get active accounts: %w", err)
	}

	totals := make([]decimal.Decimal, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	for i, acc := range accounts {
		g.Go(func() error {
			total, err := e.store.GetLedgerTotal(gctx, acc.ID, asOf)
			if err != nil {
				return fmt.Errorf("ledger total for account %d: %w", acc.ID, err)
			}
			totals[i] = acc.InitialBalance.Add(total)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return decimal.Zero, err
	}

	balance := decimal.Zero
	for _, t := range totals {
		balance = balance.Add(t)
	}
	return balance, nil
}

func (e *ForecastEngine) pendingEvents(ctx context.Context, userID int64, from, to time.Time) ([]projectedEvent, error) {
	pending, err := e.store.GetPendingTransactions(ctx, userID, from, to)
	if err != nil {
		return nil, fmt.Errorf("get pending transactions: %w", err)
	}
	events := make([]projectedEvent, 0, len(pending))
	for _, tx := range pending {
		events = append(events, projectedEvent{
			date:        core.DateOnly(tx.DueDate),
			amount:      tx.SignedAmount(),
			description: tx.Description,
		})
	}
	return events, nil
}

// recurringEvents simulates occurrences inside the window without
// touching any cursor. Variable-mode amounts are tagged as estimates.
func (e *ForecastEngine) recurringEvents(ctx context.Context, userID int64, from, to time.Time) ([]projectedEvent, error) {
	defs, err := e.store.GetActiveRecurringTransactions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get active recurring transactions: %w", err)
	}
	var events []projectedEvent
	for _, def := range defs {
		occurrences, err := e.scheduler.Occurrences(def, from, to)
		if err != nil {
			return nil, fmt.Errorf("simulate recurring transaction %d: %w", def.ID, err)
		}
		for _, occ := range occurrences {
			events = append(events, projectedEvent{
				date:        occ,
				amount:      def.SignedAmount(),
				description: def.Description,
				estimated:   def.AmountMode == core.AmountVariable,
			})
		}
	}
	return events, nil
}

// debtEvents projects unpaid installments due in the window, using the
// persisted schedule or computing one on the fly when none exists yet.
func (e *ForecastEngine) debtEvents(ctx context.Context, userID int64, from, to time.Time) ([]projectedEvent, error) {
	debts, err := e.store.GetActiveDebtsLinkedToAccounts(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("get active debts: %w", err)
	}
	var events []projectedEvent
	for _, debt := range debts {
		installments, err := e.store.GetDebtInstallments(ctx, debt.ID)
		if err != nil {
			return nil, fmt.Errorf("installments for debt %d: %w", debt.ID, err)
		}
		if len(installments) == 0 {
			installments, err = GenerateSchedule(TermsForDebt(debt))
			if err != nil {
				return nil, fmt.Errorf("compute schedule for debt %d: %w", debt.ID, err)
			}
		}
		for _, inst := range installments {
			if !inst.PaidDate.IsZero() {
				continue
			}
			due := core.DateOnly(inst.DueDate)
			if due.Before(from) || due.After(to) {
				continue
			}
			if inst.TotalAmount.IsZero() {
				// Accruing bullet periods move no cash.
				continue
			}
			events = append(events, projectedEvent{
				date:        due,
				amount:      inst.TotalAmount.Neg(),
				description: fmt.Sprintf("%s %d/%d", debt.Description, inst.Sequence, debt.TotalInstallments),
			})
		}
	}
	return events, nil
}

// mergeEvents folds dated events into per-day data points with a running
// balance. Same-day incoming and outgoing amounts are summed separately.
func mergeEvents(starting decimal.Decimal, events []projectedEvent) []core.ForecastPoint {
	byDate := make(map[time.Time]*core.ForecastPoint)
	descriptions := make(map[time.Time][]string)
	for _, ev := range events {
		p, ok := byDate[ev.date]
		if !ok {
			p = &core.ForecastPoint{Date: ev.date, Incoming: decimal.Zero, Outgoing: decimal.Zero}
			byDate[ev.date] = p
		}
		if ev.amount.IsNegative() {
			p.Outgoing = p.Outgoing.Add(ev.amount.Neg())
		} else {
			p.Incoming = p.Incoming.Add(ev.amount)
		}
		if ev.estimated {
			p.Estimated = true
		}
		descriptions[ev.date] = append(descriptions[ev.date], ev.description)
	}

	points := make([]core.ForecastPoint, 0, len(byDate))
	for _, p := range byDate {
		p.Description = strings.Join(descriptions[p.Date], "; ")
		points = append(points, *p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	balance := starting
	for i := range points {
		balance = balance.Add(points[i].Incoming).Sub(points[i].Outgoing)
		points[i].Balance = balance
	}
	return points
}
