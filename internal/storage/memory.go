package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"grana/internal/core"
)

// MemoryRepository is a mutex-guarded in-memory implementation of the
// same surfaces as SQLiteRepository. It backs the "memory" data backend
// and the service tests.
type MemoryRepository struct {
	mu sync.Mutex

	nextID       int64
	accounts     map[int64]core.Account
	transactions map[int64]core.Transaction
	recurring    map[int64]core.RecurringTransaction
	debts        map[int64]core.Debt
	installments map[int64][]core.DebtInstallment // by debt ID
	generated    map[int64]core.GeneratedTransaction
	// occurrence identity -> generated link ID, the idempotency guard
	occurrenceIndex map[string]int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:        make(map[int64]core.Account),
		transactions:    make(map[int64]core.Transaction),
		recurring:       make(map[int64]core.RecurringTransaction),
		debts:           make(map[int64]core.Debt),
		installments:    make(map[int64][]core.DebtInstallment),
		generated:       make(map[int64]core.GeneratedTransaction),
		occurrenceIndex: make(map[string]int64),
	}
}

func (m *MemoryRepository) Close() error { return nil }

func (m *MemoryRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func occurrenceKey(recurringID int64, occurrence time.Time) string {
	return fmt.Sprintf("%d:%s", recurringID, core.DateOnly(occurrence).Format(dateFormat))
}

// --- accounts ---

func (m *MemoryRepository) CreateAccount(_ context.Context, a core.Account) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.id()
	m.accounts[a.ID] = a
	return a.ID, nil
}

func (m *MemoryRepository) GetActiveAccounts(_ context.Context, userID int64) ([]core.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Account
	for _, a := range m.accounts {
		if a.UserID == userID && a.Active {
			out = append(out, a)
		}
	}
	sortByID(out, func(a core.Account) int64 { return a.ID })
	return out, nil
}

func (m *MemoryRepository) GetLedgerTotal(_ context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[accountID]; !ok {
		return decimal.Zero, fmt.Errorf("account %d: %w", accountID, core.ErrAccountNotFound)
	}
	cutoff := core.DateOnly(asOf)
	total := decimal.Zero
	for _, t := range m.transactions {
		if t.AccountID != accountID || t.Status == core.TransactionCancelled {
			continue
		}
		if t.Status == core.TransactionPending && !core.DateOnly(t.DueDate).Before(cutoff) {
			continue
		}
		total = total.Add(t.SignedAmount())
	}
	return total, nil
}

// --- transactions ---

func (m *MemoryRepository) InsertTransaction(_ context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	t.ID = m.id()
	m.transactions[t.ID] = t
	return t.ID, nil
}

func (m *MemoryRepository) GetPendingTransactions(_ context.Context, userID int64, from, to time.Time) ([]core.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fromDate, toDate := core.DateOnly(from), core.DateOnly(to)
	var out []core.Transaction
	for _, t := range m.transactions {
		if t.UserID != userID || t.Status != core.TransactionPending {
			continue
		}
		due := core.DateOnly(t.DueDate)
		if due.Before(fromDate) || due.After(toDate) {
			continue
		}
		out = append(out, t)
	}
	sortByID(out, func(t core.Transaction) int64 { return t.ID })
	return out, nil
}

// --- recurring transactions ---

func (m *MemoryRepository) CreateRecurringTransaction(_ context.Context, rt core.RecurringTransaction) (int64, error) {
	if err := rt.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	rt.ID = m.id()
	m.recurring[rt.ID] = rt
	return rt.ID, nil
}

func (m *MemoryRepository) GetDueRecurringTransactions(_ context.Context, userID int64, asOf time.Time) ([]core.RecurringTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cutoff := core.DateOnly(asOf)
	var out []core.RecurringTransaction
	for _, rt := range m.recurring {
		if rt.UserID != userID || !rt.Active {
			continue
		}
		if !rt.NextOccurrence.IsZero() && core.DateOnly(rt.NextOccurrence).After(cutoff) {
			continue
		}
		out = append(out, rt)
	}
	sortByID(out, func(rt core.RecurringTransaction) int64 { return rt.ID })
	return out, nil
}

func (m *MemoryRepository) GetActiveRecurringTransactions(_ context.Context, userID int64) ([]core.RecurringTransaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.RecurringTransaction
	for _, rt := range m.recurring {
		if rt.UserID == userID && rt.Active {
			out = append(out, rt)
		}
	}
	sortByID(out, func(rt core.RecurringTransaction) int64 { return rt.ID })
	return out, nil
}

func (m *MemoryRepository) UpdateRecurringCursor(_ context.Context, recurringID int64, nextOccurrence, generatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.recurring[recurringID]
	if !ok {
		return core.ErrRecurringNotFound
	}
	rt.NextOccurrence = core.DateOnly(nextOccurrence)
	rt.LastGeneratedAt = generatedAt
	m.recurring[recurringID] = rt
	return nil
}

func (m *MemoryRepository) CreateGeneratedOccurrence(_ context.Context, t core.Transaction, recurringID int64, occurrence, generatedAt time.Time) (int64, bool, error) {
	if err := t.Validate(); err != nil {
		return 0, false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.recurring[recurringID]; !ok {
		return 0, false, core.ErrRecurringNotFound
	}
	key := occurrenceKey(recurringID, occurrence)
	if _, exists := m.occurrenceIndex[key]; exists {
		return 0, false, nil
	}

	t.ID = m.id()
	m.transactions[t.ID] = t
	link := core.GeneratedTransaction{
		ID:                     m.id(),
		TransactionID:          t.ID,
		RecurringTransactionID: recurringID,
		OccurrenceDate:         core.DateOnly(occurrence),
		GeneratedAt:            generatedAt,
	}
	m.generated[link.ID] = link
	m.occurrenceIndex[key] = link.ID
	return t.ID, true, nil
}

// --- debts ---

func (m *MemoryRepository) CreateDebt(_ context.Context, d core.Debt) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	d.ID = m.id()
	m.debts[d.ID] = d
	return d.ID, nil
}

func (m *MemoryRepository) GetDebt(_ context.Context, debtID int64) (core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debts[debtID]
	if !ok {
		return core.Debt{}, core.ErrDebtNotFound
	}
	return d, nil
}

func (m *MemoryRepository) GetActiveDebtsLinkedToAccounts(_ context.Context, userID int64) ([]core.Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []core.Debt
	for _, d := range m.debts {
		if d.UserID == userID && d.Status == core.DebtActive && d.AccountID != 0 {
			out = append(out, d)
		}
	}
	sortByID(out, func(d core.Debt) int64 { return d.ID })
	return out, nil
}

func (m *MemoryRepository) GetDebtInstallments(_ context.Context, debtID int64) ([]core.DebtInstallment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]core.DebtInstallment(nil), m.installments[debtID]...)
	return out, nil
}

func (m *MemoryRepository) ReplaceDebtInstallments(_ context.Context, debtID int64, installments []core.DebtInstallment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.debts[debtID]; !ok {
		return core.ErrDebtNotFound
	}
	replacement := make([]core.DebtInstallment, len(installments))
	for i, inst := range installments {
		inst.ID = m.id()
		inst.DebtID = debtID
		replacement[i] = inst
	}
	m.installments[debtID] = replacement
	return nil
}

func (m *MemoryRepository) MarkInstallmentPaid(_ context.Context, debtID int64, sequence int, paidDate time.Time, transactionID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.installments[debtID]
	for i := range list {
		if list[i].Sequence == sequence {
			list[i].PaidDate = core.DateOnly(paidDate)
			list[i].TransactionID = transactionID
			return nil
		}
	}
	return core.ErrInstallmentNotFound
}

func (m *MemoryRepository) UpdateDebtProgress(_ context.Context, debtID int64, balance decimal.Decimal, installmentsPaid int, status core.DebtStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debts[debtID]
	if !ok {
		return core.ErrDebtNotFound
	}
	d.CurrentBalance = balance
	d.InstallmentsPaid = installmentsPaid
	d.Status = status
	m.debts[debtID] = d
	return nil
}

// sortByID keeps listings deterministic despite map iteration order.
func sortByID[T any](items []T, id func(T) int64) {
	sort.Slice(items, func(i, j int) bool { return id(items[i]) < id(items[j]) })
}
