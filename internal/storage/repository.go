// Package storage persists the ledger, debts and recurring definitions
// in SQLite. Monetary amounts are stored as decimal strings, calendar
// dates as YYYY-MM-DD and timestamps as RFC 3339.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"grana/internal/core"
)

const (
	dateFormat = "2006-01-02"
)

type SQLiteRepository struct {
	db *sql.DB
}

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping verifies the database connection, for readiness checks.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// --- encoding helpers ---

func encodeDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return core.DateOnly(t).Format(dateFormat)
}

func decodeDate(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.ParseInLocation(dateFormat, s.String, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s.String, err)
	}
	return t, nil
}

func encodeTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func decodeTime(s sql.NullString) (time.Time, error) {
	if !s.Valid || s.String == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s.String, err)
	}
	return t, nil
}

func decodeAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return d, nil
}

func nullableID(id int64) any {
	if id == 0 {
		return nil
	}
	return id
}

// --- accounts ---

func (r *SQLiteRepository) CreateAccount(ctx context.Context, a core.Account) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, name, initial_balance, active) VALUES (?, ?, ?, ?)`,
		a.UserID, a.Name, a.InitialBalance.String(), a.Active)
	if err != nil {
		return 0, fmt.Errorf("create account: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) GetActiveAccounts(ctx context.Context, userID int64) ([]core.Account, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, name, initial_balance, active
		 FROM accounts WHERE user_id = ? AND active = 1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("get active accounts: %w", err)
	}
	defer rows.Close()

	var accounts []core.Account
	for rows.Next() {
		var a core.Account
		var balance string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Name, &balance, &a.Active); err != nil {
			return nil, fmt.Errorf("scan account: %w", err)
		}
		if a.InitialBalance, err = decodeAmount(balance); err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

// GetLedgerTotal sums the signed amounts of all non-cancelled movement
// on an account up to asOf: settled transactions always count, pending
// ones only once their due date has passed.
func (r *SQLiteRepository) GetLedgerTotal(ctx context.Context, accountID int64, asOf time.Time) (decimal.Decimal, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM accounts WHERE id = ?`, accountID).Scan(&exists)
	if err != nil {
		return decimal.Zero, fmt.Errorf("check account %d: %w", accountID, err)
	}
	if exists == 0 {
		return decimal.Zero, fmt.Errorf("account %d: %w", accountID, core.ErrAccountNotFound)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT direction, amount FROM transactions
		 WHERE account_id = ? AND status != 'cancelled'
		   AND (status = 'settled' OR due_date < ?)`,
		accountID, core.DateOnly(asOf).Format(dateFormat))
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger total: %w", err)
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var direction, amount string
		if err := rows.Scan(&direction, &amount); err != nil {
			return decimal.Zero, fmt.Errorf("scan ledger row: %w", err)
		}
		d, err := decodeAmount(amount)
		if err != nil {
			return decimal.Zero, err
		}
		if core.Direction(direction) == core.Expense {
			d = d.Neg()
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

// --- transactions ---

func (r *SQLiteRepository) InsertTransaction(ctx context.Context, t core.Transaction) (int64, error) {
	if err := t.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO transactions
		 (user_id, account_id, credit_card_id, description, category, direction, amount, status, due_date, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, nullableID(t.AccountID), nullableID(t.CreditCardID),
		t.Description, t.Category, string(t.Direction), t.Amount.String(),
		string(t.Status), encodeDate(t.DueDate), encodeTime(t.SettledAt))
	if err != nil {
		return 0, fmt.Errorf("insert transaction: %w", err)
	}
	return res.LastInsertId()
}

func (r *SQLiteRepository) GetPendingTransactions(ctx context.Context, userID int64, from, to time.Time) ([]core.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, account_id, credit_card_id, description, category, direction, amount, status, due_date, settled_at
		 FROM transactions
		 WHERE user_id = ? AND status = 'pending' AND due_date >= ? AND due_date <= ?
		 ORDER BY due_date, id`,
		userID, core.DateOnly(from).Format(dateFormat), core.DateOnly(to).Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("get pending transactions: %w", err)
	}
	defer rows.Close()
	return scanTransactions(rows)
}

func scanTransactions(rows *sql.Rows) ([]core.Transaction, error) {
	var out []core.Transaction
	for rows.Next() {
		var t core.Transaction
		var accountID, cardID sql.NullInt64
		var amount, direction, status string
		var dueDate, settledAt sql.NullString
		if err := rows.Scan(&t.ID, &t.UserID, &accountID, &cardID, &t.Description, &t.Category,
			&direction, &amount, &status, &dueDate, &settledAt); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.AccountID = accountID.Int64
		t.CreditCardID = cardID.Int64
		t.Direction = core.Direction(direction)
		t.Status = core.TransactionStatus(status)
		var err error
		if t.Amount, err = decodeAmount(amount); err != nil {
			return nil, err
		}
		if t.DueDate, err = decodeDate(dueDate); err != nil {
			return nil, err
		}
		if t.SettledAt, err = decodeTime(settledAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// --- recurring transactions ---

func (r *SQLiteRepository) CreateRecurringTransaction(ctx context.Context, rt core.RecurringTransaction) (int64, error) {
	if err := rt.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO recurring_transactions
		 (user_id, description, category, direction, account_id, credit_card_id,
		  amount_mode, amount, frequency, day_of_month, use_last_day,
		  start_date, end_date, next_occurrence, active, last_generated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rt.UserID, rt.Description, rt.Category, string(rt.Direction),
		nullableID(rt.AccountID), nullableID(rt.CreditCardID),
		string(rt.AmountMode), rt.Amount.String(), string(rt.Frequency),
		rt.DayOfMonth, rt.UseLastDay,
		encodeDate(rt.StartDate), encodeDate(rt.EndDate), encodeDate(rt.NextOccurrence),
		rt.Active, encodeTime(rt.LastGeneratedAt))
	if err != nil {
		return 0, fmt.Errorf("create recurring transaction: %w", err)
	}
	return res.LastInsertId()
}

const recurringColumns = `id, user_id, description, category, direction, account_id, credit_card_id,
	amount_mode, amount, frequency, day_of_month, use_last_day,
	start_date, end_date, next_occurrence, active, last_generated_at`

// GetDueRecurringTransactions returns active definitions whose cursor is
// at or before asOf, including never-generated ones (NULL cursor).
func (r *SQLiteRepository) GetDueRecurringTransactions(ctx context.Context, userID int64, asOf time.Time) ([]core.RecurringTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recurringColumns+`
		 FROM recurring_transactions
		 WHERE user_id = ? AND active = 1
		   AND (next_occurrence IS NULL OR next_occurrence <= ?)
		 ORDER BY id`,
		userID, core.DateOnly(asOf).Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("get due recurring transactions: %w", err)
	}
	defer rows.Close()
	return scanRecurring(rows)
}

func (r *SQLiteRepository) GetActiveRecurringTransactions(ctx context.Context, userID int64) ([]core.RecurringTransaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+recurringColumns+`
		 FROM recurring_transactions
		 WHERE user_id = ? AND active = 1 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("get active recurring transactions: %w", err)
	}
	defer rows.Close()
	return scanRecurring(rows)
}

func scanRecurring(rows *sql.Rows) ([]core.RecurringTransaction, error) {
	var out []core.RecurringTransaction
	for rows.Next() {
		var rt core.RecurringTransaction
		var accountID, cardID sql.NullInt64
		var amount, direction, mode, frequency string
		var startDate, endDate, nextOcc, lastGen sql.NullString
		if err := rows.Scan(&rt.ID, &rt.UserID, &rt.Description, &rt.Category, &direction,
			&accountID, &cardID, &mode, &amount, &frequency, &rt.DayOfMonth, &rt.UseLastDay,
			&startDate, &endDate, &nextOcc, &rt.Active, &lastGen); err != nil {
			return nil, fmt.Errorf("scan recurring transaction: %w", err)
		}
		rt.AccountID = accountID.Int64
		rt.CreditCardID = cardID.Int64
		rt.Direction = core.Direction(direction)
		rt.AmountMode = core.AmountMode(mode)
		rt.Frequency = core.Frequency(frequency)
		var err error
		if rt.Amount, err = decodeAmount(amount); err != nil {
			return nil, err
		}
		if rt.StartDate, err = decodeDate(startDate); err != nil {
			return nil, err
		}
		if rt.EndDate, err = decodeDate(endDate); err != nil {
			return nil, err
		}
		if rt.NextOccurrence, err = decodeDate(nextOcc); err != nil {
			return nil, err
		}
		if rt.LastGeneratedAt, err = decodeTime(lastGen); err != nil {
			return nil, err
		}
		out = append(out, rt)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) UpdateRecurringCursor(ctx context.Context, recurringID int64, nextOccurrence, generatedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE recurring_transactions SET next_occurrence = ?, last_generated_at = ? WHERE id = ?`,
		encodeDate(nextOccurrence), encodeTime(generatedAt), recurringID)
	if err != nil {
		return fmt.Errorf("update recurring cursor: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrRecurringNotFound
	}
	return nil
}

// CreateGeneratedOccurrence inserts the ledger transaction and its
// generation link in one SQL transaction. The unique index on
// (recurring_transaction_id, occurrence_date) makes this insert-if-absent:
// on conflict the whole unit rolls back and created is false.
func (r *SQLiteRepository) CreateGeneratedOccurrence(ctx context.Context, t core.Transaction, recurringID int64, occurrence, generatedAt time.Time) (int64, bool, error) {
	if err := t.Validate(); err != nil {
		return 0, false, err
	}

	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("begin generation transaction: %w", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx,
		`INSERT INTO transactions
		 (user_id, account_id, credit_card_id, description, category, direction, amount, status, due_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.UserID, nullableID(t.AccountID), nullableID(t.CreditCardID),
		t.Description, t.Category, string(t.Direction), t.Amount.String(),
		string(t.Status), encodeDate(t.DueDate))
	if err != nil {
		return 0, false, fmt.Errorf("insert generated transaction: %w", err)
	}
	txID, err := res.LastInsertId()
	if err != nil {
		return 0, false, err
	}

	res, err = sqlTx.ExecContext(ctx,
		`INSERT INTO generated_transactions
		 (transaction_id, recurring_transaction_id, occurrence_date, generated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (recurring_transaction_id, occurrence_date) DO NOTHING`,
		txID, recurringID, core.DateOnly(occurrence).Format(dateFormat), encodeTime(generatedAt))
	if err != nil {
		return 0, false, fmt.Errorf("insert generation link: %w", err)
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}
	if inserted == 0 {
		// Occurrence already generated; the rollback discards the
		// duplicate ledger insert.
		return 0, false, nil
	}

	if err := sqlTx.Commit(); err != nil {
		return 0, false, fmt.Errorf("commit generation: %w", err)
	}
	return txID, true, nil
}

// --- debts ---

func (r *SQLiteRepository) CreateDebt(ctx context.Context, d core.Debt) (int64, error) {
	if err := d.Validate(); err != nil {
		return 0, err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO debts
		 (user_id, description, principal, current_balance, monthly_rate, amortization_type,
		  total_installments, installments_paid, start_date, status, account_id, bullet_interest_only)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.UserID, d.Description, d.Principal.String(), d.CurrentBalance.String(),
		d.MonthlyRate.String(), string(d.Type), d.TotalInstallments, d.InstallmentsPaid,
		encodeDate(d.StartDate), string(d.Status), nullableID(d.AccountID), d.BulletInterestOnly)
	if err != nil {
		return 0, fmt.Errorf("create debt: %w", err)
	}
	return res.LastInsertId()
}

const debtColumns = `id, user_id, description, principal, current_balance, monthly_rate,
	amortization_type, total_installments, installments_paid, start_date, status, account_id, bullet_interest_only`

func (r *SQLiteRepository) GetDebt(ctx context.Context, debtID int64) (core.Debt, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+debtColumns+` FROM debts WHERE id = ?`, debtID)
	d, err := scanDebt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Debt{}, core.ErrDebtNotFound
	}
	return d, err
}

func (r *SQLiteRepository) GetActiveDebtsLinkedToAccounts(ctx context.Context, userID int64) ([]core.Debt, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+debtColumns+`
		 FROM debts WHERE user_id = ? AND status = 'active' AND account_id IS NOT NULL
		 ORDER BY id`, userID)
	if err != nil {
		return nil, fmt.Errorf("get active debts: %w", err)
	}
	defer rows.Close()

	var debts []core.Debt
	for rows.Next() {
		d, err := scanDebt(rows)
		if err != nil {
			return nil, err
		}
		debts = append(debts, d)
	}
	return debts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDebt(row rowScanner) (core.Debt, error) {
	var d core.Debt
	var principal, balance, rate, amortization, status string
	var startDate sql.NullString
	var accountID sql.NullInt64
	if err := row.Scan(&d.ID, &d.UserID, &d.Description, &principal, &balance, &rate,
		&amortization, &d.TotalInstallments, &d.InstallmentsPaid, &startDate, &status,
		&accountID, &d.BulletInterestOnly); err != nil {
		return core.Debt{}, err
	}
	d.Type = core.AmortizationType(amortization)
	d.Status = core.DebtStatus(status)
	d.AccountID = accountID.Int64
	var err error
	if d.Principal, err = decodeAmount(principal); err != nil {
		return core.Debt{}, err
	}
	if d.CurrentBalance, err = decodeAmount(balance); err != nil {
		return core.Debt{}, err
	}
	if d.MonthlyRate, err = decodeAmount(rate); err != nil {
		return core.Debt{}, err
	}
	if d.StartDate, err = decodeDate(startDate); err != nil {
		return core.Debt{}, err
	}
	return d, nil
}

func (r *SQLiteRepository) GetDebtInstallments(ctx context.Context, debtID int64) ([]core.DebtInstallment, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, debt_id, sequence, due_date, paid_date, total_amount, principal_amount,
		        interest_amount, remaining_balance, transaction_id
		 FROM debt_installments WHERE debt_id = ? ORDER BY sequence`, debtID)
	if err != nil {
		return nil, fmt.Errorf("get debt installments: %w", err)
	}
	defer rows.Close()

	var out []core.DebtInstallment
	for rows.Next() {
		var inst core.DebtInstallment
		var total, principal, interest, remaining string
		var dueDate, paidDate sql.NullString
		var txID sql.NullInt64
		if err := rows.Scan(&inst.ID, &inst.DebtID, &inst.Sequence, &dueDate, &paidDate,
			&total, &principal, &interest, &remaining, &txID); err != nil {
			return nil, fmt.Errorf("scan installment: %w", err)
		}
		inst.TransactionID = txID.Int64
		var err error
		if inst.DueDate, err = decodeDate(dueDate); err != nil {
			return nil, err
		}
		if inst.PaidDate, err = decodeDate(paidDate); err != nil {
			return nil, err
		}
		if inst.TotalAmount, err = decodeAmount(total); err != nil {
			return nil, err
		}
		if inst.PrincipalAmount, err = decodeAmount(principal); err != nil {
			return nil, err
		}
		if inst.InterestAmount, err = decodeAmount(interest); err != nil {
			return nil, err
		}
		if inst.RemainingBalance, err = decodeAmount(remaining); err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, rows.Err()
}

// ReplaceDebtInstallments swaps the full installment set in one SQL
// transaction: regeneration is full replace, never a patch.
func (r *SQLiteRepository) ReplaceDebtInstallments(ctx context.Context, debtID int64, installments []core.DebtInstallment) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer sqlTx.Rollback()

	if _, err := sqlTx.ExecContext(ctx, `DELETE FROM debt_installments WHERE debt_id = ?`, debtID); err != nil {
		return fmt.Errorf("delete old installments: %w", err)
	}
	for _, inst := range installments {
		if _, err := sqlTx.ExecContext(ctx,
			`INSERT INTO debt_installments
			 (debt_id, sequence, due_date, paid_date, total_amount, principal_amount,
			  interest_amount, remaining_balance, transaction_id)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			debtID, inst.Sequence, encodeDate(inst.DueDate), encodeDate(inst.PaidDate),
			inst.TotalAmount.String(), inst.PrincipalAmount.String(),
			inst.InterestAmount.String(), inst.RemainingBalance.String(),
			nullableID(inst.TransactionID)); err != nil {
			return fmt.Errorf("insert installment %d: %w", inst.Sequence, err)
		}
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	slog.InfoContext(ctx, "Debt schedule replaced",
		"debt_id", debtID,
		"installments", len(installments))
	return nil
}

func (r *SQLiteRepository) MarkInstallmentPaid(ctx context.Context, debtID int64, sequence int, paidDate time.Time, transactionID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debt_installments SET paid_date = ?, transaction_id = ?
		 WHERE debt_id = ? AND sequence = ?`,
		encodeDate(paidDate), nullableID(transactionID), debtID, sequence)
	if err != nil {
		return fmt.Errorf("mark installment paid: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrInstallmentNotFound
	}
	return nil
}

func (r *SQLiteRepository) UpdateDebtProgress(ctx context.Context, debtID int64, balance decimal.Decimal, installmentsPaid int, status core.DebtStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE debts SET current_balance = ?, installments_paid = ?, status = ? WHERE id = ?`,
		balance.String(), installmentsPaid, string(status), debtID)
	if err != nil {
		return fmt.Errorf("update debt progress: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrDebtNotFound
	}
	return nil
}
