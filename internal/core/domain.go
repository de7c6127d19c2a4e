package core

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	Daily      Frequency = "daily"
	Weekly     Frequency = "weekly"
	Biweekly   Frequency = "biweekly"
	Monthly    Frequency = "monthly"
	Bimonthly  Frequency = "bimonthly"
	Quarterly  Frequency = "quarterly"
	Semiannual Frequency = "semiannual"
	Annual     Frequency = "annual"
)

const (
	AmortizationPrice  AmortizationType = "price"
	AmortizationSAC    AmortizationType = "sac"
	AmortizationBullet AmortizationType = "bullet"
)

const (
	DebtActive    DebtStatus = "active"
	DebtSettled   DebtStatus = "settled"
	DebtCancelled DebtStatus = "cancelled"
)

const (
	TransactionPending   TransactionStatus = "pending"
	TransactionSettled   TransactionStatus = "settled"
	TransactionCancelled TransactionStatus = "cancelled"
)

const (
	Income  Direction = "income"
	Expense Direction = "expense"
)

const (
	AmountFixed    AmountMode = "fixed"
	AmountVariable AmountMode = "variable"
)

type (
	// Frequency is how often a recurring transaction repeats.
	Frequency string

	// AmortizationType selects the repayment system for a debt.
	AmortizationType string

	DebtStatus        string
	TransactionStatus string

	// Direction marks a cash flow as money in or money out.
	Direction string

	// AmountMode distinguishes a committed fixed amount from a
	// variable average estimate.
	AmountMode string

	Account struct {
		ID             int64
		UserID         int64
		Name           string
		InitialBalance decimal.Decimal
		Active         bool
	}

	// Transaction is a single ledger entry. Exactly one of AccountID or
	// CreditCardID is set (zero means unset).
	Transaction struct {
		ID           int64
		UserID       int64
		AccountID    int64
		CreditCardID int64
		Description  string
		Category     string
		Direction    Direction
		Amount       decimal.Decimal
		Status       TransactionStatus
		DueDate      time.Time
		SettledAt    time.Time
	}

	Debt struct {
		ID                int64
		UserID            int64
		Description       string
		Principal         decimal.Decimal
		CurrentBalance    decimal.Decimal
		MonthlyRate       decimal.Decimal
		Type              AmortizationType
		TotalInstallments int
		InstallmentsPaid  int
		StartDate         time.Time
		Status            DebtStatus
		AccountID         int64 // optional linked account, zero means unset
		// BulletInterestOnly controls whether bullet debts pay interest
		// each period or accrue it into the final balloon.
		BulletInterestOnly bool
	}

	// DebtInstallment is one period of a debt's amortization schedule.
	// TotalAmount = PrincipalAmount + InterestAmount up to rounding.
	DebtInstallment struct {
		ID               int64
		DebtID           int64
		Sequence         int
		DueDate          time.Time
		PaidDate         time.Time // zero means unpaid
		TotalAmount      decimal.Decimal
		PrincipalAmount  decimal.Decimal
		InterestAmount   decimal.Decimal
		RemainingBalance decimal.Decimal
		TransactionID    int64 // settled ledger transaction, zero means none
	}

	RecurringTransaction struct {
		ID           int64
		UserID       int64
		Description  string
		Category     string
		Direction    Direction
		AccountID    int64
		CreditCardID int64
		AmountMode   AmountMode
		Amount       decimal.Decimal
		Frequency    Frequency
		// DayOfMonth and UseLastDay are mutually exclusive and only
		// meaningful for monthly-family frequencies.
		DayOfMonth      int
		UseLastDay      bool
		StartDate       time.Time
		EndDate         time.Time // zero means open-ended
		NextOccurrence  time.Time
		Active          bool
		LastGeneratedAt time.Time
	}

	// GeneratedTransaction links a ledger transaction to the recurring
	// definition that produced it. Its uniqueness per occurrence is the
	// idempotency guard for generation.
	GeneratedTransaction struct {
		ID                     int64
		TransactionID          int64
		RecurringTransactionID int64
		OccurrenceDate         time.Time
		GeneratedAt            time.Time
		Modified               bool
	}

	// ForecastPoint is one day of a cash-flow projection. Estimated is
	// true when any contributing amount comes from a variable-estimate
	// recurrence rather than a commitment.
	ForecastPoint struct {
		Date        time.Time
		Incoming    decimal.Decimal
		Outgoing    decimal.Decimal
		Balance     decimal.Decimal
		Description string
		Estimated   bool
	}

	// CashFlowForecast is computed on demand and never persisted.
	CashFlowForecast struct {
		StartingBalance decimal.Decimal
		DataPoints      []ForecastPoint
	}
)

var (
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrEmptyDescription    = errors.New("empty description")
	ErrInvalidDirection    = errors.New("invalid direction")
	ErrInvalidFrequency    = errors.New("invalid frequency")
	ErrFundingSource       = errors.New("exactly one of account or credit card must be set")
	ErrDayOfMonthPolicy    = errors.New("exactly one of day-of-month or last-day flag must be set")
	ErrInvalidDayOfMonth   = errors.New("day of month must be between 1 and 31")
	ErrInvalidPrincipal    = errors.New("principal must be positive")
	ErrNegativeRate        = errors.New("interest rate cannot be negative")
	ErrInvalidInstallments = errors.New("installment count must be at least 1")
	ErrInvalidAmortization = errors.New("invalid amortization type")
	ErrInvalidHorizon      = errors.New("forecast horizon must be positive")
	ErrScheduleHasPayments = errors.New("schedule has paid installments and cannot be regenerated")
	ErrAccountNotFound     = errors.New("account not found")
	ErrDebtNotFound        = errors.New("debt not found")
	ErrInstallmentNotFound = errors.New("installment not found")
	ErrRecurringNotFound   = errors.New("recurring transaction not found")
)

// MonthlyFamily reports whether the frequency steps by calendar months
// and therefore needs a day-of-month resolution policy.
func (f Frequency) MonthlyFamily() bool {
	switch f {
	case Monthly, Bimonthly, Quarterly, Semiannual, Annual:
		return true
	}
	return false
}

// Valid reports whether the frequency is one of the closed set.
func (f Frequency) Valid() bool {
	switch f {
	case Daily, Weekly, Biweekly, Monthly, Bimonthly, Quarterly, Semiannual, Annual:
		return true
	}
	return false
}

func (d Direction) Valid() bool {
	return d == Income || d == Expense
}

func (t AmortizationType) Valid() bool {
	switch t {
	case AmortizationPrice, AmortizationSAC, AmortizationBullet:
		return true
	}
	return false
}

func (m AmountMode) Valid() bool {
	return m == AmountFixed || m == AmountVariable
}

func (t Transaction) Validate() error {
	if len(strings.TrimSpace(t.Description)) == 0 {
		return ErrEmptyDescription
	}
	if !t.Direction.Valid() {
		return ErrInvalidDirection
	}
	if t.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if (t.AccountID == 0) == (t.CreditCardID == 0) {
		return ErrFundingSource
	}
	if t.DueDate.IsZero() {
		return errors.New("due date cannot be zero")
	}
	return nil
}

func (d Debt) Validate() error {
	if len(strings.TrimSpace(d.Description)) == 0 {
		return ErrEmptyDescription
	}
	if d.Principal.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidPrincipal
	}
	if d.MonthlyRate.IsNegative() {
		return ErrNegativeRate
	}
	if d.TotalInstallments < 1 {
		return ErrInvalidInstallments
	}
	if !d.Type.Valid() {
		return ErrInvalidAmortization
	}
	if d.StartDate.IsZero() {
		return errors.New("start date cannot be zero")
	}
	if d.InstallmentsPaid < 0 || d.InstallmentsPaid > d.TotalInstallments {
		return errors.New("installments paid out of range")
	}
	return nil
}

func (rt RecurringTransaction) Validate() error {
	if len(strings.TrimSpace(rt.Description)) == 0 {
		return ErrEmptyDescription
	}
	if !rt.Direction.Valid() {
		return ErrInvalidDirection
	}
	if !rt.AmountMode.Valid() {
		return errors.New("invalid amount mode")
	}
	if rt.Amount.LessThanOrEqual(decimal.Zero) {
		return ErrInvalidAmount
	}
	if (rt.AccountID == 0) == (rt.CreditCardID == 0) {
		return ErrFundingSource
	}
	if rt.StartDate.IsZero() {
		return errors.New("start date cannot be zero")
	}
	if !rt.EndDate.IsZero() && rt.EndDate.Before(rt.StartDate) {
		return errors.New("end date must not precede start date")
	}
	return rt.ValidateSchedule()
}

// ValidateSchedule checks the parts of the definition the scheduler
// depends on: a known frequency and, for monthly-family frequencies,
// exactly one day-of-month policy.
func (rt RecurringTransaction) ValidateSchedule() error {
	if !rt.Frequency.Valid() {
		return ErrInvalidFrequency
	}
	if rt.Frequency.MonthlyFamily() {
		hasDay := rt.DayOfMonth != 0
		if hasDay == rt.UseLastDay {
			return ErrDayOfMonthPolicy
		}
		if hasDay && (rt.DayOfMonth < 1 || rt.DayOfMonth > 31) {
			return ErrInvalidDayOfMonth
		}
	}
	return nil
}

// SignedAmount returns the amount with expense flows negated.
func (t Transaction) SignedAmount() decimal.Decimal {
	if t.Direction == Expense {
		return t.Amount.Neg()
	}
	return t.Amount
}

// SignedAmount returns the recurrence amount with expense flows negated.
func (rt RecurringTransaction) SignedAmount() decimal.Decimal {
	if rt.Direction == Expense {
		return rt.Amount.Neg()
	}
	return rt.Amount
}
