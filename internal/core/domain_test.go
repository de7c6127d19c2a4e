package core

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func validRecurring() RecurringTransaction {
	return RecurringTransaction{
		UserID:      1,
		Description: "Rent",
		Direction:   Expense,
		AccountID:   1,
		AmountMode:  AmountFixed,
		Amount:      decimal.RequireFromString("850"),
		Frequency:   Monthly,
		DayOfMonth:  1,
		StartDate:   NewDate(2024, 1, 1),
	}
}

func TestRecurringTransactionValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RecurringTransaction)
		wantErr error
	}{
		{
			name:   "valid",
			mutate: func(rt *RecurringTransaction) {},
		},
		{
			name:    "empty description",
			mutate:  func(rt *RecurringTransaction) { rt.Description = "  " },
			wantErr: ErrEmptyDescription,
		},
		{
			name:    "bad direction",
			mutate:  func(rt *RecurringTransaction) { rt.Direction = "sideways" },
			wantErr: ErrInvalidDirection,
		},
		{
			name:    "zero amount",
			mutate:  func(rt *RecurringTransaction) { rt.Amount = decimal.Zero },
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "no funding source",
			mutate:  func(rt *RecurringTransaction) { rt.AccountID = 0 },
			wantErr: ErrFundingSource,
		},
		{
			name: "both funding sources",
			mutate: func(rt *RecurringTransaction) {
				rt.CreditCardID = 2
			},
			wantErr: ErrFundingSource,
		},
		{
			name:    "unknown frequency",
			mutate:  func(rt *RecurringTransaction) { rt.Frequency = "fortnightly" },
			wantErr: ErrInvalidFrequency,
		},
		{
			name: "monthly without day policy",
			mutate: func(rt *RecurringTransaction) {
				rt.DayOfMonth = 0
				rt.UseLastDay = false
			},
			wantErr: ErrDayOfMonthPolicy,
		},
		{
			name: "monthly with both day policies",
			mutate: func(rt *RecurringTransaction) {
				rt.DayOfMonth = 15
				rt.UseLastDay = true
			},
			wantErr: ErrDayOfMonthPolicy,
		},
		{
			name:    "day of month out of range",
			mutate:  func(rt *RecurringTransaction) { rt.DayOfMonth = 32 },
			wantErr: ErrInvalidDayOfMonth,
		},
		{
			name: "weekly needs no day policy",
			mutate: func(rt *RecurringTransaction) {
				rt.Frequency = Weekly
				rt.DayOfMonth = 0
			},
		},
		{
			name: "end date before start",
			mutate: func(rt *RecurringTransaction) {
				rt.EndDate = NewDate(2023, 12, 1)
			},
			wantErr: nil, // matched by message, not sentinel
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rt := validRecurring()
			tt.mutate(&rt)
			err := rt.Validate()
			if tt.name == "end date before start" {
				if err == nil {
					t.Fatal("Validate() = nil, want error")
				}
				return
			}
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestTransactionValidate(t *testing.T) {
	base := Transaction{
		UserID:      1,
		AccountID:   1,
		Description: "Groceries",
		Direction:   Expense,
		Amount:      decimal.RequireFromString("54.20"),
		Status:      TransactionPending,
		DueDate:     NewDate(2024, 3, 1),
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid transaction rejected: %v", err)
	}

	cc := base
	cc.AccountID = 0
	cc.CreditCardID = 3
	if err := cc.Validate(); err != nil {
		t.Fatalf("credit card transaction rejected: %v", err)
	}

	both := base
	both.CreditCardID = 3
	if err := both.Validate(); !errors.Is(err, ErrFundingSource) {
		t.Errorf("both funding sources: got %v, want %v", err, ErrFundingSource)
	}

	noDue := base
	noDue.DueDate = time.Time{}
	if err := noDue.Validate(); err == nil {
		t.Error("zero due date accepted")
	}
}

func TestDebtValidate(t *testing.T) {
	base := Debt{
		UserID:            1,
		Description:       "Car loan",
		Principal:         decimal.RequireFromString("12000"),
		MonthlyRate:       decimal.RequireFromString("0.01"),
		Type:              AmortizationPrice,
		TotalInstallments: 12,
		StartDate:         NewDate(2024, 1, 10),
		Status:            DebtActive,
	}

	if err := base.Validate(); err != nil {
		t.Fatalf("valid debt rejected: %v", err)
	}

	tests := []struct {
		name    string
		mutate  func(*Debt)
		wantErr error
	}{
		{"zero principal", func(d *Debt) { d.Principal = decimal.Zero }, ErrInvalidPrincipal},
		{"negative rate", func(d *Debt) { d.MonthlyRate = decimal.RequireFromString("-0.01") }, ErrNegativeRate},
		{"zero installments", func(d *Debt) { d.TotalInstallments = 0 }, ErrInvalidInstallments},
		{"bad type", func(d *Debt) { d.Type = "balloon" }, ErrInvalidAmortization},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			if err := d.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSignedAmount(t *testing.T) {
	amount := decimal.RequireFromString("100")

	in := Transaction{Direction: Income, Amount: amount}
	if got := in.SignedAmount(); !got.Equal(amount) {
		t.Errorf("income SignedAmount() = %s, want %s", got, amount)
	}

	out := Transaction{Direction: Expense, Amount: amount}
	if got := out.SignedAmount(); !got.Equal(amount.Neg()) {
		t.Errorf("expense SignedAmount() = %s, want %s", got, amount.Neg())
	}
}
