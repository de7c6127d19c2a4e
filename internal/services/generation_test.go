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

type recordingPublisher struct {
	published []int64
}

func (p *recordingPublisher) PublishTransactionGenerated(_ context.Context, transactionID, _ int64, _ time.Time) error {
	p.published = append(p.published, transactionID)
	return nil
}

// failingStore delegates to the wrapped store but fails occurrence
// creation for one recurrence.
type failingStore struct {
	GenerationStore
	failID int64
}

func (s *failingStore) CreateGeneratedOccurrence(ctx context.Context, tx core.Transaction, recurringID int64, occurrence, generatedAt time.Time) (int64, bool, error) {
	if recurringID == s.failID {
		return 0, false, errors.New("disk full")
	}
	return s.GenerationStore.CreateGeneratedOccurrence(ctx, tx, recurringID, occurrence, generatedAt)
}

func seedAccount(t *testing.T, repo *storage.MemoryRepository, userID int64) int64 {
	t.Helper()
	id, err := repo.CreateAccount(context.Background(), core.Account{
		UserID:         userID,
		Name:           "Checking",
		InitialBalance: decimal.RequireFromString("1000"),
		Active:         true,
	})
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}

func seedRecurring(t *testing.T, repo *storage.MemoryRepository, rt core.RecurringTransaction) int64 {
	t.Helper()
	id, err := repo.CreateRecurringTransaction(context.Background(), rt)
	if err != nil {
		t.Fatalf("seed recurring transaction: %v", err)
	}
	return id
}

func salaryDef(userID, accountID int64) core.RecurringTransaction {
	return core.RecurringTransaction{
		UserID:      userID,
		Description: "Salary",
		Category:    "income",
		Direction:   core.Income,
		AccountID:   accountID,
		AmountMode:  core.AmountFixed,
		Amount:      decimal.RequireFromString("3000"),
		Frequency:   core.Monthly,
		DayOfMonth:  1,
		StartDate:   core.NewDate(2024, 1, 1),
		Active:      true,
	}
}

func TestGenerateDueCatchesUpMissedOccurrences(t *testing.T) {
	repo := storage.NewMemoryRepository()
	accID := seedAccount(t, repo, 1)
	rtID := seedRecurring(t, repo, salaryDef(1, accID))

	coord := NewGenerationCoordinator(repo, nil)
	report, err := coord.GenerateDue(context.Background(), 1, core.NewDate(2024, 3, 10))
	if err != nil {
		t.Fatalf("GenerateDue() error: %v", err)
	}

	// Jan 1, Feb 1 and Mar 1 were all due.
	if report.Created != 3 {
		t.Errorf("created = %d, want 3", report.Created)
	}
	if report.Skipped != 0 || len(report.Failures) != 0 {
		t.Errorf("report = %+v, want no skips or failures", report)
	}

	pending, err := repo.GetPendingTransactions(context.Background(), 1, core.NewDate(2024, 1, 1), core.NewDate(2024, 12, 31))
	if err != nil {
		t.Fatalf("GetPendingTransactions() error: %v", err)
	}
	if len(pending) != 3 {
		t.Fatalf("got %d pending transactions, want 3", len(pending))
	}
	for _, tx := range pending {
		if tx.Description != "Salary" || tx.Status != core.TransactionPending {
			t.Errorf("unexpected generated transaction: %+v", tx)
		}
	}

	// The cursor moved past the last materialized occurrence.
	due, err := repo.GetDueRecurringTransactions(context.Background(), 1, core.NewDate(2024, 3, 31))
	if err != nil {
		t.Fatalf("GetDueRecurringTransactions() error: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("recurrence %d still due after generation", rtID)
	}
}

func TestGenerateDueIsIdempotent(t *testing.T) {
	repo := storage.NewMemoryRepository()
	accID := seedAccount(t, repo, 1)
	rtID := seedRecurring(t, repo, salaryDef(1, accID))

	coord := NewGenerationCoordinator(repo, nil)
	asOf := core.NewDate(2024, 3, 10)
	if _, err := coord.GenerateDue(context.Background(), 1, asOf); err != nil {
		t.Fatalf("first GenerateDue() error: %v", err)
	}

	// Same run again: the cursor already filters the recurrence out.
	report, err := coord.GenerateDue(context.Background(), 1, asOf)
	if err != nil {
		t.Fatalf("second GenerateDue() error: %v", err)
	}
	if report.Created != 0 {
		t.Errorf("second run created %d, want 0", report.Created)
	}

	// A rewound cursor must not duplicate either: the occurrence link
	// is the guard, not the cursor.
	if err := repo.UpdateRecurringCursor(context.Background(), rtID, core.NewDate(2024, 1, 1), time.Now()); err != nil {
		t.Fatalf("rewind cursor: %v", err)
	}
	report, err = coord.GenerateDue(context.Background(), 1, asOf)
	if err != nil {
		t.Fatalf("third GenerateDue() error: %v", err)
	}
	if report.Created != 0 {
		t.Errorf("rewound run created %d, want 0", report.Created)
	}
	if report.Skipped != 3 {
		t.Errorf("rewound run skipped %d, want 3", report.Skipped)
	}

	pending, err := repo.GetPendingTransactions(context.Background(), 1, core.NewDate(2024, 1, 1), core.NewDate(2024, 12, 31))
	if err != nil {
		t.Fatalf("GetPendingTransactions() error: %v", err)
	}
	if len(pending) != 3 {
		t.Errorf("got %d pending transactions after reruns, want 3", len(pending))
	}
}

func TestGenerateDueHonorsEndDate(t *testing.T) {
	repo := storage.NewMemoryRepository()
	accID := seedAccount(t, repo, 1)
	def := salaryDef(1, accID)
	def.EndDate = core.NewDate(2024, 2, 15)
	seedRecurring(t, repo, def)

	coord := NewGenerationCoordinator(repo, nil)
	report, err := coord.GenerateDue(context.Background(), 1, core.NewDate(2024, 6, 1))
	if err != nil {
		t.Fatalf("GenerateDue() error: %v", err)
	}
	if report.Created != 2 {
		t.Errorf("created = %d, want 2 (Jan 1 and Feb 1)", report.Created)
	}
}

func TestGenerateDueCollectsFailures(t *testing.T) {
	repo := storage.NewMemoryRepository()
	accID := seedAccount(t, repo, 1)
	goodID := seedRecurring(t, repo, salaryDef(1, accID))

	bad := salaryDef(1, accID)
	bad.Description = "Gym"
	badID := seedRecurring(t, repo, bad)

	store := &failingStore{GenerationStore: repo, failID: badID}
	coord := NewGenerationCoordinator(store, nil)
	report, err := coord.GenerateDue(context.Background(), 1, core.NewDate(2024, 1, 15))
	if err != nil {
		t.Fatalf("GenerateDue() error: %v", err)
	}

	if report.Created != 1 {
		t.Errorf("created = %d, want 1 from recurrence %d", report.Created, goodID)
	}
	if len(report.Failures) != 1 {
		t.Fatalf("got %d failures, want 1", len(report.Failures))
	}
	if report.Failures[0].RecurringID != badID {
		t.Errorf("failure recorded for recurrence %d, want %d", report.Failures[0].RecurringID, badID)
	}
}

func TestGenerateDuePublishesCreatedOccurrences(t *testing.T) {
	repo := storage.NewMemoryRepository()
	accID := seedAccount(t, repo, 1)
	seedRecurring(t, repo, salaryDef(1, accID))

	pub := &recordingPublisher{}
	coord := NewGenerationCoordinator(repo, pub)
	report, err := coord.GenerateDue(context.Background(), 1, core.NewDate(2024, 2, 15))
	if err != nil {
		t.Fatalf("GenerateDue() error: %v", err)
	}
	if report.Created != 2 {
		t.Fatalf("created = %d, want 2", report.Created)
	}
	if len(pub.published) != 2 {
		t.Errorf("published %d events, want 2", len(pub.published))
	}
}

func TestGenerateDueRespectsCancellation(t *testing.T) {
	repo := storage.NewMemoryRepository()
	accID := seedAccount(t, repo, 1)
	seedRecurring(t, repo, salaryDef(1, accID))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	coord := NewGenerationCoordinator(repo, nil)
	if _, err := coord.GenerateDue(ctx, 1, core.NewDate(2024, 3, 10)); !errors.Is(err, context.Canceled) {
		t.Errorf("GenerateDue() = %v, want %v", err, context.Canceled)
	}
}
