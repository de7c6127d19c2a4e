package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"grana/internal/core"
)

// GenerationStore is the persistence surface the coordinator needs.
// CreateGeneratedOccurrence must insert the ledger transaction and its
// generation link as one unit, and report created=false (with no side
// effects) when the (recurrence, occurrence date) pair already exists.
type GenerationStore interface {
	GetDueRecurringTransactions(ctx context.Context, userID int64, asOf time.Time) ([]core.RecurringTransaction, error)
	CreateGeneratedOccurrence(ctx context.Context, tx core.Transaction, recurringID int64, occurrence, generatedAt time.Time) (transactionID int64, created bool, err error)
	UpdateRecurringCursor(ctx context.Context, recurringID int64, nextOccurrence, generatedAt time.Time) error
}

// GeneratedPublisher notifies downstream consumers about a materialized
// occurrence. Publishing is best-effort; generation never depends on it.
type GeneratedPublisher interface {
	PublishTransactionGenerated(ctx context.Context, transactionID, recurringID int64, occurrence time.Time) error
}

// GenerationFailure records one recurrence that could not be processed.
type GenerationFailure struct {
	RecurringID int64
	Err         error
}

// GenerationReport summarizes one GenerateDue run. Skipped counts
// occurrences that already existed (idempotent no-ops).
type GenerationReport struct {
	Created  int
	Skipped  int
	Failures []GenerationFailure
}

// GenerationCoordinator materializes ledger transactions from recurring
// definitions, exactly once per occurrence. It is the only component
// that writes a recurrence's cursor.
type GenerationCoordinator struct {
	store     GenerationStore
	scheduler Scheduler
	publisher GeneratedPublisher // optional
	now       func() time.Time

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewGenerationCoordinator creates a coordinator. publisher may be nil.
func NewGenerationCoordinator(store GenerationStore, publisher GeneratedPublisher) *GenerationCoordinator {
	return &GenerationCoordinator{
		store:     store,
		publisher: publisher,
		now:       time.Now,
		locks:     make(map[int64]*sync.Mutex),
	}
}

// lockFor serializes generation per recurrence. Runs for different
// recurrences proceed in parallel; the store's unique constraint backs
// this up across processes.
func (c *GenerationCoordinator) lockFor(recurringID int64) func() {
	c.mu.Lock()
	l, ok := c.locks[recurringID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[recurringID] = l
	}
	c.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// GenerateDue materializes every pending occurrence at or before asOf for
// the user's active recurrences. A recurrence that has been inactive may
// be due for several occurrences at once; each is generated in order.
// Failures on one recurrence do not stop the others. Re-running with the
// same asOf creates nothing new.
func (c *GenerationCoordinator) GenerateDue(ctx context.Context, userID int64, asOf time.Time) (GenerationReport, error) {
	var report GenerationReport

	due, err := c.store.GetDueRecurringTransactions(ctx, userID, asOf)
	if err != nil {
		return report, fmt.Errorf("get due recurring transactions: %w", err)
	}

	asOfDate := core.DateOnly(asOf)
	slog.InfoContext(ctx, "Generating due recurring transactions",
		"user_id", userID,
		"due", len(due),
		"as_of", asOfDate.Format("2006-01-02"))

	for _, rt := range due {
		if ctx.Err() != nil {
			// Caller gave up; everything generated so far is committed.
			return report, ctx.Err()
		}
		created, skipped, err := c.generateFor(ctx, rt, asOfDate)
		report.Created += created
		report.Skipped += skipped
		if err != nil {
			report.Failures = append(report.Failures, GenerationFailure{RecurringID: rt.ID, Err: err})
			slog.ErrorContext(ctx, "Failed to generate occurrences for recurrence",
				"recurring_id", rt.ID,
				"description", rt.Description,
				"error", err)
		}
	}

	slog.InfoContext(ctx, "Recurring generation complete",
		"user_id", userID,
		"created", report.Created,
		"skipped", report.Skipped,
		"failed", len(report.Failures))
	return report, nil
}

func (c *GenerationCoordinator) generateFor(ctx context.Context, rt core.RecurringTransaction, asOf time.Time) (created, skipped int, err error) {
	unlock := c.lockFor(rt.ID)
	defer unlock()

	if err := rt.Validate(); err != nil {
		return 0, 0, fmt.Errorf("recurring transaction %d is invalid: %w", rt.ID, err)
	}

	cursor := core.DateOnly(rt.NextOccurrence)
	if cursor.IsZero() {
		// Fresh definition: the first occurrence is at or after the
		// start date.
		first, err := c.scheduler.NextAfter(rt, core.DateOnly(rt.StartDate).AddDate(0, 0, -1))
		if err != nil {
			return 0, 0, err
		}
		cursor = first
	}

	for !cursor.After(asOf) {
		if !rt.EndDate.IsZero() && cursor.After(core.DateOnly(rt.EndDate)) {
			break
		}
		if ctx.Err() != nil {
			return created, skipped, ctx.Err()
		}

		tx := core.Transaction{
			UserID:       rt.UserID,
			AccountID:    rt.AccountID,
			CreditCardID: rt.CreditCardID,
			Description:  rt.Description,
			Category:     rt.Category,
			Direction:    rt.Direction,
			Amount:       rt.Amount,
			Status:       core.TransactionPending,
			DueDate:      cursor,
		}

		generatedAt := c.now()
		txID, ok, err := c.store.CreateGeneratedOccurrence(ctx, tx, rt.ID, cursor, generatedAt)
		if err != nil {
			return created, skipped, fmt.Errorf("create occurrence %s: %w", cursor.Format("2006-01-02"), err)
		}
		if ok {
			created++
			c.publish(ctx, txID, rt.ID, cursor)
		} else {
			// Already generated by a concurrent or earlier run.
			skipped++
		}

		next, err := c.scheduler.NextAfter(rt, cursor)
		if err != nil {
			return created, skipped, err
		}
		if err := c.store.UpdateRecurringCursor(ctx, rt.ID, next, generatedAt); err != nil {
			return created, skipped, fmt.Errorf("advance cursor: %w", err)
		}
		cursor = next
	}
	return created, skipped, nil
}

func (c *GenerationCoordinator) publish(ctx context.Context, transactionID, recurringID int64, occurrence time.Time) {
	if c.publisher == nil {
		return
	}
	if err := c.publisher.PublishTransactionGenerated(ctx, transactionID, recurringID, occurrence); err != nil {
		// The transaction is committed; a lost event is only a delayed
		// notification.
		slog.ErrorContext(ctx, "Failed to publish generated-transaction event",
			"transaction_id", transactionID,
			"recurring_id", recurringID,
			"error", err)
	}
}
