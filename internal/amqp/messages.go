package amqp

import (
	"encoding/json"
	"time"
)

// TransactionGeneratedMessage announces one ledger transaction
// materialized from a recurring definition. Consumers fetch the full
// transaction from the database; the message carries identity only.
type TransactionGeneratedMessage struct {
	TransactionID          int64     `json:"transaction_id"`
	RecurringTransactionID int64     `json:"recurring_transaction_id"`
	OccurrenceDate         string    `json:"occurrence_date"` // YYYY-MM-DD
	Timestamp              time.Time `json:"timestamp"`
}

// NewTransactionGeneratedMessage builds a message for a generated occurrence.
func NewTransactionGeneratedMessage(transactionID, recurringID int64, occurrence time.Time) *TransactionGeneratedMessage {
	return &TransactionGeneratedMessage{
		TransactionID:          transactionID,
		RecurringTransactionID: recurringID,
		OccurrenceDate:         occurrence.Format("2006-01-02"),
		Timestamp:              time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *TransactionGeneratedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// TransactionGeneratedMessageFromJSON creates a message from JSON bytes
func TransactionGeneratedMessageFromJSON(data []byte) (*TransactionGeneratedMessage, error) {
	var msg TransactionGeneratedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
