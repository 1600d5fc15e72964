package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage is written in the same unit of work as the ledger entry it
// describes and relayed to Kafka afterwards by the outbox sender.
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}

// TransactionPostedEvent is the outbox payload for one committed ledger entry.
type TransactionPostedEvent struct {
	EventID           int64             `json:"event_id"`
	TransactionID     string            `json:"transaction_id"`
	AccountNumber     string            `json:"account_number"`
	CustomerID        int64             `json:"customer_id"`
	Type              TransactionType   `json:"type"`
	Amount            string            `json:"amount"`
	BalanceBefore     string            `json:"balance_before"`
	BalanceAfter      string            `json:"balance_after"`
	Status            TransactionStatus `json:"status"`
	FromAccountNumber *string           `json:"from_account_number,omitempty"`
	ToAccountNumber   *string           `json:"to_account_number,omitempty"`
	CreatedAt         string            `json:"created_at"`
}
