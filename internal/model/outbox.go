package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// OutboxMessage 本地消息表，与流水在同一事务内写入，由 OutboxSender 异步投递
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

// LedgerEvent 流水事件消息体
type LedgerEvent struct {
	TransactionNo         string    `json:"transaction_no"`
	AccountID             string    `json:"account_id"`
	AccountField          string    `json:"account_field"`
	Amount                string    `json:"amount"`
	BalanceAfter          string    `json:"balance_after"`
	Description           string    `json:"description"`
	CounterpartyAccountID string    `json:"counterparty_account_id,omitempty"`
	CreatedAt             time.Time `json:"created_at"`
}

func NewLedgerEvent(t *Transaction) LedgerEvent {
	return LedgerEvent{
		TransactionNo:         t.TransactionNo,
		AccountID:             t.AccountID,
		AccountField:          t.AccountField,
		Amount:                t.Amount.String(),
		BalanceAfter:          t.BalanceAfter.String(),
		Description:           t.Description,
		CounterpartyAccountID: t.CounterpartyAccountID,
		CreatedAt:             t.CreatedAt,
	}
}
