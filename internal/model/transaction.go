package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// 系统生成的流水描述
const (
	DescriptionAllowance = "Weekly Allowance"
	DescriptionInterest  = "Monthly Interest"
)

// Transaction 账户流水表
//
// 流水表设计原则：
// 1. 只追加，不修改，不删除
// 2. 每条流水只影响一个账户的一个余额字段
// 3. 记录交易后余额，便于校验余额一致性
type Transaction struct {
	ID                    int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	TransactionNo         string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"transaction_no"`
	AccountID             string          `gorm:"type:varchar(64);index:idx_txn_account_created,priority:1;not null" json:"account_id"`
	AccountField          string          `gorm:"type:varchar(16);not null" json:"account_field"`
	Amount                decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"` // 正数入账，负数出账
	BalanceAfter          decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"balance_after"`
	Description           string          `gorm:"type:varchar(256)" json:"description"`
	CounterpartyAccountID string          `gorm:"type:varchar(64);index" json:"counterparty_account_id,omitempty"` // 点对点转账的对方账户
	CreatedAt             time.Time       `gorm:"index:idx_txn_account_created,priority:2;not null" json:"created_at"`
}

func (Transaction) TableName() string {
	return "ledger_transaction"
}
