package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Goal 储蓄目标，储蓄余额的子账户，资金只来自所属账户的 savings
type Goal struct {
	ID            string          `gorm:"type:varchar(64);primaryKey" json:"id"`
	AccountID     string          `gorm:"type:varchar(64);index;not null" json:"account_id"`
	Name          string          `gorm:"type:varchar(128);not null" json:"name"`
	Icon          string          `gorm:"type:varchar(64)" json:"icon"`
	TargetAmount  decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"target_amount"`
	CurrentAmount decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"current_amount"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Goal) TableName() string {
	return "savings_goal"
}

// GuardianLink 监护关系表：guardian -> dependent，唯一的账户归属查询入口
type GuardianLink struct {
	GuardianID  string    `gorm:"type:varchar(64);primaryKey" json:"guardian_id"`
	DependentID string    `gorm:"type:varchar(64);primaryKey;index" json:"dependent_id"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (GuardianLink) TableName() string {
	return "guardian_link"
}
