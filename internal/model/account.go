package model

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	RoleGuardian  = "guardian"
	RoleDependent = "dependent"
)

// 余额字段
const (
	FieldChecking = "checking"
	FieldSavings  = "savings"
)

func ValidRole(role string) bool {
	return role == RoleGuardian || role == RoleDependent
}

func ValidField(field string) bool {
	return field == FieldChecking || field == FieldSavings
}

// 金额精确到分，年利率最多6位小数
const (
	AmountScale = 2
	RateScale   = 6
)

// WithinScale 小数位数不超过 places
func WithinScale(d decimal.Decimal, places int32) bool {
	return d.Equal(d.Truncate(places))
}

// Account 账户表
// 余额只能通过账务引擎修改，每个余额字段都等于其流水金额之和
type Account struct {
	ID                   string          `gorm:"type:varchar(64);primaryKey" json:"id"`
	Role                 string          `gorm:"type:varchar(16);not null" json:"role"`
	Email                string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"` // 次级查找键，转账按邮箱解析收款人
	DisplayName          string          `gorm:"type:varchar(128)" json:"display_name"`
	CheckingBalance      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"checking_balance"`
	SavingsBalance       decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"savings_balance"`
	AllowanceAmount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"allowance_amount"`
	LastAllowanceAt      *time.Time      `json:"last_allowance_at"`
	InterestRateAnnual   decimal.Decimal `gorm:"type:decimal(10,6);not null" json:"interest_rate_annual"`
	LastInterestAt       *time.Time      `json:"last_interest_at"` // nil 表示计息时钟尚未启动
	IsCardFrozen         bool            `gorm:"not null" json:"is_card_frozen"`
	WithdrawalCount      int             `gorm:"not null" json:"withdrawal_count"`
	WithdrawalCountMonth int             `gorm:"not null" json:"withdrawal_count_month"` // yyyymm
	Version              int             `gorm:"not null;default:0" json:"version"`      // 乐观锁版本号
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}

// Balance 返回指定字段的余额
func (a *Account) Balance(field string) decimal.Decimal {
	if field == FieldSavings {
		return a.SavingsBalance
	}
	return a.CheckingBalance
}

// AddBalance 调整指定字段的余额（delta 可为负）
func (a *Account) AddBalance(field string, delta decimal.Decimal) {
	if field == FieldSavings {
		a.SavingsBalance = a.SavingsBalance.Add(delta)
		return
	}
	a.CheckingBalance = a.CheckingBalance.Add(delta)
}
