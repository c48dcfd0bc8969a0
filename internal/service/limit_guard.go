package service

import (
	"time"

	"kidbank/internal/model"
)

// LimitGuard 储蓄取款限额：每个自然月最多 MaxPerMonth 次。
// 计数按 年*100+月 分桶，跨年同月不会沿用旧计数。
type LimitGuard struct {
	MaxPerMonth int
}

// MonthKey 返回 yyyymm 形式的月份键
func MonthKey(t time.Time) int {
	return t.Year()*100 + int(t.Month())
}

// Admit 登记一次储蓄取款。
// 进入新月份先清零计数；已达上限返回 ErrWithdrawalLimitExceeded。
// 只修改内存中的账户，与出账在同一事务内写回。
func (g LimitGuard) Admit(account *model.Account, now time.Time) error {
	key := MonthKey(now)
	if account.WithdrawalCountMonth != key {
		account.WithdrawalCount = 0
		account.WithdrawalCountMonth = key
	}
	if account.WithdrawalCount >= g.MaxPerMonth {
		return ErrWithdrawalLimitExceeded
	}
	account.WithdrawalCount++
	return nil
}

// Remaining 本月剩余可取款次数
func (g LimitGuard) Remaining(account *model.Account, now time.Time) int {
	used := account.WithdrawalCount
	if account.WithdrawalCountMonth != MonthKey(now) {
		used = 0
	}
	if used >= g.MaxPerMonth {
		return 0
	}
	return g.MaxPerMonth - used
}
