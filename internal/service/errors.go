package service

import (
	"errors"

	"kidbank/internal/repository"
)

// 业务错误，在原子操作内部、任何写入提交之前检出，原样返回给调用方，不重试
var (
	ErrInvalidAmount           = errors.New("金额不合法")
	ErrInvalidField            = errors.New("余额字段不合法")
	ErrSameField               = errors.New("转出与转入字段相同")
	ErrInvalidArgument         = errors.New("参数不合法")
	ErrInsufficientFunds       = errors.New("余额不足")
	ErrCardFrozen              = errors.New("卡片已冻结")
	ErrWithdrawalLimitExceeded = errors.New("本月储蓄取款次数已达上限")
	ErrRecipientNotFound       = errors.New("收款人不存在")
	ErrSelfTransferRejected    = errors.New("不能向自己转账")
	ErrInvalidRole             = errors.New("账户角色不合法")
	ErrNotDependent            = errors.New("目标账户不是被监护账户")

	ErrAccountNotFound = repository.ErrAccountNotFound
	ErrAccountExists   = repository.ErrAccountExists
	ErrGoalNotFound    = repository.ErrGoalNotFound

	ErrTransactionNotFound = repository.ErrTransactionNotFound
)

// 存储错误，在内部有限次重试后才返回
var (
	ErrTransientStoreConflict = errors.New("并发冲突重试次数耗尽，请稍后重试")
	ErrStoreUnavailable       = errors.New("存储暂不可用")
)

var businessErrors = []error{
	ErrInvalidAmount,
	ErrInvalidField,
	ErrSameField,
	ErrInvalidArgument,
	ErrInsufficientFunds,
	ErrCardFrozen,
	ErrWithdrawalLimitExceeded,
	ErrRecipientNotFound,
	ErrSelfTransferRejected,
	ErrAccountExists,
	ErrInvalidRole,
	ErrNotDependent,
	ErrAccountNotFound,
	ErrGoalNotFound,
	ErrTransactionNotFound,
}

// IsBusinessError 判断错误是否由当前状态决定（重试不会改变结果）
func IsBusinessError(err error) bool {
	for _, target := range businessErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
