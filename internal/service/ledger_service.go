package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"kidbank/internal/config"
	"kidbank/internal/model"
	"kidbank/internal/repository"
	"kidbank/pkg/idgen"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// errNoChange 由操作函数返回，表示账户无需写回（例如策略未到期），事务正常提交
var errNoChange = errors.New("no change")

// LedgerService 账务引擎
//
// 每个操作在一个数据库事务内完成：
//  1. 在事务内读取账户（带 version）
//  2. 校验业务规则，在内存中修改余额
//  3. 追加流水与 outbox 消息
//  4. 以 version 条件写回账户，version 变化说明有并发修改，整个事务回滚重试
//
// 业务错误在任何写入提交前检出，直接返回；存储错误有限次重试后返回。
type LedgerService struct {
	db              *gorm.DB
	cfg             *config.Config
	clock           Clock
	guard           LimitGuard
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	goalRepo        *repository.GoalRepository
	outboxRepo      *repository.OutboxRepository

	stampMu   sync.Mutex
	lastStamp time.Time

	// afterLoad 在事务内读取账户之后调用，测试用来制造并发修改
	afterLoad func(tx *gorm.DB, accountID string)
}

func NewLedgerService(db *gorm.DB, cfg *config.Config, clock Clock) *LedgerService {
	if clock == nil {
		clock = SystemClock{}
	}
	return &LedgerService{
		db:              db,
		cfg:             cfg,
		clock:           clock,
		guard:           LimitGuard{MaxPerMonth: cfg.Ledger.MaxSavingsWithdrawals},
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		goalRepo:        repository.NewGoalRepository(db),
		outboxRepo:      repository.NewOutboxRepository(db),
	}
}

// PeerTransferResult 点对点转账结果，两条流水互相指向对方账户
type PeerTransferResult struct {
	Debit  *model.Transaction `json:"debit"`
	Credit *model.Transaction `json:"credit"`
}

// Credit 入账
func (s *LedgerService) Credit(ctx context.Context, accountID, field string, amount decimal.Decimal, description string) (*model.Transaction, error) {
	if err := validateEntry(field, amount); err != nil {
		return nil, err
	}

	var entry *model.Transaction
	err := s.withAccount(ctx, "credit", accountID, func(tx *gorm.DB, account *model.Account) error {
		var err error
		entry, err = s.appendEntry(ctx, tx, account, field, amount, description, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit 出账
// checking：卡片冻结时拒绝；savings：先经过取款限额校验
func (s *LedgerService) Debit(ctx context.Context, accountID, field string, amount decimal.Decimal, description string) (*model.Transaction, error) {
	if err := validateEntry(field, amount); err != nil {
		return nil, err
	}

	var entry *model.Transaction
	err := s.withAccount(ctx, "debit", accountID, func(tx *gorm.DB, account *model.Account) error {
		if err := s.checkDebit(account, field, amount); err != nil {
			return err
		}
		var err error
		entry, err = s.appendEntry(ctx, tx, account, field, amount.Neg(), description, "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// InternalTransfer 同一账户内 checking 与 savings 之间划转，返回出账、入账两条流水
func (s *LedgerService) InternalTransfer(ctx context.Context, accountID, fromField, toField string, amount decimal.Decimal) ([]*model.Transaction, error) {
	if err := validateEntry(fromField, amount); err != nil {
		return nil, err
	}
	if !model.ValidField(toField) {
		return nil, ErrInvalidField
	}
	if fromField == toField {
		return nil, ErrSameField
	}

	var entries []*model.Transaction
	err := s.withAccount(ctx, "internal_transfer", accountID, func(tx *gorm.DB, account *model.Account) error {
		if err := s.checkDebit(account, fromField, amount); err != nil {
			return err
		}
		out, err := s.appendEntry(ctx, tx, account, fromField, amount.Neg(), "Transfer to "+toField, "")
		if err != nil {
			return err
		}
		in, err := s.appendEntry(ctx, tx, account, toField, amount, "Transfer from "+fromField, "")
		if err != nil {
			return err
		}
		entries = []*model.Transaction{out, in}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// PeerTransfer 点对点转账：从发起方 checking 转到收款方 checking。
// 收款方按账户ID或邮箱解析。
func (s *LedgerService) PeerTransfer(ctx context.Context, fromAccountID, toIdentifier string, amount decimal.Decimal, description string) (*PeerTransferResult, error) {
	if !validAmount(amount) {
		return nil, ErrInvalidAmount
	}
	if toIdentifier == "" {
		return nil, ErrRecipientNotFound
	}
	if description == "" {
		description = "Transfer"
	}

	var result *PeerTransferResult
	err := s.atomically(ctx, "peer_transfer", func(tx *gorm.DB) error {
		sender, err := s.loadAccount(ctx, tx, fromAccountID)
		if err != nil {
			return err
		}

		recipient, err := s.accountRepo.Resolve(ctx, tx, toIdentifier)
		if err != nil {
			if errors.Is(err, repository.ErrAccountNotFound) {
				return ErrRecipientNotFound
			}
			return err
		}
		if recipient.ID == sender.ID {
			return ErrSelfTransferRejected
		}

		if err := s.checkDebit(sender, model.FieldChecking, amount); err != nil {
			return err
		}

		debit, err := s.appendEntry(ctx, tx, sender, model.FieldChecking, amount.Neg(), description, recipient.ID)
		if err != nil {
			return err
		}
		credit, err := s.appendEntry(ctx, tx, recipient, model.FieldChecking, amount, description, sender.ID)
		if err != nil {
			return err
		}

		// 按ID顺序写回，降低两个方向互转时的死锁概率
		first, second := sender, recipient
		if second.ID < first.ID {
			first, second = second, first
		}
		if err := s.accountRepo.Save(ctx, tx, first); err != nil {
			return err
		}
		if err := s.accountRepo.Save(ctx, tx, second); err != nil {
			return err
		}

		result = &PeerTransferResult{Debit: debit, Credit: credit}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ContributeToGoal 储蓄与目标之间划转：amount>0 从 savings 存入目标，amount<0 从目标取回 savings。
// 这部分资金始终属于储蓄余额的子账户，不计入月度取款次数。
func (s *LedgerService) ContributeToGoal(ctx context.Context, accountID, goalID string, amount decimal.Decimal) (*model.Goal, error) {
	if amount.IsZero() || !model.WithinScale(amount, model.AmountScale) {
		return nil, ErrInvalidAmount
	}

	var goal *model.Goal
	err := s.withAccount(ctx, "goal_contribution", accountID, func(tx *gorm.DB, account *model.Account) error {
		var err error
		goal, err = s.goalRepo.Get(ctx, tx, accountID, goalID)
		if err != nil {
			return err
		}

		description := "Saved to goal: " + goal.Name
		if amount.IsPositive() {
			if account.SavingsBalance.LessThan(amount) {
				return ErrInsufficientFunds
			}
		} else {
			if goal.CurrentAmount.LessThan(amount.Neg()) {
				return ErrInsufficientFunds
			}
			description = "Withdrawn from goal: " + goal.Name
		}

		if _, err := s.appendEntry(ctx, tx, account, model.FieldSavings, amount.Neg(), description, ""); err != nil {
			return err
		}
		goal.CurrentAmount = goal.CurrentAmount.Add(amount)
		return s.goalRepo.UpdateAmount(ctx, tx, goal)
	})
	if err != nil {
		return nil, err
	}
	return goal, nil
}

// DeleteGoal 删除目标并把剩余金额退回 savings；目标为空时不产生流水，返回 nil
func (s *LedgerService) DeleteGoal(ctx context.Context, accountID, goalID string) (*model.Transaction, error) {
	var refund *model.Transaction
	err := s.withAccount(ctx, "goal_delete", accountID, func(tx *gorm.DB, account *model.Account) error {
		refund = nil
		goal, err := s.goalRepo.Get(ctx, tx, accountID, goalID)
		if err != nil {
			return err
		}
		if goal.CurrentAmount.IsPositive() {
			refund, err = s.appendEntry(ctx, tx, account, model.FieldSavings, goal.CurrentAmount, "Goal closed: "+goal.Name, "")
			if err != nil {
				return err
			}
		}
		return s.goalRepo.Delete(ctx, tx, goal)
	})
	if err != nil {
		return nil, err
	}
	return refund, nil
}

func validateEntry(field string, amount decimal.Decimal) error {
	if !model.ValidField(field) {
		return ErrInvalidField
	}
	if !validAmount(amount) {
		return ErrInvalidAmount
	}
	return nil
}

// validAmount 金额须为正且不超过两位小数
func validAmount(amount decimal.Decimal) bool {
	return amount.IsPositive() && model.WithinScale(amount, model.AmountScale)
}

// checkDebit 出账前校验，savings 出账会在内存中登记一次取款
func (s *LedgerService) checkDebit(account *model.Account, field string, amount decimal.Decimal) error {
	switch field {
	case model.FieldChecking:
		if account.IsCardFrozen {
			return ErrCardFrozen
		}
	case model.FieldSavings:
		if err := s.guard.Admit(account, s.clock.Now()); err != nil {
			return err
		}
	}
	if account.Balance(field).LessThan(amount) {
		return ErrInsufficientFunds
	}
	return nil
}

// withAccount 读取单个账户、执行 fn、以乐观锁写回，整体作为一个原子操作
func (s *LedgerService) withAccount(ctx context.Context, op, accountID string, fn func(tx *gorm.DB, account *model.Account) error) error {
	return s.atomically(ctx, op, func(tx *gorm.DB) error {
		account, err := s.loadAccount(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if err := fn(tx, account); err != nil {
			if errors.Is(err, errNoChange) {
				return nil
			}
			return err
		}
		return s.accountRepo.Save(ctx, tx, account)
	})
}

func (s *LedgerService) loadAccount(ctx context.Context, tx *gorm.DB, accountID string) (*model.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	if s.afterLoad != nil {
		s.afterLoad(tx, accountID)
	}
	return account, nil
}

// atomically 在数据库事务内执行 fn。
// 业务错误直接返回；乐观锁冲突与存储错误整体重试，次数耗尽后分别返回
// ErrTransientStoreConflict / ErrStoreUnavailable。
func (s *LedgerService) atomically(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	maxRetries := s.cfg.Ledger.MaxRetries
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := s.db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		if IsBusinessError(err) {
			return err
		}

		lastErr = err
		slog.WarnContext(ctx, "账务事务失败",
			"component", "ledger", "op", op, "attempt", attempt, "error", err)

		if attempt == maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, ctx.Err())
		case <-time.After(s.cfg.Ledger.RetryBackoff * time.Duration(attempt)):
		}
	}

	if errors.Is(lastErr, repository.ErrOptimisticLock) {
		return fmt.Errorf("%w: %s", ErrTransientStoreConflict, op)
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreUnavailable, op, lastErr)
}

// appendEntry 调整余额并追加一条流水及对应的 outbox 消息
func (s *LedgerService) appendEntry(ctx context.Context, tx *gorm.DB, account *model.Account, field string, amount decimal.Decimal, description, counterparty string) (*model.Transaction, error) {
	account.AddBalance(field, amount)

	entry := &model.Transaction{
		TransactionNo:         idgen.GenerateTransactionNo(),
		AccountID:             account.ID,
		AccountField:          field,
		Amount:                amount,
		BalanceAfter:          account.Balance(field),
		Description:           description,
		CounterpartyAccountID: counterparty,
		CreatedAt:             s.stamp(),
	}
	if err := s.transactionRepo.Create(ctx, tx, entry); err != nil {
		return nil, fmt.Errorf("写入流水失败: %w", err)
	}

	payload, err := json.Marshal(model.NewLedgerEvent(entry))
	if err != nil {
		return nil, fmt.Errorf("序列化流水事件失败: %w", err)
	}
	msg := &model.OutboxMessage{
		MessageKey: entry.TransactionNo,
		Topic:      s.cfg.MQ.Topic.LedgerEvents,
		Payload:    string(payload),
		Status:     model.OutboxStatusPending,
	}
	if err := s.outboxRepo.Create(ctx, tx, msg); err != nil {
		return nil, fmt.Errorf("写入 outbox 失败: %w", err)
	}
	return entry, nil
}

// stamp 生成流水时间，不早于上一次生成的时间
func (s *LedgerService) stamp() time.Time {
	s.stampMu.Lock()
	defer s.stampMu.Unlock()

	now := s.clock.Now()
	if now.Before(s.lastStamp) {
		now = s.lastStamp
	}
	s.lastStamp = now
	return now
}
