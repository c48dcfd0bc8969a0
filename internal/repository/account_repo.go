package repository

import (
	"context"
	"errors"
	"strings"

	"kidbank/internal/model"

	"gorm.io/gorm"
)

var (
	ErrAccountNotFound = errors.New("账户不存在")
	ErrAccountExists   = errors.New("账户已存在")
	ErrOptimisticLock  = errors.New("乐观锁冲突，请重试")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

// Create id 或 email 与已有账户重复时返回 ErrAccountExists
func (r *AccountRepository) Create(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	err := r.conn(tx).WithContext(ctx).Create(account).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrAccountExists
	}
	return err
}

func (r *AccountRepository) GetByID(ctx context.Context, tx *gorm.DB, id string) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByEmail(ctx context.Context, tx *gorm.DB, email string) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where("email = ?", email).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Resolve 按账户ID或邮箱解析账户，最多返回一个结果。邮箱统一按小写匹配
func (r *AccountRepository) Resolve(ctx context.Context, tx *gorm.DB, identifier string) (*model.Account, error) {
	account, err := r.GetByID(ctx, tx, identifier)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}
	return r.GetByEmail(ctx, tx, strings.ToLower(strings.TrimSpace(identifier)))
}

// Save 以乐观锁方式写回余额与策略字段。
// 只有 version 未变化时才会更新成功，成功后 account.Version 自增。
func (r *AccountRepository) Save(ctx context.Context, tx *gorm.DB, account *model.Account) error {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("id = ? AND version = ?", account.ID, account.Version).
		Updates(map[string]interface{}{
			"checking_balance":       account.CheckingBalance,
			"savings_balance":        account.SavingsBalance,
			"allowance_amount":       account.AllowanceAmount,
			"last_allowance_at":      account.LastAllowanceAt,
			"interest_rate_annual":   account.InterestRateAnnual,
			"last_interest_at":       account.LastInterestAt,
			"is_card_frozen":         account.IsCardFrozen,
			"withdrawal_count":       account.WithdrawalCount,
			"withdrawal_count_month": account.WithdrawalCountMonth,
			"version":                gorm.Expr("version + 1"),
		})

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrOptimisticLock
	}

	account.Version++
	return nil
}

// ListIDsByRole 按ID游标分页列出指定角色的账户ID
func (r *AccountRepository) ListIDsByRole(ctx context.Context, role, afterID string, limit int) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("role = ? AND id > ?", role, afterID).
		Order("id ASC").
		Limit(limit).
		Pluck("id", &ids).Error
	return ids, err
}
