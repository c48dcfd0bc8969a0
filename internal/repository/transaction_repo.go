package repository

import (
	"context"
	"errors"

	"kidbank/internal/model"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const MaxPageSize = 100

var ErrTransactionNotFound = errors.New("流水不存在")

type TransactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create 追加一条流水，流水只增不改
func (r *TransactionRepository) Create(ctx context.Context, tx *gorm.DB, trans *model.Transaction) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(trans).Error
}

func (r *TransactionRepository) GetByTransactionNo(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	var trans model.Transaction
	err := r.db.WithContext(ctx).Where("transaction_no = ?", transactionNo).First(&trans).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &trans, nil
}

// ListByAccount 按创建时间倒序分页查询流水，field 为空时返回全部字段
func (r *TransactionRepository) ListByAccount(ctx context.Context, accountID, field string, page, pageSize int) ([]*model.Transaction, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}

	var transactions []*model.Transaction
	var total int64

	query := r.db.WithContext(ctx).Model(&model.Transaction{}).Where("account_id = ?", accountID)
	if field != "" {
		query = query.Where("account_field = ?", field)
	}

	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	err = query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&transactions).Error

	return transactions, total, err
}

// SumByAccountField 汇总某账户某字段的全部流水金额（在内存中以 decimal 精确求和）
func (r *TransactionRepository) SumByAccountField(ctx context.Context, tx *gorm.DB, accountID, field string) (decimal.Decimal, error) {
	if tx == nil {
		tx = r.db
	}
	var amounts []decimal.Decimal
	err := tx.WithContext(ctx).
		Model(&model.Transaction{}).
		Where("account_id = ? AND account_field = ?", accountID, field).
		Pluck("amount", &amounts).Error
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.Sum(decimal.Zero, amounts...), nil
}
