package service

import (
	"context"
	"errors"
	"strings"

	"kidbank/internal/model"
	"kidbank/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// AccountService 账户管理：开户、查询、监护关系、策略参数、流水查询与对账
type AccountService struct {
	db              *gorm.DB
	ledger          *LedgerService
	accountRepo     *repository.AccountRepository
	transactionRepo *repository.TransactionRepository
	guardianRepo    *repository.GuardianRepository
}

func NewAccountService(db *gorm.DB, ledger *LedgerService) *AccountService {
	return &AccountService{
		db:              db,
		ledger:          ledger,
		accountRepo:     repository.NewAccountRepository(db),
		transactionRepo: repository.NewTransactionRepository(db),
		guardianRepo:    repository.NewGuardianRepository(db),
	}
}

type CreateAccountRequest struct {
	ID          string `json:"id"`
	Role        string `json:"role" binding:"required"`
	Email       string `json:"email" binding:"required"`
	DisplayName string `json:"display_name"`
}

// AccountView 账户及其监护人，附带本月剩余储蓄取款次数
type AccountView struct {
	*model.Account
	LinkedGuardianIDs           []string `json:"linked_guardian_ids"`
	SavingsWithdrawalsRemaining int      `json:"savings_withdrawals_remaining"`
}

// FieldReconciliation 单个余额字段的对账结果
type FieldReconciliation struct {
	Balance    decimal.Decimal `json:"balance"`
	LedgerSum  decimal.Decimal `json:"ledger_sum"`
	Consistent bool            `json:"consistent"`
}

type ReconcileReport struct {
	AccountID  string              `json:"account_id"`
	Checking   FieldReconciliation `json:"checking"`
	Savings    FieldReconciliation `json:"savings"`
	Consistent bool                `json:"consistent"`
}

// CreateAccount 开户，余额为0，利率取配置默认值；ID 为空时自动生成
func (s *AccountService) CreateAccount(ctx context.Context, req *CreateAccountRequest) (*model.Account, error) {
	if !model.ValidRole(req.Role) {
		return nil, ErrInvalidRole
	}
	email := strings.TrimSpace(strings.ToLower(req.Email))
	if email == "" {
		return nil, ErrInvalidArgument
	}

	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}

	account := &model.Account{
		ID:                 id,
		Role:               req.Role,
		Email:              email,
		DisplayName:        req.DisplayName,
		CheckingBalance:    decimal.Zero,
		SavingsBalance:     decimal.Zero,
		AllowanceAmount:    decimal.Zero,
		InterestRateAnnual: s.ledger.cfg.Ledger.InterestRate(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.accountRepo.GetByID(ctx, tx, id); err == nil {
			return ErrAccountExists
		} else if !errors.Is(err, repository.ErrAccountNotFound) {
			return err
		}
		if _, err := s.accountRepo.GetByEmail(ctx, tx, email); err == nil {
			return ErrAccountExists
		} else if !errors.Is(err, repository.ErrAccountNotFound) {
			return err
		}
		return s.accountRepo.Create(ctx, tx, account)
	})
	if err != nil {
		return nil, err
	}
	return account, nil
}

func (s *AccountService) GetAccount(ctx context.Context, id string) (*AccountView, error) {
	account, err := s.accountRepo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}
	guardianIDs, err := s.guardianRepo.ListGuardianIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	if guardianIDs == nil {
		guardianIDs = []string{}
	}
	return &AccountView{
		Account:                     account,
		LinkedGuardianIDs:           guardianIDs,
		SavingsWithdrawalsRemaining: s.ledger.guard.Remaining(account, s.ledger.clock.Now()),
	}, nil
}

func (s *AccountService) FindByEmail(ctx context.Context, email string) (*model.Account, error) {
	return s.accountRepo.GetByEmail(ctx, nil, strings.TrimSpace(strings.ToLower(email)))
}

// LinkDependent 监护人按邮箱关联被监护账户，重复关联不报错
func (s *AccountService) LinkDependent(ctx context.Context, guardianID, dependentEmail string) (*model.Account, error) {
	guardian, err := s.accountRepo.GetByID(ctx, nil, guardianID)
	if err != nil {
		return nil, err
	}
	if guardian.Role != model.RoleGuardian {
		return nil, ErrInvalidRole
	}

	dependent, err := s.FindByEmail(ctx, dependentEmail)
	if err != nil {
		return nil, err
	}
	if dependent.Role != model.RoleDependent {
		return nil, ErrNotDependent
	}

	if err := s.guardianRepo.Link(ctx, guardian.ID, dependent.ID); err != nil {
		return nil, err
	}
	return dependent, nil
}

func (s *AccountService) ListDependents(ctx context.Context, guardianID string) ([]*model.Account, error) {
	if _, err := s.accountRepo.GetByID(ctx, nil, guardianID); err != nil {
		return nil, err
	}
	ids, err := s.guardianRepo.ListDependentIDs(ctx, guardianID)
	if err != nil {
		return nil, err
	}

	dependents := make([]*model.Account, 0, len(ids))
	for _, id := range ids {
		account, err := s.accountRepo.GetByID(ctx, nil, id)
		if err != nil {
			return nil, err
		}
		dependents = append(dependents, account)
	}
	return dependents, nil
}

// SetAllowance 设置每周零花钱金额，0 表示停发
func (s *AccountService) SetAllowance(ctx context.Context, id string, amount decimal.Decimal) (*model.Account, error) {
	if amount.IsNegative() || !model.WithinScale(amount, model.AmountScale) {
		return nil, ErrInvalidAmount
	}
	return s.updateSettings(ctx, "set_allowance", id, func(account *model.Account) {
		account.AllowanceAmount = amount
	})
}

// SetInterestRate 设置年利率（小数形式，如 0.05）
func (s *AccountService) SetInterestRate(ctx context.Context, id string, rate decimal.Decimal) (*model.Account, error) {
	if rate.IsNegative() || !model.WithinScale(rate, model.RateScale) {
		return nil, ErrInvalidAmount
	}
	return s.updateSettings(ctx, "set_interest_rate", id, func(account *model.Account) {
		account.InterestRateAnnual = rate
	})
}

func (s *AccountService) SetCardFrozen(ctx context.Context, id string, frozen bool) (*model.Account, error) {
	return s.updateSettings(ctx, "set_card_frozen", id, func(account *model.Account) {
		account.IsCardFrozen = frozen
	})
}

// updateSettings 策略字段与余额写在同一行，同样走乐观锁
func (s *AccountService) updateSettings(ctx context.Context, op, id string, apply func(account *model.Account)) (*model.Account, error) {
	var updated *model.Account
	err := s.ledger.withAccount(ctx, op, id, func(_ *gorm.DB, account *model.Account) error {
		apply(account)
		updated = account
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ListTransactions 分页查询流水，按时间倒序；field 为空时返回两个字段的流水
func (s *AccountService) ListTransactions(ctx context.Context, id, field string, page, pageSize int) ([]*model.Transaction, int64, error) {
	if field != "" && !model.ValidField(field) {
		return nil, 0, ErrInvalidField
	}
	if _, err := s.accountRepo.GetByID(ctx, nil, id); err != nil {
		return nil, 0, err
	}
	return s.transactionRepo.ListByAccount(ctx, id, field, page, pageSize)
}

// GetTransaction 按流水号查询
func (s *AccountService) GetTransaction(ctx context.Context, transactionNo string) (*model.Transaction, error) {
	return s.transactionRepo.GetByTransactionNo(ctx, transactionNo)
}

// Reconcile 对账：每个余额字段应等于其全部流水金额之和
func (s *AccountService) Reconcile(ctx context.Context, id string) (*ReconcileReport, error) {
	report := &ReconcileReport{AccountID: id}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByID(ctx, tx, id)
		if err != nil {
			return err
		}
		fields := []struct {
			name string
			out  *FieldReconciliation
		}{
			{model.FieldChecking, &report.Checking},
			{model.FieldSavings, &report.Savings},
		}
		for _, f := range fields {
			sum, err := s.transactionRepo.SumByAccountField(ctx, tx, id, f.name)
			if err != nil {
				return err
			}
			balance := account.Balance(f.name)
			*f.out = FieldReconciliation{
				Balance:    balance,
				LedgerSum:  sum,
				Consistent: balance.Equal(sum),
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	report.Consistent = report.Checking.Consistent && report.Savings.Consistent
	return report, nil
}
