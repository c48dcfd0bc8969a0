package service

import (
	"context"
	"strings"

	"kidbank/internal/model"
	"kidbank/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// GoalService 储蓄目标的创建与查询；存取与删除涉及余额，由 LedgerService 完成
type GoalService struct {
	accountRepo *repository.AccountRepository
	goalRepo    *repository.GoalRepository
}

func NewGoalService(db *gorm.DB) *GoalService {
	return &GoalService{
		accountRepo: repository.NewAccountRepository(db),
		goalRepo:    repository.NewGoalRepository(db),
	}
}

type CreateGoalRequest struct {
	Name         string          `json:"name" binding:"required"`
	Icon         string          `json:"icon"`
	TargetAmount decimal.Decimal `json:"target_amount"`
}

func (s *GoalService) CreateGoal(ctx context.Context, accountID string, req *CreateGoalRequest) (*model.Goal, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, ErrInvalidArgument
	}
	if !validAmount(req.TargetAmount) {
		return nil, ErrInvalidAmount
	}
	if _, err := s.accountRepo.GetByID(ctx, nil, accountID); err != nil {
		return nil, err
	}

	goal := &model.Goal{
		ID:            uuid.NewString(),
		AccountID:     accountID,
		Name:          name,
		Icon:          req.Icon,
		TargetAmount:  req.TargetAmount,
		CurrentAmount: decimal.Zero,
	}
	if err := s.goalRepo.Create(ctx, nil, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

func (s *GoalService) ListGoals(ctx context.Context, accountID string) ([]*model.Goal, error) {
	if _, err := s.accountRepo.GetByID(ctx, nil, accountID); err != nil {
		return nil, err
	}
	return s.goalRepo.ListByAccount(ctx, accountID)
}

func (s *GoalService) GetGoal(ctx context.Context, accountID, goalID string) (*model.Goal, error) {
	return s.goalRepo.Get(ctx, nil, accountID, goalID)
}
