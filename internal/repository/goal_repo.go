package repository

import (
	"context"
	"errors"

	"kidbank/internal/model"

	"gorm.io/gorm"
)

var ErrGoalNotFound = errors.New("储蓄目标不存在")

type GoalRepository struct {
	db *gorm.DB
}

func NewGoalRepository(db *gorm.DB) *GoalRepository {
	return &GoalRepository{db: db}
}

func (r *GoalRepository) Create(ctx context.Context, tx *gorm.DB, goal *model.Goal) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(goal).Error
}

// Get 查询账户下的目标，目标不属于该账户时视为不存在
func (r *GoalRepository) Get(ctx context.Context, tx *gorm.DB, accountID, goalID string) (*model.Goal, error) {
	if tx == nil {
		tx = r.db
	}
	var goal model.Goal
	err := tx.WithContext(ctx).
		Where("id = ? AND account_id = ?", goalID, accountID).
		First(&goal).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	return &goal, nil
}

func (r *GoalRepository) ListByAccount(ctx context.Context, accountID string) ([]*model.Goal, error) {
	var goals []*model.Goal
	err := r.db.WithContext(ctx).
		Where("account_id = ?", accountID).
		Order("created_at ASC").
		Find(&goals).Error
	return goals, err
}

func (r *GoalRepository) UpdateAmount(ctx context.Context, tx *gorm.DB, goal *model.Goal) error {
	result := tx.WithContext(ctx).
		Model(&model.Goal{}).
		Where("id = ? AND account_id = ?", goal.ID, goal.AccountID).
		Update("current_amount", goal.CurrentAmount)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGoalNotFound
	}
	return nil
}

func (r *GoalRepository) Delete(ctx context.Context, tx *gorm.DB, goal *model.Goal) error {
	result := tx.WithContext(ctx).
		Where("id = ? AND account_id = ?", goal.ID, goal.AccountID).
		Delete(&model.Goal{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrGoalNotFound
	}
	return nil
}
