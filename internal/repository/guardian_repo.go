package repository

import (
	"context"

	"kidbank/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GuardianRepository struct {
	db *gorm.DB
}

func NewGuardianRepository(db *gorm.DB) *GuardianRepository {
	return &GuardianRepository{db: db}
}

// Link 建立监护关系，重复建立不报错
func (r *GuardianRepository) Link(ctx context.Context, guardianID, dependentID string) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.GuardianLink{GuardianID: guardianID, DependentID: dependentID}).Error
}

func (r *GuardianRepository) ListDependentIDs(ctx context.Context, guardianID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.GuardianLink{}).
		Where("guardian_id = ?", guardianID).
		Order("created_at ASC").
		Pluck("dependent_id", &ids).Error
	return ids, err
}

func (r *GuardianRepository) ListGuardianIDs(ctx context.Context, dependentID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&model.GuardianLink{}).
		Where("dependent_id = ?", dependentID).
		Order("created_at ASC").
		Pluck("guardian_id", &ids).Error
	return ids, err
}
