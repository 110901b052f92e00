package repository

import (
	"context"

	"DealSync/internal/model"

	"gorm.io/gorm"
)

// PreferenceRepository 价格提醒订阅查询
type PreferenceRepository interface {
	// FindMatching 订阅了该型号且阈值 ≥ price 的记录
	FindMatching(ctx context.Context, modelName string, price int) ([]*model.NotificationPreference, error)
}

type preferenceRepository struct {
	db *gorm.DB
}

func NewPreferenceRepository(db *gorm.DB) PreferenceRepository {
	return &preferenceRepository{db: db}
}

func (r *preferenceRepository) FindMatching(ctx context.Context, modelName string, price int) ([]*model.NotificationPreference, error) {
	var prefs []*model.NotificationPreference
	if err := r.db.WithContext(ctx).
		Where("LOWER(gpu_model) = LOWER(?) AND price_threshold >= ?", modelName, price).
		Order("id ASC").
		Find(&prefs).Error; err != nil {
		return nil, err
	}
	return prefs, nil
}
