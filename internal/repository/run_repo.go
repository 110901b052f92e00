package repository

import (
	"context"
	"fmt"

	"DealSync/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RunRepository 抓取运行审计记录
type RunRepository interface {
	Save(ctx context.Context, run *model.IngestionRun) error
	ListRecent(ctx context.Context, limit int) ([]*model.IngestionRun, error)
}

type runRepository struct {
	db *gorm.DB
}

func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

func (r *runRepository) Save(ctx context.Context, run *model.IngestionRun) error {
	if run.RunUUID == "" {
		run.RunUUID = uuid.NewString()
	}
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("保存运行记录失败: %w, run: %s", err, run.RunUUID)
	}
	return nil
}

func (r *runRepository) ListRecent(ctx context.Context, limit int) ([]*model.IngestionRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []*model.IngestionRun
	if err := r.db.WithContext(ctx).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
