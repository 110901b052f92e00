package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"DealSync/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrNotFound 查询结果为空
	ErrNotFound = errors.New("记录不存在")
	// ErrInvalidPrice 价格必须为正数
	ErrInvalidPrice = errors.New("价格必须大于0")
)

// ListingFilter 列表筛选条件
type ListingFilter struct {
	Model string     // 可选：型号
	Since *time.Time // 可选：发布时间下限（含）
}

// ListingRepository 挂牌记录仓储：只追加写入，读侧提供聚合查询
type ListingRepository interface {
	// Create 写入一条记录；(source_post_id, extract_index) 已存在时返回 false
	Create(ctx context.Context, l *model.Listing) (bool, error)
	// ExistsBySourcePostID 原帖是否已有入库记录
	ExistsBySourcePostID(ctx context.Context, postID string) (bool, error)
	// List 按发布时间倒序列出
	List(ctx context.Context, filter ListingFilter) ([]*model.Listing, error)
	// ModelStats 型号在 since 之后的均值/样本标准差/数量
	ModelStats(ctx context.Context, modelName string, since time.Time) (*model.ModelStats, error)
	// MarketPrices 全部型号均价，按均价倒序
	MarketPrices(ctx context.Context) ([]model.MarketPrice, error)
	// MarketPrice 单个型号均价
	MarketPrice(ctx context.Context, modelName string) (*model.MarketPrice, error)
	// AllTimeMeans 各型号全量均价
	AllTimeMeans(ctx context.Context) (map[string]float64, error)
	// ListOutsideBand 型号价格落在 (lower, upper) 之外的记录
	ListOutsideBand(ctx context.Context, modelName string, lower, upper float64) ([]*model.Listing, error)
	// DeleteOutsideBand 按每行所属型号的实时均价批量删除离群记录
	DeleteOutsideBand(ctx context.Context, threshold float64) (int64, error)
}

type listingRepository struct {
	db *gorm.DB
}

// NewListingRepository 创建 ListingRepository 实例
func NewListingRepository(db *gorm.DB) ListingRepository {
	return &listingRepository{db: db}
}

func (r *listingRepository) Create(ctx context.Context, l *model.Listing) (bool, error) {
	if l.Price <= 0 {
		return false, ErrInvalidPrice
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "source_post_id"}, {Name: "extract_index"}},
			DoNothing: true,
		}).
		Create(l)
	if res.Error != nil {
		return false, fmt.Errorf("保存Listing失败: %w, post: %s", res.Error, l.SourcePostID)
	}
	return res.RowsAffected > 0, nil
}

func (r *listingRepository) ExistsBySourcePostID(ctx context.Context, postID string) (bool, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).
		Where("source_post_id = ?", postID).
		Limit(1).
		Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *listingRepository) List(ctx context.Context, filter ListingFilter) ([]*model.Listing, error) {
	db := r.db.WithContext(ctx).Model(&model.Listing{})
	if filter.Model != "" {
		db = db.Where("model = ?", filter.Model)
	}
	if filter.Since != nil {
		db = db.Where("posted_at >= ?", *filter.Since)
	}
	var listings []*model.Listing
	if err := db.Order("posted_at DESC").Order("id DESC").Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

func (r *listingRepository) ModelStats(ctx context.Context, modelName string, since time.Time) (*model.ModelStats, error) {
	var row struct {
		Mean   *float64
		StdDev *float64
		Count  int64
	}
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).
		Select("AVG(price)::float8 AS mean, STDDEV_SAMP(price)::float8 AS std_dev, COUNT(*) AS count").
		Where("model = ? AND posted_at >= ?", modelName, since).
		Scan(&row).Error; err != nil {
		return nil, err
	}
	return &model.ModelStats{Model: modelName, Mean: row.Mean, StdDev: row.StdDev, Count: row.Count}, nil
}

func (r *listingRepository) MarketPrices(ctx context.Context) ([]model.MarketPrice, error) {
	var out []model.MarketPrice
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).
		Select("model, ROUND(AVG(price))::bigint AS avg_price, COUNT(*) AS listings").
		Group("model").
		Order("avg_price DESC").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *listingRepository) MarketPrice(ctx context.Context, modelName string) (*model.MarketPrice, error) {
	var out []model.MarketPrice
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).
		Select("model, ROUND(AVG(price))::bigint AS avg_price, COUNT(*) AS listings").
		Where("model = ?", modelName).
		Group("model").
		Scan(&out).Error; err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return &out[0], nil
}

func (r *listingRepository) AllTimeMeans(ctx context.Context) (map[string]float64, error) {
	var rows []struct {
		Model string
		Mean  *float64
	}
	if err := r.db.WithContext(ctx).Model(&model.Listing{}).
		Select("model, AVG(price)::float8 AS mean").
		Group("model").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	means := make(map[string]float64, len(rows))
	for _, row := range rows {
		if row.Mean != nil {
			means[row.Model] = *row.Mean
		}
	}
	return means, nil
}

// outsideBandCond 上下界显式按 float8 绑定，否则参数按 price 列推断为 int4，小数会被截掉
const outsideBandCond = "model = ? AND (price::float8 > ?::float8 OR price::float8 < ?::float8)"

func (r *listingRepository) ListOutsideBand(ctx context.Context, modelName string, lower, upper float64) ([]*model.Listing, error) {
	var listings []*model.Listing
	if err := r.db.WithContext(ctx).
		Where(outsideBandCond, modelName, upper, lower).
		Order("posted_at DESC").
		Find(&listings).Error; err != nil {
		return nil, err
	}
	return listings, nil
}

// deleteOutliersSQL 子查询按被删行自身型号计算均价，不使用预先算好的快照；
// 与 ListOutsideBand 一样全部按 float8 比较
const deleteOutliersSQL = `
DELETE FROM gpu_listings AS g
WHERE g.price::float8 > (SELECT AVG(s.price)::float8 FROM gpu_listings s WHERE s.model = g.model) * ?::float8
   OR g.price::float8 < (SELECT AVG(s.price)::float8 FROM gpu_listings s WHERE s.model = g.model) / ?::float8`

func (r *listingRepository) DeleteOutsideBand(ctx context.Context, threshold float64) (int64, error) {
	res := r.db.WithContext(ctx).Exec(deleteOutliersSQL, threshold, threshold)
	if res.Error != nil {
		return 0, fmt.Errorf("删除离群记录失败: %w", res.Error)
	}
	return res.RowsAffected, nil
}
