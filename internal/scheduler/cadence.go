package scheduler

import (
	"fmt"
	"time"

	"DealSync/internal/config"
)

// Cadence 判断某个 tick 是否执行抓取：活跃时段每个 tick 都跑，其余时段按 sparse_interval 分钟稀疏执行
type Cadence struct {
	loc            *time.Location
	startHour      int
	endHour        int
	sparseInterval int
}

func NewCadence(cfg *config.ScheduleConfig) (*Cadence, error) {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("加载调度时区%s失败: %w", cfg.Timezone, err)
	}
	if cfg.ActiveStartHour < 0 || cfg.ActiveStartHour > 23 || cfg.ActiveEndHour < 0 || cfg.ActiveEndHour > 24 {
		return nil, fmt.Errorf("活跃时段配置错误: [%d, %d)", cfg.ActiveStartHour, cfg.ActiveEndHour)
	}
	if cfg.SparseInterval <= 0 {
		return nil, fmt.Errorf("sparse_interval必须为正: %d", cfg.SparseInterval)
	}
	return &Cadence{
		loc:            loc,
		startHour:      cfg.ActiveStartHour,
		endHour:        cfg.ActiveEndHour,
		sparseInterval: cfg.SparseInterval,
	}, nil
}

// Active now 是否处于活跃时段，end < start 时跨午夜
func (c *Cadence) Active(now time.Time) bool {
	h := now.In(c.loc).Hour()
	if c.startHour <= c.endHour {
		return h >= c.startHour && h < c.endHour
	}
	return h >= c.startHour || h < c.endHour
}

// ShouldRun 本次 tick 是否执行
func (c *Cadence) ShouldRun(now time.Time) bool {
	if c.Active(now) {
		return true
	}
	return now.In(c.loc).Minute()%c.sparseInterval == 0
}
