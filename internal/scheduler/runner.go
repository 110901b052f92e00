package scheduler

import (
	"context"
	"errors"
	"time"

	"DealSync/internal/config"
	"DealSync/internal/service"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Ingestor 执行一次抓取
type Ingestor interface {
	Run(ctx context.Context, mode service.Mode) (*service.RunResult, error)
}

// Runner 定时 tick，按 Cadence 触发增量抓取
type Runner struct {
	cron     *cron.Cron
	cadence  *Cadence
	ingestor Ingestor
	baseCtx  context.Context
	logger   *logrus.Logger
	now      func() time.Time
}

func NewRunner(baseCtx context.Context, cfg *config.ScheduleConfig, ingestor Ingestor, logger *logrus.Logger) (*Runner, error) {
	cadence, err := NewCadence(cfg)
	if err != nil {
		return nil, err
	}
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if cfg.TickMinutes > cfg.SparseInterval {
		logger.WithFields(logrus.Fields{
			"tick_minutes":    cfg.TickMinutes,
			"sparse_interval": cfg.SparseInterval,
		}).Warn("tick周期大于sparse_interval，非活跃时段可能永远不会触发抓取")
	}

	r := &Runner{
		cron: cron.New(
			cron.WithLocation(cadence.loc),
			cron.WithChain(cron.Recover(cron.PrintfLogger(logger))),
		),
		cadence:  cadence,
		ingestor: ingestor,
		baseCtx:  baseCtx,
		logger:   logger,
		now:      time.Now,
	}
	if _, err := r.cron.AddFunc(cfg.Cron, r.tick); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Runner) tick() {
	now := r.now()
	if !r.cadence.ShouldRun(now) {
		r.logger.WithField("at", now.In(r.cadence.loc).Format(time.Kitchen)).Debug("非活跃时段，跳过本次tick")
		return
	}
	_, err := r.ingestor.Run(r.baseCtx, service.ModeIncremental)
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		r.logger.Info("上一轮抓取尚未结束，跳过本次tick")
	case err != nil:
		// 统计与错误已在抓取服务里记录，等下一个tick重试
		r.logger.WithError(err).Warn("定时抓取失败")
	}
}

func (r *Runner) Start() {
	r.logger.Info("定时抓取已启动")
	r.cron.Start()
}

// Stop 停止调度并等待正在执行的 tick 结束
func (r *Runner) Stop() {
	ctx := r.cron.Stop()
	<-ctx.Done()
	r.logger.Info("定时抓取已停止")
}
