package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"DealSync/internal/config"
	"DealSync/internal/event"
	"DealSync/internal/interfaces"
	"DealSync/internal/lock"
	"DealSync/internal/model"
	"DealSync/internal/repository"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
)

// ErrRunInProgress 已有抓取在运行，本次跳过
var ErrRunInProgress = errors.New("已有抓取任务在运行")

// Mode 抓取模式
type Mode string

const (
	ModeIncremental Mode = "incremental" // 遇到已入库帖子即停止，型号严格匹配词表
	ModeBackfill    Mode = "backfill"    // 历史回填，达到上限或翻完为止
)

// ParseMode 解析抓取模式
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeIncremental:
		return ModeIncremental, nil
	case ModeBackfill:
		return ModeBackfill, nil
	}
	return "", fmt.Errorf("未知的抓取模式: %q", s)
}

// 停止原因
const (
	StopExhausted   = "exhausted"
	StopSeenPost    = "seen_post"
	StopBackfillMax = "backfill_max"
	StopError       = "error"
)

// RunResult 单次抓取运行的统计
type RunResult struct {
	RunID      string         `json:"run_id"`
	Mode       Mode           `json:"mode"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Pages      int            `json:"pages"`
	Candidates int            `json:"candidates"`
	Accepted   int            `json:"accepted"`
	Rejections map[string]int `json:"rejections"`
	StopReason string         `json:"stop_reason"`
}

func (r *RunResult) reject(reason string) {
	r.Rejections[reason]++
}

// Publisher 事件发布
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// IngestDeps IngestService 依赖
type IngestDeps struct {
	Config    *config.IngestConfig
	Source    interfaces.ListingSource
	Oracle    interfaces.ExtractionOracle
	Listings  repository.ListingRepository
	Runs      repository.RunRepository
	Filter    *CandidateFilter
	Validator *Validator
	Events    Publisher
	Guard     lock.Guard
	Logger    *logrus.Logger
}

// IngestService 抓取编排：翻页 -> 过滤 -> 批量抽取 -> 校验 -> 入库 -> 发布事件
type IngestService struct {
	IngestDeps
	sleep func(ctx context.Context, d time.Duration) error
	now   func() time.Time
}

func NewIngestService(deps IngestDeps) *IngestService {
	return &IngestService{IngestDeps: deps, sleep: sleepCtx, now: time.Now}
}

// Run 执行一次抓取。中途失败时返回已完成部分的统计和错误
func (s *IngestService) Run(ctx context.Context, mode Mode) (*RunResult, error) {
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	release, ok, err := s.Guard.TryAcquire(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrRunInProgress
	}
	defer release()

	res := &RunResult{
		RunID:      uuid.NewString(),
		Mode:       mode,
		StartedAt:  s.now(),
		Rejections: make(map[string]int),
	}
	log := s.Logger.WithFields(logrus.Fields{"run_id": res.RunID, "mode": mode})
	log.Info("开始抓取")

	runErr := s.run(ctx, mode, res, log)
	res.FinishedAt = s.now()
	if runErr != nil {
		res.StopReason = StopError
	}
	s.record(ctx, res, runErr, log)

	fields := logrus.Fields{
		"pages":      res.Pages,
		"candidates": res.Candidates,
		"accepted":   res.Accepted,
		"rejections": res.Rejections,
		"stop":       res.StopReason,
		"elapsed":    res.FinishedAt.Sub(res.StartedAt).String(),
	}
	if runErr != nil {
		log.WithFields(fields).WithError(runErr).Warn("抓取中断")
		return res, runErr
	}
	log.WithFields(fields).Info("抓取完成")
	return res, nil
}

func (s *IngestService) run(ctx context.Context, mode Mode, res *RunResult, log *logrus.Entry) error {
	cred, err := s.Source.Authenticate(ctx)
	if err != nil {
		return fmt.Errorf("%s认证失败: %w", s.Source.GetName(), err)
	}

	after := ""
	for {
		page, err := s.Source.FetchPage(ctx, cred, after)
		if err != nil {
			return fmt.Errorf("拉取第%d页失败: %w", res.Pages+1, err)
		}
		res.Pages++

		stop, err := s.processPage(ctx, mode, page, res, log)
		if err != nil {
			return err
		}
		if stop != "" {
			res.StopReason = stop
			return nil
		}
		if page.After == "" {
			res.StopReason = StopExhausted
			return nil
		}
		after = page.After
	}
}

// processPage 处理一页帖子，返回非空停止原因时结束整个运行
func (s *IngestService) processPage(ctx context.Context, mode Mode, page *model.Page, res *RunResult, log *logrus.Entry) (string, error) {
	var (
		batch []*model.RawPost
		stop  string
	)
	for _, post := range page.Posts {
		if !s.dispositionAllowed(post.Disposition) {
			res.reject(ReasonDisposition)
			continue
		}
		if mode == ModeIncremental {
			seen, err := s.Listings.ExistsBySourcePostID(ctx, post.ID)
			if err != nil {
				return "", fmt.Errorf("查询帖子%s是否已入库失败: %w", post.ID, err)
			}
			if seen {
				log.WithField("post_id", post.ID).Info("遇到已入库帖子，停止本次抓取")
				stop = StopSeenPost
				break
			}
		}
		if ok, reason := s.Filter.Accepts(post.Title, post.Body); !ok {
			if strings.HasPrefix(reason, ReasonKeyword) {
				log.WithFields(logrus.Fields{"post_id": post.ID, "reason": reason}).Debug("命中排除关键词")
				reason = ReasonKeyword
			}
			res.reject(reason)
			continue
		}

		batch = append(batch, post)
		res.Candidates++
		if len(batch) >= s.Config.BatchSize || s.backfillFull(mode, res.Accepted+len(batch)) {
			if err := s.flush(ctx, mode, batch, res, log); err != nil {
				return "", err
			}
			batch = nil
		}
		if s.backfillFull(mode, res.Accepted) {
			stop = StopBackfillMax
			break
		}
	}

	// 页末（或提前停止时）把未满的批次送出
	if len(batch) > 0 {
		if err := s.flush(ctx, mode, batch, res, log); err != nil {
			return "", err
		}
	}
	if stop == "" && s.backfillFull(mode, res.Accepted) {
		stop = StopBackfillMax
	}
	return stop, nil
}

// flush 一次抽取调用，随后固定等待 call_delay
func (s *IngestService) flush(ctx context.Context, mode Mode, batch []*model.RawPost, res *RunResult, log *logrus.Entry) error {
	texts := make([]string, len(batch))
	titles := make([]string, len(batch))
	for i, p := range batch {
		texts[i] = p.Title + "\n" + p.Body
		titles[i] = p.Title
	}

	entries, err := s.Oracle.Extract(ctx, texts)
	if err != nil {
		return fmt.Errorf("抽取失败: %w", err)
	}
	if err := s.sleep(ctx, s.Config.CallDelay); err != nil {
		return err
	}

	strict := mode == ModeIncremental
	seq := make([]int, len(batch))
	for _, e := range entries {
		if s.backfillFull(mode, res.Accepted) {
			break
		}
		v, reason, err := s.Validator.Validate(e, titles, strict)
		if err != nil {
			log.WithError(err).WithField("model", e.Model).Debug("抽取结果未通过校验")
			res.reject(reason)
			continue
		}

		post := batch[v.Index]
		listing := &model.Listing{
			Model:        v.Model,
			Price:        v.Price,
			SourceURL:    post.URL,
			PostedAt:     post.CreatedAt,
			SourcePostID: post.ID,
			ExtractIndex: seq[v.Index],
			RawEntry:     datatypes.JSON(e.Raw),
		}
		seq[v.Index]++

		created, err := s.Listings.Create(ctx, listing)
		if errors.Is(err, repository.ErrInvalidPrice) {
			res.reject(ReasonPrice)
			continue
		}
		if err != nil {
			return err
		}
		if !created {
			res.reject(ReasonDuplicate)
			continue
		}
		res.Accepted++
		log.WithFields(logrus.Fields{
			"post_id": post.ID,
			"model":   listing.Model,
			"price":   listing.Price,
		}).Debug("新增挂牌记录")
		s.Events.Publish(ctx, event.TopicListingCreated, listing)
	}
	return nil
}

func (s *IngestService) dispositionAllowed(d string) bool {
	d = strings.TrimSpace(d)
	for _, allowed := range s.Config.Dispositions {
		if strings.EqualFold(d, allowed) {
			return true
		}
	}
	return false
}

func (s *IngestService) backfillFull(mode Mode, n int) bool {
	return mode == ModeBackfill && n >= s.Config.BackfillMax
}

// record 写运行审计，失败只记日志
func (s *IngestService) record(ctx context.Context, res *RunResult, runErr error, log *logrus.Entry) {
	if s.Runs == nil {
		return
	}
	hist, err := json.Marshal(res.Rejections)
	if err != nil {
		log.WithError(err).Warn("序列化丢弃统计失败")
	}
	run := &model.IngestionRun{
		RunUUID:    res.RunID,
		Mode:       string(res.Mode),
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
		Pages:      res.Pages,
		Candidates: res.Candidates,
		Accepted:   res.Accepted,
		Rejections: datatypes.JSON(hist),
		StopReason: res.StopReason,
	}
	if runErr != nil {
		msg := runErr.Error()
		run.Error = &msg
	}
	// 运行被取消时仍然尝试落审计
	if err := s.Runs.Save(context.WithoutCancel(ctx), run); err != nil {
		log.WithError(err).Error("保存运行记录失败")
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
