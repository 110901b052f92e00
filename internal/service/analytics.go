package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"DealSync/internal/config"
	"DealSync/internal/model"
	"DealSync/internal/repository"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var (
	// ErrInvalidThreshold 离群倍数必须 ≥ 1
	ErrInvalidThreshold = errors.New("离群倍数必须大于等于1")
	// ErrInvalidQuery 查询参数不合法
	ErrInvalidQuery = errors.New("查询参数不合法")
)

const (
	scoreScale = 2.75
	maxScore   = 10
	trendBiasZ = 0.3
	trendBand  = 0.05
)

// AnalyticsService 价格分析，所有结果都在请求时从库里现算
type AnalyticsService struct {
	listings repository.ListingRepository
	cfg      *config.AnalyticsConfig
	catalog  *config.CatalogStore
	loc      *time.Location
	logger   *logrus.Logger
	now      func() time.Time
}

func NewAnalyticsService(listings repository.ListingRepository, cfg *config.AnalyticsConfig, catalog *config.CatalogStore, logger *logrus.Logger) *AnalyticsService {
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.WithError(err).WithField("timezone", cfg.Timezone).Warn("加载分析时区失败，使用UTC")
		loc = time.UTC
	}
	return &AnalyticsService{
		listings: listings,
		cfg:      cfg,
		catalog:  catalog,
		loc:      loc,
		logger:   logger,
		now:      time.Now,
	}
}

func (s *AnalyticsService) window() time.Time {
	return s.now().Add(-time.Duration(s.cfg.WindowDays) * 24 * time.Hour)
}

// Listings 挂牌列表，model 为空时返回全部
func (s *AnalyticsService) Listings(ctx context.Context, modelName string) ([]*model.Listing, error) {
	return s.listings.List(ctx, repository.ListingFilter{Model: strings.TrimSpace(modelName)})
}

// MarketPrices 型号均价；指定型号且无数据时返回 repository.ErrNotFound
func (s *AnalyticsService) MarketPrices(ctx context.Context, modelName string) ([]model.MarketPrice, error) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return s.listings.MarketPrices(ctx)
	}
	mp, err := s.listings.MarketPrice(ctx, modelName)
	if err != nil {
		return nil, err
	}
	return []model.MarketPrice{*mp}, nil
}

// PriceHistory 按天聚合（分析时区），日期升序
func (s *AnalyticsService) PriceHistory(ctx context.Context, modelName string) ([]model.DailyPrice, error) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" {
		return nil, fmt.Errorf("%w: 缺少型号", ErrInvalidQuery)
	}
	listings, err := s.listings.List(ctx, repository.ListingFilter{Model: modelName})
	if err != nil {
		return nil, fmt.Errorf("查询%s挂牌记录失败: %w", modelName, err)
	}

	type bucket struct {
		day             model.DailyPrice
		sum             int64
		firstAt, lastAt time.Time
	}
	buckets := make(map[string]*bucket)
	for _, l := range listings {
		at := l.PostedAt.In(s.loc)
		key := at.Format(time.DateOnly)
		b, ok := buckets[key]
		if !ok {
			b = &bucket{
				day:     model.DailyPrice{Date: key, Low: l.Price, High: l.Price, Open: l.Price, Close: l.Price},
				firstAt: at,
				lastAt:  at,
			}
			buckets[key] = b
		}
		b.day.Listings++
		b.sum += int64(l.Price)
		b.day.Low = min(b.day.Low, l.Price)
		b.day.High = max(b.day.High, l.Price)
		if at.Before(b.firstAt) {
			b.firstAt, b.day.Open = at, l.Price
		}
		if at.After(b.lastAt) {
			b.lastAt, b.day.Close = at, l.Price
		}
	}

	out := make([]model.DailyPrice, 0, len(buckets))
	for _, b := range buckets {
		b.day.Avg = roundInt(float64(b.sum) / float64(b.day.Listings))
		out = append(out, b.day)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// Analyze 单个报价相对近期行情的评级
func (s *AnalyticsService) Analyze(ctx context.Context, modelName string, price int) (*model.PriceAnalysis, error) {
	modelName = strings.TrimSpace(modelName)
	if modelName == "" || price <= 0 {
		return nil, fmt.Errorf("%w: model=%q price=%d", ErrInvalidQuery, modelName, price)
	}
	stats, err := s.listings.ModelStats(ctx, modelName, s.window())
	if err != nil {
		return nil, fmt.Errorf("统计%s近期价格失败: %w", modelName, err)
	}

	res := &model.PriceAnalysis{Model: modelName, YourPrice: price, SampleCount: stats.Count}
	if stats.Mean != nil {
		avg := roundInt(*stats.Mean)
		res.AveragePrice = &avg
	}
	if stats.Count < int64(s.cfg.MinSamples) || stats.Mean == nil || stats.StdDev == nil {
		res.Status = model.AnalysisInsufficientData
		res.Message = "Not enough recent market data to analyze this GPU."
		return res, nil
	}
	if *stats.StdDev == 0 {
		res.Status = model.AnalysisStableMarket
		res.Message = "Market is too stable to determine rating: all listings are priced the same."
		return res, nil
	}

	mean := *stats.Mean
	z := zScore(price, mean, *stats.StdDev)
	// TODO: 参考均价改为历史窗口均价，等产品确认口径后再改；目前与当前均价相同，偏移恒为0
	z += trendBias(mean, mean)

	score := dealScore(z)
	pct := round1(math.Abs((mean - float64(price)) / mean * 100))
	direction := "above"
	if float64(price) < mean {
		direction = "below"
	}
	zr := round2(z)

	res.Status = model.AnalysisOK
	res.ZScore = &zr
	res.Rating = rate(z, s.catalog.Current().Rating)
	res.PercentVsMarket = &pct
	res.Direction = direction
	res.DealScore = &score
	return res, nil
}

// Outliers 全量均价 t 倍之外（高于 mean*t 或低于 mean/t）的记录
func (s *AnalyticsService) Outliers(ctx context.Context, threshold float64) ([]model.Outlier, error) {
	if err := checkThreshold(threshold); err != nil {
		return nil, err
	}
	means, err := s.listings.AllTimeMeans(ctx)
	if err != nil {
		return nil, fmt.Errorf("查询型号均价失败: %w", err)
	}
	models := make([]string, 0, len(means))
	for m := range means {
		models = append(models, m)
	}
	sort.Strings(models)

	out := make([]model.Outlier, 0)
	for _, m := range models {
		mean := means[m]
		if mean <= 0 {
			continue
		}
		listings, err := s.listings.ListOutsideBand(ctx, m, mean/threshold, mean*threshold)
		if err != nil {
			return nil, fmt.Errorf("查询%s离群记录失败: %w", m, err)
		}
		for _, l := range listings {
			out = append(out, model.Outlier{
				Listing:          l,
				AveragePrice:     roundInt(mean),
				PercentOfAverage: round2(float64(l.Price) / mean),
			})
		}
	}
	return out, nil
}

// DeleteOutliers 反复删除直到没有离群记录，返回删除总数
func (s *AnalyticsService) DeleteOutliers(ctx context.Context, threshold float64) (int64, error) {
	if err := checkThreshold(threshold); err != nil {
		return 0, err
	}
	var total int64
	for pass := 1; ; pass++ {
		n, err := s.listings.DeleteOutsideBand(ctx, threshold)
		if err != nil {
			return total, err
		}
		total += n
		s.logger.WithFields(logrus.Fields{"pass": pass, "deleted": n}).Debug("离群删除")
		if n == 0 {
			break
		}
	}
	s.logger.WithFields(logrus.Fields{"threshold": threshold, "deleted": total}).Info("离群记录已删除")
	return total, nil
}

// Snapshot 市场概览；内部出错时记录日志并返回空快照，不返回错误
func (s *AnalyticsService) Snapshot(ctx context.Context) (snap *model.MarketSnapshot) {
	now := s.now()
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("计算市场概览异常")
			snap = model.EmptySnapshot(now)
		}
	}()
	snap, err := s.snapshot(ctx, now)
	if err != nil {
		s.logger.WithError(err).Error("计算市场概览失败")
		return model.EmptySnapshot(now)
	}
	return snap
}

type scoredListing struct {
	*model.Listing
	score int
}

func (s *AnalyticsService) snapshot(ctx context.Context, now time.Time) (*model.MarketSnapshot, error) {
	weekStart := now.Add(-time.Duration(s.cfg.WindowDays) * 24 * time.Hour)
	baseStart := now.Add(-time.Duration(s.cfg.BaselineDays) * 24 * time.Hour)
	since := baseStart
	if weekStart.Before(since) {
		since = weekStart
	}
	listings, err := s.listings.List(ctx, repository.ListingFilter{Since: &since})
	if err != nil {
		return nil, fmt.Errorf("查询近期挂牌记录失败: %w", err)
	}

	// 近7天：按型号统计
	weekly := make(map[string][]float64)
	for _, l := range listings {
		if !l.PostedAt.Before(weekStart) && l.Price > 0 {
			weekly[l.Model] = append(weekly[l.Model], float64(l.Price))
		}
	}
	stats := make(map[string]meanStd, len(weekly))
	hot := make([]model.HotModel, 0, len(weekly))
	for m, prices := range weekly {
		hot = append(hot, model.HotModel{Model: m, Listings: len(prices)})
		if ms, ok := sampleStats(prices); ok && ms.std > 0 {
			stats[m] = ms
		}
	}
	sort.Slice(hot, func(i, j int) bool {
		if hot[i].Listings != hot[j].Listings {
			return hot[i].Listings > hot[j].Listings
		}
		return hot[i].Model < hot[j].Model
	})

	var (
		weekScores, baseScores []float64
		weekDeals              []scoredListing
	)
	for _, l := range listings {
		ms, ok := stats[l.Model]
		if !ok || l.Price <= 0 {
			continue
		}
		score := dealScore(zScore(l.Price, ms.mean, ms.std))
		if !l.PostedAt.Before(baseStart) {
			baseScores = append(baseScores, float64(score))
		}
		if !l.PostedAt.Before(weekStart) {
			weekScores = append(weekScores, float64(score))
			weekDeals = append(weekDeals, scoredListing{Listing: l, score: score})
		}
	}
	sort.SliceStable(weekDeals, func(i, j int) bool {
		if weekDeals[i].score != weekDeals[j].score {
			return weekDeals[i].score > weekDeals[j].score
		}
		return weekDeals[i].PostedAt.After(weekDeals[j].PostedAt)
	})

	snap := &model.MarketSnapshot{
		HotModels:     hot[:min(len(hot), s.cfg.TopN)],
		AvgScoreWeek:  round1(average(weekScores)),
		AvgScoreMonth: round1(average(baseScores)),
		BestDeals:     make([]model.Deal, 0, s.cfg.TopN),
		GeneratedAt:   now,
	}
	switch {
	case snap.AvgScoreWeek > snap.AvgScoreMonth:
		snap.Trend = model.TrendBetter
	case snap.AvgScoreWeek < snap.AvgScoreMonth:
		snap.Trend = model.TrendWorse
	default:
		snap.Trend = model.TrendSteady
	}
	for _, d := range weekDeals[:min(len(weekDeals), s.cfg.TopN)] {
		snap.BestDeals = append(snap.BestDeals, model.Deal{
			Model:     d.Model,
			Price:     d.Price,
			URL:       d.SourceURL,
			PostedAt:  d.PostedAt,
			DealScore: d.score,
		})
	}
	return snap, nil
}

func checkThreshold(t float64) error {
	if math.IsNaN(t) || math.IsInf(t, 0) || t < 1 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, t)
	}
	return nil
}

type meanStd struct {
	mean, std float64
}

// sampleStats 样本均值与样本标准差（n-1），少于2个样本时 ok=false
func sampleStats(xs []float64) (meanStd, bool) {
	if len(xs) < 2 {
		return meanStd{}, false
	}
	m := average(xs)
	var ss float64
	for _, x := range xs {
		ss += (x - m) * (x - m)
	}
	return meanStd{mean: m, std: math.Sqrt(ss / float64(len(xs)-1))}, true
}

func average(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func zScore(price int, mean, std float64) float64 {
	return (float64(price) - mean) / std
}

// trendBias 当前均价相对参考均价下跌超过5%时 z 减 0.3，上涨超过5%时加 0.3
func trendBias(current, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	f := (current - reference) / reference
	switch {
	case f < -trendBand:
		return -trendBiasZ
	case f > trendBand:
		return trendBiasZ
	}
	return 0
}

// dealScore 0~10 的整数评分，越高越划算
func dealScore(z float64) int {
	raw := roundInt((0 - z) / scoreScale * maxScore)
	return int(max(0, min(maxScore, raw)))
}

func rate(z float64, t config.RatingThresholds) model.PriceRating {
	switch {
	case z <= t.Great:
		return model.RatingGreat
	case z <= t.Good:
		return model.RatingGood
	case z <= t.Fair:
		return model.RatingFair
	}
	return model.RatingOverpriced
}

func roundInt(x float64) int64 {
	return decimal.NewFromFloat(x).Round(0).IntPart()
}

func round1(x float64) float64 {
	return decimal.NewFromFloat(x).Round(1).InexactFloat64()
}

func round2(x float64) float64 {
	return decimal.NewFromFloat(x).Round(2).InexactFloat64()
}
