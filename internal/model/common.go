package model

import "time"

// ModelStats 单个型号在时间窗口内的价格统计（不落库）
type ModelStats struct {
	Model  string
	Mean   *float64 // 无样本时为 nil
	StdDev *float64 // 样本数 < 2 时为 nil（样本标准差）
	Count  int64
}

// MarketPrice 型号均价
type MarketPrice struct {
	Model    string `json:"model"`
	AvgPrice int64  `json:"avg_price"`
	Listings int64  `json:"listings"`
}

// DailyPrice 按天聚合的价格（类K线）
type DailyPrice struct {
	Date     string `json:"date"` // YYYY-MM-DD
	Low      int    `json:"low_price"`
	High     int    `json:"high_price"`
	Avg      int64  `json:"avg_price"`
	Listings int    `json:"listings"`
	Open     int    `json:"open_price"`
	Close    int    `json:"close_price"`
}

// AnalysisStatus 单价分析结果状态
type AnalysisStatus string

const (
	AnalysisOK               AnalysisStatus = "ok"
	AnalysisInsufficientData AnalysisStatus = "insufficient_data"
	AnalysisStableMarket     AnalysisStatus = "stable_market"
)

// PriceRating 价格评级
type PriceRating string

const (
	RatingGreat      PriceRating = "great price"
	RatingGood       PriceRating = "good price"
	RatingFair       PriceRating = "fair price"
	RatingOverpriced PriceRating = "overpriced"
)

// PriceAnalysis 单个报价相对近期行情的评级
type PriceAnalysis struct {
	Model           string         `json:"model"`
	YourPrice       int            `json:"your_price"`
	Status          AnalysisStatus `json:"status"`
	Message         string         `json:"message,omitempty"`
	AveragePrice    *int64         `json:"average_price,omitempty"`
	SampleCount     int64          `json:"recent_listings"`
	ZScore          *float64       `json:"z_score,omitempty"`
	Rating          PriceRating    `json:"price_rating,omitempty"`
	PercentVsMarket *float64       `json:"percent_vs_market,omitempty"`
	Direction       string         `json:"market_direction,omitempty"` // below/above
	DealScore       *int           `json:"deal_score,omitempty"`
}

// Outlier 偏离型号均价过多的记录
type Outlier struct {
	*Listing
	AveragePrice     int64   `json:"average_price"`
	PercentOfAverage float64 `json:"percent_of_average"`
}

// HotModel 近期挂牌最多的型号
type HotModel struct {
	Model    string `json:"model"`
	Listings int    `json:"listings"`
}

// Deal 快照中的高分记录
type Deal struct {
	Model     string    `json:"model"`
	Price     int       `json:"price"`
	URL       string    `json:"url"`
	PostedAt  time.Time `json:"posted_at"`
	DealScore int       `json:"deal_score"`
}

// ScoreTrend 本周与基线期的评分对比
type ScoreTrend string

const (
	TrendBetter  ScoreTrend = "better"
	TrendWorse   ScoreTrend = "worse"
	TrendSteady  ScoreTrend = "steady"
	TrendUnknown ScoreTrend = "unknown"
)

// MarketSnapshot 市场概览（每次请求重新计算）
type MarketSnapshot struct {
	HotModels     []HotModel `json:"hot_gpus"`
	AvgScoreWeek  float64    `json:"avg_score_week"`
	AvgScoreMonth float64    `json:"avg_score_month"`
	Trend         ScoreTrend `json:"score_trend"`
	BestDeals     []Deal     `json:"best_deals"`
	GeneratedAt   time.Time  `json:"generated_at"`
}

// EmptySnapshot 出错时返回的合法空快照
func EmptySnapshot(now time.Time) *MarketSnapshot {
	return &MarketSnapshot{
		HotModels:   []HotModel{},
		Trend:       TrendUnknown,
		BestDeals:   []Deal{},
		GeneratedAt: now,
	}
}
