package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"DealSync/internal/model"
	"DealSync/internal/repository"
	"DealSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Analytics 价格分析查询
type Analytics interface {
	Listings(ctx context.Context, modelName string) ([]*model.Listing, error)
	MarketPrices(ctx context.Context, modelName string) ([]model.MarketPrice, error)
	PriceHistory(ctx context.Context, modelName string) ([]model.DailyPrice, error)
	Analyze(ctx context.Context, modelName string, price int) (*model.PriceAnalysis, error)
	Outliers(ctx context.Context, threshold float64) ([]model.Outlier, error)
	DeleteOutliers(ctx context.Context, threshold float64) (int64, error)
	Snapshot(ctx context.Context) *model.MarketSnapshot
}

// MarketHandler 显卡行情查询接口
type MarketHandler struct {
	analytics        Analytics
	defaultThreshold float64
	logger           *logrus.Logger
}

// NewMarketHandler 创建 MarketHandler
func NewMarketHandler(analytics Analytics, defaultThreshold float64, logger *logrus.Logger) *MarketHandler {
	return &MarketHandler{analytics: analytics, defaultThreshold: defaultThreshold, logger: logger}
}

// Register 注册路由，admin 为管理接口中间件
func (h *MarketHandler) Register(r gin.IRouter, admin gin.HandlerFunc) {
	g := r.Group("/api/gpus")
	g.GET("/listings", h.ListListings)
	g.GET("/market-prices", h.MarketPrices)
	g.GET("/price-history", h.PriceHistory)
	g.GET("/price-analysis", h.Analyze)
	g.GET("/market-snapshot", h.Snapshot)
	g.GET("/outliers", admin, h.ListOutliers)
	g.DELETE("/outliers", admin, h.DeleteOutliers)
}

// ListListings 挂牌列表
// GET /api/gpus/listings?model=3080
func (h *MarketHandler) ListListings(c *gin.Context) {
	listings, err := h.analytics.Listings(c.Request.Context(), c.Query("model"))
	if err != nil {
		h.fail(c, "ListListings", err)
		return
	}
	c.JSON(http.StatusOK, listings)
}

// MarketPrices 型号均价
// GET /api/gpus/market-prices?model=3080
func (h *MarketHandler) MarketPrices(c *gin.Context) {
	prices, err := h.analytics.MarketPrices(c.Request.Context(), c.Query("model"))
	if err != nil {
		h.fail(c, "MarketPrices", err)
		return
	}
	c.JSON(http.StatusOK, prices)
}

// PriceHistory 日K
// GET /api/gpus/price-history?model=3080
func (h *MarketHandler) PriceHistory(c *gin.Context) {
	days, err := h.analytics.PriceHistory(c.Request.Context(), c.Query("model"))
	if err != nil {
		h.fail(c, "PriceHistory", err)
		return
	}
	c.JSON(http.StatusOK, days)
}

// Analyze 单价评级
// GET /api/gpus/price-analysis?model=3080&price=600
func (h *MarketHandler) Analyze(c *gin.Context) {
	price, err := strconv.Atoi(strings.TrimSpace(c.Query("price")))
	if err != nil || price <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "price must be a positive integer"})
		return
	}
	res, err := h.analytics.Analyze(c.Request.Context(), c.Query("model"), price)
	if err != nil {
		h.fail(c, "Analyze", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Snapshot 市场概览，始终返回 200
// GET /api/gpus/market-snapshot
func (h *MarketHandler) Snapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.analytics.Snapshot(c.Request.Context()))
}

// ListOutliers 离群记录
// GET /api/gpus/outliers?threshold=1.75
func (h *MarketHandler) ListOutliers(c *gin.Context) {
	t, ok := h.threshold(c)
	if !ok {
		return
	}
	out, err := h.analytics.Outliers(c.Request.Context(), t)
	if err != nil {
		h.fail(c, "ListOutliers", err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// DeleteOutliers 删除离群记录
// DELETE /api/gpus/outliers?threshold=1.75
func (h *MarketHandler) DeleteOutliers(c *gin.Context) {
	t, ok := h.threshold(c)
	if !ok {
		return
	}
	n, err := h.analytics.DeleteOutliers(c.Request.Context(), t)
	if err != nil {
		h.fail(c, "DeleteOutliers", err)
		return
	}
	h.logger.WithFields(logrus.Fields{
		"threshold": t,
		"deleted":   n,
		"by":        c.GetString("subject"),
	}).Info("管理员删除离群记录")
	c.JSON(http.StatusOK, gin.H{"deleted": n, "threshold": t})
}

func (h *MarketHandler) threshold(c *gin.Context) (float64, bool) {
	raw := c.Query("threshold")
	if raw == "" {
		return h.defaultThreshold, true
	}
	t, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "threshold must be a number"})
		return 0, false
	}
	return t, true
}

// fail 按错误类型映射状态码
func (h *MarketHandler) fail(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidQuery), errors.Is(err, service.ErrInvalidThreshold):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repository.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.WithError(err).Errorf("%s failed", op)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
