package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"DealSync/internal/repository"
	"DealSync/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Ingestor 执行一次抓取
type Ingestor interface {
	Run(ctx context.Context, mode service.Mode) (*service.RunResult, error)
}

type SyncHandler struct {
	ingestor Ingestor
	runs     repository.RunRepository
	logger   *logrus.Logger
}

func NewSyncHandler(ingestor Ingestor, runs repository.RunRepository, logger *logrus.Logger) *SyncHandler {
	return &SyncHandler{ingestor: ingestor, runs: runs, logger: logger}
}

// Register 注册抓取相关路由，全部走管理员鉴权
func (h *SyncHandler) Register(r gin.IRouter, admin gin.HandlerFunc) {
	g := r.Group("/sync", admin)
	g.GET("/runs", h.ListRunsHandler)
	g.POST("/:mode", h.RunSyncHandler)
}

// ListRunsHandler 最近的抓取运行记录
// @Summary 抓取运行记录
// @Param limit query int false "条数，默认20，最大100"
// @Router /sync/runs [get]
func (h *SyncHandler) ListRunsHandler(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit 必须为整数"})
		return
	}
	runs, err := h.runs.ListRecent(c.Request.Context(), limit)
	if err != nil {
		h.logger.Errorf("查询运行记录失败: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}

// RunSyncHandler 手动触发一次抓取
// @Summary 手动抓取
// @Param mode path string true "incremental/backfill"
// @Success 200 {object} service.RunResult
// @Failure 409 {object} map[string]string
// @Failure 502 {object} map[string]interface{}
// @Router /sync/{mode} [post]
func (h *SyncHandler) RunSyncHandler(c *gin.Context) {
	mode, err := service.ParseMode(c.Param("mode"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// 回填可能持续很久，不随请求断开而取消
	res, err := h.ingestor.Run(context.WithoutCancel(c.Request.Context()), mode)
	switch {
	case errors.Is(err, service.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil && res == nil:
		h.logger.Errorf("%s抓取失败: %v", mode, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	case err != nil:
		// 中途中断，已入库部分保留
		h.logger.Warnf("%s抓取中断: %v", mode, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "result": res})
	default:
		c.JSON(http.StatusOK, res)
	}
}
