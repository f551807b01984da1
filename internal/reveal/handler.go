package reveal

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// Handler 把揭晓服务暴露为HTTP接口。
type Handler struct {
	service *Service
}

// NewHandler 构建揭晓HTTP处理器。
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// rateLimitInfo 是响应信封中的限流元数据。
type rateLimitInfo struct {
	Remaining int       `json:"remaining"`
	ResetTime time.Time `json:"reset_time"`
}

// GetReveals 处理 GET /api/reveals/:id
// 支持的查询参数：force_refresh、include_analytics、round。
// 响应是统一的信封结构，携带缓存命中与限流元数据；
// 命中缓存的响应带ETag，If-None-Match匹配时返回304。
func (h *Handler) GetReveals(c *gin.Context) {
	start := time.Now()

	caller := user.CallerIdentity(c)
	allowed, remaining, reset := h.service.Allow(caller)
	rateLimit := rateLimitInfo{Remaining: remaining, ResetTime: reset}
	if !allowed {
		retryAfter := int(time.Until(reset).Seconds()) + 1
		c.Header("Retry-After", strconv.Itoa(retryAfter))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"success":    false,
			"error":      "请求过于频繁，请稍后再试",
			"rate_limit": rateLimit,
		})
		return
	}

	opts := Options{
		ForceRefresh:     c.Query("force_refresh") == "true",
		IncludeAnalytics: c.Query("include_analytics") == "true",
	}
	if roundStr := c.Query("round"); roundStr != "" {
		round, err := strconv.Atoi(roundStr)
		if err != nil || round < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的回合序号"})
			return
		}
		opts.RoundNo = round
	}

	result, err := h.service.GetReveals(c.Param("id"), opts)
	if err != nil {
		respondRevealError(c, err)
		return
	}

	c.Header("ETag", result.ETag)
	c.Header("Cache-Control", fmt.Sprintf("public, max-age=%d, stale-while-revalidate=60", h.service.CacheTTLSeconds()))
	if result.FromCache {
		c.Header("X-Cache", "HIT")
	} else {
		c.Header("X-Cache", "MISS")
	}

	if match := c.GetHeader("If-None-Match"); match != "" && match == result.ETag {
		c.Status(http.StatusNotModified)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"data":               json.RawMessage(result.Payload),
		"cached":             result.FromCache,
		"cache_hit":          result.FromCache,
		"processing_time_ms": time.Since(start).Milliseconds(),
		"rate_limit":         rateLimit,
	})
}

// ProcessReveal 处理 POST /api/reveals/:id/process
func (h *Handler) ProcessReveal(c *gin.Context) {
	start := time.Now()

	result, already, err := h.service.ProcessReveal(c.Param("id"))
	if err != nil {
		respondRevealError(c, err)
		return
	}
	c.Header("ETag", result.ETag)
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"data":               json.RawMessage(result.Payload),
		"cached":             result.FromCache,
		"cache_hit":          result.FromCache,
		"processing_time_ms": time.Since(start).Milliseconds(),
		"already_processed":  already,
		"etag":               result.ETag,
	})
}

// respondRevealError 把揭晓服务的错误映射为HTTP状态码。
func respondRevealError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "会话不存在"})
	case errors.Is(err, ErrSessionNotFinished):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
	}
}

// batchRequest 是批量揭晓接口的请求体。
type batchRequest struct {
	Limit int `json:"limit"`
}

// BatchReveal 处理 POST /api/reveals/batch
func (h *Handler) BatchReveal(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}

	result, err := h.service.BatchReveal(req.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	c.JSON(http.StatusOK, result)
}
