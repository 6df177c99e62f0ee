// Package handler 包含了处理 HTTP 请求的控制器逻辑。
package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"evidence-rag-go/internal/middleware"
	"evidence-rag-go/internal/pipeline"
	"evidence-rag-go/internal/service"
	"evidence-rag-go/pkg/log"
)

// SearchHandler 结构体定义了搜索相关的处理器。
type SearchHandler struct {
	searchService service.SearchService
}

// NewSearchHandler 创建一个新的 SearchHandler 实例。
func NewSearchHandler(searchService service.SearchService) *SearchHandler {
	return &SearchHandler{searchService: searchService}
}

// Search 处理 POST /api/v1/search。除请求无效外总是返回 200。
func (h *SearchHandler) Search(c *gin.Context) {
	var req service.SearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[SearchHandler] 请求体解析失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求体", "data": nil})
		return
	}
	userID := middleware.UserID(c)
	log.Infof("[SearchHandler] 收到检索请求, user: %d", userID)

	resp, err := h.searchService.Search(c.Request.Context(), userID, req)
	if err != nil {
		status, message := statusFor(err)
		log.Warnf("[SearchHandler] 检索失败, user: %d, status: %d, err: %v", userID, status, err)
		c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": resp})
}

// statusClientClosed 是调用方提前断开时记录的非标准状态码。
const statusClientClosed = 499

// statusFor 把流水线错误映射为 HTTP 状态码和对外提示。
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, pipeline.ErrInvalidQuery):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, pipeline.ErrGenerationFailed):
		return http.StatusBadGateway, "无法生成有据回答，请稍后重试"
	case errors.Is(err, context.Canceled):
		return statusClientClosed, "请求已取消"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "请求超时"
	default:
		return http.StatusInternalServerError, "服务内部错误"
	}
}
