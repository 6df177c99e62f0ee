package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cast"

	"evidence-rag-go/internal/middleware"
	"evidence-rag-go/internal/service"
	"evidence-rag-go/pkg/log"
)

// QualityHandler 结构体定义了质量记录查询的处理器。
type QualityHandler struct {
	qualityService service.QualityService
}

// NewQualityHandler 创建一个新的 QualityHandler 实例。
func NewQualityHandler(qualityService service.QualityService) *QualityHandler {
	return &QualityHandler{qualityService: qualityService}
}

// Recent 处理 GET /api/v1/quality/recent?limit=N，返回当前用户最近的问答质量快照。
func (h *QualityHandler) Recent(c *gin.Context) {
	var limit *int
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		n, err := cast.ToIntE(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "limit 必须为整数", "data": nil})
			return
		}
		limit = &n
	}
	userID := middleware.UserID(c)

	records, err := h.qualityService.Recent(c.Request.Context(), userID, limit)
	if err != nil {
		status, message := statusFor(err)
		log.Warnf("[QualityHandler] 查询质量记录失败, user: %d, status: %d, err: %v", userID, status, err)
		c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": records})
}
