package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"evidence-rag-go/internal/middleware"
	"evidence-rag-go/internal/service"
	"evidence-rag-go/pkg/log"
	"evidence-rag-go/pkg/token"
)

// AnswerHandler 处理问答请求，包括同步接口和 WebSocket 流式接口。
type AnswerHandler struct {
	answerService service.AnswerService
	jwtManager    *token.JWTManager
}

// NewAnswerHandler 创建一个新的 AnswerHandler。
func NewAnswerHandler(answerService service.AnswerService, jwtManager *token.JWTManager) *AnswerHandler {
	return &AnswerHandler{answerService: answerService, jwtManager: jwtManager}
}

// Answer 处理 POST /api/v1/answer。请求无效返回 400，无法给出有据回答返回 502。
func (h *AnswerHandler) Answer(c *gin.Context) {
	var req service.AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warnf("[AnswerHandler] 请求体解析失败: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"code": http.StatusBadRequest, "message": "无效的请求体", "data": nil})
		return
	}
	userID := middleware.UserID(c)
	log.Infof("[AnswerHandler] 收到问答请求, user: %d, mode: %s", userID, req.Mode)

	answer, err := h.answerService.Answer(c.Request.Context(), userID, req, nil)
	if err != nil {
		status, message := statusFor(err)
		log.Warnf("[AnswerHandler] 问答失败, user: %d, status: %d, err: %v", userID, status, err)
		c.JSON(status, gin.H{"code": status, "message": message, "data": nil})
		return
	}
	c.JSON(http.StatusOK, gin.H{"code": http.StatusOK, "message": "success", "data": answer})
}
