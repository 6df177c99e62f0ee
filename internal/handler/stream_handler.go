package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"evidence-rag-go/internal/model"
	"evidence-rag-go/internal/service"
	"evidence-rag-go/pkg/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许所有来源，身份由 token 保证
	},
}

const (
	writeWait       = 10 * time.Second
	readRequestWait = 30 * time.Second
)

// streamFrame 是推送给客户端的一帧。
type streamFrame struct {
	Type      string                `json:"type"` // step | answer | error | stop
	Message   string                `json:"message,omitempty"`
	Code      int                   `json:"code,omitempty"`
	Data      *model.GroundedAnswer `json:"data,omitempty"`
	Timestamp int64                 `json:"timestamp"`
}

// frameWriter 串行化对同一连接的写入。
type frameWriter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (w *frameWriter) write(f streamFrame) error {
	f.Timestamp = time.Now().UnixMilli()
	b, err := json.Marshal(f)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, b)
}

// Stream 处理 GET /api/v1/answer/stream。
// 浏览器无法为 WebSocket 设置请求头，token 通过查询参数传入；不带 token 按匿名处理。
// 客户端发送一条问答请求，服务端依次推送 step 帧，最后推送 answer 或 error 帧后关闭。
// 处理期间客户端可发送 {"type":"stop"} 或直接断开来取消。
func (h *AnswerHandler) Stream(c *gin.Context) {
	userID := model.AnonymousUserID
	if raw := strings.TrimSpace(c.Query("token")); raw != "" {
		claims, err := h.jwtManager.VerifyToken(raw)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": http.StatusUnauthorized, "message": "无效的 token", "data": nil})
			return
		}
		userID = claims.UserID
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error("WebSocket 升级失败", err)
		return
	}
	defer conn.Close()
	w := &frameWriter{conn: conn}
	log.Infof("[AnswerStream] WebSocket 连接已建立, user: %d", userID)

	_ = conn.SetReadDeadline(time.Now().Add(readRequestWait))
	var req service.AnswerRequest
	if err := conn.ReadJSON(&req); err != nil {
		log.Warnf("[AnswerStream] 读取问答请求失败: %v", err)
		_ = w.write(streamFrame{Type: "error", Code: http.StatusBadRequest, Message: "无效的请求体"})
		return
	}
	_ = conn.SetReadDeadline(time.Time{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go watchForStop(conn, w, cancel)

	answer, err := h.answerService.Answer(ctx, userID, req, func(step string) {
		if ctx.Err() != nil {
			return
		}
		if werr := w.write(streamFrame{Type: "step", Message: step}); werr != nil {
			log.Warnf("[AnswerStream] 推送进度失败: %v", werr)
		}
	})
	if err != nil {
		status, message := statusFor(err)
		log.Warnf("[AnswerStream] 问答失败, user: %d, status: %d, err: %v", userID, status, err)
		_ = w.write(streamFrame{Type: "error", Code: status, Message: message})
		return
	}
	_ = w.write(streamFrame{Type: "answer", Code: http.StatusOK, Data: answer})
	w.mu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done"), time.Now().Add(writeWait))
	w.mu.Unlock()
}

// watchForStop 在客户端断开或发送停止指令时取消正在进行的问答。
func watchForStop(conn *websocket.Conn, w *frameWriter, cancel context.CancelFunc) {
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			cancel()
			return
		}
		var ctrl struct {
			Type string `json:"type"`
		}
		if json.Unmarshal(message, &ctrl) == nil && ctrl.Type == "stop" {
			log.Info("[AnswerStream] 收到停止指令，正在中断问答...")
			cancel()
			_ = w.write(streamFrame{Type: "stop", Message: "响应已停止"})
			return
		}
	}
}
