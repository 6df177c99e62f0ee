package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Healthz 返回进程存活状态，不检查下游依赖。
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
