package presence

import (
	"errors"
	"net/http"

	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// HeartbeatHandler 处理 POST /api/sessions/:id/heartbeat
func HeartbeatHandler(c *gin.Context) {
	userID := c.GetString(user.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法识别用户身份"})
		return
	}

	if err := Heartbeat(c.Param("id"), userID); err != nil {
		if errors.Is(err, session.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "会话或参与者不存在"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "心跳已记录"})
}
