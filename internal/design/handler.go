package design

import (
	"errors"
	"net/http"

	"github.com/SlpAus/style-off-backend/internal/session"
	"github.com/SlpAus/style-off-backend/internal/user"
	"github.com/gin-gonic/gin"
)

// submitRequest 是提交作品接口的请求体。
type submitRequest struct {
	RoundID      uint          `json:"round_id" binding:"required"`
	TargetRole   string        `json:"target_role" binding:"required"`
	StyleChoices []StyleChoice `json:"style_choices"`
	ImageURL     string        `json:"image_url"`
}

// SubmitHandler 处理 POST /api/sessions/:id/designs
func SubmitHandler(c *gin.Context) {
	userID := c.GetString(user.UserIDKey)
	if userID == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "无法识别用户身份"})
		return
	}

	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求格式"})
		return
	}

	role := session.Role(req.TargetRole)
	if role != session.RoleA && role != session.RoleB {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的目标角色"})
		return
	}

	submission, err := SubmitDesign(SubmitParams{
		SessionID:      c.Param("id"),
		RoundID:        req.RoundID,
		DesignerUserID: userID,
		TargetRole:     role,
		StyleChoices:   req.StyleChoices,
		ImageURL:       req.ImageURL,
	})
	if err != nil {
		switch {
		case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, ErrRoundNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, ErrNotParticipant):
			c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
		case errors.Is(err, ErrRoundClosed):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "服务器内部错误"})
		}
		return
	}
	c.JSON(http.StatusOK, submission)
}
