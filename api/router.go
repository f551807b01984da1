package api

import (
	"github.com/SlpAus/style-off-backend/internal/broadcast"
	"github.com/SlpAus/style-off-backend/internal/design"
	"github.com/SlpAus/style-off-backend/internal/game"
	"github.com/SlpAus/style-off-backend/internal/presence"
	"github.com/SlpAus/style-off-backend/internal/reveal"
	"github.com/SlpAus/style-off-backend/internal/user"
	"github.com/SlpAus/style-off-backend/internal/vote"
	"github.com/gin-gonic/gin"
)

// SetupRoutes 注册项目的所有API路由
func SetupRoutes(router *gin.Engine, revealHandler *reveal.Handler) {
	api := router.Group("/api")
	{
		// 对战会话相关的路由组
		sessions := api.Group("/sessions")
		{
			// 加入对战时可能需要分发新的用户cookie
			sessions.POST("/join", user.EnsureUserCookieMiddleware(), user.LoadUserMiddleware(), game.JoinSession)

			authed := sessions.Group("", user.LoadUserMiddleware())
			{
				authed.GET("/:id", game.GetSessionView)
				authed.POST("/:id/start", game.StartSession)
				authed.POST("/:id/advance", game.AdvanceSession)
				authed.POST("/:id/leave", game.LeaveSession)
				authed.POST("/:id/heartbeat", presence.HeartbeatHandler)

				// 作品提交与投票
				authed.POST("/:id/designs", design.SubmitHandler)
				authed.POST("/:id/reactions", vote.ReactionHandler)

				// 会话频道的WebSocket中继
				authed.GET("/:id/ws", broadcast.ServeWS)
			}
		}

		// 揭晓汇总相关的路由组
		reveals := api.Group("/reveals", user.LoadUserMiddleware())
		{
			reveals.GET("/:id", revealHandler.GetReveals)
			reveals.POST("/:id/process", revealHandler.ProcessReveal)
			reveals.POST("/batch", revealHandler.BatchReveal)
		}
	}
}
