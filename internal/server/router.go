package server

import (
	"net/http"
	"time"

	"github.com/devanshD77/whatsapp-messenger-backend/internal/auth"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/config"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/metrics"
	"github.com/devanshD77/whatsapp-messenger-backend/internal/mw"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件与 REST API。
func SetupRouter(cfg config.Config, db *gorm.DB, h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	// 控制单个 IP+路由的速率。
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)

	// 需要 Bearer Token 的业务接口。
	authed := api.Group("")
	authed.Use(auth.AuthMiddleware(cfg, db))

	authed.GET("/users/me", h.GetMe)
	authed.PUT("/users/me/profile", h.UpdateProfile)
	authed.PUT("/users/me/status", h.UpdateStatus)
	authed.DELETE("/users/me", h.DeleteMe)
	authed.GET("/users/:id", h.GetUser)
	authed.GET("/users", h.SearchUsers)

	authed.POST("/chatrooms", h.CreateChatroom)
	authed.GET("/chatrooms", h.ListChatrooms)
	authed.GET("/chatrooms/exists", h.ChatroomExists)
	authed.GET("/chatrooms/:id", h.GetChatroom)
	authed.DELETE("/chatrooms/:id", h.DeleteChatroom)

	authed.POST("/chatrooms/:id/messages", h.SendMessage)
	authed.GET("/chatrooms/:id/messages", h.ListMessages)
	authed.GET("/chatrooms/:id/messages/count", h.CountMessages)
	authed.GET("/chatrooms/:id/messages/search", h.SearchMessages)

	authed.GET("/messages/:id", h.GetMessage)
	authed.PUT("/messages/:id", h.EditMessage)
	authed.DELETE("/messages/:id", h.DeleteMessage)

	authed.PUT("/messages/:id/reactions", h.UpsertReaction)
	authed.DELETE("/messages/:id/reactions", h.RemoveReaction)
	authed.GET("/messages/:id/reactions", h.ListReactions)
	authed.GET("/messages/:id/reactions/me", h.GetMyReaction)
	authed.GET("/messages/:id/reactions/count", h.CountReactions)

	return r
}
