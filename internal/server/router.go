package server

import (
	"context"
	"net/http"

	"chatapp/internal/auth"
	"chatapp/internal/config"
	"chatapp/internal/metrics"
	"chatapp/internal/mw"
	"chatapp/internal/service"
	"chatapp/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// SetupRouter 统一初始化 Gin 中间件、REST API 以及 WebSocket 端点。
// ctx 结束时释放中间件的后台 goroutine。
func SetupRouter(ctx context.Context, cfg config.Config, db *gorm.DB, hub *ws.Hub) *gin.Engine {
	userSvc := service.NewUserService(db)
	chatSvc := service.NewChatService(db)
	msgSvc := service.NewMessageService(db, chatSvc)
	h := NewHandler(cfg, userSvc, chatSvc, msgSvc)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(mw.RequestLogger())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.FrontendURL))
	r.Use(mw.RateLimit(ctx, rate.Limit(cfg.RateLimitRPS), cfg.RateLimitBurst))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "Health OK"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api/v1")
	authed := auth.AuthMiddleware(db, cfg.JWTSecret)

	authGroup := api.Group("/auth")
	authGroup.POST("/signup", h.Signup)
	authGroup.POST("/login", h.Login)
	authGroup.POST("/logout", h.Logout)
	authGroup.GET("/validate-token", authed, h.ValidateToken)

	users := api.Group("/user", authed)
	users.GET("", h.ListUsers)
	users.GET("/:id", h.GetUser)
	users.PUT("/:id", h.UpdateUser)
	users.DELETE("/:id", h.DeleteUser)

	chats := api.Group("/chat", authed)
	chats.POST("", h.OpenChat)
	chats.GET("", h.ListChats)
	chats.GET("/:id", h.ChatWithPeer)

	messages := api.Group("/message", authed)
	messages.POST("", h.SendMessage)
	messages.GET("/:id", h.ListMessages)

	r.GET("/ws", ws.Serve(hub, db, chatSvc, ws.Options{JWTSecret: cfg.JWTSecret, FrontendURL: cfg.FrontendURL}))
	return r
}
