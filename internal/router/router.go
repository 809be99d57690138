package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"sudooom.social.client/internal/client"
	"sudooom.social.client/internal/config"
	"sudooom.social.client/internal/handler"
	"sudooom.social.client/internal/health"
	"sudooom.social.client/internal/middleware"
	"sudooom.social.client/internal/session"
)

// Handlers 路由依赖的处理器
type Handlers struct {
	Proxy    *handler.ProxyHandler
	Client   *handler.ClientHandler
	Validate *handler.ValidateHandler
	Live     *handler.LiveHandler
	Health   *health.Checker
}

// SetupRouter 设置路由
func SetupRouter(cfg *config.Config, decoder *session.Decoder, hub *client.Hub, h Handlers, logger *slog.Logger) *gin.Engine {
	// 设置 Gin 模式
	gin.SetMode(cfg.App.Mode)

	r := gin.New()

	// 全局中间件
	r.Use(gin.Recovery())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(cfg.CORS))

	r.GET("/health", gin.WrapH(h.Health))

	api := r.Group("/api")
	{
		// 透传（会话 cookie 由网关校验）
		api.Any("/proxy/*path", h.Proxy.Forward)

		// 纯校验，无需登录
		validate := api.Group("/validate")
		{
			validate.POST("/signup", h.Validate.Signup)
			validate.POST("/profile", h.Validate.Profile)
			validate.POST("/post", h.Validate.Post)
			validate.POST("/image", h.Validate.Image)
		}

		// 需要会话的接口
		authenticated := api.Group("")
		authenticated.Use(
			middleware.SessionAuth(decoder, cfg.Session.CookieName),
			middleware.ClientSession(hub),
		)
		{
			authenticated.GET("/state", h.Client.GetState)
			authenticated.GET("/live", h.Live.Stream)

			conversations := authenticated.Group("/conversations")
			{
				conversations.GET("", h.Client.GetConversations)
				conversations.POST("/more", h.Client.LoadMoreConversations)
				conversations.POST("/:id/read", h.Client.MarkConversationRead)
			}

			toasts := authenticated.Group("/toasts")
			{
				toasts.GET("", h.Client.GetToasts)
				toasts.POST("/:id/pause", h.Client.PauseToast)
				toasts.POST("/:id/resume", h.Client.ResumeToast)
				toasts.DELETE("/:id", h.Client.DismissToast)
			}

			authenticated.POST("/recipient", h.Client.SetRecipient)
			authenticated.DELETE("/recipient", h.Client.ClearRecipient)
		}
	}

	return r
}
