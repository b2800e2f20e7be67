package router

import (
	"time"

	"port42/internal/handlers"
	"port42/internal/middleware"

	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const sessionName = "port42_session"

// Options 路由层用到的配置
type Options struct {
	SessionSecret      string
	SecureCookie       bool
	RequestTimeout     time.Duration
	RateLimitPerMinute int
	RateLimitBurst     int
}

// Handlers 所有 HTTP 处理器
type Handlers struct {
	Auth         *handlers.AuthHandler
	Community    *handlers.CommunityHandler
	Resource     *handlers.ResourceHandler
	Comment      *handlers.CommentHandler
	Vote         *handlers.VoteHandler
	Notification *handlers.NotificationHandler
	Realtime     *handlers.RealtimeHandler
	Health       *handlers.HealthHandler
}

// New 组装 gin 引擎，stop 关闭后限流器的清理协程退出
func New(opts Options, log *zap.SugaredLogger, authn *middleware.Authenticator, h Handlers, stop <-chan struct{}) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(log), middleware.RequestLogger(log))

	store := cookie.NewStore([]byte(opts.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   7 * 24 * 3600,
		HttpOnly: true,
		Secure:   opts.SecureCookie,
	})
	r.Use(sessions.Sessions(sessionName, store))

	r.GET("/healthz", h.Health.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	// websocket 是长连接，不加请求超时
	r.GET("/ws", h.Realtime.Serve)

	api := r.Group("/api")
	api.Use(
		middleware.RateLimit(opts.RateLimitPerMinute, opts.RateLimitBurst, stop),
		middleware.Timeout(opts.RequestTimeout),
		middleware.SocketOrigin(),
		authn.LoadUser(),
	)
	RegisterRoutes(api, h)
	return r
}

func RegisterRoutes(api *gin.RouterGroup, h Handlers) {
	// 公共路由 (Public Routes)
	api.POST("/auth/register", h.Auth.Register)                     // 注册
	api.POST("/auth/login", h.Auth.Login)                           // 登录，返回 JWT 并写 session
	api.POST("/auth/logout", h.Auth.Logout)                         // 退出登录
	api.GET("/auth/check-username/:username", h.Auth.CheckUsername) // 用户名是否可用
	api.GET("/auth/check-email/:email", h.Auth.CheckEmail)          // 邮箱是否可用
	api.GET("/users/:id", h.Auth.Profile)                           // 用户主页
	api.GET("/communities", h.Community.List)                       // 社区列表
	api.GET("/communities/:slug", h.Community.Get)                  // 社区详情
	api.GET("/resources", h.Resource.List)                          // 资源列表
	api.GET("/resources/:id", h.Resource.Detail)                    // 资源详情
	api.POST("/resources/:id/click", h.Resource.Click)              // 外链点击
	api.GET("/resources/:id/comments", h.Resource.Comments)         // 评论树
	api.GET("/comments/:id/history", h.Comment.History)             // 编辑历史

	// 受保护路由 (Protected Routes)
	authorized := api.Group("")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.GET("/auth/me", h.Auth.Me)
		authorized.PUT("/auth/profile", h.Auth.UpdateProfile)
		authorized.POST("/auth/refresh", h.Auth.Refresh)

		authorized.POST("/communities", h.Community.Create)
		authorized.POST("/communities/:id/membership", h.Community.ToggleMembership)

		authorized.POST("/resources", h.Resource.Create)
		authorized.PUT("/resources/:id", h.Resource.Update)
		authorized.DELETE("/resources/:id", h.Resource.Delete)
		authorized.POST("/resources/:id/report", h.Resource.Report)
		authorized.POST("/resources/:id/vote", h.Vote.VoteResource)

		authorized.POST("/vote", h.Vote.Vote)

		authorized.POST("/comments", h.Comment.Create)
		authorized.PUT("/comments/:id", h.Comment.Update)
		authorized.DELETE("/comments/:id", h.Comment.Delete)
		authorized.POST("/comments/:id/vote", h.Vote.VoteComment)

		authorized.GET("/notifications", h.Notification.List)
		authorized.POST("/notifications/read-all", h.Notification.ReadAll)
		authorized.POST("/notifications/:id/read", h.Notification.Read)
		authorized.DELETE("/notifications/:id", h.Notification.Delete)
	}
}
