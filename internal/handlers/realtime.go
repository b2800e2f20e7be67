package handlers

import (
	"context"
	"net/http"

	"port42/internal/realtime"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type RealtimeHandler struct {
	// base 取消时所有连接一起关闭，http.Server.Shutdown 管不到已升级的连接
	base     context.Context
	hub      *realtime.Hub
	upgrader websocket.Upgrader
	log      *zap.SugaredLogger
}

func NewRealtimeHandler(base context.Context, hub *realtime.Hub, log *zap.SugaredLogger) *RealtimeHandler {
	return &RealtimeHandler{
		base: base,
		hub:  hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// 前端可能部署在其他域名下
			CheckOrigin: func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Serve 升级为 websocket 后交给 hub，阻塞到连接关闭
func (h *RealtimeHandler) Serve(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写过错误响应
		h.log.Debugw("Websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()
	stop := context.AfterFunc(h.base, cancel)
	defer stop()
	h.hub.Serve(ctx, conn)
}
