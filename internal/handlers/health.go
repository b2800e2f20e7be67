package handlers

import (
	"context"
	"net/http"
	"time"

	"port42/internal/apperr"
	"port42/internal/response"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db *gorm.DB
}

func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz 数据库可用时返回 200
func (h *HealthHandler) Healthz(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		_ = c.Error(err)
		response.Abort(c, http.StatusServiceUnavailable, apperr.KindTransient, "database unavailable")
		return
	}
	response.Success(c, gin.H{"status": "ok"}, "")
}
