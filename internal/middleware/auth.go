package middleware

import (
	"errors"
	"net/http"
	"strings"

	"port42/internal/apperr"
	"port42/internal/auth"
	"port42/internal/models"
	"port42/internal/response"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const CheckUserKey = "user"
const SessionUserKey = "user_id"

// Authenticator 从 Bearer token 或 session cookie 识别当前用户
type Authenticator struct {
	db     *gorm.DB
	signer *auth.Signer
	log    *zap.SugaredLogger
}

func NewAuthenticator(db *gorm.DB, signer *auth.Signer, log *zap.SugaredLogger) *Authenticator {
	return &Authenticator{db: db, signer: signer, log: log}
}

// LoadUser 识别用户并放入 context，识别不到时按匿名处理
func (a *Authenticator) LoadUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := a.userIDFromRequest(c)
		if userID != 0 {
			var user models.User
			if err := a.db.WithContext(c.Request.Context()).Where("id = ?", userID).Take(&user).Error; err == nil {
				// 停用的账号按匿名处理
				if user.Active {
					c.Set(CheckUserKey, &user)
				}
			} else if !errors.Is(err, gorm.ErrRecordNotFound) {
				a.log.Warnw("Load user failed", "user_id", userID, "error", err)
			}
		}
		c.Next()
	}
}

func (a *Authenticator) userIDFromRequest(c *gin.Context) uint {
	if header := c.GetHeader("Authorization"); header != "" {
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			return 0
		}
		id, _, err := a.signer.Parse(strings.TrimSpace(token))
		if err != nil {
			return 0
		}
		return id
	}

	session := sessions.Default(c)
	switch v := session.Get(SessionUserKey).(type) {
	case uint:
		return v
	case int:
		return uint(v)
	case int64:
		return uint(v)
	}
	return 0
}

// AuthRequired 必须登录
func AuthRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, exists := c.Get(CheckUserKey); !exists {
			response.Abort(c, http.StatusUnauthorized, apperr.KindUnauthenticated, "login required")
			return
		}
		c.Next()
	}
}

// CurrentUser 当前登录用户，匿名时返回 nil
func CurrentUser(c *gin.Context) *models.User {
	if v, ok := c.Get(CheckUserKey); ok {
		if u, ok := v.(*models.User); ok {
			return u
		}
	}
	return nil
}

// CurrentUserID 匿名时为 0
func CurrentUserID(c *gin.Context) uint {
	if u := CurrentUser(c); u != nil {
		return u.ID
	}
	return 0
}
