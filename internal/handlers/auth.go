package handlers

import (
	"port42/internal/auth"
	"port42/internal/middleware"
	"port42/internal/models"
	"port42/internal/response"
	"port42/internal/services"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthHandler struct {
	users         *services.UserService
	notifications *services.NotificationService
	signer        *auth.Signer
	log           *zap.SugaredLogger
}

func NewAuthHandler(users *services.UserService, notifications *services.NotificationService, signer *auth.Signer, log *zap.SugaredLogger) *AuthHandler {
	return &AuthHandler{users: users, notifications: notifications, signer: signer, log: log}
}

type registerRequest struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
}

type loginRequest struct {
	// 用户名或邮箱
	Login    string `json:"login"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string            `json:"token"`
	User  *services.Profile `json:"user"`
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := h.users.Register(c.Request.Context(), services.RegisterInput{
		Username:    req.Username,
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}

	h.log.Infow("User registered", "user_id", user.ID, "username", user.Username)
	h.signIn(c, user, true)
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}
	login := req.Login
	if login == "" {
		login = req.Email
	}
	if login == "" {
		login = req.Username
	}

	user, err := h.users.Authenticate(c.Request.Context(), login, req.Password)
	if err != nil {
		response.Fail(c, err)
		return
	}
	h.signIn(c, user, false)
}

// signIn 签发 JWT 并写入 session，两种方式都能识别后续请求
func (h *AuthHandler) signIn(c *gin.Context, user *models.User, created bool) {
	token, err := h.signer.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		response.Fail(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(middleware.SessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		h.log.Warnw("Save session failed", "user_id", user.ID, "error", err)
	}

	body := authResponse{Token: token, User: services.NewProfile(user)}
	if created {
		response.Created(c, body, "registered")
		return
	}
	response.Success(c, body, "logged in")
}

func (h *AuthHandler) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		h.log.Warnw("Clear session failed", "error", err)
	}
	response.Success(c, nil, "logged out")
}

// Me 当前用户资料和未读通知数
func (h *AuthHandler) Me(c *gin.Context) {
	user := middleware.CurrentUser(c)
	unread, err := h.notifications.UnreadCount(c.Request.Context(), user.ID)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{
		"user":        services.NewProfile(user),
		"unreadCount": unread,
	}, "")
}

// Profile 公开的用户主页
func (h *AuthHandler) Profile(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	user, err := h.users.Get(c.Request.Context(), id)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, services.NewProfile(user), "")
}

type updateProfileRequest struct {
	DisplayName *string                    `json:"displayName"`
	Bio         *string                    `json:"bio"`
	Preferences *services.PreferencesPatch `json:"preferences"`
}

// UpdateProfile 修改昵称、简介和偏好，没传的字段不动
func (h *AuthHandler) UpdateProfile(c *gin.Context) {
	var req updateProfileRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := h.users.UpdateProfile(c.Request.Context(), middleware.CurrentUserID(c), services.UpdateProfileInput{
		DisplayName: req.DisplayName,
		Bio:         req.Bio,
		Preferences: req.Preferences,
	})
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"user": services.NewProfile(user)}, "profile updated")
}

// Refresh 账号仍然有效时重新签发 token
func (h *AuthHandler) Refresh(c *gin.Context) {
	user, err := h.users.ActiveUser(c.Request.Context(), middleware.CurrentUserID(c))
	if err != nil {
		response.Fail(c, err)
		return
	}
	token, err := h.signer.Issue(user.ID, user.Username, user.Role)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, gin.H{"token": token}, "token refreshed")
}

func (h *AuthHandler) CheckUsername(c *gin.Context) {
	h.availability(c, services.AvailabilityUsername, c.Param("username"))
}

func (h *AuthHandler) CheckEmail(c *gin.Context) {
	h.availability(c, services.AvailabilityEmail, c.Param("email"))
}

func (h *AuthHandler) availability(c *gin.Context, field, value string) {
	result, err := h.users.CheckAvailability(c.Request.Context(), field, value)
	if err != nil {
		response.Fail(c, err)
		return
	}
	response.Success(c, result, "")
}
