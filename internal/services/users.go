package services

import (
	"context"
	"net/mail"
	"regexp"
	"strings"
	"unicode/utf8"

	"port42/internal/apperr"
	"port42/internal/models"
	"port42/internal/utils"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]{3,30}$`)

type RegisterInput struct {
	Username    string
	Email       string
	Password    string
	DisplayName string
}

// Profile 用户公开信息，附带等级
type Profile struct {
	*models.User
	Level     string `json:"level"`
	LevelIcon string `json:"level_icon"`
}

type UserService struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func NewUserService(db *gorm.DB, log *zap.SugaredLogger) *UserService {
	return &UserService{db: db, log: log}
}

func (s *UserService) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	username := strings.TrimSpace(in.Username)
	if !usernamePattern.MatchString(username) {
		return nil, apperr.InvalidArgument("username must be 3-30 letters, digits or underscores")
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.Email))
	if err != nil {
		return nil, apperr.InvalidArgument("email is invalid")
	}
	if len(in.Password) < 6 {
		return nil, apperr.InvalidArgument("password must be at least 6 characters")
	}

	hashed, err := utils.HashPassword(in.Password)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "hash password", err)
	}

	user := models.User{
		Username:    username,
		Email:       strings.ToLower(addr.Address),
		Password:    hashed,
		DisplayName: strings.TrimSpace(in.DisplayName),
		Role:        models.RoleUser,
		Preferences: models.DefaultPreferences(),
		Active:      true,
	}
	if user.DisplayName == "" {
		user.DisplayName = username
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.User{}).Where("username = ? OR email = ?", user.Username, user.Email).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return apperr.Conflict("username or email already taken")
		}
		return tx.Create(&user).Error
	})
	if err != nil {
		if apperr.IsUniqueViolation(err) {
			return nil, apperr.Wrap(apperr.KindConflict, "username or email already taken", err)
		}
		return nil, apperr.FromDB(err, "")
	}
	return &user, nil
}

// Authenticate login 可以是用户名或邮箱
func (s *UserService) Authenticate(ctx context.Context, login, password string) (*models.User, error) {
	login = strings.TrimSpace(login)
	var user models.User
	err := readWithRetry(ctx, s.log, "users.authenticate", func() error {
		return apperr.FromDB(s.db.WithContext(ctx).
			Where("username = ? OR email = ?", login, strings.ToLower(login)).
			Take(&user).Error, "invalid credentials")
	})
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthenticated("invalid credentials")
		}
		return nil, err
	}
	if !utils.CheckPassword(user.Password, password) {
		return nil, apperr.Unauthenticated("invalid credentials")
	}
	if !user.Active {
		return nil, apperr.Unauthenticated("account is no longer active")
	}
	return &user, nil
}

func (s *UserService) Get(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := readWithRetry(ctx, s.log, "users.get", func() error {
		return apperr.FromDB(s.db.WithContext(ctx).Where("id = ?", id).Take(&user).Error, "user not found")
	})
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ActiveUser 续签 token 前重新读库，账号不存在或已停用都算未认证
func (s *UserService) ActiveUser(ctx context.Context, id uint) (*models.User, error) {
	user, err := s.Get(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthenticated("account no longer exists")
		}
		return nil, err
	}
	if !user.Active {
		return nil, apperr.Unauthenticated("account is no longer active")
	}
	return user, nil
}

const (
	maxDisplayNameLen = 50
	maxBioLen         = 500
)

// PreferencesPatch 只覆盖传了的字段，其余保持原值
type PreferencesPatch struct {
	EmailNotifications *bool   `json:"emailNotifications"`
	Theme              *string `json:"theme"`
	ShowEmail          *bool   `json:"showEmail"`
}

// UpdateProfileInput nil 表示不修改
type UpdateProfileInput struct {
	DisplayName *string
	Bio         *string
	Preferences *PreferencesPatch
}

func (s *UserService) UpdateProfile(ctx context.Context, userID uint, in UpdateProfileInput) (*models.User, error) {
	updates := map[string]interface{}{}
	if in.DisplayName != nil {
		name := strings.TrimSpace(*in.DisplayName)
		if utf8.RuneCountInString(name) > maxDisplayNameLen {
			return nil, apperr.InvalidArgument("display name must be at most 50 characters")
		}
		updates["display_name"] = name
	}
	if in.Bio != nil {
		bio := strings.TrimSpace(*in.Bio)
		if utf8.RuneCountInString(bio) > maxBioLen {
			return nil, apperr.InvalidArgument("bio must be at most 500 characters")
		}
		updates["bio"] = bio
	}
	if p := in.Preferences; p != nil && p.Theme != nil && !models.ValidTheme(*p.Theme) {
		return nil, apperr.InvalidArgument("theme must be dark, matrix or cyberpunk")
	}

	var user models.User
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", userID).Take(&user).Error; err != nil {
			return err
		}
		if p := in.Preferences; p != nil {
			prefs := user.Preferences
			if p.EmailNotifications != nil {
				prefs.EmailNotifications = *p.EmailNotifications
			}
			if p.Theme != nil {
				prefs.Theme = *p.Theme
			}
			if p.ShowEmail != nil {
				prefs.ShowEmail = *p.ShowEmail
			}
			updates["preferences"] = prefs
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&user).Updates(updates).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", userID).Take(&user).Error
	})
	if err != nil {
		return nil, apperr.FromDB(err, "user not found")
	}
	return &user, nil
}

const (
	AvailabilityUsername = "username"
	AvailabilityEmail    = "email"
)

// Availability 注册前检查用户名或邮箱是否可用
type Availability struct {
	Available bool   `json:"available"`
	Message   string `json:"message"`
}

// CheckAvailability 格式不对时直接返回不可用，不算错误
func (s *UserService) CheckAvailability(ctx context.Context, field, value string) (*Availability, error) {
	value = strings.TrimSpace(value)
	var column, taken, free string
	switch field {
	case AvailabilityUsername:
		if !usernamePattern.MatchString(value) {
			return &Availability{Message: "username must be 3-30 letters, digits or underscores"}, nil
		}
		column, taken, free = "username", "username is already taken", "username is available"
	case AvailabilityEmail:
		addr, err := mail.ParseAddress(value)
		if err != nil {
			return &Availability{Message: "email is invalid"}, nil
		}
		value = strings.ToLower(addr.Address)
		column, taken, free = "email", "email is already registered", "email is available"
	default:
		return nil, apperr.InvalidArgument("unknown availability field")
	}

	var count int64
	err := readWithRetry(ctx, s.log, "users.availability", func() error {
		return apperr.FromDB(s.db.WithContext(ctx).Model(&models.User{}).Where(column+" = ?", value).Count(&count).Error, "")
	})
	if err != nil {
		return nil, err
	}
	if count > 0 {
		return &Availability{Available: false, Message: taken}, nil
	}
	return &Availability{Available: true, Message: free}, nil
}

func NewProfile(u *models.User) *Profile {
	level, icon := utils.GetUserLevel(u.Reputation)
	return &Profile{User: u, Level: level, LevelIcon: icon}
}
