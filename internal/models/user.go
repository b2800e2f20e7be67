package models

import (
	"time"
)

const (
	RoleUser      = "user"
	RoleModerator = "moderator"
	RoleAdmin     = "admin"
)

type User struct {
	ID                 uint        `gorm:"primaryKey" json:"id"`
	Username           string      `gorm:"uniqueIndex;size:30;not null" json:"username"`
	Email              string      `gorm:"uniqueIndex;not null" json:"-"`
	Password           string      `gorm:"not null" json:"-"` // Hash
	DisplayName        string      `gorm:"size:50" json:"display_name"`
	Avatar             string      `json:"avatar"`
	Bio                string      `gorm:"size:500" json:"bio"`
	Reputation         int         `gorm:"default:0;not null;index" json:"reputation"` // 声望，永不为负
	Role               string      `gorm:"size:20;default:'user';not null" json:"role"`
	CommentsCount      int         `gorm:"default:0;not null" json:"comments_count"`
	ResourcesSubmitted int         `gorm:"default:0;not null" json:"resources_submitted"`
	Preferences        Preferences `gorm:"type:text" json:"preferences"`
	Active             bool        `gorm:"default:true;not null" json:"-"` // 停用后不能登录，也不能续签 token
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// IsModerator 版主和管理员都可以删除他人评论
func (u *User) IsModerator() bool {
	return u.Role == RoleModerator || u.Role == RoleAdmin
}
