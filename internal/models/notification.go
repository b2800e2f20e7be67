package models

import (
	"time"
)

type NotificationType string

const (
	NotificationTypeCommentResource NotificationType = "comment_resource"
	NotificationTypeReplyComment    NotificationType = "reply_comment"
	NotificationTypeSystem          NotificationType = "system"
)

type Notification struct {
	ID         uint             `gorm:"primaryKey" json:"id"`
	UserID     uint             `gorm:"not null;index" json:"user_id"` // Receiver
	User       User             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	ActorID    *uint            `gorm:"index" json:"actor_id"` // Sender
	Actor      *User            `gorm:"foreignKey:ActorID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"actor,omitempty"`
	Type       NotificationType `gorm:"type:varchar(20);not null" json:"type"`
	ResourceID *uint            `gorm:"index" json:"resource_id,omitempty"`
	CommentID  *uint            `json:"comment_id,omitempty"`
	Reason     string           `gorm:"type:text" json:"reason"`
	IsRead     bool             `gorm:"default:false;index" json:"is_read"`
	CreatedAt  time.Time        `json:"created_at"`
}
