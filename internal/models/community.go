package models

import (
	"time"
)

type Community struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"uniqueIndex;size:50;not null" json:"name"`
	Slug          string    `gorm:"uniqueIndex;size:60;not null" json:"slug"`
	Description   string    `gorm:"size:500;not null" json:"description"`
	Icon          string    `gorm:"default:'🌐'" json:"icon"`
	Color         string    `gorm:"size:7;default:'#00ff41'" json:"color"`
	CreatedBy     uint      `gorm:"index" json:"created_by"`
	MemberCount   int       `gorm:"default:0;not null" json:"member_count"`
	ResourceCount int       `gorm:"default:0;not null" json:"resource_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CommunityMember 社区成员关系
type CommunityMember struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	CommunityID uint      `gorm:"not null;uniqueIndex:idx_community_member" json:"community_id"`
	UserID      uint      `gorm:"not null;uniqueIndex:idx_community_member;index" json:"user_id"`
	CreatedAt   time.Time `json:"created_at"`
}
