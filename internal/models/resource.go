package models

import (
	"time"
)

// 资源类型
var ResourceTypes = []string{"article", "video", "course", "tool", "documentation", "tutorial", "book", "podcast", "other"}

// 难度
var ResourceDifficulties = []string{"beginner", "intermediate", "advanced", "expert"}

// ResourceMetadata 从链接页面异步抓取的元信息
type ResourceMetadata struct {
	Title       string     `gorm:"size:300" json:"title,omitempty"`
	Description string     `gorm:"type:text" json:"description,omitempty"`
	Image       string     `json:"image,omitempty"`
	SiteName    string     `gorm:"size:200" json:"site_name,omitempty"`
	Author      string     `gorm:"size:200" json:"author,omitempty"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
}

type Resource struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	CommunityID uint             `gorm:"not null;index" json:"community_id"`
	Community   Community        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:RESTRICT;" json:"community"`
	UserID      uint             `gorm:"not null;index" json:"user_id"`
	User        User             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"submitted_by"`
	Title       string           `gorm:"size:200;not null" json:"title"`
	URL         string           `gorm:"uniqueIndex;not null" json:"url"`
	Description string           `gorm:"size:1000" json:"description"`
	Type        string           `gorm:"size:20;default:'article'" json:"type"`
	Difficulty  string           `gorm:"size:20;default:'beginner'" json:"difficulty"`
	Tags        StringList       `gorm:"type:text" json:"tags"`
	Metadata    ResourceMetadata `gorm:"embedded;embeddedPrefix:meta_" json:"metadata"`

	// 投票计数，只在投票事务中随 votes 表一起变更
	Upvotes   int `gorm:"default:0;not null" json:"upvotes"`
	Downvotes int `gorm:"default:0;not null" json:"downvotes"`

	Views        int     `gorm:"default:0;not null" json:"views"`
	Clicks       int     `gorm:"default:0;not null" json:"clicks"`
	CommentCount int     `gorm:"default:0;not null" json:"comment_count"` // 未删除评论数
	HotScore     float64 `gorm:"default:0;index" json:"hot_score"`
	IsActive     bool    `gorm:"default:true;index" json:"is_active"`
	IsReported   bool    `gorm:"default:false" json:"is_reported"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Score 净得分
func (r *Resource) Score() int {
	return r.Upvotes - r.Downvotes
}
