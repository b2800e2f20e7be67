package models

import (
	"time"
)

// MaxCommentDepth 回复嵌套的最大层级
const MaxCommentDepth = 5

// DeletedCommentContent 软删除后展示的内容
const DeletedCommentContent = "[deleted]"

type Comment struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	ResourceID uint       `gorm:"not null;index:idx_comment_thread,priority:1" json:"resource_id"`
	Resource   Resource   `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	UserID     uint       `gorm:"not null;index" json:"user_id"`
	User       User       `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"author"`
	ParentID   *uint      `gorm:"index" json:"parent_id"` // Nullable for top-level comments
	RootID     *uint      `gorm:"index" json:"root_id"`   // 顶层祖先，一次查询取整棵回复树
	Depth      int        `gorm:"default:0;not null" json:"depth"`
	Content    string     `gorm:"type:text;not null" json:"content"`
	Upvotes    int        `gorm:"default:0;not null" json:"upvotes"`
	Downvotes  int        `gorm:"default:0;not null" json:"downvotes"`
	IsEdited   bool       `gorm:"default:false" json:"is_edited"`
	IsDeleted  bool       `gorm:"default:false;index" json:"is_deleted"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
	CreatedAt  time.Time  `gorm:"index:idx_comment_thread,priority:2" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// Score 净得分
func (c *Comment) Score() int {
	return c.Upvotes - c.Downvotes
}

// CommentEdit 评论编辑历史
type CommentEdit struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	CommentID    uint      `gorm:"not null;index" json:"comment_id"`
	PriorContent string    `gorm:"type:text;not null" json:"prior_content"`
	EditedAt     time.Time `gorm:"not null" json:"edited_at"`
}
