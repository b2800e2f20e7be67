package models

import (
	"time"
)

type EntityType string

const (
	EntityResource EntityType = "resource"
	EntityComment  EntityType = "comment"
)

type VoteChoice string

const (
	VoteUp     VoteChoice = "up"
	VoteDown   VoteChoice = "down"
	VoteRemove VoteChoice = "remove" // 仅作为请求参数，不落库
)

// Vote 每个用户对每个实体最多一条记录，由唯一索引保证
type Vote struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	EntityType EntityType `gorm:"size:10;not null;uniqueIndex:idx_vote_entity_user,priority:1;index:idx_vote_entity,priority:1" json:"entity_type"`
	EntityID   uint       `gorm:"not null;uniqueIndex:idx_vote_entity_user,priority:2;index:idx_vote_entity,priority:2" json:"entity_id"`
	UserID     uint       `gorm:"not null;uniqueIndex:idx_vote_entity_user,priority:3;index" json:"user_id"`
	Choice     VoteChoice `gorm:"size:4;not null" json:"choice"`
	CreatedAt  time.Time  `json:"created_at"`
}
