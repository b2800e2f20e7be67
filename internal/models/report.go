package models

import (
	"time"
)

// 举报原因
var ReportReasons = []string{"spam", "inappropriate", "broken-link", "duplicate", "harassment", "off-topic", "other"}

type Report struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	UserID      uint       `gorm:"not null;uniqueIndex:idx_report_item_user,priority:3" json:"user_id"` // Reporter
	ItemType    EntityType `gorm:"size:10;not null;uniqueIndex:idx_report_item_user,priority:1" json:"item_type"`
	ItemID      uint       `gorm:"not null;uniqueIndex:idx_report_item_user,priority:2" json:"item_id"`
	Reason      string     `gorm:"size:20;not null" json:"reason"`
	Description string     `gorm:"size:500" json:"description"`
	CreatedAt   time.Time  `json:"created_at"`
}
