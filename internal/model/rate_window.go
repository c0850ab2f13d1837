package model

import (
	"time"
)

const (
	ActionConfessionPost = "confession_post"
	ActionReaction       = "reaction"
)

// RateWindow 固定窗口计数器，每个 (user_id, action_class) 只有一行
type RateWindow struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"uniqueIndex:uk_user_action;not null" json:"user_id"`
	ActionClass string    `gorm:"type:varchar(32);uniqueIndex:uk_user_action;not null" json:"action_class"`
	Count       int       `gorm:"not null;default:0" json:"count"`
	WindowStart time.Time `gorm:"index;not null" json:"window_start"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (RateWindow) TableName() string {
	return "rate_window"
}
