package model

import (
	"time"
)

// GiftProgress 收礼进度，每个 (recipient_id, gift_type) 一行
// Unlocked 只会从 false 变为 true
type GiftProgress struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	RecipientID int64      `gorm:"uniqueIndex:uk_recipient_gift;not null" json:"recipient_id"`
	GiftType    string     `gorm:"type:varchar(32);uniqueIndex:uk_recipient_gift;not null" json:"gift_type"`
	Total       int64      `gorm:"not null;default:0" json:"total"`        // 解锁计数
	GiftCount   int64      `gorm:"not null;default:0" json:"gift_count"`   // 收到的礼物个数
	CreditValue int64      `gorm:"not null;default:0" json:"credit_value"` // 礼物总价值
	Unlocked    bool       `gorm:"not null;default:false" json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (GiftProgress) TableName() string {
	return "gift_progress"
}

// ConfessionGift 送礼记录
type ConfessionGift struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GiftNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"gift_no"`
	SenderID     int64     `gorm:"index;not null" json:"sender_id"`
	RecipientID  int64     `gorm:"index;not null" json:"recipient_id"`
	ConfessionID int64     `gorm:"index;not null" json:"confession_id"`
	GiftType     string    `gorm:"type:varchar(32);not null" json:"gift_type"`
	Price        int64     `gorm:"not null" json:"price"`
	Message      string    `gorm:"type:varchar(256)" json:"message"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (ConfessionGift) TableName() string {
	return "confession_gift"
}
