package model

import (
	"time"
)

const (
	OutboxStatusPending = "PENDING"
	OutboxStatusSent    = "SENT"
	OutboxStatusFailed  = "FAILED"
)

// 领域事件类型
const (
	EventGiftUnlocked       = "gift_unlocked"
	EventGiftReceived       = "gift_received"
	EventReactionsMilestone = "reactions_milestone"
	EventPremiumExpiring    = "premium_expiring"
	EventPaymentSettled     = "payment_settled"
)

// OutboxMessage 待投递到 Kafka 的领域事件
type OutboxMessage struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	MessageKey string    `gorm:"type:varchar(64);not null" json:"message_key"`
	EventType  string    `gorm:"type:varchar(32);index;not null" json:"event_type"`
	UserID     int64     `gorm:"index;not null;default:0" json:"user_id"` // 事件接收人
	Topic      string    `gorm:"type:varchar(64);not null" json:"topic"`
	Payload    string    `gorm:"type:text;not null" json:"payload"`
	Status     string    `gorm:"type:varchar(20);index;not null;default:PENDING" json:"status"`
	RetryCount int       `gorm:"not null;default:0" json:"retry_count"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (OutboxMessage) TableName() string {
	return "outbox_message"
}
