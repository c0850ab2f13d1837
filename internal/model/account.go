package model

import (
	"time"
)

// Account 用户积分账户
// 余额是整个积分经济的核心数据，任何变动都必须伴随一条 LedgerEntry
type Account struct {
	ID                    int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                int64      `gorm:"uniqueIndex;not null" json:"user_id"`              // 用户ID，业务方传入
	Balance               int64      `gorm:"not null;default:0" json:"balance"`                // 可用积分，提交后永不为负
	IsPremium             bool       `gorm:"not null;default:false" json:"is_premium"`         // 是否高级会员
	PremiumSubscriptionID *int64     `gorm:"index" json:"premium_subscription_id,omitempty"`   // 当前订阅
	IsBanned              bool       `gorm:"not null;default:false" json:"is_banned"`          // 是否封禁
	BanUntil              *time.Time `json:"ban_until,omitempty"`                              // 为空且 IsBanned 表示永久封禁
	CreatedAt             time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Account) TableName() string {
	return "account"
}
