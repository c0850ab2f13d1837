package model

import (
	"time"
)

// 按月额度
const (
	PerkSpotlight    = "spotlight"
	PerkSpotlight12h = "spotlight_12h"
	PerkBoost12h     = "boost_12h"
)

// 按天额度
const (
	PerkVoice = "voice"
	PerkEdit  = "edit"
)

// PremiumSubscription 高级会员订阅及其额度，每个用户一行，续费时原地更新
type PremiumSubscription struct {
	ID                     int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID                 int64      `gorm:"uniqueIndex;not null" json:"user_id"`
	StartDate              time.Time  `gorm:"not null" json:"start_date"`
	EndDate                time.Time  `gorm:"index;not null" json:"end_date"`
	IsActive               bool       `gorm:"index;not null;default:true" json:"is_active"`
	SpotlightUsesRemaining int        `gorm:"not null;default:0" json:"spotlight_uses_remaining"`
	Spotlight12hRemaining  int        `gorm:"column:spotlight_12h_remaining;not null;default:0" json:"spotlight_12h_remaining"`
	Boost12hRemaining      int        `gorm:"column:boost_12h_remaining;not null;default:0" json:"boost_12h_remaining"`
	DailyVoiceUsed         bool       `gorm:"not null;default:false" json:"daily_voice_used"`
	DailyEditUsed          bool       `gorm:"not null;default:false" json:"daily_edit_used"`
	LastResetDate          time.Time  `gorm:"type:date;not null" json:"last_reset_date"`
	LastWarnedDate         *time.Time `gorm:"type:date" json:"last_warned_date,omitempty"`
	PaymentID              string     `gorm:"type:varchar(64)" json:"payment_id"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (PremiumSubscription) TableName() string {
	return "premium_subscription"
}

// ActiveAt 订阅在 now 时刻是否有效
func (p *PremiumSubscription) ActiveAt(now time.Time) bool {
	return p != nil && p.IsActive && now.Before(p.EndDate)
}

// MonthlyColumn 按月额度对应的列名
func MonthlyColumn(perk string) (string, bool) {
	switch perk {
	case PerkSpotlight:
		return "spotlight_uses_remaining", true
	case PerkSpotlight12h:
		return "spotlight_12h_remaining", true
	case PerkBoost12h:
		return "boost_12h_remaining", true
	}
	return "", false
}

// DailyColumn 按天额度对应的列名
func DailyColumn(perk string) (string, bool) {
	switch perk {
	case PerkVoice:
		return "daily_voice_used", true
	case PerkEdit:
		return "daily_edit_used", true
	}
	return "", false
}
