package model

import (
	"time"
)

const (
	ReactionHeart = "heart"
	ReactionLike  = "like"
	ReactionCry   = "cry"
	ReactionLaugh = "laugh"
)

// ReactionColumn 反应类型对应的计数列
func ReactionColumn(reactionType string) (string, bool) {
	switch reactionType {
	case ReactionHeart:
		return "heart_count", true
	case ReactionLike:
		return "like_count", true
	case ReactionCry:
		return "cry_count", true
	case ReactionLaugh:
		return "laugh_count", true
	}
	return "", false
}

// Confession 帖子。这里只保存积分引擎关心的字段：计数、热度和曝光状态
type Confession struct {
	ID                 int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID            int64      `gorm:"index;not null" json:"owner_id"`
	HeartCount         int64      `gorm:"not null;default:0" json:"heart_count"`
	LikeCount          int64      `gorm:"not null;default:0" json:"like_count"`
	CryCount           int64      `gorm:"not null;default:0" json:"cry_count"`
	LaughCount         int64      `gorm:"not null;default:0" json:"laugh_count"`
	TrendingScore      float64    `gorm:"index;not null;default:0" json:"trending_score"`
	BoostMultiplier    float64    `gorm:"not null;default:1" json:"boost_multiplier"`
	BoostExpiresAt     *time.Time `gorm:"index" json:"boost_expires_at,omitempty"`
	IsSpotlight        bool       `gorm:"not null;default:false" json:"is_spotlight"`
	SpotlightExpiresAt *time.Time `gorm:"index" json:"spotlight_expires_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Confession) TableName() string {
	return "confession"
}

// TotalReactions 四种反应之和
func (c *Confession) TotalReactions() int64 {
	return c.HeartCount + c.LikeCount + c.CryCount + c.LaughCount
}

// Reaction 付费反应，一次一行
type Reaction struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID       int64     `gorm:"index:idx_reaction_user_confession;not null" json:"user_id"`
	ConfessionID int64     `gorm:"index:idx_reaction_user_confession;not null" json:"confession_id"`
	ReactionType string    `gorm:"type:varchar(16);not null" json:"reaction_type"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (Reaction) TableName() string {
	return "reaction"
}

const (
	VisibilityBoost     = "boost"
	VisibilitySpotlight = "spotlight"
)

// VisibilityPurchase 加热/置顶购买记录
type VisibilityPurchase struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID          int64     `gorm:"index;not null" json:"user_id"`
	ConfessionID    int64     `gorm:"index;not null" json:"confession_id"`
	Kind            string    `gorm:"type:varchar(16);not null" json:"kind"`
	DurationMinutes int       `gorm:"not null" json:"duration_minutes"`
	CreditsSpent    int64     `gorm:"not null" json:"credits_spent"`
	WasPremium      bool      `gorm:"not null;default:false" json:"was_premium"`
	ExpiresAt       time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (VisibilityPurchase) TableName() string {
	return "visibility_purchase"
}
