// Package pricing 保存积分经济里所有纯计算规则：价格表、加热倍率、语音计费、热度公式。
// 这里的函数不访问存储，方便单测。
package pricing

import (
	"errors"
	"math"
	"time"

	"creditengine/internal/model"
)

var ErrInvalidDuration = errors.New("不支持的时长")

const (
	KindBoost     = "boost"
	KindSpotlight = "spotlight"
)

// PremiumSlotMinutes 时长不小于 12 小时才能使用会员免费额度
const PremiumSlotMinutes = 720

// PremiumBoostMinutes 会员每月赠送的加热次数，每次 24 小时
const PremiumBoostMinutes = 1440

type tier struct {
	credits    int64
	multiplier float64
}

// 加热和置顶共用一张价格表，倍率只对加热生效
var tiers = map[int]tier{
	30:   {credits: 5, multiplier: 1.3},
	60:   {credits: 10, multiplier: 1.5},
	120:  {credits: 15, multiplier: 1.7},
	360:  {credits: 20, multiplier: 2.0},
	720:  {credits: 25, multiplier: 2.3},
	1440: {credits: 30, multiplier: 2.7},
}

// PriceFor 返回购买 minutes 分钟曝光所需积分
func PriceFor(kind string, minutes int) (int64, error) {
	if kind != KindBoost && kind != KindSpotlight {
		return 0, ErrInvalidDuration
	}
	t, ok := tiers[minutes]
	if !ok {
		return 0, ErrInvalidDuration
	}
	return t.credits, nil
}

// BoostMultiplier 加热倍率
func BoostMultiplier(minutes int) (float64, error) {
	t, ok := tiers[minutes]
	if !ok {
		return 0, ErrInvalidDuration
	}
	return t.multiplier, nil
}

// Durations 所有可售时长，升序
func Durations() []int {
	return []int{30, 60, 120, 360, 720, 1440}
}

// PremiumSlotFor 时长对应的会员额度类型，不满 12 小时返回 false
func PremiumSlotFor(kind string, minutes int) (string, bool) {
	if minutes < PremiumSlotMinutes {
		return "", false
	}
	switch kind {
	case KindBoost:
		return model.PerkBoost12h, true
	case KindSpotlight:
		return model.PerkSpotlight12h, true
	}
	return "", false
}

// ExtendExpiry 续期在当前到期时间和 now 中较晚的那个基础上叠加
func ExtendExpiry(current *time.Time, now time.Time, minutes int) time.Time {
	base := now
	if current != nil && current.After(now) {
		base = *current
	}
	return base.Add(time.Duration(minutes) * time.Minute)
}

// VoiceCost 语音计费：前 10 秒 3 积分，之后每 5 秒（不足按 5 秒）4 积分
func VoiceCost(seconds int) int64 {
	if seconds <= 0 {
		return 0
	}
	cost := int64(3)
	if seconds > 10 {
		chunks := (seconds - 10 + 4) / 5
		cost += int64(chunks) * 4
	}
	return cost
}

// 热度权重
const (
	WeightHeart = 3
	WeightLike  = 2
	WeightCry   = 2
	WeightLaugh = 1
)

// TrendingScore (3*heart + 2*like + 2*cry + laugh) / max(1, 帖龄小时)^1.5
func TrendingScore(heart, like, cry, laugh int64, createdAt, now time.Time) float64 {
	weighted := float64(WeightHeart*heart + WeightLike*like + WeightCry*cry + WeightLaugh*laugh)
	ageHours := now.Sub(createdAt).Hours()
	if ageHours < 1 {
		ageHours = 1
	}
	return weighted / math.Pow(ageHours, 1.5)
}
