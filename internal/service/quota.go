package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"creditengine/internal/config"
	"creditengine/internal/infrastructure/metrics"
	"creditengine/internal/model"
	"creditengine/internal/pricing"
	"creditengine/internal/repository"

	"gorm.io/gorm"
)

// DailyResult 每日额度消耗结果；未命中时 CostIfDenied 为等价积分
type DailyResult struct {
	Granted      bool  `json:"granted"`
	CostIfDenied int64 `json:"cost_if_denied"`
}

// MonthlyResult 按月额度消耗结果
type MonthlyResult struct {
	Granted   bool `json:"granted"`
	Remaining int  `json:"remaining"`
}

// QuotaTracker 会员额度
//
// 只报告额度是否可用并扣减额度，从不扣积分；额度不足时由调用方走 BalanceMutator 付费。
type QuotaTracker struct {
	db        *gorm.DB
	repo      *repository.PremiumRepository
	allotment config.PremiumAllotment
	economy   config.EconomyConfig
	now       func() time.Time
}

func NewQuotaTracker(db *gorm.DB, economy config.EconomyConfig) *QuotaTracker {
	return &QuotaTracker{
		db:        db,
		repo:      repository.NewPremiumRepository(db),
		allotment: economy.PremiumAllotment,
		economy:   economy,
		now:       time.Now,
	}
}

// startOfDay 本地时区当天零点
func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// needsDailyReset 上次重置早于今天则需要先清空每日额度
func needsDailyReset(lastReset, now time.Time) bool {
	return startOfDay(lastReset.In(now.Location())).Before(startOfDay(now))
}

// dailyCost 每日额度对应的积分价格
func (q *QuotaTracker) dailyCost(perk string) int64 {
	switch perk {
	case model.PerkVoice:
		return pricing.VoiceCost(q.economy.FreeVoiceSeconds)
	case model.PerkEdit:
		return q.economy.EditCost
	}
	return 0
}

func (q *QuotaTracker) ConsumeDaily(ctx context.Context, userID int64, perk string) (DailyResult, error) {
	var result DailyResult
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = q.ConsumeDailyInTx(ctx, tx, userID, perk)
		return err
	})
	return result, err
}

func (q *QuotaTracker) ConsumeDailyInTx(ctx context.Context, tx *gorm.DB, userID int64, perk string) (DailyResult, error) {
	if _, ok := model.DailyColumn(perk); !ok {
		return DailyResult{}, repository.ErrUnknownPerk
	}
	denied := DailyResult{Granted: false, CostIfDenied: q.dailyCost(perk)}
	now := q.now()

	sub, err := q.repo.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			q.observe(perk, false)
			return denied, nil
		}
		return DailyResult{}, fmt.Errorf("查询会员订阅失败: %w", err)
	}
	if !sub.ActiveAt(now) {
		q.observe(perk, false)
		return denied, nil
	}

	if needsDailyReset(sub.LastResetDate, now) {
		if err := q.repo.ResetDaily(ctx, tx, sub.ID, startOfDay(now)); err != nil {
			return DailyResult{}, fmt.Errorf("重置每日额度失败: %w", err)
		}
		sub.DailyVoiceUsed = false
		sub.DailyEditUsed = false
	}

	used := sub.DailyVoiceUsed
	if perk == model.PerkEdit {
		used = sub.DailyEditUsed
	}
	if used {
		q.observe(perk, false)
		return denied, nil
	}

	if err := q.repo.MarkDailyUsed(ctx, tx, sub.ID, perk); err != nil {
		return DailyResult{}, fmt.Errorf("扣减每日额度失败: %w", err)
	}
	q.observe(perk, true)
	return DailyResult{Granted: true}, nil
}

func (q *QuotaTracker) ConsumeMonthly(ctx context.Context, userID int64, perk string) (MonthlyResult, error) {
	var result MonthlyResult
	err := q.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, err = q.ConsumeMonthlyInTx(ctx, tx, userID, perk)
		return err
	})
	return result, err
}

// ConsumeMonthlyInTx 条件扣减，额度为 0 时不会变成负数
func (q *QuotaTracker) ConsumeMonthlyInTx(ctx context.Context, tx *gorm.DB, userID int64, perk string) (MonthlyResult, error) {
	if _, ok := model.MonthlyColumn(perk); !ok {
		return MonthlyResult{}, repository.ErrUnknownPerk
	}

	sub, err := q.repo.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			q.observe(perk, false)
			return MonthlyResult{}, nil
		}
		return MonthlyResult{}, fmt.Errorf("查询会员订阅失败: %w", err)
	}
	if !sub.ActiveAt(q.now()) {
		q.observe(perk, false)
		return MonthlyResult{}, nil
	}

	ok, err := q.repo.DecrementMonthly(ctx, tx, sub.ID, perk)
	if err != nil {
		return MonthlyResult{}, fmt.Errorf("扣减会员额度失败: %w", err)
	}
	if !ok {
		q.observe(perk, false)
		return MonthlyResult{}, nil
	}

	q.observe(perk, true)
	return MonthlyResult{Granted: true, Remaining: monthlyRemaining(sub, perk) - 1}, nil
}

func monthlyRemaining(sub *model.PremiumSubscription, perk string) int {
	switch perk {
	case model.PerkSpotlight:
		return sub.SpotlightUsesRemaining
	case model.PerkSpotlight12h:
		return sub.Spotlight12hRemaining
	case model.PerkBoost12h:
		return sub.Boost12hRemaining
	}
	return 0
}

// NextEndDate 续费后的到期时间：从当前到期时间（未过期）或 now 起顺延
func (q *QuotaTracker) NextEndDate(ctx context.Context, tx *gorm.DB, userID int64, months int) (time.Time, error) {
	now := q.now()
	base := now
	sub, err := q.repo.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return time.Time{}, err
	}
	if err == nil && sub.ActiveAt(now) {
		base = sub.EndDate
	}
	return base.AddDate(0, months, 0), nil
}

// Renew 续期并把按月额度重置为标准额度、清空每日额度
func (q *QuotaTracker) Renew(ctx context.Context, tx *gorm.DB, userID int64, until time.Time, paymentID string) (*model.PremiumSubscription, error) {
	now := q.now()
	sub, err := q.repo.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil && !errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("查询会员订阅失败: %w", err)
	}

	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		sub = &model.PremiumSubscription{UserID: userID}
		q.resetAllotment(sub, now, until, paymentID)
		if err := q.repo.Create(ctx, tx, sub); err != nil {
			return nil, fmt.Errorf("创建会员订阅失败: %w", err)
		}
		return sub, nil
	}

	if !sub.ActiveAt(now) {
		sub.StartDate = now
	}
	q.resetAllotment(sub, sub.StartDate, until, paymentID)
	if err := q.repo.Renew(ctx, tx, sub); err != nil {
		return nil, fmt.Errorf("续期会员订阅失败: %w", err)
	}
	return sub, nil
}

func (q *QuotaTracker) resetAllotment(sub *model.PremiumSubscription, start, until time.Time, paymentID string) {
	sub.StartDate = start
	sub.EndDate = until
	sub.IsActive = true
	sub.SpotlightUsesRemaining = q.allotment.SpotlightUses
	sub.Spotlight12hRemaining = q.allotment.Spotlight12h
	sub.Boost12hRemaining = q.allotment.Boost12h
	sub.DailyVoiceUsed = false
	sub.DailyEditUsed = false
	sub.LastResetDate = startOfDay(q.now())
	sub.LastWarnedDate = nil
	sub.PaymentID = paymentID
}

// PeekDaily 只判断每日额度是否可用，不扣减
func (q *QuotaTracker) PeekDaily(ctx context.Context, userID int64, perk string) (bool, error) {
	if _, ok := model.DailyColumn(perk); !ok {
		return false, repository.ErrUnknownPerk
	}
	sub, err := q.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return false, nil
		}
		return false, err
	}
	now := q.now()
	if !sub.ActiveAt(now) {
		return false, nil
	}
	if needsDailyReset(sub.LastResetDate, now) {
		return true, nil
	}
	if perk == model.PerkEdit {
		return !sub.DailyEditUsed, nil
	}
	return !sub.DailyVoiceUsed, nil
}

// Get 查询订阅，不存在返回 nil
func (q *QuotaTracker) Get(ctx context.Context, userID int64) (*model.PremiumSubscription, error) {
	sub, err := q.repo.GetByUserID(ctx, userID)
	if errors.Is(err, repository.ErrSubscriptionNotFound) {
		return nil, nil
	}
	return sub, err
}

// IsPremium 当前是否处于有效订阅期
func (q *QuotaTracker) IsPremium(ctx context.Context, tx *gorm.DB, userID int64) (bool, error) {
	sub, err := q.repo.GetByUserIDInTx(ctx, tx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrSubscriptionNotFound) {
			return false, nil
		}
		return false, err
	}
	return sub.ActiveAt(q.now()), nil
}

func (q *QuotaTracker) observe(perk string, granted bool) {
	metrics.QuotaConsumed.WithLabelValues(perk, strconv.FormatBool(granted)).Inc()
}
