package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creditengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrSubscriptionNotFound = errors.New("会员订阅不存在")
	ErrUnknownPerk          = errors.New("未知的会员额度类型")
)

type PremiumRepository struct {
	db *gorm.DB
}

func NewPremiumRepository(db *gorm.DB) *PremiumRepository {
	return &PremiumRepository{db: db}
}

func (r *PremiumRepository) GetByUserID(ctx context.Context, userID int64) (*model.PremiumSubscription, error) {
	return r.GetByUserIDInTx(ctx, nil, userID)
}

func (r *PremiumRepository) GetByUserIDInTx(ctx context.Context, tx *gorm.DB, userID int64) (*model.PremiumSubscription, error) {
	if tx == nil {
		tx = r.db
	}
	var sub model.PremiumSubscription
	err := tx.WithContext(ctx).Where("user_id = ?", userID).First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *PremiumRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.PremiumSubscription, error) {
	var sub model.PremiumSubscription
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&sub).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, err
	}
	return &sub, nil
}

func (r *PremiumRepository) Create(ctx context.Context, tx *gorm.DB, sub *model.PremiumSubscription) error {
	return tx.WithContext(ctx).Create(sub).Error
}

// Renew 续期并重置全部额度
func (r *PremiumRepository) Renew(ctx context.Context, tx *gorm.DB, sub *model.PremiumSubscription) error {
	return tx.WithContext(ctx).
		Model(&model.PremiumSubscription{}).
		Where("id = ?", sub.ID).
		Updates(map[string]interface{}{
			"start_date":               sub.StartDate,
			"end_date":                 sub.EndDate,
			"is_active":                true,
			"spotlight_uses_remaining": sub.SpotlightUsesRemaining,
			"spotlight_12h_remaining":  sub.Spotlight12hRemaining,
			"boost_12h_remaining":      sub.Boost12hRemaining,
			"daily_voice_used":         false,
			"daily_edit_used":          false,
			"last_reset_date":          sub.LastResetDate,
			"last_warned_date":         nil,
			"payment_id":               sub.PaymentID,
		}).Error
}

// DecrementMonthly 条件扣减按月额度，额度为 0 时不命中
func (r *PremiumRepository) DecrementMonthly(ctx context.Context, tx *gorm.DB, subID int64, perk string) (bool, error) {
	column, ok := model.MonthlyColumn(perk)
	if !ok {
		return false, ErrUnknownPerk
	}
	result := tx.WithContext(ctx).
		Model(&model.PremiumSubscription{}).
		Where(fmt.Sprintf("id = ? AND %s > 0", column), subID).
		UpdateColumn(column, gorm.Expr(column+" - 1"))
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// ResetDaily 跨天后清空每日额度
func (r *PremiumRepository) ResetDaily(ctx context.Context, tx *gorm.DB, subID int64, today time.Time) error {
	return tx.WithContext(ctx).
		Model(&model.PremiumSubscription{}).
		Where("id = ?", subID).
		Updates(map[string]interface{}{
			"daily_voice_used": false,
			"daily_edit_used":  false,
			"last_reset_date":  today,
		}).Error
}

func (r *PremiumRepository) MarkDailyUsed(ctx context.Context, tx *gorm.DB, subID int64, perk string) error {
	column, ok := model.DailyColumn(perk)
	if !ok {
		return ErrUnknownPerk
	}
	return tx.WithContext(ctx).
		Model(&model.PremiumSubscription{}).
		Where("id = ?", subID).
		UpdateColumn(column, true).Error
}

// ListExpired 已过期但仍标记为有效的订阅
func (r *PremiumRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]*model.PremiumSubscription, error) {
	var subs []*model.PremiumSubscription
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND end_date <= ?", true, now).
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

// ListExpiring 在 until 之前到期、今天还没提醒过的订阅
func (r *PremiumRepository) ListExpiring(ctx context.Context, now, until, today time.Time, limit int) ([]*model.PremiumSubscription, error) {
	var subs []*model.PremiumSubscription
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND end_date > ? AND end_date <= ?", true, now, until).
		Where("last_warned_date IS NULL OR last_warned_date < ?", today).
		Limit(limit).
		Find(&subs).Error
	return subs, err
}

// Deactivate 只更新仍有效且确已到期的订阅，返回是否命中；并发续费后不会被误关
func (r *PremiumRepository) Deactivate(ctx context.Context, tx *gorm.DB, subID int64, now time.Time) (bool, error) {
	result := tx.WithContext(ctx).
		Model(&model.PremiumSubscription{}).
		Where("id = ? AND is_active = ? AND end_date <= ?", subID, true, now).
		UpdateColumn("is_active", false)
	return result.RowsAffected > 0, result.Error
}

func (r *PremiumRepository) MarkWarned(ctx context.Context, tx *gorm.DB, subID int64, today time.Time) error {
	return tx.WithContext(ctx).
		Model(&model.PremiumSubscription{}).
		Where("id = ?", subID).
		UpdateColumn("last_warned_date", today).Error
}
