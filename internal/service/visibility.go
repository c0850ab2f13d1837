package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"creditengine/internal/model"
	"creditengine/internal/pricing"
	"creditengine/internal/repository"

	"gorm.io/gorm"
)

// VisibilityResult 一次加热/置顶购买的结果
type VisibilityResult struct {
	ConfessionID    int64     `json:"confession_id"`
	Kind            string    `json:"kind"`
	DurationMinutes int       `json:"duration_minutes"`
	ExpiresAt       time.Time `json:"expires_at"`
	Multiplier      float64   `json:"multiplier,omitempty"`
	CreditsSpent    int64     `json:"credits_spent"`
	UsedPremium     bool      `json:"used_premium"`
	Balance         *int64    `json:"balance,omitempty"`
	PremiumLeft     *int      `json:"premium_remaining,omitempty"` // 会员加热次数剩余
}

// VisibilityService 加热 / 置顶
//
// 一个事务内：锁帖子 -> 校验归属 -> 优先用会员 12 小时额度 -> 否则扣积分 -> 叠加到期时间
type VisibilityService struct {
	db             *gorm.DB
	confessionRepo *repository.ConfessionRepository
	mutator        *BalanceMutator
	quota          *QuotaTracker
	now            func() time.Time
}

func NewVisibilityService(db *gorm.DB, mutator *BalanceMutator, quota *QuotaTracker) *VisibilityService {
	return &VisibilityService{
		db:             db,
		confessionRepo: repository.NewConfessionRepository(db),
		mutator:        mutator,
		quota:          quota,
		now:            time.Now,
	}
}

func (s *VisibilityService) ApplyBoost(ctx context.Context, userID, confessionID int64, minutes int) (*VisibilityResult, error) {
	return s.apply(ctx, pricing.KindBoost, userID, confessionID, minutes)
}

func (s *VisibilityService) ApplySpotlight(ctx context.Context, userID, confessionID int64, minutes int) (*VisibilityResult, error) {
	return s.apply(ctx, pricing.KindSpotlight, userID, confessionID, minutes)
}

func (s *VisibilityService) apply(ctx context.Context, kind string, userID, confessionID int64, minutes int) (*VisibilityResult, error) {
	price, err := pricing.PriceFor(kind, minutes)
	if err != nil {
		return nil, err
	}
	multiplier := 0.0
	if kind == pricing.KindBoost {
		if multiplier, err = pricing.BoostMultiplier(minutes); err != nil {
			return nil, err
		}
	}

	result := &VisibilityResult{
		ConfessionID:    confessionID,
		Kind:            kind,
		DurationMinutes: minutes,
		Multiplier:      multiplier,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockOwned(ctx, tx, userID, confessionID)
		if err != nil {
			return err
		}

		if slot, ok := pricing.PremiumSlotFor(kind, minutes); ok {
			res, err := s.quota.ConsumeMonthlyInTx(ctx, tx, userID, slot)
			if err != nil {
				return err
			}
			result.UsedPremium = res.Granted
		}

		if !result.UsedPremium {
			desc := fmt.Sprintf("%s-%d分钟-帖子%d", visibilityLabel(kind), minutes, confessionID)
			balance, err := s.mutator.Adjust(ctx, tx, userID, -price, model.LedgerCategorySpent, desc)
			if err != nil {
				return err
			}
			result.CreditsSpent = price
			result.Balance = &balance
		}

		now := s.now()
		if kind == pricing.KindBoost {
			result.ExpiresAt = pricing.ExtendExpiry(c.BoostExpiresAt, now, minutes)
			if err := s.confessionRepo.UpdateBoost(ctx, tx, confessionID, multiplier, result.ExpiresAt); err != nil {
				return fmt.Errorf("更新加热状态失败: %w", err)
			}
		} else {
			var current *time.Time
			if c.IsSpotlight {
				current = c.SpotlightExpiresAt
			}
			result.ExpiresAt = pricing.ExtendExpiry(current, now, minutes)
			if err := s.confessionRepo.UpdateSpotlight(ctx, tx, confessionID, result.ExpiresAt); err != nil {
				return fmt.Errorf("更新置顶状态失败: %w", err)
			}
		}

		return s.confessionRepo.CreateVisibilityPurchase(ctx, tx, &model.VisibilityPurchase{
			UserID:          userID,
			ConfessionID:    confessionID,
			Kind:            kind,
			DurationMinutes: minutes,
			CreditsSpent:    result.CreditsSpent,
			WasPremium:      result.UsedPremium,
			ExpiresAt:       result.ExpiresAt,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("%s成功: userID=%d, confessionID=%d, minutes=%d, usedPremium=%v, expiresAt=%s",
		visibilityLabel(kind), userID, confessionID, minutes, result.UsedPremium, result.ExpiresAt.Format(time.RFC3339))
	return result, nil
}

// ApplyPremiumBoost 会员每月赠送的 24 小时加热，只消耗次数不扣积分
// 非会员或次数用完返回 ErrQuotaExhausted
func (s *VisibilityService) ApplyPremiumBoost(ctx context.Context, userID, confessionID int64) (*VisibilityResult, error) {
	minutes := pricing.PremiumBoostMinutes
	multiplier, err := pricing.BoostMultiplier(minutes)
	if err != nil {
		return nil, err
	}
	result := &VisibilityResult{
		ConfessionID:    confessionID,
		Kind:            pricing.KindBoost,
		DurationMinutes: minutes,
		Multiplier:      multiplier,
		UsedPremium:     true,
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.lockOwned(ctx, tx, userID, confessionID)
		if err != nil {
			return err
		}

		res, err := s.quota.ConsumeMonthlyInTx(ctx, tx, userID, model.PerkSpotlight)
		if err != nil {
			return err
		}
		if !res.Granted {
			return ErrQuotaExhausted
		}
		result.PremiumLeft = &res.Remaining

		result.ExpiresAt = pricing.ExtendExpiry(c.BoostExpiresAt, s.now(), minutes)
		if err := s.confessionRepo.UpdateBoost(ctx, tx, confessionID, multiplier, result.ExpiresAt); err != nil {
			return fmt.Errorf("更新加热状态失败: %w", err)
		}
		return s.confessionRepo.CreateVisibilityPurchase(ctx, tx, &model.VisibilityPurchase{
			UserID:          userID,
			ConfessionID:    confessionID,
			Kind:            pricing.KindBoost,
			DurationMinutes: minutes,
			WasPremium:      true,
			ExpiresAt:       result.ExpiresAt,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Printf("会员加热成功: userID=%d, confessionID=%d, remaining=%d, expiresAt=%s",
		userID, confessionID, *result.PremiumLeft, result.ExpiresAt.Format(time.RFC3339))
	return result, nil
}

// lockOwned 锁住帖子行并校验归属
func (s *VisibilityService) lockOwned(ctx context.Context, tx *gorm.DB, userID, confessionID int64) (*model.Confession, error) {
	c, err := s.confessionRepo.GetForUpdate(ctx, tx, confessionID)
	if err != nil {
		if errors.Is(err, repository.ErrConfessionNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("查询帖子失败: %w", err)
	}
	if c.OwnerID != userID {
		return nil, ErrNotOwner
	}
	return c, nil
}

func visibilityLabel(kind string) string {
	if kind == pricing.KindBoost {
		return "加热"
	}
	return "置顶"
}
