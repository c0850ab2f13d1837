package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"creditengine/internal/config"
	"creditengine/internal/model"
	"creditengine/internal/pricing"
	"creditengine/internal/repository"

	"gorm.io/gorm"
)

// PostQuote 发帖报价，只读
type PostQuote struct {
	VoiceSeconds   int   `json:"voice_seconds"`
	Cost           int64 `json:"cost"`
	FreeVoice      bool  `json:"free_voice"`
	IsPremium      bool  `json:"is_premium"`
	RateLimited    bool  `json:"rate_limited"`
	PostsRemaining int   `json:"posts_remaining"`
}

// PostCharge 发帖扣费结果
type PostCharge struct {
	ConfessionID  int64  `json:"confession_id"`
	CreditsSpent  int64  `json:"credits_spent"`
	UsedFreeVoice bool   `json:"used_free_voice"`
	Balance       *int64 `json:"balance,omitempty"`
}

// ConfessionService 发帖和编辑的计费
//
// 文字免费，只有语音收费。会员每天有一条 30 秒内免费的语音，超出部分按秒数另计；
// 非会员发帖受每小时次数限制。
type ConfessionService struct {
	db             *gorm.DB
	confessionRepo *repository.ConfessionRepository
	mutator        *BalanceMutator
	limiter        *RateLimiter
	quota          *QuotaTracker
	freeSeconds    int
}

func NewConfessionService(db *gorm.DB, economy config.EconomyConfig, mutator *BalanceMutator, limiter *RateLimiter, quota *QuotaTracker) *ConfessionService {
	return &ConfessionService{
		db:             db,
		confessionRepo: repository.NewConfessionRepository(db),
		mutator:        mutator,
		limiter:        limiter,
		quota:          quota,
		freeSeconds:    economy.FreeVoiceSeconds,
	}
}

// voiceCharge 计算语音费用；freeVoice 为 true 时前 freeSeconds 秒免费
func voiceCharge(seconds, freeSeconds int, freeVoice bool) int64 {
	if seconds <= 0 {
		return 0
	}
	if !freeVoice {
		return pricing.VoiceCost(seconds)
	}
	if seconds <= freeSeconds {
		return 0
	}
	return pricing.VoiceCost(seconds - freeSeconds)
}

func (s *ConfessionService) QuotePost(ctx context.Context, userID int64, voiceSeconds int) (*PostQuote, error) {
	premium, err := s.quota.IsPremium(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	quote := &PostQuote{VoiceSeconds: voiceSeconds, IsPremium: premium}

	if voiceSeconds > 0 && premium {
		if quote.FreeVoice, err = s.quota.PeekDaily(ctx, userID, model.PerkVoice); err != nil {
			return nil, err
		}
	}
	quote.Cost = voiceCharge(voiceSeconds, s.freeSeconds, quote.FreeVoice)

	if !premium {
		status, err := s.limiter.Status(ctx, userID, model.ActionConfessionPost)
		if err != nil {
			return nil, err
		}
		quote.PostsRemaining = status.Remaining
		quote.RateLimited = status.Remaining == 0
	}
	return quote, nil
}

// ChargePost 限流 + 扣费 + 登记帖子，在同一个事务里完成
func (s *ConfessionService) ChargePost(ctx context.Context, userID int64, voiceSeconds int) (*PostCharge, error) {
	if voiceSeconds < 0 {
		return nil, ErrInvalidAmount
	}
	charge := &PostCharge{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		premium, err := s.quota.IsPremium(ctx, tx, userID)
		if err != nil {
			return err
		}
		if !premium {
			if err := s.limiter.Enforce(ctx, tx, userID, model.ActionConfessionPost); err != nil {
				return err
			}
		}

		if voiceSeconds > 0 && premium {
			res, err := s.quota.ConsumeDailyInTx(ctx, tx, userID, model.PerkVoice)
			if err != nil {
				return err
			}
			charge.UsedFreeVoice = res.Granted
		}

		cost := voiceCharge(voiceSeconds, s.freeSeconds, charge.UsedFreeVoice)
		if cost > 0 {
			balance, err := s.mutator.Adjust(ctx, tx, userID, -cost, model.LedgerCategorySpent,
				fmt.Sprintf("发布语音帖子-%d秒", voiceSeconds))
			if err != nil {
				return err
			}
			charge.CreditsSpent = cost
			charge.Balance = &balance
		}

		c := &model.Confession{OwnerID: userID, BoostMultiplier: 1}
		if err := s.confessionRepo.Create(ctx, tx, c); err != nil {
			return fmt.Errorf("创建帖子失败: %w", err)
		}
		charge.ConfessionID = c.ID
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Printf("发帖成功: userID=%d, confessionID=%d, voiceSeconds=%d, cost=%d, freeVoice=%v",
		userID, charge.ConfessionID, voiceSeconds, charge.CreditsSpent, charge.UsedFreeVoice)
	return charge, nil
}

// ChargeEdit 编辑帖子：会员每天一次免费，否则扣固定积分
func (s *ConfessionService) ChargeEdit(ctx context.Context, userID, confessionID int64) (*PostCharge, error) {
	charge := &PostCharge{ConfessionID: confessionID}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := s.confessionRepo.GetForUpdate(ctx, tx, confessionID)
		if err != nil {
			if errors.Is(err, repository.ErrConfessionNotFound) {
				return ErrContentNotFound
			}
			return err
		}
		if c.OwnerID != userID {
			return ErrNotOwner
		}

		res, err := s.quota.ConsumeDailyInTx(ctx, tx, userID, model.PerkEdit)
		if err != nil {
			return err
		}
		if res.Granted {
			return nil
		}

		balance, err := s.mutator.Adjust(ctx, tx, userID, -res.CostIfDenied, model.LedgerCategorySpent,
			fmt.Sprintf("编辑帖子-%d", confessionID))
		if err != nil {
			return err
		}
		charge.CreditsSpent = res.CostIfDenied
		charge.Balance = &balance
		return nil
	})
	if err != nil {
		return nil, err
	}
	return charge, nil
}
