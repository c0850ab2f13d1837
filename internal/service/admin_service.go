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

var ErrEmptyReason = errors.New("请填写操作原因")

type AdjustCreditsRequest struct {
	AdminID int64  `json:"admin_id"`
	UserID  int64  `json:"user_id" binding:"required"`
	Amount  int64  `json:"amount" binding:"required"`
	Reason  string `json:"reason" binding:"required"`
}

type AdjustCreditsResponse struct {
	UserID   int64  `json:"user_id"`
	Amount   int64  `json:"amount"`
	Category string `json:"category"`
	Balance  int64  `json:"balance"`
}

type BanRequest struct {
	UserID   int64  `json:"user_id" binding:"required"`
	Duration string `json:"duration" binding:"required"` // 3 / 7 / permanent
	Reason   string `json:"reason"`
}

// AdminService 管理员调账和封禁
type AdminService struct {
	db          *gorm.DB
	mutator     *BalanceMutator
	accountRepo *repository.AccountRepository
	now         func() time.Time
}

func NewAdminService(db *gorm.DB, mutator *BalanceMutator) *AdminService {
	return &AdminService{
		db:          db,
		mutator:     mutator,
		accountRepo: repository.NewAccountRepository(db),
		now:         time.Now,
	}
}

// AdjustCredits 正数记 admin_grant，负数记 admin_deduct；扣减不允许把余额扣成负数
func (s *AdminService) AdjustCredits(ctx context.Context, req *AdjustCreditsRequest) (*AdjustCreditsResponse, error) {
	if req.Amount == 0 {
		return nil, ErrInvalidAmount
	}
	if req.Reason == "" {
		return nil, ErrEmptyReason
	}

	category := model.LedgerCategoryAdminGrant
	if req.Amount < 0 {
		category = model.LedgerCategoryAdminDeduct
	}
	desc := fmt.Sprintf("管理员调账-%d-%s", req.AdminID, req.Reason)

	balance, err := s.mutator.AdjustInTx(ctx, req.UserID, req.Amount, category, desc)
	if err != nil {
		return nil, err
	}

	log.Printf("管理员调账成功: adminID=%d, userID=%d, amount=%d, balance=%d", req.AdminID, req.UserID, req.Amount, balance)

	return &AdjustCreditsResponse{
		UserID:   req.UserID,
		Amount:   req.Amount,
		Category: category,
		Balance:  balance,
	}, nil
}

// BanUser 封禁用户；duration 为 3、7（天）或 permanent
func (s *AdminService) BanUser(ctx context.Context, req *BanRequest) (*time.Time, error) {
	var until *time.Time
	switch req.Duration {
	case "3", "7":
		days := 3
		if req.Duration == "7" {
			days = 7
		}
		t := s.now().AddDate(0, 0, days)
		until = &t
	case "permanent":
	default:
		return nil, pricing.ErrInvalidBanDuration
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.accountRepo.Ensure(ctx, tx, req.UserID); err != nil {
			return err
		}
		return s.accountRepo.SetBan(ctx, tx, req.UserID, until)
	})
	if err != nil {
		return nil, err
	}

	log.Printf("封禁用户: userID=%d, duration=%s, reason=%s", req.UserID, req.Duration, req.Reason)
	return until, nil
}

// CheckBan 封禁中返回 *BannedError；限时封禁已到期的顺手解除
func (s *AdminService) CheckBan(ctx context.Context, userID int64) error {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil
		}
		return fmt.Errorf("查询账户失败: %w", err)
	}
	if !account.IsBanned {
		return nil
	}

	now := s.now()
	if account.BanUntil != nil && !account.BanUntil.After(now) {
		lifted, err := s.accountRepo.LiftExpiredBan(ctx, nil, userID, now)
		if err != nil {
			return fmt.Errorf("解除到期封禁失败: %w", err)
		}
		if lifted {
			log.Printf("封禁到期自动解除: userID=%d, banUntil=%s", userID, account.BanUntil.Format(time.RFC3339))
		}
		return nil
	}
	return &BannedError{Until: account.BanUntil}
}
