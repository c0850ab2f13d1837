package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"creditengine/internal/events"
	"creditengine/internal/infrastructure/metrics"
	"creditengine/internal/model"
	"creditengine/internal/pricing"
	"creditengine/internal/repository"
	"creditengine/pkg/idgen"

	"gorm.io/gorm"
)

// EventPublisher 领域事件发布，必须在事务提交之后调用
type EventPublisher interface {
	Publish(evt events.Event) bool
}

// GiftProgressResult 一次收礼后的累计结果
type GiftProgressResult struct {
	GiftType     string `json:"gift_type"`
	Total        int64  `json:"total"`
	Threshold    int64  `json:"threshold"`
	JustUnlocked bool   `json:"just_unlocked"`
}

// SendGiftResult 送礼结果
type SendGiftResult struct {
	GiftNo       string             `json:"gift_no"`
	RecipientID  int64              `json:"recipient_id"`
	CreditsSpent int64              `json:"credits_spent"`
	Balance      int64              `json:"balance"`
	Progress     GiftProgressResult `json:"progress"`
}

// GiftProgressView 收礼进度展示
type GiftProgressView struct {
	GiftType    string     `json:"gift_type"`
	Name        string     `json:"name"`
	Theme       string     `json:"theme"`
	Total       int64      `json:"total"`
	UnlockAt    int64      `json:"unlock_at"`
	GiftCount   int64      `json:"gift_count"`
	CreditValue int64      `json:"credit_value"`
	Unlocked    bool       `json:"unlocked"`
	UnlockedAt  *time.Time `json:"unlocked_at,omitempty"`
}

type GiftService struct {
	db             *gorm.DB
	giftRepo       *repository.GiftRepository
	confessionRepo *repository.ConfessionRepository
	catalog        *pricing.Catalog
	mutator        *BalanceMutator
	publisher      EventPublisher
	now            func() time.Time
}

func NewGiftService(db *gorm.DB, catalog *pricing.Catalog, mutator *BalanceMutator, publisher EventPublisher) *GiftService {
	return &GiftService{
		db:             db,
		giftRepo:       repository.NewGiftRepository(db),
		confessionRepo: repository.NewConfessionRepository(db),
		catalog:        catalog,
		mutator:        mutator,
		publisher:      publisher,
		now:            time.Now,
	}
}

// advanceProgress 累加进度，第一次达到阈值时返回 true
func advanceProgress(p *model.GiftProgress, units, credits, threshold int64, now time.Time) bool {
	p.Total += units
	p.GiftCount++
	p.CreditValue += credits
	if p.Unlocked || p.Total < threshold {
		return false
	}
	p.Unlocked = true
	p.UnlockedAt = &now
	return true
}

// RecordGift 在调用方事务内累加收礼进度
// 进度行加了行锁，并发跨过阈值时只有一个事务会看到 JustUnlocked
func (s *GiftService) RecordGift(ctx context.Context, tx *gorm.DB, recipientID int64, giftType string, value int64) (GiftProgressResult, error) {
	item, err := s.catalog.Gift(giftType)
	if err != nil {
		return GiftProgressResult{}, err
	}
	if value <= 0 {
		return GiftProgressResult{}, ErrInvalidAmount
	}

	if err := s.giftRepo.EnsureProgress(ctx, tx, recipientID, giftType); err != nil {
		return GiftProgressResult{}, fmt.Errorf("初始化收礼进度失败: %w", err)
	}
	p, err := s.giftRepo.GetProgressForUpdate(ctx, tx, recipientID, giftType)
	if err != nil {
		return GiftProgressResult{}, fmt.Errorf("查询收礼进度失败: %w", err)
	}

	justUnlocked := advanceProgress(p, value, item.Price*value, item.UnlockAt, s.now())
	if err := s.giftRepo.SaveProgress(ctx, tx, p); err != nil {
		return GiftProgressResult{}, fmt.Errorf("更新收礼进度失败: %w", err)
	}

	return GiftProgressResult{
		GiftType:     giftType,
		Total:        p.Total,
		Threshold:    item.UnlockAt,
		JustUnlocked: justUnlocked,
	}, nil
}

func (s *GiftService) SendGift(ctx context.Context, senderID, confessionID int64, giftType, message string) (*SendGiftResult, error) {
	item, err := s.catalog.Gift(giftType)
	if err != nil {
		return nil, err
	}
	message = truncate(strings.TrimSpace(message), 256)

	result := &SendGiftResult{
		GiftNo:       idgen.GenerateGiftNo(),
		CreditsSpent: item.Price,
	}

	c, err := s.confessionRepo.GetByID(ctx, confessionID)
	if err != nil {
		if errors.Is(err, repository.ErrConfessionNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("查询帖子失败: %w", err)
	}
	if c.OwnerID == senderID {
		return nil, ErrSelfGift
	}
	result.RecipientID = c.OwnerID

	// 进度行在事务外单独建好，事务内只对已存在的行加锁
	if err := s.giftRepo.EnsureProgress(ctx, s.db, c.OwnerID, giftType); err != nil {
		return nil, fmt.Errorf("初始化收礼进度失败: %w", err)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := s.mutator.Adjust(ctx, tx, senderID, -item.Price, model.LedgerCategorySpent,
			fmt.Sprintf("送出礼物-%s-帖子%d", item.Name, confessionID))
		if err != nil {
			return err
		}
		result.Balance = balance

		if err := s.giftRepo.CreateRecord(ctx, tx, &model.ConfessionGift{
			GiftNo:       result.GiftNo,
			SenderID:     senderID,
			RecipientID:  c.OwnerID,
			ConfessionID: confessionID,
			GiftType:     giftType,
			Price:        item.Price,
			Message:      message,
		}); err != nil {
			return fmt.Errorf("记录送礼失败: %w", err)
		}

		result.Progress, err = s.RecordGift(ctx, tx, c.OwnerID, giftType, 1)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.Printf("送礼成功: giftNo=%s, senderID=%d, recipientID=%d, giftType=%s, price=%d",
		result.GiftNo, senderID, result.RecipientID, giftType, item.Price)

	s.publisher.Publish(events.Event{
		Type:   model.EventGiftReceived,
		UserID: result.RecipientID,
		Data: map[string]interface{}{
			"gift_no":       result.GiftNo,
			"sender_id":     senderID,
			"confession_id": confessionID,
			"gift_type":     giftType,
			"price":         item.Price,
			"message":       message,
		},
	})
	if result.Progress.JustUnlocked {
		metrics.GiftUnlocks.WithLabelValues(giftType).Inc()
		log.Printf("礼物主题解锁: recipientID=%d, giftType=%s, theme=%s", result.RecipientID, giftType, item.Theme)
		s.publisher.Publish(events.Event{
			Type:   model.EventGiftUnlocked,
			UserID: result.RecipientID,
			Data: map[string]interface{}{
				"recipient_id": result.RecipientID,
				"gift_type":    giftType,
				"theme":        item.Theme,
			},
		})
	}

	return result, nil
}

// ListProgress 收礼进度，目录中的每种礼物都会返回一行
func (s *GiftService) ListProgress(ctx context.Context, recipientID int64) ([]*GiftProgressView, error) {
	rows, err := s.giftRepo.ListProgress(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	byType := make(map[string]*model.GiftProgress, len(rows))
	for _, p := range rows {
		byType[p.GiftType] = p
	}

	views := make([]*GiftProgressView, 0, len(s.catalog.GiftTypes()))
	for _, giftType := range s.catalog.GiftTypes() {
		item, _ := s.catalog.Gift(giftType)
		view := &GiftProgressView{
			GiftType: giftType,
			Name:     item.Name,
			Theme:    item.Theme,
			UnlockAt: item.UnlockAt,
		}
		if p, ok := byType[giftType]; ok {
			view.Total = p.Total
			view.GiftCount = p.GiftCount
			view.CreditValue = p.CreditValue
			view.Unlocked = p.Unlocked
			view.UnlockedAt = p.UnlockedAt
		}
		views = append(views, view)
	}
	return views, nil
}
