package service

import (
	"context"
	"errors"
	"fmt"
	"log"

	"creditengine/internal/config"
	"creditengine/internal/events"
	"creditengine/internal/model"
	"creditengine/internal/repository"

	"gorm.io/gorm"
)

// ReactResult 付费反应结果
type ReactResult struct {
	ConfessionID   int64  `json:"confession_id"`
	ReactionType   string `json:"reaction_type"`
	CreditsSpent   int64  `json:"credits_spent"`
	Balance        int64  `json:"balance"`
	TotalReactions int64  `json:"total_reactions"`
}

// ReactionService 付费反应
//
// 限流、计数、扣费、反应记录在同一个事务里；任何一步失败全部回滚，
// 包括限流计数。热度重算和里程碑事件在提交后异步进行。
type ReactionService struct {
	db             *gorm.DB
	confessionRepo *repository.ConfessionRepository
	mutator        *BalanceMutator
	limiter        *RateLimiter
	trending       TrendingQueue
	publisher      EventPublisher
	cost           int64
	milestoneStep  int64
}

func NewReactionService(db *gorm.DB, economy config.EconomyConfig, mutator *BalanceMutator, limiter *RateLimiter,
	trending TrendingQueue, publisher EventPublisher) *ReactionService {
	return &ReactionService{
		db:             db,
		confessionRepo: repository.NewConfessionRepository(db),
		mutator:        mutator,
		limiter:        limiter,
		trending:       trending,
		publisher:      publisher,
		cost:           economy.ReactionCost,
		milestoneStep:  economy.ReactionMilestoneStep,
	}
}

// isMilestone 总反应数每到 step 的整数倍触发一次
func isMilestone(total, step int64) bool {
	return step > 0 && total > 0 && total%step == 0
}

func (s *ReactionService) React(ctx context.Context, userID, confessionID int64, reactionType string) (*ReactResult, error) {
	if _, ok := model.ReactionColumn(reactionType); !ok {
		return nil, ErrInvalidReaction
	}

	result := &ReactResult{
		ConfessionID: confessionID,
		ReactionType: reactionType,
		CreditsSpent: s.cost,
	}
	var ownerID int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.limiter.Enforce(ctx, tx, userID, model.ActionReaction); err != nil {
			return err
		}

		if err := s.confessionRepo.AddReactions(ctx, tx, confessionID, reactionType, 1); err != nil {
			if errors.Is(err, repository.ErrConfessionNotFound) {
				return ErrContentNotFound
			}
			return fmt.Errorf("更新反应计数失败: %w", err)
		}

		balance, err := s.mutator.Adjust(ctx, tx, userID, -s.cost, model.LedgerCategorySpent,
			fmt.Sprintf("反应-%s-帖子%d", reactionType, confessionID))
		if err != nil {
			return err
		}
		result.Balance = balance

		if err := s.confessionRepo.CreateReaction(ctx, tx, &model.Reaction{
			UserID:       userID,
			ConfessionID: confessionID,
			ReactionType: reactionType,
		}); err != nil {
			return fmt.Errorf("记录反应失败: %w", err)
		}

		c, err := s.confessionRepo.GetByIDInTx(ctx, tx, confessionID)
		if err != nil {
			return fmt.Errorf("查询帖子失败: %w", err)
		}
		result.TotalReactions = c.TotalReactions()
		ownerID = c.OwnerID
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.trending.Enqueue(confessionID)

	if isMilestone(result.TotalReactions, s.milestoneStep) {
		s.publisher.Publish(events.Event{
			Type:   model.EventReactionsMilestone,
			UserID: ownerID,
			Data: map[string]interface{}{
				"content_id": confessionID,
				"count":      result.TotalReactions,
			},
		})
	}

	return result, nil
}

// RemoveAll 撤回当前用户在该帖子下的某类反应，不退积分
func (s *ReactionService) RemoveAll(ctx context.Context, userID, confessionID int64, reactionType string) (int64, error) {
	if _, ok := model.ReactionColumn(reactionType); !ok {
		return 0, ErrInvalidReaction
	}

	var removed int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.confessionRepo.GetForUpdate(ctx, tx, confessionID); err != nil {
			if errors.Is(err, repository.ErrConfessionNotFound) {
				return ErrContentNotFound
			}
			return err
		}
		n, err := s.confessionRepo.DeleteReactions(ctx, tx, userID, confessionID, reactionType)
		if err != nil {
			return fmt.Errorf("删除反应失败: %w", err)
		}
		if n == 0 {
			return nil
		}
		removed = n
		return s.confessionRepo.AddReactions(ctx, tx, confessionID, reactionType, -n)
	})
	if err != nil {
		return 0, err
	}

	if removed > 0 {
		log.Printf("撤回反应: userID=%d, confessionID=%d, type=%s, count=%d", userID, confessionID, reactionType, removed)
		s.trending.Enqueue(confessionID)
	}
	return removed, nil
}
