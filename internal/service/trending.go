package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"creditengine/internal/infrastructure/lock"
	"creditengine/internal/pricing"
	"creditengine/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// TrendingQueue 热度重算队列，Enqueue 不阻塞
type TrendingQueue interface {
	Enqueue(confessionID int64) bool
}

// TrendingService 热度分重算
//
// 结果只依赖当前计数和帖龄，重复执行无副作用。
// 同一帖子的并发重算通过 Redis 锁合并：每个请求先设置 dirty 标记再抢锁，
// 持锁方清掉标记后重算，释放锁后如果标记又出现就再来一轮，
// 因此最后一次计数变更之后一定还有一次重算。
type TrendingService struct {
	confessionRepo *repository.ConfessionRepository
	rdb            *redis.Client
	maxRounds      int
	now            func() time.Time
}

func NewTrendingService(db *gorm.DB, rdb *redis.Client) *TrendingService {
	return &TrendingService{
		confessionRepo: repository.NewConfessionRepository(db),
		rdb:            rdb,
		maxRounds:      3,
		now:            time.Now,
	}
}

func (s *TrendingService) Recompute(ctx context.Context, confessionID int64) error {
	if s.rdb == nil {
		_, err := s.recompute(ctx, confessionID)
		return err
	}

	dirtyKey := lock.TrendingDirtyKey(confessionID)
	if err := s.rdb.Set(ctx, dirtyKey, 1, 30*time.Second).Err(); err != nil {
		log.Printf("[TrendingService] 设置 dirty 标记失败，直接计算: confessionID=%d, err=%v", confessionID, err)
		_, err = s.recompute(ctx, confessionID)
		return err
	}

	for i := 0; i < s.maxRounds; i++ {
		l := lock.NewTrendingLock(s.rdb, confessionID)
		ok, err := l.TryLock(ctx)
		if err != nil {
			log.Printf("[TrendingService] 获取重算锁失败，直接计算: key=%s, err=%v", l.Key(), err)
			_, err = s.recompute(ctx, confessionID)
			return err
		}
		if !ok {
			// 持锁方释放锁后会看到标记
			return nil
		}

		err = s.drain(ctx, confessionID, dirtyKey)
		if uerr := l.Unlock(ctx); uerr != nil && !errors.Is(uerr, lock.ErrLockExpired) {
			log.Printf("[TrendingService] 释放重算锁失败: key=%s, err=%v", l.Key(), uerr)
		}
		if err != nil {
			return err
		}

		n, err := s.rdb.Exists(ctx, dirtyKey).Result()
		if err != nil || n == 0 {
			return nil
		}
	}

	// 多轮后仍有新标记，不再合并，直接算一次
	_, err := s.recompute(ctx, confessionID)
	return err
}

// drain 持锁期间先清标记再重算，清标记之前的计数变更都会被这次重算覆盖
func (s *TrendingService) drain(ctx context.Context, confessionID int64, dirtyKey string) error {
	for i := 0; i < s.maxRounds; i++ {
		n, err := s.rdb.Del(ctx, dirtyKey).Result()
		if err != nil {
			return fmt.Errorf("清除 dirty 标记失败: %w", err)
		}
		if n == 0 {
			return nil
		}
		if _, err := s.recompute(ctx, confessionID); err != nil {
			return err
		}
	}
	return nil
}

func (s *TrendingService) recompute(ctx context.Context, confessionID int64) (float64, error) {
	c, err := s.confessionRepo.GetByID(ctx, confessionID)
	if err != nil {
		if errors.Is(err, repository.ErrConfessionNotFound) {
			return 0, ErrContentNotFound
		}
		return 0, err
	}
	score := pricing.TrendingScore(c.HeartCount, c.LikeCount, c.CryCount, c.LaughCount, c.CreatedAt, s.now())
	if err := s.confessionRepo.UpdateTrendingScore(ctx, confessionID, score); err != nil {
		return 0, fmt.Errorf("更新热度失败: %w", err)
	}
	return score, nil
}
