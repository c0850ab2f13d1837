package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creditengine/internal/config"
	"creditengine/internal/infrastructure/metrics"
	"creditengine/internal/repository"

	"gorm.io/gorm"
)

// RateDecision 一次限流判定的结果
type RateDecision struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int           `json:"remaining"`
	RetryAfter time.Duration `json:"retry_after"`
}

// RateStatus 窗口当前状态，只读
type RateStatus struct {
	ActionClass string    `json:"action_class"`
	Count       int       `json:"count"`
	Max         int       `json:"max"`
	Remaining   int       `json:"remaining"`
	ResetAt     time.Time `json:"reset_at"`
}

// RateLimiter 基于数据库行锁的固定窗口限流
//
// 每个 (user_id, action_class) 一行，判定和计数在同一个事务里完成，
// 多实例部署下也不会出现超发。
type RateLimiter struct {
	db    *gorm.DB
	repo  *repository.RateWindowRepository
	rules map[string]config.RateLimitRule
	now   func() time.Time
}

func NewRateLimiter(db *gorm.DB, rules map[string]config.RateLimitRule) *RateLimiter {
	return &RateLimiter{
		db:    db,
		repo:  repository.NewRateWindowRepository(db),
		rules: rules,
		now:   time.Now,
	}
}

// decideWindow 纯函数：窗口过期重置为 1；未满则 +1；已满拒绝
func decideWindow(count int, windowStart, now time.Time, window time.Duration, max int) (int, time.Time, RateDecision) {
	if !now.Before(windowStart.Add(window)) {
		if max <= 0 {
			return 0, now, RateDecision{Allowed: false, RetryAfter: window}
		}
		return 1, now, RateDecision{Allowed: true, Remaining: max - 1}
	}
	if count < max {
		return count + 1, windowStart, RateDecision{Allowed: true, Remaining: max - count - 1}
	}
	return count, windowStart, RateDecision{
		Allowed:    false,
		Remaining:  0,
		RetryAfter: windowStart.Add(window).Sub(now),
	}
}

// CheckAndIncrement 独立事务内判定并计数
func (l *RateLimiter) CheckAndIncrement(ctx context.Context, userID int64, actionClass string, window time.Duration, max int) (RateDecision, error) {
	var decision RateDecision
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		decision, err = l.CheckInTx(ctx, tx, userID, actionClass, window, max)
		return err
	})
	return decision, err
}

// CheckInTx 在调用方事务内判定并计数，调用方回滚时计数一起回滚
func (l *RateLimiter) CheckInTx(ctx context.Context, tx *gorm.DB, userID int64, actionClass string, window time.Duration, max int) (RateDecision, error) {
	now := l.now()
	if err := l.repo.Ensure(ctx, tx, userID, actionClass, now); err != nil {
		return RateDecision{}, fmt.Errorf("初始化限流窗口失败: %w", err)
	}

	w, err := l.repo.GetForUpdate(ctx, tx, userID, actionClass)
	if err != nil {
		return RateDecision{}, fmt.Errorf("查询限流窗口失败: %w", err)
	}

	count, start, decision := decideWindow(w.Count, w.WindowStart, now, window, max)
	if !decision.Allowed {
		metrics.RateLimitRejections.WithLabelValues(actionClass).Inc()
		return decision, nil
	}

	w.Count = count
	w.WindowStart = start
	if err := l.repo.Save(ctx, tx, w); err != nil {
		return RateDecision{}, fmt.Errorf("更新限流窗口失败: %w", err)
	}
	return decision, nil
}

// Enforce 按配置的规则限流，被拒绝时返回 *RateLimitedError
func (l *RateLimiter) Enforce(ctx context.Context, tx *gorm.DB, userID int64, actionClass string) error {
	rule, ok := l.rules[actionClass]
	if !ok {
		return ErrInvalidAction
	}
	window := time.Duration(rule.WindowSeconds) * time.Second

	var (
		decision RateDecision
		err      error
	)
	if tx == nil {
		decision, err = l.CheckAndIncrement(ctx, userID, actionClass, window, rule.MaxCount)
	} else {
		decision, err = l.CheckInTx(ctx, tx, userID, actionClass, window, rule.MaxCount)
	}
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return &RateLimitedError{ActionClass: actionClass, RetryAfter: decision.RetryAfter}
	}
	return nil
}

// Status 查询窗口状态，不修改计数
func (l *RateLimiter) Status(ctx context.Context, userID int64, actionClass string) (*RateStatus, error) {
	rule, ok := l.rules[actionClass]
	if !ok {
		return nil, ErrInvalidAction
	}
	window := time.Duration(rule.WindowSeconds) * time.Second
	now := l.now()

	status := &RateStatus{
		ActionClass: actionClass,
		Max:         rule.MaxCount,
		Remaining:   rule.MaxCount,
		ResetAt:     now.Add(window),
	}

	w, err := l.repo.Get(ctx, userID, actionClass)
	if err != nil {
		if errors.Is(err, repository.ErrRateWindowNotFound) {
			return status, nil
		}
		return nil, err
	}

	resetAt := w.WindowStart.Add(window)
	if now.Before(resetAt) {
		status.Count = w.Count
		status.Remaining = rule.MaxCount - w.Count
		if status.Remaining < 0 {
			status.Remaining = 0
		}
		status.ResetAt = resetAt
	}
	return status, nil
}
