package job

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"creditengine/internal/config"
	"creditengine/internal/events"
	"creditengine/internal/infrastructure/lock"
	"creditengine/internal/model"
	"creditengine/internal/repository"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// HousekeepingJob 清理过期的限流窗口、曝光状态和限时封禁
type HousekeepingJob struct {
	rateWindowRepo *repository.RateWindowRepository
	confessionRepo *repository.ConfessionRepository
	accountRepo    *repository.AccountRepository
	retain         time.Duration
	stopCh         chan struct{}
	interval       time.Duration
	batchSize      int
	now            func() time.Time
}

func NewHousekeepingJob(db *gorm.DB, cfg *config.Config) *HousekeepingJob {
	return &HousekeepingJob{
		rateWindowRepo: repository.NewRateWindowRepository(db),
		confessionRepo: repository.NewConfessionRepository(db),
		accountRepo:    repository.NewAccountRepository(db),
		retain:         purgeRetention(time.Duration(cfg.Business.RateWindowRetainHours)*time.Hour, cfg.Economy.RateLimits),
		stopCh:         make(chan struct{}),
		interval:       time.Minute,
		batchSize:      500,
		now:            time.Now,
	}
}

// purgeRetention 保留时长不短于最长的限流窗口，否则会删掉仍在生效的窗口
func purgeRetention(retain time.Duration, rules map[string]config.RateLimitRule) time.Duration {
	for _, rule := range rules {
		if w := time.Duration(rule.WindowSeconds) * time.Second; w > retain {
			retain = w
		}
	}
	return retain
}

func (j *HousekeepingJob) Start(ctx context.Context) {
	log.Println("[HousekeepingJob] 清理任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[HousekeepingJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[HousekeepingJob] 任务停止")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *HousekeepingJob) Stop() {
	close(j.stopCh)
}

func (j *HousekeepingJob) runOnce(ctx context.Context) {
	now := j.now()

	// 窗口早已结束的行对限流结果没有影响，只是占空间
	purged, err := j.rateWindowRepo.DeleteStale(ctx, now.Add(-j.retain), j.batchSize)
	if err != nil {
		log.Printf("[HousekeepingJob] 清理限流窗口失败: %v", err)
	} else if purged > 0 {
		log.Printf("[HousekeepingJob] 清理过期限流窗口 %d 条", purged)
	}

	boosts, err := j.confessionRepo.ClearExpiredBoosts(ctx, now)
	if err != nil {
		log.Printf("[HousekeepingJob] 清理过期加热失败: %v", err)
	}
	spotlights, err := j.confessionRepo.ClearExpiredSpotlights(ctx, now)
	if err != nil {
		log.Printf("[HousekeepingJob] 清理过期置顶失败: %v", err)
	}
	if boosts > 0 || spotlights > 0 {
		log.Printf("[HousekeepingJob] 曝光到期: boost=%d, spotlight=%d", boosts, spotlights)
	}

	unbanned, err := j.accountRepo.LiftExpiredBans(ctx, now)
	if err != nil {
		log.Printf("[HousekeepingJob] 解除到期封禁失败: %v", err)
	} else if unbanned > 0 {
		log.Printf("[HousekeepingJob] 封禁到期自动解除 %d 个账户", unbanned)
	}
}

// EventPublisher 领域事件发布
type EventPublisher interface {
	Publish(evt events.Event) bool
}

// PremiumExpiryJob 会员到期处理
//
// 关闭已到期的订阅；对即将到期的订阅每天最多提醒一次。
// 多实例部署时用 Redis 锁选出一个实例执行，rdb 为空时直接执行。
type PremiumExpiryJob struct {
	db          *gorm.DB
	rdb         *redis.Client
	premiumRepo *repository.PremiumRepository
	accountRepo *repository.AccountRepository
	publisher   EventPublisher
	warnWithin  time.Duration
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
	now         func() time.Time
}

func NewPremiumExpiryJob(db *gorm.DB, rdb *redis.Client, cfg *config.Config, publisher EventPublisher) *PremiumExpiryJob {
	return &PremiumExpiryJob{
		db:          db,
		rdb:         rdb,
		premiumRepo: repository.NewPremiumRepository(db),
		accountRepo: repository.NewAccountRepository(db),
		publisher:   publisher,
		warnWithin:  time.Duration(cfg.Economy.ExpiryWarningDays) * 24 * time.Hour,
		stopCh:      make(chan struct{}),
		interval:    5 * time.Minute,
		batchSize:   100,
		now:         time.Now,
	}
}

func (j *PremiumExpiryJob) Start(ctx context.Context) {
	log.Println("[PremiumExpiryJob] 会员到期任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[PremiumExpiryJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[PremiumExpiryJob] 任务停止")
			return
		case <-ticker.C:
			j.runOnce(ctx)
		}
	}
}

func (j *PremiumExpiryJob) Stop() {
	close(j.stopCh)
}

func (j *PremiumExpiryJob) runOnce(ctx context.Context) {
	if j.rdb != nil {
		l := lock.NewJobLock(j.rdb, "premium_expiry", j.interval)
		ok, err := l.TryLock(ctx)
		if err != nil {
			log.Printf("[PremiumExpiryJob] 获取任务锁失败: key=%s, err=%v", l.Key(), err)
			return
		}
		if !ok {
			return
		}
		defer func() {
			if err := l.Unlock(ctx); err != nil && !errors.Is(err, lock.ErrLockExpired) {
				log.Printf("[PremiumExpiryJob] 释放任务锁失败: key=%s, err=%v", l.Key(), err)
			}
		}()
	}

	j.deactivateExpired(ctx)
	j.warnExpiring(ctx)
}

func (j *PremiumExpiryJob) deactivateExpired(ctx context.Context) {
	now := j.now()
	subs, err := j.premiumRepo.ListExpired(ctx, now, j.batchSize)
	if err != nil {
		log.Printf("[PremiumExpiryJob] 查询到期订阅失败: %v", err)
		return
	}

	closed := 0
	for _, sub := range subs {
		hit := false
		err := j.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			ok, err := j.premiumRepo.Deactivate(ctx, tx, sub.ID, now)
			if err != nil || !ok {
				return err
			}
			hit = true
			return j.accountRepo.SetPremium(ctx, tx, sub.UserID, nil, false)
		})
		if err != nil {
			log.Printf("[PremiumExpiryJob] 关闭订阅失败: subID=%d, userID=%d, err=%v", sub.ID, sub.UserID, err)
			continue
		}
		if hit {
			closed++
		}
	}
	if closed > 0 {
		log.Printf("[PremiumExpiryJob] 本次关闭 %d 个到期订阅", closed)
	}
}

// daysLeft 剩余天数，向上取整
func daysLeft(endDate, now time.Time) int {
	return int(math.Ceil(endDate.Sub(now).Hours() / 24))
}

func (j *PremiumExpiryJob) warnExpiring(ctx context.Context) {
	now := j.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	subs, err := j.premiumRepo.ListExpiring(ctx, now, now.Add(j.warnWithin), today, j.batchSize)
	if err != nil {
		log.Printf("[PremiumExpiryJob] 查询即将到期订阅失败: %v", err)
		return
	}

	for _, sub := range subs {
		if err := j.premiumRepo.MarkWarned(ctx, j.db, sub.ID, today); err != nil {
			log.Printf("[PremiumExpiryJob] 记录提醒失败: subID=%d, err=%v", sub.ID, err)
			continue
		}
		j.publisher.Publish(events.Event{
			Type:   model.EventPremiumExpiring,
			UserID: sub.UserID,
			Data: map[string]interface{}{
				"account_id": sub.UserID,
				"days_left":  daysLeft(sub.EndDate, now),
				"end_date":   sub.EndDate,
			},
		})
	}
}
