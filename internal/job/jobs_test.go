package job

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"creditengine/internal/config"
	"creditengine/internal/events"
	"creditengine/internal/infrastructure/database"
	"creditengine/internal/model"
	"creditengine/internal/repository"
	"creditengine/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN 未设置，跳过集成测试")
	}
	db, err := database.Open(dsn, "silent")
	if err != nil {
		t.Skipf("MySQL 不可用: %v", err)
	}
	return db
}

// testUserID 和 service 包的测试错开号段
func testUserID() int64 {
	return 1<<52 + time.Now().UnixNano()/1000
}

type fakeSender struct {
	mu   sync.Mutex
	keys map[string]string
	fail bool
}

func (s *fakeSender) Send(topic, key, eventType, value string) error {
	if s.fail {
		return errors.New("broker down")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys == nil {
		s.keys = map[string]string{}
	}
	s.keys[key] = eventType
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *capturePublisher) Publish(evt events.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return true
}

func (p *capturePublisher) forUser(userID int64) []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.Event
	for _, evt := range p.events {
		if evt.UserID == userID {
			out = append(out, evt)
		}
	}
	return out
}

func TestOutboxSenderDeliversAndRetries(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Business.MaxRetryCount = 1

	userID := testUserID()
	msg, err := events.NewOutboxMessage(cfg.Kafka.Topic.Notification, events.Event{
		Type:   model.EventGiftReceived,
		UserID: userID,
	})
	require.NoError(t, err)
	outbox := repository.NewOutboxRepository(db)
	require.NoError(t, outbox.Create(ctx, nil, msg))

	failing := NewOutboxSender(db, cfg, &fakeSender{fail: true})
	assert.False(t, failing.sendMessage(ctx, msg))

	msgs, err := outbox.ListByUser(ctx, userID, "", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.OutboxStatusFailed, msgs[0].Status)
	assert.Equal(t, 1, msgs[0].RetryCount)

	// 重新置为待发送后可以投递成功
	require.NoError(t, db.Model(&model.OutboxMessage{}).Where("id = ?", msg.ID).
		Updates(map[string]interface{}{"status": model.OutboxStatusPending, "retry_count": 0}).Error)

	sender := &fakeSender{}
	assert.True(t, NewOutboxSender(db, cfg, sender).sendMessage(ctx, msgs[0]))
	assert.Equal(t, model.EventGiftReceived, sender.keys[msg.MessageKey])

	msgs, err = outbox.ListByUser(ctx, userID, "", 10)
	require.NoError(t, err)
	assert.Equal(t, model.OutboxStatusSent, msgs[0].Status)
}

func TestPremiumExpiryJob(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.ApplyDefaults()

	now := time.Now()
	expired := testUserID()
	expiring := expired + 1
	accounts := repository.NewAccountRepository(db)
	premium := repository.NewPremiumRepository(db)

	for _, sub := range []*model.PremiumSubscription{
		{UserID: expired, StartDate: now.AddDate(0, -1, 0), EndDate: now.Add(-time.Hour), IsActive: true, LastResetDate: now},
		{UserID: expiring, StartDate: now.AddDate(0, -1, 0), EndDate: now.Add(50 * time.Hour), IsActive: true, LastResetDate: now},
	} {
		require.NoError(t, premium.Create(ctx, db, sub))
		require.NoError(t, accounts.Ensure(ctx, nil, sub.UserID))
		require.NoError(t, accounts.SetPremium(ctx, nil, sub.UserID, &sub.ID, true))
	}

	publisher := &capturePublisher{}
	j := NewPremiumExpiryJob(db, nil, cfg, publisher)
	j.runOnce(ctx)
	j.runOnce(ctx)

	sub, err := premium.GetByUserID(ctx, expired)
	require.NoError(t, err)
	assert.False(t, sub.IsActive)
	account, err := accounts.GetByUserID(ctx, expired)
	require.NoError(t, err)
	assert.False(t, account.IsPremium)

	sub, err = premium.GetByUserID(ctx, expiring)
	require.NoError(t, err)
	assert.True(t, sub.IsActive)

	// 同一天只提醒一次
	warned := publisher.forUser(expiring)
	require.Len(t, warned, 1)
	assert.Equal(t, model.EventPremiumExpiring, warned[0].Type)
	assert.Equal(t, 3, warned[0].Data["days_left"])
	assert.Empty(t, publisher.forUser(expired))
}

func TestPurgeRetentionCoversLongestWindow(t *testing.T) {
	rules := map[string]config.RateLimitRule{
		"confession_post": {WindowSeconds: 3600, MaxCount: 5},
		"reaction":        {WindowSeconds: 6 * 3600, MaxCount: 20},
	}
	assert.Equal(t, 6*time.Hour, purgeRetention(2*time.Hour, rules))
	assert.Equal(t, 24*time.Hour, purgeRetention(24*time.Hour, rules))
	assert.Equal(t, time.Hour, purgeRetention(time.Hour, nil))

	cfg := &config.Config{}
	cfg.ApplyDefaults()
	cfg.Business.RateWindowRetainHours = 1
	cfg.Economy.RateLimits = rules
	assert.Equal(t, 6*time.Hour, NewHousekeepingJob(nil, cfg).retain)
}

func TestHousekeepingLiftsExpiredBans(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	accounts := repository.NewAccountRepository(db)

	expired := testUserID()
	permanent := expired + 1
	active := expired + 2
	past := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)
	for userID, until := range map[int64]*time.Time{expired: &past, permanent: nil, active: &future} {
		require.NoError(t, accounts.Ensure(ctx, nil, userID))
		require.NoError(t, accounts.SetBan(ctx, nil, userID, until))
	}

	NewHousekeepingJob(db, cfg).runOnce(ctx)

	account, err := accounts.GetByUserID(ctx, expired)
	require.NoError(t, err)
	assert.False(t, account.IsBanned)
	assert.Nil(t, account.BanUntil)

	for _, userID := range []int64{permanent, active} {
		account, err := accounts.GetByUserID(ctx, userID)
		require.NoError(t, err)
		assert.True(t, account.IsBanned, "userID=%d", userID)
	}
}

func TestReconcileRunOnceReportsInterruption(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := NewReconcileJob(service.NewAccountService(nil), 0).RunOnce(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, summary)
	assert.Zero(t, summary.Scanned)
}
