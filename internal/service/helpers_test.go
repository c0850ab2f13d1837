package service

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"creditengine/internal/config"
	"creditengine/internal/events"
	"creditengine/internal/infrastructure/database"
	"creditengine/internal/model"
	"creditengine/internal/repository"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

var (
	dbOnce   sync.Once
	sharedDB *gorm.DB
	dbErr    error
)

var userSeq = time.Now().UnixNano() / 1000

// testDB 连接 TEST_MYSQL_DSN 指定的库，未配置或不可用时跳过
func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN 未设置，跳过集成测试")
	}
	dbOnce.Do(func() {
		sharedDB, dbErr = database.Open(dsn, "silent")
	})
	if dbErr != nil {
		t.Skipf("MySQL 不可用: %v", dbErr)
	}
	return sharedDB
}

// testRedis 连接 TEST_REDIS_ADDR，未配置或不可用时跳过
func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR 未设置，跳过")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis 不可用: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func nextUserID() int64 {
	return atomic.AddInt64(&userSeq, 1)
}

type noopQueue struct{}

func (noopQueue) Enqueue(int64) bool { return true }

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(evt events.Event) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return true
}

func (p *recordingPublisher) count(eventType string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, evt := range p.events {
		if evt.Type == eventType {
			n++
		}
	}
	return n
}

// seedBalance 通过正常入账路径给用户充值
func seedBalance(t *testing.T, m *BalanceMutator, userID, amount int64) {
	t.Helper()
	_, err := m.AdjustInTx(context.Background(), userID, amount, model.LedgerCategoryPurchased, "测试充值")
	require.NoError(t, err)
}

func seedConfession(t *testing.T, db *gorm.DB, ownerID int64) int64 {
	t.Helper()
	c := &model.Confession{OwnerID: ownerID, BoostMultiplier: 1}
	require.NoError(t, repository.NewConfessionRepository(db).Create(context.Background(), nil, c))
	return c.ID
}

func seedPremium(t *testing.T, db *gorm.DB, q *QuotaTracker, userID int64) {
	t.Helper()
	ctx := context.Background()
	err := db.Transaction(func(tx *gorm.DB) error {
		sub, err := q.Renew(ctx, tx, userID, time.Now().AddDate(0, 1, 0), "")
		if err != nil {
			return err
		}
		accounts := repository.NewAccountRepository(db)
		if err := accounts.Ensure(ctx, tx, userID); err != nil {
			return err
		}
		return accounts.SetPremium(ctx, tx, userID, &sub.ID, true)
	})
	require.NoError(t, err)
}

func testEconomy() config.EconomyConfig {
	return config.DefaultEconomy()
}
