package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaultsFillsEmptyConfig(t *testing.T) {
	cfg := &Config{}
	cfg.ApplyDefaults()

	assert.Equal(t, 5, cfg.Business.MaxRetryCount)
	assert.Equal(t, 4, cfg.Business.TrendingWorkers)
	assert.Equal(t, 60, cfg.Business.ReconcileMinutes)
	assert.Equal(t, "credit.notification", cfg.Kafka.Topic.Notification)
	assert.Equal(t, "credit.payment", cfg.Kafka.Topic.Payment)

	e := cfg.Economy
	assert.Equal(t, int64(1), e.ReactionCost)
	assert.Equal(t, int64(5), e.ReactionMilestoneStep)
	assert.Equal(t, int64(150), e.PremiumBonusCredits)
	assert.Equal(t, int64(9900), e.PremiumPrice)
	assert.Equal(t, PremiumAllotment{SpotlightUses: 10, Spotlight12h: 10, Boost12h: 10}, e.PremiumAllotment)
	assert.Equal(t, RateLimitRule{WindowSeconds: 3600, MaxCount: 5}, e.RateLimits["confession_post"])
	assert.Equal(t, RateLimitRule{WindowSeconds: 60, MaxCount: 20}, e.RateLimits["reaction"])
	assert.Len(t, e.CreditPackages, 4)
	assert.Len(t, e.Gifts, 12)
}

func TestApplyDefaultsKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Economy: EconomyConfig{
			ReactionCost: 2,
			RateLimits: map[string]RateLimitRule{
				"reaction": {WindowSeconds: 10, MaxCount: 3},
			},
		},
	}
	cfg.ApplyDefaults()

	assert.Equal(t, int64(2), cfg.Economy.ReactionCost)
	assert.Len(t, cfg.Economy.RateLimits, 1)
	assert.Equal(t, 3, cfg.Economy.RateLimits["reaction"].MaxCount)
	assert.Equal(t, int64(5), cfg.Economy.EditCost)
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
mysql:
  host: db
  port: 3307
economy:
  reaction_cost: 3
  credit_packages:
    tiny: { name: Tiny, credits: 10, bonus: 1, price: 500 }
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg := LoadConfig(path)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "db", cfg.MySQL.Host)
	assert.Equal(t, int64(3), cfg.Economy.ReactionCost)
	require.Contains(t, cfg.Economy.CreditPackages, "tiny")
	assert.Equal(t, int64(11), cfg.Economy.CreditPackages["tiny"].Total())
	assert.Same(t, cfg, GlobalConfig)
}
