package config

import (
	"log"
	"strings"

	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Gateway  GatewayConfig  `mapstructure:"gateway"`
	Business BusinessConfig `mapstructure:"business"`
	Economy  EconomyConfig  `mapstructure:"economy"`
}

type ServerConfig struct {
	Port   int   `mapstructure:"port"`
	NodeID int64 `mapstructure:"node_id"` // 雪花 ID 节点号，必填，1-1023，各实例不同
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"` // silent / error / warn / info
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	Notification string `mapstructure:"notification"`
	Payment      string `mapstructure:"payment"`
}

// GatewayConfig 支付网关配置
// KeySecret 同时用于回调签名校验（HMAC）和 API 调用的 basic auth
type GatewayConfig struct {
	BaseURL        string `mapstructure:"base_url"`
	KeyID          string `mapstructure:"key_id"`
	KeySecret      string `mapstructure:"key_secret"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

type BusinessConfig struct {
	MaxRetryCount         int `mapstructure:"max_retry_count"`
	TrendingWorkers       int `mapstructure:"trending_workers"`
	TrendingQueueSize     int `mapstructure:"trending_queue_size"`
	EventQueueSize        int `mapstructure:"event_queue_size"`
	RateWindowRetainHours int `mapstructure:"rate_window_retain_hours"`
	ReconcileMinutes      int `mapstructure:"reconcile_minutes"`
}

// EconomyConfig 积分经济相关的静态配置
type EconomyConfig struct {
	ReactionCost          int64                    `mapstructure:"reaction_cost"`
	ReactionMilestoneStep int64                    `mapstructure:"reaction_milestone_step"`
	PremiumBonusCredits   int64                    `mapstructure:"premium_bonus_credits"`
	PremiumPrice          int64                    `mapstructure:"premium_price"` // 单位：分
	PremiumMonths         int                      `mapstructure:"premium_months"`
	PremiumAllotment      PremiumAllotment         `mapstructure:"premium_allotment"`
	FreeVoiceSeconds      int                      `mapstructure:"free_voice_seconds"`
	EditCost              int64                    `mapstructure:"edit_cost"`
	ExpiryWarningDays     int                      `mapstructure:"expiry_warning_days"`
	RateLimits            map[string]RateLimitRule `mapstructure:"rate_limits"`
	CreditPackages        map[string]CreditPackage `mapstructure:"credit_packages"`
	UnbanPrices           map[string]int64         `mapstructure:"unban_prices"` // 封禁时长 -> 价格（分）
	Gifts                 map[string]GiftItem      `mapstructure:"gifts"`
}

// PremiumAllotment 每个订阅周期的免费额度
type PremiumAllotment struct {
	SpotlightUses int `mapstructure:"spotlight_uses"`
	Spotlight12h  int `mapstructure:"spotlight_12h"`
	Boost12h      int `mapstructure:"boost_12h"`
}

type RateLimitRule struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxCount      int `mapstructure:"max_count"`
}

type CreditPackage struct {
	Name    string `mapstructure:"name"`
	Credits int64  `mapstructure:"credits"`
	Bonus   int64  `mapstructure:"bonus"`
	Price   int64  `mapstructure:"price"` // 单位：分（paise）
}

// Total 到账积分 = 基础 + 赠送
func (p CreditPackage) Total() int64 {
	return p.Credits + p.Bonus
}

type GiftItem struct {
	Name     string `mapstructure:"name"`
	Price    int64  `mapstructure:"price"`
	Theme    string `mapstructure:"theme"`
	UnlockAt int64  `mapstructure:"unlock_at"`
}

var GlobalConfig *Config

// LoadConfig 加载配置文件
func LoadConfig(configPath string) *Config {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	config.ApplyDefaults()

	GlobalConfig = config
	return config
}

// ApplyDefaults 补齐配置文件中缺失的字段
func (c *Config) ApplyDefaults() {
	if c.Business.MaxRetryCount <= 0 {
		c.Business.MaxRetryCount = 5
	}
	if c.Business.TrendingWorkers <= 0 {
		c.Business.TrendingWorkers = 4
	}
	if c.Business.TrendingQueueSize <= 0 {
		c.Business.TrendingQueueSize = 1024
	}
	if c.Business.EventQueueSize <= 0 {
		c.Business.EventQueueSize = 1024
	}
	if c.Business.RateWindowRetainHours <= 0 {
		c.Business.RateWindowRetainHours = 2
	}
	if c.Business.ReconcileMinutes <= 0 {
		c.Business.ReconcileMinutes = 60
	}
	if c.Gateway.TimeoutSeconds <= 0 {
		c.Gateway.TimeoutSeconds = 10
	}
	if c.Kafka.Topic.Notification == "" {
		c.Kafka.Topic.Notification = "credit.notification"
	}
	if c.Kafka.Topic.Payment == "" {
		c.Kafka.Topic.Payment = "credit.payment"
	}
	c.Economy.fill(DefaultEconomy())
}

func (e *EconomyConfig) fill(def EconomyConfig) {
	if e.ReactionCost <= 0 {
		e.ReactionCost = def.ReactionCost
	}
	if e.ReactionMilestoneStep <= 0 {
		e.ReactionMilestoneStep = def.ReactionMilestoneStep
	}
	if e.PremiumBonusCredits <= 0 {
		e.PremiumBonusCredits = def.PremiumBonusCredits
	}
	if e.PremiumPrice <= 0 {
		e.PremiumPrice = def.PremiumPrice
	}
	if e.PremiumMonths <= 0 {
		e.PremiumMonths = def.PremiumMonths
	}
	if e.PremiumAllotment == (PremiumAllotment{}) {
		e.PremiumAllotment = def.PremiumAllotment
	}
	if e.FreeVoiceSeconds <= 0 {
		e.FreeVoiceSeconds = def.FreeVoiceSeconds
	}
	if e.EditCost <= 0 {
		e.EditCost = def.EditCost
	}
	if e.ExpiryWarningDays <= 0 {
		e.ExpiryWarningDays = def.ExpiryWarningDays
	}
	if len(e.RateLimits) == 0 {
		e.RateLimits = def.RateLimits
	}
	if len(e.CreditPackages) == 0 {
		e.CreditPackages = def.CreditPackages
	}
	if len(e.UnbanPrices) == 0 {
		e.UnbanPrices = def.UnbanPrices
	}
	if len(e.Gifts) == 0 {
		e.Gifts = def.Gifts
	}
}

// DefaultEconomy 线上默认的价格表、礼物目录和额度
func DefaultEconomy() EconomyConfig {
	return EconomyConfig{
		ReactionCost:          1,
		ReactionMilestoneStep: 5,
		PremiumBonusCredits:   150,
		PremiumPrice:          9900,
		PremiumMonths:         1,
		PremiumAllotment: PremiumAllotment{
			SpotlightUses: 10,
			Spotlight12h:  10,
			Boost12h:      10,
		},
		FreeVoiceSeconds:  30,
		EditCost:          5,
		ExpiryWarningDays: 3,
		RateLimits: map[string]RateLimitRule{
			"confession_post": {WindowSeconds: 3600, MaxCount: 5},
			"reaction":        {WindowSeconds: 60, MaxCount: 20},
		},
		CreditPackages: map[string]CreditPackage{
			"starter": {Name: "Starter", Credits: 70, Bonus: 0, Price: 2900},
			"popular": {Name: "Popular", Credits: 200, Bonus: 25, Price: 6900},
			"best":    {Name: "Best Value", Credits: 400, Bonus: 50, Price: 13900},
			"elite":   {Name: "Elite", Credits: 800, Bonus: 100, Price: 24900},
		},
		UnbanPrices: map[string]int64{
			"3":         3000,
			"7":         7000,
			"permanent": 30000,
		},
		Gifts: map[string]GiftItem{
			"gold_hearts":  {Name: "Sparkle Hearts", Price: 25, Theme: "sparkle", UnlockAt: 50},
			"cyber_glitch": {Name: "Cyber Glitch", Price: 35, Theme: "cyber", UnlockAt: 50},
			"holo_foil":    {Name: "Holo Foil", Price: 50, Theme: "holo", UnlockAt: 50},
			"sunset_bg":    {Name: "Vaporwave", Price: 40, Theme: "vaporwave", UnlockAt: 50},
			"starry_night": {Name: "Galactic Mode", Price: 45, Theme: "galaxy", UnlockAt: 50},
			"retro_vhs":    {Name: "Retro VHS", Price: 30, Theme: "retro", UnlockAt: 50},
			"roses":        {Name: "Mega Bouquet", Price: 20, Theme: "rose", UnlockAt: 50},
			"ring":         {Name: "Diamond Ring", Price: 100, Theme: "diamond", UnlockAt: 50},
			"chocolates":   {Name: "Luxury Box", Price: 15, Theme: "chocolate", UnlockAt: 50},
			"teddy":        {Name: "Giant Teddy", Price: 40, Theme: "teddy", UnlockAt: 50},
			"mixtape":      {Name: "Lo-Fi Mixtape", Price: 15, Theme: "lofi", UnlockAt: 50},
			"poem":         {Name: "Epic Poem", Price: 25, Theme: "poem", UnlockAt: 50},
		},
	}
}
