package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LedgerAdjustments 余额变动次数，按流水分类
var LedgerAdjustments = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit",
	Subsystem: "ledger",
	Name:      "adjustments_total",
	Help:      "Total successful balance adjustments by category.",
}, []string{"category"})

// InsufficientFunds 因余额不足被拒绝的扣款
var InsufficientFunds = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "credit",
	Subsystem: "ledger",
	Name:      "insufficient_funds_total",
	Help:      "Total debits rejected because the balance was too low.",
})

// Settlements 支付回调处理结果
var Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit",
	Subsystem: "payment",
	Name:      "settlements_total",
	Help:      "Payment settlements by type and result (applied, already_processed, rejected).",
}, []string{"payment_type", "result"})

// RateLimitRejections 被限流拒绝的请求
var RateLimitRejections = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit",
	Subsystem: "ratelimit",
	Name:      "rejections_total",
	Help:      "Actions rejected by the rate limiter.",
}, []string{"action_class"})

// QuotaConsumed 会员额度消耗
var QuotaConsumed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit",
	Subsystem: "premium",
	Name:      "quota_consumed_total",
	Help:      "Premium perks consumed by perk and outcome.",
}, []string{"perk", "granted"})

// GiftUnlocks 礼物主题解锁次数
var GiftUnlocks = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit",
	Subsystem: "gift",
	Name:      "unlocks_total",
	Help:      "Gift themes unlocked.",
}, []string{"gift_type"})

// AsyncDropped 队列已满被丢弃的异步任务
var AsyncDropped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit",
	Subsystem: "async",
	Name:      "dropped_total",
	Help:      "Fire-and-forget tasks dropped because the queue was full.",
}, []string{"queue"})

// ReconcileMismatches 对账发现的不一致账户
var ReconcileMismatches = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "credit",
	Subsystem: "reconcile",
	Name:      "mismatches_total",
	Help:      "Accounts whose ledger sum differs from the stored balance.",
})

// OutboxDelivered Kafka 投递结果
var OutboxDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "credit",
	Subsystem: "outbox",
	Name:      "delivered_total",
	Help:      "Outbox messages relayed to Kafka by result.",
}, []string{"result"})
