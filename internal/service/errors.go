package service

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInsufficientFunds  = errors.New("积分不足")
	ErrAlreadyProcessed   = errors.New("该支付已处理")
	ErrInvalidSignature   = errors.New("签名校验失败")
	ErrOwnershipMismatch  = errors.New("订单不属于当前用户")
	ErrPaymentNotCaptured = errors.New("支付未完成扣款")
	ErrRateLimited        = errors.New("操作过于频繁")
	ErrQuotaExhausted     = errors.New("会员额度已用完")
	ErrInvalidReaction    = errors.New("不支持的反应类型")
	ErrContentNotFound    = errors.New("帖子不存在")
	ErrNotOwner           = errors.New("只能操作自己的帖子")
	ErrSelfGift           = errors.New("不能给自己送礼")
	ErrInvalidAmount      = errors.New("金额必须为非零整数")
	ErrInvalidCategory    = errors.New("不支持的流水分类")
	ErrInvalidAction      = errors.New("不支持的限流类型")
	ErrUserBanned         = errors.New("账号已被封禁")
)

// InsufficientFundsError 余额不足，携带所需和当前积分
type InsufficientFundsError struct {
	Required int64
	Current  int64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("积分不足: 需要 %d, 当前 %d", e.Required, e.Current)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// RateLimitedError 被限流，RetryAfter 为距窗口结束的时间
type RateLimitedError struct {
	ActionClass string
	RetryAfter  time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("操作过于频繁: %s, %d 秒后重试", e.ActionClass, e.RetryAfterSeconds())
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// RetryAfterSeconds 向上取整，至少 1 秒
func (e *RateLimitedError) RetryAfterSeconds() int64 {
	secs := int64((e.RetryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	return secs
}

// BannedError 账号封禁中；Until 为空表示永久封禁
type BannedError struct {
	Until *time.Time
}

func (e *BannedError) Error() string {
	if e.Until == nil {
		return "账号已被永久封禁"
	}
	return fmt.Sprintf("账号已被封禁至 %s", e.Until.Format("2006-01-02 15:04:05"))
}

func (e *BannedError) Is(target error) bool {
	return target == ErrUserBanned
}
