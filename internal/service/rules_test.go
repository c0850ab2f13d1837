package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"creditengine/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideWindow(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	window := time.Hour

	count, ws, d := decideWindow(0, start, start.Add(time.Minute), window, 5)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, count)
	assert.Equal(t, start, ws)
	assert.Equal(t, 4, d.Remaining)

	count, _, d = decideWindow(4, start, start.Add(10*time.Minute), window, 5)
	assert.True(t, d.Allowed)
	assert.Equal(t, 5, count)
	assert.Zero(t, d.Remaining)

	// 第 6 次被拒，计数不变
	now := start.Add(20 * time.Minute)
	count, ws, d = decideWindow(5, start, now, window, 5)
	assert.False(t, d.Allowed)
	assert.Equal(t, 5, count)
	assert.Equal(t, start, ws)
	assert.Equal(t, 40*time.Minute, d.RetryAfter)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// 窗口过期后重置为 1
	later := start.Add(window)
	count, ws, d = decideWindow(5, start, later, window, 5)
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, count)
	assert.Equal(t, later, ws)
}

func TestDecideWindowZeroMax(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	_, _, d := decideWindow(0, start, start.Add(2*time.Hour), time.Hour, 0)
	assert.False(t, d.Allowed)
	assert.Equal(t, time.Hour, d.RetryAfter)
}

func TestNeedsDailyReset(t *testing.T) {
	loc := time.FixedZone("IST", 5*3600+1800)
	now := time.Date(2026, 3, 2, 0, 5, 0, 0, loc)

	assert.True(t, needsDailyReset(time.Date(2026, 3, 1, 0, 0, 0, 0, loc), now))
	assert.False(t, needsDailyReset(time.Date(2026, 3, 2, 0, 0, 0, 0, loc), now))
	assert.False(t, needsDailyReset(now, now))
	// 不同时区存储的时间先换算到 now 的时区
	assert.True(t, needsDailyReset(time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC), now))
}

func TestAdvanceProgressUnlocksOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	p := &model.GiftProgress{RecipientID: 7, GiftType: "ring", Total: 48}

	assert.False(t, advanceProgress(p, 1, 100, 50, now))
	assert.Equal(t, int64(49), p.Total)
	assert.False(t, p.Unlocked)

	assert.True(t, advanceProgress(p, 1, 100, 50, now))
	assert.True(t, p.Unlocked)
	require.NotNil(t, p.UnlockedAt)
	assert.Equal(t, now, *p.UnlockedAt)

	assert.False(t, advanceProgress(p, 1, 100, 50, now.Add(time.Hour)))
	assert.Equal(t, int64(51), p.Total)
	assert.Equal(t, int64(3), p.GiftCount)
	assert.Equal(t, int64(300), p.CreditValue)
	assert.Equal(t, now, *p.UnlockedAt)
}

func TestIsMilestone(t *testing.T) {
	assert.True(t, isMilestone(5, 5))
	assert.True(t, isMilestone(20, 5))
	assert.False(t, isMilestone(6, 5))
	assert.False(t, isMilestone(0, 5))
	assert.False(t, isMilestone(5, 0))
}

func TestVoiceCharge(t *testing.T) {
	assert.Equal(t, int64(0), voiceCharge(0, 30, false))
	assert.Equal(t, int64(19), voiceCharge(30, 30, false))
	assert.Equal(t, int64(0), voiceCharge(30, 30, true))
	assert.Equal(t, int64(0), voiceCharge(12, 30, true))
	// 超出免费部分按剩余秒数计费
	assert.Equal(t, int64(3), voiceCharge(35, 30, true))
	assert.Equal(t, int64(7), voiceCharge(45, 30, true))
}

func TestInsufficientFundsError(t *testing.T) {
	var err error = &InsufficientFundsError{Required: 10, Current: 3}
	wrapped := fmt.Errorf("送礼失败: %w", err)

	assert.ErrorIs(t, wrapped, ErrInsufficientFunds)
	var target *InsufficientFundsError
	require.True(t, errors.As(wrapped, &target))
	assert.Equal(t, int64(10), target.Required)
	assert.Equal(t, int64(3), target.Current)
	assert.NotErrorIs(t, err, ErrRateLimited)
}

func TestRateLimitedError(t *testing.T) {
	err := &RateLimitedError{ActionClass: model.ActionReaction, RetryAfter: 1500 * time.Millisecond}
	assert.ErrorIs(t, err, ErrRateLimited)
	assert.Equal(t, int64(2), err.RetryAfterSeconds())

	err.RetryAfter = 0
	assert.Equal(t, int64(1), err.RetryAfterSeconds())

	err.RetryAfter = 40 * time.Minute
	assert.Equal(t, int64(2400), err.RetryAfterSeconds())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "积分", truncate("积分不足", 2))
}
