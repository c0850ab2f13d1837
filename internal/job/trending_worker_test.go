package job

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingRecomputer struct {
	mu    sync.Mutex
	ids   []int64
	block chan struct{}
}

func (r *recordingRecomputer) Recompute(ctx context.Context, confessionID int64) error {
	if r.block != nil {
		<-r.block
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, confessionID)
	return nil
}

func (r *recordingRecomputer) seen() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.ids...)
}

func TestTrendingWorkerProcessesQueue(t *testing.T) {
	rec := &recordingRecomputer{}
	w := NewTrendingWorker(rec, 2, 16)
	w.Start(context.Background())

	for i := int64(1); i <= 5; i++ {
		assert.True(t, w.Enqueue(i))
	}

	assert.Eventually(t, func() bool { return len(rec.seen()) == 5 }, 2*time.Second, 10*time.Millisecond)
	w.Stop()
	assert.ElementsMatch(t, []int64{1, 2, 3, 4, 5}, rec.seen())
}

func TestTrendingWorkerDropsWhenFull(t *testing.T) {
	rec := &recordingRecomputer{}
	w := NewTrendingWorker(rec, 1, 2)

	// 未启动时队列只能容纳 2 个
	assert.True(t, w.Enqueue(1))
	assert.True(t, w.Enqueue(2))
	assert.False(t, w.Enqueue(3))
}

func TestTrendingWorkerDrainsOnStop(t *testing.T) {
	rec := &recordingRecomputer{block: make(chan struct{})}
	w := NewTrendingWorker(rec, 1, 8)
	w.Start(context.Background())

	for i := int64(1); i <= 4; i++ {
		w.Enqueue(i)
	}
	close(rec.block)
	w.Stop()

	assert.Len(t, rec.seen(), 4)
}

func TestDaysLeft(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, 1, daysLeft(now.Add(2*time.Hour), now))
	assert.Equal(t, 3, daysLeft(now.Add(72*time.Hour), now))
	assert.Equal(t, 3, daysLeft(now.Add(49*time.Hour), now))
}
