package job

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"creditengine/internal/infrastructure/metrics"
)

// Recomputer 单个帖子的热度重算
type Recomputer interface {
	Recompute(ctx context.Context, confessionID int64) error
}

// TrendingWorker 热度重算工作池
//
// 反应提交后把帖子 ID 丢进队列即返回；队列满直接丢弃，下一次反应会再次触发
type TrendingWorker struct {
	recomputer Recomputer
	queue      chan int64
	workers    int
	timeout    time.Duration
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
}

func NewTrendingWorker(recomputer Recomputer, workers, queueSize int) *TrendingWorker {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &TrendingWorker{
		recomputer: recomputer,
		queue:      make(chan int64, queueSize),
		workers:    workers,
		timeout:    5 * time.Second,
	}
}

// Enqueue 非阻塞入队
func (w *TrendingWorker) Enqueue(confessionID int64) bool {
	select {
	case w.queue <- confessionID:
		return true
	default:
		metrics.AsyncDropped.WithLabelValues("trending").Inc()
		log.Printf("[TrendingWorker] 队列已满，丢弃重算任务: confessionID=%d", confessionID)
		return false
	}
}

func (w *TrendingWorker) Start(ctx context.Context) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.running {
		return
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)

	log.Printf("[TrendingWorker] 热度重算任务启动: workers=%d", w.workers)
	for i := 0; i < w.workers; i++ {
		w.wg.Add(1)
		go w.run(ctx)
	}
}

// Stop 停止接收新任务，处理完队列中剩余的任务后返回
func (w *TrendingWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.cancel()
	w.mu.Unlock()

	w.wg.Wait()
	log.Println("[TrendingWorker] 任务停止")
}

func (w *TrendingWorker) run(ctx context.Context) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			for {
				select {
				case id := <-w.queue:
					w.handle(context.Background(), id)
				default:
					return
				}
			}
		case id := <-w.queue:
			w.handle(ctx, id)
		}
	}
}

func (w *TrendingWorker) handle(ctx context.Context, confessionID int64) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()
	if err := w.recomputer.Recompute(ctx, confessionID); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[TrendingWorker] 热度重算失败: confessionID=%d, err=%v", confessionID, err)
	}
}
