package job

import (
	"context"
	"fmt"
	"log"
	"time"

	"creditengine/internal/service"
)

// ReconcileJob 定期全量对账
//
// 只发现问题，不自动修复；不一致的账户记日志并计数
type ReconcileJob struct {
	accountService *service.AccountService
	stopCh         chan struct{}
	interval       time.Duration
	batchSize      int
}

func NewReconcileJob(accountService *service.AccountService, interval time.Duration) *ReconcileJob {
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReconcileJob{
		accountService: accountService,
		stopCh:         make(chan struct{}),
		interval:       interval,
		batchSize:      200,
	}
}

func (j *ReconcileJob) Start(ctx context.Context) {
	log.Println("[ReconcileJob] 对账任务启动")

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("[ReconcileJob] 收到停止信号，任务退出")
			return
		case <-j.stopCh:
			log.Println("[ReconcileJob] 任务停止")
			return
		case <-ticker.C:
			// 错误已在 RunOnce 里记日志，下一轮重新扫描
			j.RunOnce(ctx)
		}
	}
}

func (j *ReconcileJob) Stop() {
	close(j.stopCh)
}

// RunOnce 执行一轮对账，命令行 reconcile 子命令也调用它
// 扫描中断时返回已扫描部分的统计和错误
func (j *ReconcileJob) RunOnce(ctx context.Context) (*service.ReconcileSummary, error) {
	start := time.Now()
	summary, err := j.accountService.ReconcileAll(ctx, j.batchSize)
	if err != nil {
		log.Printf("[ReconcileJob] 对账中断: %v", err)
		return summary, fmt.Errorf("对账中断: %w", err)
	}
	log.Printf("[ReconcileJob] 对账完成: scanned=%d, mismatches=%d, failed=%d, cost=%s",
		summary.Scanned, len(summary.Mismatches), len(summary.Failed), time.Since(start))
	return summary, nil
}
