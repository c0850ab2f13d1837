package service

import (
	"context"
	"errors"
	"log"

	"creditengine/internal/infrastructure/metrics"
	"creditengine/internal/model"
	"creditengine/internal/repository"

	"gorm.io/gorm"
)

// ReconcileResult 单个账户的对账结果
type ReconcileResult struct {
	UserID     int64 `json:"user_id"`
	Balance    int64 `json:"balance"`
	LedgerSum  int64 `json:"ledger_sum"`
	Consistent bool  `json:"consistent"`
}

// ReconcileSummary 全量对账统计
type ReconcileSummary struct {
	Scanned    int     `json:"scanned"`
	Mismatches []int64 `json:"mismatches"`
	Failed     []int64 `json:"failed"` // 对账过程中出错的账户
}

type LedgerPage struct {
	Entries  []*model.LedgerEntry `json:"entries"`
	Total    int64                `json:"total"`
	Page     int                  `json:"page"`
	PageSize int                  `json:"page_size"`
}

type AccountService struct {
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
	outboxRepo  *repository.OutboxRepository
	db          *gorm.DB
}

func NewAccountService(db *gorm.DB) *AccountService {
	return &AccountService{
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
		outboxRepo:  repository.NewOutboxRepository(db),
		db:          db,
	}
}

func (s *AccountService) GetBalance(ctx context.Context, userID int64) (int64, error) {
	account, err := s.accountRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return account.Balance, nil
}

func (s *AccountService) GetAccount(ctx context.Context, userID int64) (*model.Account, error) {
	return s.accountRepo.GetOrCreate(ctx, userID)
}

// ListLedger 流水分页，新的在前
func (s *AccountService) ListLedger(ctx context.Context, userID int64, page, pageSize int) (*LedgerPage, error) {
	if page <= 0 {
		page = 1
	}
	if pageSize <= 0 || pageSize > 100 {
		pageSize = 20
	}
	entries, total, err := s.ledgerRepo.ListByUserID(ctx, userID, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &LedgerPage{Entries: entries, Total: total, Page: page, PageSize: pageSize}, nil
}

// ListEvents 用户最近的通知事件，eventType 为空时不过滤
func (s *AccountService) ListEvents(ctx context.Context, userID int64, eventType string, limit int) ([]*model.OutboxMessage, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.outboxRepo.ListByUser(ctx, userID, eventType, limit)
}

// Reconcile 比较账户余额和流水之和
//
// 先锁住账户行再求和，和正在进行的余额变更串行
func (s *AccountService) Reconcile(ctx context.Context, userID int64) (*ReconcileResult, error) {
	result := &ReconcileResult{UserID: userID}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accountRepo.GetByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		sum, err := s.ledgerRepo.SumByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		result.Balance = account.Balance
		result.LedgerSum = sum
		result.Consistent = account.Balance == sum
		return nil
	})
	if err != nil {
		return nil, err
	}

	if !result.Consistent {
		metrics.ReconcileMismatches.Inc()
		log.Printf("[Reconcile] 账户余额与流水不一致: userID=%d, balance=%d, ledgerSum=%d",
			userID, result.Balance, result.LedgerSum)
	}
	return result, nil
}

// ReconcileAll 按主键游标扫描全部账户
func (s *AccountService) ReconcileAll(ctx context.Context, batchSize int) (*ReconcileSummary, error) {
	if batchSize <= 0 {
		batchSize = 200
	}
	summary := &ReconcileSummary{Mismatches: []int64{}, Failed: []int64{}}
	var afterID int64
	for {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		accounts, err := s.accountRepo.ListAfterID(ctx, afterID, batchSize)
		if err != nil {
			return summary, err
		}
		if len(accounts) == 0 {
			return summary, nil
		}
		for _, account := range accounts {
			afterID = account.ID
			result, err := s.Reconcile(ctx, account.UserID)
			if err != nil {
				log.Printf("[Reconcile] 对账失败: userID=%d, err=%v", account.UserID, err)
				summary.Failed = append(summary.Failed, account.UserID)
				continue
			}
			summary.Scanned++
			if !result.Consistent {
				summary.Mismatches = append(summary.Mismatches, account.UserID)
			}
		}
	}
}
