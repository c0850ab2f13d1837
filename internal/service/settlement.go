package service

import (
	"context"
	"errors"
	"fmt"

	"creditengine/internal/model"
	"creditengine/internal/repository"

	"gorm.io/gorm"
)

// SettleResult 回调处理结果。AlreadyProcessed 对调用方来说也是成功
type SettleResult struct {
	Applied          bool `json:"applied"`
	AlreadyProcessed bool `json:"already_processed"`
}

// SettlementGuard 支付回调幂等保护
//
// 回执插入和业务变更在同一个事务里：
// payment_id 冲突说明已经处理过，整个事务回滚，applyFn 不会生效。
type SettlementGuard struct {
	db          *gorm.DB
	receiptRepo *repository.ReceiptRepository
}

func NewSettlementGuard(db *gorm.DB) *SettlementGuard {
	return &SettlementGuard{
		db:          db,
		receiptRepo: repository.NewReceiptRepository(db),
	}
}

func (g *SettlementGuard) Settle(ctx context.Context, receipt *model.PaymentReceipt, applyFn func(tx *gorm.DB) error) (SettleResult, error) {
	err := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inserted, err := g.receiptRepo.InsertIfAbsent(ctx, tx, receipt)
		if err != nil {
			return fmt.Errorf("写入支付回执失败: %w", err)
		}
		if !inserted {
			return ErrAlreadyProcessed
		}
		return applyFn(tx)
	})

	if errors.Is(err, ErrAlreadyProcessed) {
		return SettleResult{AlreadyProcessed: true}, nil
	}
	if err != nil {
		return SettleResult{}, err
	}
	return SettleResult{Applied: true}, nil
}
