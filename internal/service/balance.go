package service

import (
	"context"
	"errors"
	"fmt"

	"creditengine/internal/infrastructure/metrics"
	"creditengine/internal/model"
	"creditengine/internal/repository"
	"creditengine/pkg/idgen"

	"gorm.io/gorm"
)

// BalanceMutator 所有余额变动的唯一入口
//
// 扣款用一条条件 UPDATE 完成（balance >= amount），不先读后写；
// 每次成功变动都在同一事务里追加一条流水，保证 sum(流水) == 余额。
type BalanceMutator struct {
	db          *gorm.DB
	accountRepo *repository.AccountRepository
	ledgerRepo  *repository.LedgerRepository
}

func NewBalanceMutator(db *gorm.DB) *BalanceMutator {
	return &BalanceMutator{
		db:          db,
		accountRepo: repository.NewAccountRepository(db),
		ledgerRepo:  repository.NewLedgerRepository(db),
	}
}

// Adjust 在调用方事务内变动余额，返回变动后的余额
// 扣款失败返回 *InsufficientFundsError，调用方应回滚整个事务
func (m *BalanceMutator) Adjust(ctx context.Context, tx *gorm.DB, userID int64, amount int64, category, description string) (int64, error) {
	if amount == 0 {
		return 0, ErrInvalidAmount
	}
	if !model.ValidLedgerCategory(category) {
		return 0, ErrInvalidCategory
	}

	if amount < 0 {
		if err := m.accountRepo.Debit(ctx, tx, userID, -amount); err != nil {
			if errors.Is(err, repository.ErrBalanceNotEnough) || errors.Is(err, repository.ErrAccountNotFound) {
				metrics.InsufficientFunds.Inc()
				return 0, m.insufficient(ctx, tx, userID, -amount)
			}
			return 0, fmt.Errorf("扣减积分失败: %w", err)
		}
	} else {
		if err := m.accountRepo.Ensure(ctx, tx, userID); err != nil {
			return 0, fmt.Errorf("创建账户失败: %w", err)
		}
		if err := m.accountRepo.Credit(ctx, tx, userID, amount); err != nil {
			return 0, fmt.Errorf("增加积分失败: %w", err)
		}
	}

	// UPDATE 已经持有行锁，这里读到的就是本事务写入后的余额
	account, err := m.accountRepo.GetByUserIDForUpdate(ctx, tx, userID)
	if err != nil {
		return 0, fmt.Errorf("查询账户失败: %w", err)
	}

	entry := &model.LedgerEntry{
		EntryNo:       idgen.GenerateEntryNo(),
		UserID:        userID,
		Amount:        amount,
		Category:      category,
		Description:   truncate(description, 256),
		BalanceBefore: account.Balance - amount,
		BalanceAfter:  account.Balance,
	}
	if err := m.ledgerRepo.Create(ctx, tx, entry); err != nil {
		return 0, fmt.Errorf("记录流水失败: %w", err)
	}

	metrics.LedgerAdjustments.WithLabelValues(category).Inc()
	return account.Balance, nil
}

// AdjustInTx 单独开一个事务完成变动
func (m *BalanceMutator) AdjustInTx(ctx context.Context, userID int64, amount int64, category, description string) (int64, error) {
	var balance int64
	err := m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		balance, err = m.Adjust(ctx, tx, userID, amount, category, description)
		return err
	})
	return balance, err
}

func (m *BalanceMutator) insufficient(ctx context.Context, tx *gorm.DB, userID int64, required int64) error {
	current := int64(0)
	if account, err := m.accountRepo.GetByUserIDInTx(ctx, tx, userID); err == nil {
		current = account.Balance
	}
	return &InsufficientFundsError{Required: required, Current: current}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
