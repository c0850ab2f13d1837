package repository

import (
	"context"
	"errors"
	"time"

	"creditengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrAccountNotFound  = errors.New("账户不存在")
	ErrBalanceNotEnough = errors.New("余额不足")
)

type AccountRepository struct {
	db *gorm.DB
}

func NewAccountRepository(db *gorm.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

func (r *AccountRepository) conn(tx *gorm.DB) *gorm.DB {
	if tx == nil {
		return r.db
	}
	return tx
}

func (r *AccountRepository) GetByUserID(ctx context.Context, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// GetByUserIDInTx 事务内的普通读，不加锁
func (r *AccountRepository) GetByUserIDInTx(ctx context.Context, tx *gorm.DB, userID int64) (*model.Account, error) {
	var account model.Account
	err := r.conn(tx).WithContext(ctx).Where("user_id = ?", userID).First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

func (r *AccountRepository) GetByUserIDForUpdate(ctx context.Context, tx *gorm.DB, userID int64) (*model.Account, error) {
	var account model.Account
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &account, nil
}

// Debit 条件扣减：余额不足时 UPDATE 不命中任何行
// 不读后写，避免并发扣款时基于过期余额判断
func (r *AccountRepository) Debit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		UpdateColumn("balance", gorm.Expr("balance - ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := tx.WithContext(ctx).Model(&model.Account{}).Where("user_id = ?", userID).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrAccountNotFound
		}
		return ErrBalanceNotEnough
	}

	return nil
}

func (r *AccountRepository) Credit(ctx context.Context, tx *gorm.DB, userID int64, amount int64) error {
	result := tx.WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		UpdateColumn("balance", gorm.Expr("balance + ?", amount))

	if result.Error != nil {
		return result.Error
	}

	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}

	return nil
}

// Ensure 账户不存在时创建，已存在则什么都不做
func (r *AccountRepository) Ensure(ctx context.Context, tx *gorm.DB, userID int64) error {
	return r.conn(tx).WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}},
			DoNothing: true,
		}).
		Create(&model.Account{UserID: userID}).Error
}

func (r *AccountRepository) GetOrCreate(ctx context.Context, userID int64) (*model.Account, error) {
	account, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return account, nil
	}

	if !errors.Is(err, ErrAccountNotFound) {
		return nil, err
	}

	if err := r.Ensure(ctx, nil, userID); err != nil {
		return nil, err
	}

	return r.GetByUserID(ctx, userID)
}

func (r *AccountRepository) SetPremium(ctx context.Context, tx *gorm.DB, userID int64, subscriptionID *int64, premium bool) error {
	return r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_premium":              premium,
			"premium_subscription_id": subscriptionID,
		}).Error
}

func (r *AccountRepository) SetBan(ctx context.Context, tx *gorm.DB, userID int64, until *time.Time) error {
	return r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_banned": true,
			"ban_until": until,
		}).Error
}

func (r *AccountRepository) LiftBan(ctx context.Context, tx *gorm.DB, userID int64) error {
	return r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"is_banned": false,
			"ban_until": nil,
		}).Error
}

// LiftExpiredBan 限时封禁到期后解除；永久封禁（ban_until 为空）不受影响
func (r *AccountRepository) LiftExpiredBan(ctx context.Context, tx *gorm.DB, userID int64, now time.Time) (bool, error) {
	result := r.conn(tx).WithContext(ctx).
		Model(&model.Account{}).
		Where("user_id = ? AND is_banned = ? AND ban_until IS NOT NULL AND ban_until <= ?", userID, true, now).
		Updates(map[string]interface{}{
			"is_banned": false,
			"ban_until": nil,
		})
	return result.RowsAffected > 0, result.Error
}

// LiftExpiredBans 批量解除已到期的限时封禁
func (r *AccountRepository) LiftExpiredBans(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Account{}).
		Where("is_banned = ? AND ban_until IS NOT NULL AND ban_until <= ?", true, now).
		Updates(map[string]interface{}{
			"is_banned": false,
			"ban_until": nil,
		})
	return result.RowsAffected, result.Error
}

// ListAfterID 按主键游标分批扫描账户
func (r *AccountRepository) ListAfterID(ctx context.Context, afterID int64, limit int) ([]*model.Account, error) {
	var accounts []*model.Account
	err := r.db.WithContext(ctx).
		Where("id > ?", afterID).
		Order("id ASC").
		Limit(limit).
		Find(&accounts).Error
	return accounts, err
}
