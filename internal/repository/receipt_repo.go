package repository

import (
	"context"
	"errors"

	"creditengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrReceiptNotFound = errors.New("支付回执不存在")

type ReceiptRepository struct {
	db *gorm.DB
}

func NewReceiptRepository(db *gorm.DB) *ReceiptRepository {
	return &ReceiptRepository{db: db}
}

// InsertIfAbsent 按 payment_id 插入回执
// 返回 false 表示该 payment_id 已经处理过
func (r *ReceiptRepository) InsertIfAbsent(ctx context.Context, tx *gorm.DB, receipt *model.PaymentReceipt) (bool, error) {
	result := tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "payment_id"}},
			DoNothing: true,
		}).
		Create(receipt)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *ReceiptRepository) GetByPaymentID(ctx context.Context, paymentID string) (*model.PaymentReceipt, error) {
	var receipt model.PaymentReceipt
	err := r.db.WithContext(ctx).Where("payment_id = ?", paymentID).First(&receipt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, err
	}
	return &receipt, nil
}
