package model

import (
	"time"
)

const (
	PaymentTypeCredits = "credits"
	PaymentTypePremium = "premium"
	PaymentTypeUnban   = "unban"
)

// PaymentReceipt 支付回执
// payment_id 唯一索引是回调幂等的唯一依据：插入成功才允许入账
type PaymentReceipt struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PaymentID   string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"payment_id"`
	OrderID     string    `gorm:"type:varchar(64);index;not null" json:"order_id"`
	UserID      int64     `gorm:"index;not null" json:"user_id"`
	PaymentType string    `gorm:"type:varchar(20);not null" json:"payment_type"`
	Amount      int64     `gorm:"not null" json:"amount"` // 网关金额，单位：分
	Detail      string    `gorm:"type:varchar(64)" json:"detail"` // 套餐 / 封禁时长
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (PaymentReceipt) TableName() string {
	return "payment_receipt"
}
