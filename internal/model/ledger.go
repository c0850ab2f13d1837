package model

import (
	"time"
)

// ============================================================================
// 流水分类
// ============================================================================

const (
	LedgerCategoryPurchased   = "purchased"    // 支付购买
	LedgerCategorySpent       = "spent"        // 站内消费
	LedgerCategoryEarned      = "earned"       // 赠送/奖励
	LedgerCategoryAdminGrant  = "admin_grant"  // 管理员加分
	LedgerCategoryAdminDeduct = "admin_deduct" // 管理员扣分
)

// ValidLedgerCategory 校验流水分类
func ValidLedgerCategory(category string) bool {
	switch category {
	case LedgerCategoryPurchased, LedgerCategorySpent, LedgerCategoryEarned,
		LedgerCategoryAdminGrant, LedgerCategoryAdminDeduct:
		return true
	}
	return false
}

// LedgerEntry 积分流水
//
// 只追加，不修改，不删除。
// 同一账户所有流水的 Amount 之和必须等于 Account.Balance，对账任务以此为依据。
type LedgerEntry struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	EntryNo       string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"entry_no"` // 流水号（全局唯一）
	UserID        int64     `gorm:"index;not null" json:"user_id"`
	Amount        int64     `gorm:"not null" json:"amount"` // 正数入账，负数出账
	Category      string    `gorm:"type:varchar(20);not null" json:"category"`
	Description   string    `gorm:"type:varchar(256)" json:"description"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entry"
}
