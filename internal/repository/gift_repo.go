package repository

import (
	"context"
	"errors"

	"creditengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrGiftProgressNotFound = errors.New("收礼进度不存在")

type GiftRepository struct {
	db *gorm.DB
}

func NewGiftRepository(db *gorm.DB) *GiftRepository {
	return &GiftRepository{db: db}
}

// EnsureProgress 进度行不存在时插入零值行
func (r *GiftRepository) EnsureProgress(ctx context.Context, tx *gorm.DB, recipientID int64, giftType string) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "recipient_id"}, {Name: "gift_type"}},
			DoNothing: true,
		}).
		Create(&model.GiftProgress{
			RecipientID: recipientID,
			GiftType:    giftType,
		}).Error
}

func (r *GiftRepository) GetProgressForUpdate(ctx context.Context, tx *gorm.DB, recipientID int64, giftType string) (*model.GiftProgress, error) {
	var p model.GiftProgress
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("recipient_id = ? AND gift_type = ?", recipientID, giftType).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGiftProgressNotFound
		}
		return nil, err
	}
	return &p, nil
}

// SaveProgress 写回累计值；unlocked 只允许 false -> true
func (r *GiftRepository) SaveProgress(ctx context.Context, tx *gorm.DB, p *model.GiftProgress) error {
	updates := map[string]interface{}{
		"total":        p.Total,
		"gift_count":   p.GiftCount,
		"credit_value": p.CreditValue,
	}
	if p.Unlocked {
		updates["unlocked"] = true
		updates["unlocked_at"] = p.UnlockedAt
	}
	return tx.WithContext(ctx).
		Model(&model.GiftProgress{}).
		Where("id = ?", p.ID).
		Updates(updates).Error
}

func (r *GiftRepository) ListProgress(ctx context.Context, recipientID int64) ([]*model.GiftProgress, error) {
	var list []*model.GiftProgress
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("gift_type ASC").
		Find(&list).Error
	return list, err
}

func (r *GiftRepository) CreateRecord(ctx context.Context, tx *gorm.DB, record *model.ConfessionGift) error {
	return tx.WithContext(ctx).Create(record).Error
}

