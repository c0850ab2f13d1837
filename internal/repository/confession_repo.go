package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"creditengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrConfessionNotFound = errors.New("帖子不存在")
	ErrUnknownReaction    = errors.New("未知的反应类型")
)

type ConfessionRepository struct {
	db *gorm.DB
}

func NewConfessionRepository(db *gorm.DB) *ConfessionRepository {
	return &ConfessionRepository{db: db}
}

func (r *ConfessionRepository) Create(ctx context.Context, tx *gorm.DB, c *model.Confession) error {
	if tx == nil {
		tx = r.db
	}
	return tx.WithContext(ctx).Create(c).Error
}

func (r *ConfessionRepository) GetByID(ctx context.Context, id int64) (*model.Confession, error) {
	var c model.Confession
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfessionNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConfessionRepository) GetByIDInTx(ctx context.Context, tx *gorm.DB, id int64) (*model.Confession, error) {
	var c model.Confession
	err := tx.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfessionNotFound
		}
		return nil, err
	}
	return &c, nil
}

func (r *ConfessionRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, id int64) (*model.Confession, error) {
	var c model.Confession
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrConfessionNotFound
		}
		return nil, err
	}
	return &c, nil
}

// AddReactions 原子增减计数，结果不小于 0
func (r *ConfessionRepository) AddReactions(ctx context.Context, tx *gorm.DB, id int64, reactionType string, delta int64) error {
	column, ok := model.ReactionColumn(reactionType)
	if !ok {
		return ErrUnknownReaction
	}
	expr := gorm.Expr(fmt.Sprintf("GREATEST(%s + ?, 0)", column), delta)
	result := tx.WithContext(ctx).
		Model(&model.Confession{}).
		Where("id = ?", id).
		UpdateColumn(column, expr)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected > 0 || delta == 0 {
		return nil
	}
	// 计数已为 0 时扣减不改变任何行，MySQL 同样返回 0，需要再确认帖子是否存在
	var count int64
	if err := tx.WithContext(ctx).Model(&model.Confession{}).Where("id = ?", id).Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrConfessionNotFound
	}
	return nil
}

func (r *ConfessionRepository) UpdateTrendingScore(ctx context.Context, id int64, score float64) error {
	return r.db.WithContext(ctx).
		Model(&model.Confession{}).
		Where("id = ?", id).
		UpdateColumn("trending_score", score).Error
}

func (r *ConfessionRepository) UpdateBoost(ctx context.Context, tx *gorm.DB, id int64, multiplier float64, expiresAt time.Time) error {
	return tx.WithContext(ctx).
		Model(&model.Confession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"boost_multiplier": multiplier,
			"boost_expires_at": expiresAt,
		}).Error
}

func (r *ConfessionRepository) UpdateSpotlight(ctx context.Context, tx *gorm.DB, id int64, expiresAt time.Time) error {
	return tx.WithContext(ctx).
		Model(&model.Confession{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_spotlight":         true,
			"spotlight_expires_at": expiresAt,
		}).Error
}

// ClearExpiredBoosts 到期的加热恢复为 1 倍
func (r *ConfessionRepository) ClearExpiredBoosts(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Confession{}).
		Where("boost_expires_at IS NOT NULL AND boost_expires_at <= ?", now).
		Updates(map[string]interface{}{
			"boost_multiplier": 1.0,
			"boost_expires_at": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *ConfessionRepository) ClearExpiredSpotlights(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Confession{}).
		Where("is_spotlight = ? AND spotlight_expires_at <= ?", true, now).
		Updates(map[string]interface{}{
			"is_spotlight":         false,
			"spotlight_expires_at": nil,
		})
	return result.RowsAffected, result.Error
}

func (r *ConfessionRepository) CreateReaction(ctx context.Context, tx *gorm.DB, reaction *model.Reaction) error {
	return tx.WithContext(ctx).Create(reaction).Error
}

// DeleteReactions 删除某用户在某帖子下的同类反应，返回删除条数
func (r *ConfessionRepository) DeleteReactions(ctx context.Context, tx *gorm.DB, userID, confessionID int64, reactionType string) (int64, error) {
	result := tx.WithContext(ctx).
		Where("user_id = ? AND confession_id = ? AND reaction_type = ?", userID, confessionID, reactionType).
		Delete(&model.Reaction{})
	return result.RowsAffected, result.Error
}

func (r *ConfessionRepository) CreateVisibilityPurchase(ctx context.Context, tx *gorm.DB, p *model.VisibilityPurchase) error {
	return tx.WithContext(ctx).Create(p).Error
}
