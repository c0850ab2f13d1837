package repository

import (
	"context"
	"errors"
	"time"

	"creditengine/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrRateWindowNotFound = errors.New("限流窗口不存在")

type RateWindowRepository struct {
	db *gorm.DB
}

func NewRateWindowRepository(db *gorm.DB) *RateWindowRepository {
	return &RateWindowRepository{db: db}
}

// Ensure 窗口行不存在时插入一个空窗口，并发插入只会成功一个
func (r *RateWindowRepository) Ensure(ctx context.Context, tx *gorm.DB, userID int64, actionClass string, now time.Time) error {
	return tx.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "action_class"}},
			DoNothing: true,
		}).
		Create(&model.RateWindow{
			UserID:      userID,
			ActionClass: actionClass,
			Count:       0,
			WindowStart: now,
		}).Error
}

func (r *RateWindowRepository) GetForUpdate(ctx context.Context, tx *gorm.DB, userID int64, actionClass string) (*model.RateWindow, error) {
	var w model.RateWindow
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND action_class = ?", userID, actionClass).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRateWindowNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *RateWindowRepository) Get(ctx context.Context, userID int64, actionClass string) (*model.RateWindow, error) {
	var w model.RateWindow
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND action_class = ?", userID, actionClass).
		First(&w).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRateWindowNotFound
		}
		return nil, err
	}
	return &w, nil
}

func (r *RateWindowRepository) Save(ctx context.Context, tx *gorm.DB, w *model.RateWindow) error {
	return tx.WithContext(ctx).
		Model(&model.RateWindow{}).
		Where("id = ?", w.ID).
		Updates(map[string]interface{}{
			"count":        w.Count,
			"window_start": w.WindowStart,
		}).Error
}

// DeleteStale 删除 window_start 早于 before 的窗口
func (r *RateWindowRepository) DeleteStale(ctx context.Context, before time.Time, limit int) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("window_start < ?", before).
		Limit(limit).
		Delete(&model.RateWindow{})
	return result.RowsAffected, result.Error
}
