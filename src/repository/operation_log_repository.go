package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gextrader/src/database"
	"gextrader/src/model"
)

// OperationLogRepository records every order attempt and its terminal state.
type OperationLogRepository struct {
	db *gorm.DB
}

func NewOperationLogRepository() *OperationLogRepository {
	return &OperationLogRepository{db: database.MainDB}
}

func (r *OperationLogRepository) WithDB(db *gorm.DB) *OperationLogRepository {
	return &OperationLogRepository{db: db}
}

func (r *OperationLogRepository) Create(ctx context.Context, log *model.OperationLog) error {
	logger.WithFields(map[string]interface{}{
		"repo":   "OperationLogRepository",
		"op":     "Create",
		"symbol": log.Symbol,
		"kind":   log.Kind,
		"status": log.Status,
	}).Debug("Persisting operation log")

	err := r.db.WithContext(ctx).Create(log).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "OperationLogRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to persist operation log")
		return err
	}
	return nil
}

// FindByClientTag looks an operation up by the UUID it was submitted with.
// Returns (nil, nil) when no attempt carried the tag.
func (r *OperationLogRepository) FindByClientTag(ctx context.Context, tag string) (*model.OperationLog, error) {
	var log model.OperationLog
	err := r.db.WithContext(ctx).Where("client_tag = ?", tag).First(&log).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &log, nil
}

// FindLatest returns recent operations for a symbol, newest first.
func (r *OperationLogRepository) FindLatest(ctx context.Context, symbol string, limit int) ([]model.OperationLog, error) {
	if limit <= 0 {
		limit = 50
	}
	var logs []model.OperationLog
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if err := q.Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
