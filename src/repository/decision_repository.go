package repository

import (
	"context"
	"errors"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"gextrader/src/database"
	"gextrader/src/model"
)

// DecisionRepository persists collective decisions for the audit trail.
type DecisionRepository struct {
	db *gorm.DB
}

// NewDecisionRepository creates a repository instance using the main
// read/write database.
func NewDecisionRepository() *DecisionRepository {
	return &DecisionRepository{db: database.MainDB}
}

// WithDB allows overriding the underlying *gorm.DB instance. Useful for
// tests or when using a specific session/transaction.
func (r *DecisionRepository) WithDB(db *gorm.DB) *DecisionRepository {
	return &DecisionRepository{db: db}
}

// Create inserts a new decision record. The given record is updated with the
// generated ID.
func (r *DecisionRepository) Create(ctx context.Context, record *model.DecisionRecord) error {
	logger.WithFields(map[string]interface{}{
		"repo":     "DecisionRepository",
		"op":       "Create",
		"symbol":   record.Symbol,
		"decision": record.FinalDecision,
	}).Debug("Persisting decision record")

	err := r.db.WithContext(ctx).Create(record).Error
	if err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "DecisionRepository",
			"op":   "Create",
		}).WithError(err).Error("Failed to persist decision record")
		return err
	}
	return nil
}

// FindByID fetches a single decision by primary ID. Returns (nil, nil) when
// not found.
func (r *DecisionRepository) FindByID(ctx context.Context, id uint) (*model.DecisionRecord, error) {
	var record model.DecisionRecord
	err := r.db.WithContext(ctx).First(&record, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		logger.WithFields(map[string]interface{}{
			"repo": "DecisionRepository",
			"op":   "FindByID",
			"id":   id,
		}).WithError(err).Error("Failed to fetch decision record")
		return nil, err
	}
	return &record, nil
}

// FindLatest returns the most recent decisions for a symbol, newest first.
func (r *DecisionRepository) FindLatest(ctx context.Context, symbol string, limit int) ([]model.DecisionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	var records []model.DecisionRecord
	q := r.db.WithContext(ctx).Order("created_at DESC, id DESC").Limit(limit)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	if err := q.Find(&records).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "DecisionRepository",
			"op":     "FindLatest",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch latest decisions")
		return nil, err
	}
	return records, nil
}

// ExecutedSince counts executed decisions after the cutoff, feeding the
// status endpoint.
func (r *DecisionRepository) ExecutedSince(ctx context.Context, symbol string, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&model.DecisionRecord{}).
		Where("symbol = ? AND executed = ? AND created_at >= ?", symbol, true, since).
		Count(&count).Error
	if err != nil {
		return 0, err
	}
	return count, nil
}
