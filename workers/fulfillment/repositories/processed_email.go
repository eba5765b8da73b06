package repositories

import (
	"context"
	"packchicken-service/workers/fulfillment/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type ProcessedEmailRepository struct {
	db *gorm.DB
}

func NewProcessedEmailRepository(db *gorm.DB) *ProcessedEmailRepository {
	return &ProcessedEmailRepository{db: db}
}

func (r *ProcessedEmailRepository) Seen(ctx context.Context, messageID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProcessedEmail{}).
		Where("message_id = ?", messageID).
		Count(&count).Error
	return count > 0, err
}

// Record upserts by message id so a retried message keeps its latest outcome.
func (r *ProcessedEmailRepository) Record(ctx context.Context, email *models.ProcessedEmail) error {
	if len(email.LastError) > 500 {
		email.LastError = email.LastError[:500]
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "message_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "last_error", "subject", "from_addr"}),
	}).Create(email).Error
}
