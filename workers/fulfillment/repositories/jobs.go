package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"packchicken-service/workers/fulfillment/models"
	"strings"
	"time"

	"gorm.io/gorm"
)

// JobRepository is the persistent FIFO job queue.
//
// It is built for a single worker: ClaimNext does not mark the returned row,
// so two concurrent callers may be handed the same job.
type JobRepository struct {
	db  *gorm.DB
	now func() time.Time
}

func NewJobRepository(db *gorm.DB) *JobRepository {
	return &JobRepository{db: db, now: time.Now}
}

// Migrate creates or updates every table the service owns.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.Job{}, &models.Shipment{}, &models.ProcessedEmail{})
}

func epoch(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Second)
}

// Enqueue stores doc as a new pending job and returns its id. There is no
// deduplication here; callers decide.
func (r *JobRepository) Enqueue(ctx context.Context, doc models.JobDocument) (uint, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return 0, fmt.Errorf("encode job document: %w", err)
	}

	ts := epoch(r.now())
	job := models.Job{
		OrderID:   doc.ID,
		Source:    doc.Source,
		Status:    models.JobPending,
		Payload:   string(payload),
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := r.db.WithContext(ctx).Create(&job).Error; err != nil {
		return 0, fmt.Errorf("insert job for order %s: %w", doc.ID, err)
	}
	return job.ID, nil
}

// ClaimNext returns the pending job with the lowest id, or nil when the
// queue is empty.
func (r *JobRepository) ClaimNext(ctx context.Context) (*models.Job, error) {
	var job models.Job
	err := r.db.WithContext(ctx).
		Where("status = ?", models.JobPending).
		Order("id ASC").
		First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("claim next job: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) Get(ctx context.Context, id uint) (*models.Job, error) {
	var job models.Job
	if err := r.db.WithContext(ctx).First(&job, id).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// SetStatus overwrites the status unconditionally.
func (r *JobRepository) SetStatus(ctx context.Context, id uint, status models.JobStatus) error {
	return r.update(ctx, id, map[string]any{"status": status})
}

func (r *JobRepository) MarkDone(ctx context.Context, id uint, trackingNumber, labelPath string, warnings []string) error {
	return r.update(ctx, id, map[string]any{
		"status":          models.JobDone,
		"tracking_number": trackingNumber,
		"label_path":      labelPath,
		"warnings":        strings.Join(warnings, "; "),
		"last_error":      "",
	})
}

func (r *JobRepository) MarkFailed(ctx context.Context, id uint, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return r.update(ctx, id, map[string]any{
		"status":     models.JobFailed,
		"last_error": msg,
	})
}

func (r *JobRepository) update(ctx context.Context, id uint, fields map[string]any) error {
	fields["updated_at"] = epoch(r.now())
	err := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		return fmt.Errorf("update job %d: %w", id, err)
	}
	return nil
}

// Stats counts jobs per status. Statuses without rows are reported as 0.
func (r *JobRepository) Stats(ctx context.Context) (map[models.JobStatus]int64, error) {
	var rows []struct {
		Status models.JobStatus
		Count  int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}

	stats := map[models.JobStatus]int64{
		models.JobPending: 0,
		models.JobDone:    0,
		models.JobFailed:  0,
	}
	for _, row := range rows {
		stats[row.Status] = row.Count
	}
	return stats, nil
}

// Recent returns the newest jobs first.
func (r *JobRepository) Recent(ctx context.Context, limit int) ([]models.Job, error) {
	var jobs []models.Job
	err := r.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&jobs).Error
	return jobs, err
}

func (r *JobRepository) HasPending(ctx context.Context, orderID string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("order_id = ? AND status = ?", orderID, models.JobPending).
		Count(&count).Error
	return count > 0, err
}

// ReplaceLabelPaths points jobs at a merged label file.
func (r *JobRepository) ReplaceLabelPaths(ctx context.Context, old []string, merged string) error {
	if len(old) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Job{}).
		Where("label_path IN ?", old).
		Update("label_path", merged).Error
}
