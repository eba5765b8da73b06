package models

import (
	"encoding/json"
	"fmt"
)

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

func (s JobStatus) IsFinal() bool {
	return s == JobDone || s == JobFailed
}

// Job is one row of the jobs table. Timestamps are seconds since epoch.
type Job struct {
	ID             uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	OrderID        string    `gorm:"size:100;index" json:"order_id"`
	Source         string    `gorm:"size:20" json:"source"`
	Status         JobStatus `gorm:"size:20;not null;default:pending;index" json:"status"`
	Payload        string    `gorm:"type:text" json:"-"`
	LastError      string    `gorm:"type:text" json:"last_error,omitempty"`
	TrackingNumber string    `gorm:"size:100" json:"tracking_number,omitempty"`
	LabelPath      string    `gorm:"size:256" json:"label_path,omitempty"`
	Warnings       string    `gorm:"type:text" json:"warnings,omitempty"`
	CreatedAt      float64   `gorm:"autoCreateTime:false;not null" json:"created_at"`
	UpdatedAt      float64   `gorm:"autoUpdateTime:false;not null" json:"updated_at"`
}

// JobDocument is what the payload column holds.
type JobDocument struct {
	ID        string         `json:"id"`
	Source    string         `json:"source"`
	Order     Order          `json:"order"`
	EmailMeta map[string]any `json:"email_meta,omitempty"`
}

func (j *Job) Document() (*JobDocument, error) {
	var doc JobDocument
	if err := json.Unmarshal([]byte(j.Payload), &doc); err != nil {
		return nil, fmt.Errorf("decode payload of job %d: %w", j.ID, err)
	}
	return &doc, nil
}
