package models

import (
	"time"
)

const (
	CleaningStatusInProgress = "in_progress"
	CleaningStatusDone       = "done"
)

type CleaningLog struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	TableID    uint       `gorm:"not null;index" json:"table_id"`
	CleanedBy  *string    `gorm:"type:varchar(100)" json:"cleaned_by,omitempty"`
	Status     string     `gorm:"type:varchar(15);not null;default:'in_progress'" json:"status"`
	StartedAt  time.Time  `gorm:"not null" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}
