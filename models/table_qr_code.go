package models

import "time"

type TableQRCode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TableID   uint      `gorm:"not null;index" json:"table_id"`
	Reference string    `gorm:"type:varchar(255);not null" json:"reference"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
}
