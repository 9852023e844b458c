package models

import "time"

const (
	UsageTypeWalkIn      = "walk_in"
	UsageTypeReservation = "reservation"
)

// TableUsageHistory is one occupancy session of a table. Rows are never
// deleted; a closed session is superseded by the next one.
type TableUsageHistory struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	TableID       uint    `gorm:"not null;index:idx_usage_table_start,priority:1" json:"table_id"`
	CustomerName  *string `gorm:"type:varchar(100)" json:"customer_name,omitempty"`
	CustomerPhone *string `gorm:"type:varchar(30)" json:"customer_phone,omitempty"`
	GuestCount    int     `gorm:"not null;default:0" json:"guest_count"`
	UsageType     string  `gorm:"type:varchar(20);not null;default:'walk_in'" json:"usage_type"`

	StartTime       time.Time  `gorm:"not null;index:idx_usage_table_start,priority:2" json:"start_time"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	DurationMinutes *int       `json:"duration_minutes,omitempty"`

	TotalOrderAmount   float64 `gorm:"type:decimal(12,2);not null;default:0.00" json:"total_order_amount"`
	TotalPaymentAmount float64 `gorm:"type:decimal(12,2);not null;default:0.00" json:"total_payment_amount"`
	Notes              *string `gorm:"type:text" json:"notes,omitempty"`

	// OpenTableID mirrors TableID while the session is open and is NULL once
	// closed, so the unique index allows at most one open session per table.
	OpenTableID *uint `gorm:"uniqueIndex:uni_usage_open_table" json:"-"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (h *TableUsageHistory) IsOpen() bool {
	return h.EndTime == nil
}
