package models

import (
	"strings"
	"time"
)

type TableStatus string

const (
	TableStatusAvailable  TableStatus = "available"
	TableStatusOccupied   TableStatus = "occupied"
	TableStatusReserved   TableStatus = "reserved"
	TableStatusCleaning   TableStatus = "cleaning"
	TableStatusOutOfOrder TableStatus = "out_of_order"
)

// AllTableStatuses is ordered the way dashboards list them.
var AllTableStatuses = []TableStatus{
	TableStatusAvailable,
	TableStatusOccupied,
	TableStatusReserved,
	TableStatusCleaning,
	TableStatusOutOfOrder,
}

func (s TableStatus) Valid() bool {
	for _, st := range AllTableStatuses {
		if s == st {
			return true
		}
	}
	return false
}

type Table struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	TableNumber string `gorm:"type:varchar(50);not null" json:"table_number"`
	// NumberKey is the upper-cased TableNumber; its unique index is what keeps
	// numbers unique (case-insensitively) when creates race each other.
	NumberKey           string      `gorm:"type:varchar(50);not null;uniqueIndex:uni_tables_number_key" json:"-"`
	Capacity            int         `gorm:"not null" json:"capacity"`
	Area                string      `gorm:"type:varchar(50);not null;index" json:"area"`
	Status              TableStatus `gorm:"type:varchar(20);not null;default:'available';index" json:"status"`
	LocationDescription *string     `gorm:"type:varchar(255)" json:"location_description,omitempty"`
	Notes               *string     `gorm:"type:text" json:"notes,omitempty"`
	QRReference         *string     `gorm:"type:varchar(255)" json:"qr_reference,omitempty"`

	// occupancy
	CurrentGuests *int       `json:"current_guests,omitempty"`
	OccupiedSince *time.Time `json:"occupied_since,omitempty"`
	CustomerName  *string    `gorm:"type:varchar(100)" json:"customer_name,omitempty"`
	CustomerPhone *string    `gorm:"type:varchar(30)" json:"customer_phone,omitempty"`

	// reservation
	ReservedByName    *string    `gorm:"type:varchar(100)" json:"reserved_by_name,omitempty"`
	ReservedByPhone   *string    `gorm:"type:varchar(30)" json:"reserved_by_phone,omitempty"`
	ReservedFrom      *time.Time `json:"reserved_from,omitempty"`
	ReservedUntil     *time.Time `json:"reserved_until,omitempty"`
	ReservedPartySize *int       `json:"reserved_party_size,omitempty"`

	// cleaning
	CleaningStartedAt *time.Time `json:"cleaning_started_at,omitempty"`
	CleanedBy         *string    `gorm:"type:varchar(100)" json:"cleaned_by,omitempty"`
	LastCleanedAt     *time.Time `json:"last_cleaned_at,omitempty"`
	LastCleanedBy     *string    `gorm:"type:varchar(100)" json:"last_cleaned_by,omitempty"`

	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// NormalizeNumberKey is the canonical form used for uniqueness checks.
func NormalizeNumberKey(number string) string {
	return strings.ToUpper(strings.TrimSpace(number))
}

// SetNumber keeps TableNumber and NumberKey in sync.
func (t *Table) SetNumber(number string) {
	t.TableNumber = strings.TrimSpace(number)
	t.NumberKey = NormalizeNumberKey(number)
}

// ClearOccupancy resets everything tracked while the table is seated.
func (t *Table) ClearOccupancy() {
	t.CurrentGuests = nil
	t.OccupiedSince = nil
	t.CustomerName = nil
	t.CustomerPhone = nil
}

func (t *Table) ClearReservation() {
	t.ReservedByName = nil
	t.ReservedByPhone = nil
	t.ReservedFrom = nil
	t.ReservedUntil = nil
	t.ReservedPartySize = nil
}

func (t *Table) ClearCleaning() {
	t.CleaningStartedAt = nil
	t.CleanedBy = nil
}
