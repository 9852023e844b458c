package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-tables/models"
	"github.com/yeremiapane/restaurant-tables/utils"
)

type transitionEdge struct {
	From models.TableStatus
	To   models.TableStatus
}

// tableTransitions is the complete set of permitted status changes.
var tableTransitions = []transitionEdge{
	{models.TableStatusAvailable, models.TableStatusOccupied},
	{models.TableStatusAvailable, models.TableStatusReserved},
	{models.TableStatusAvailable, models.TableStatusCleaning},
	{models.TableStatusAvailable, models.TableStatusOutOfOrder},

	{models.TableStatusOccupied, models.TableStatusAvailable},
	{models.TableStatusOccupied, models.TableStatusCleaning},

	{models.TableStatusReserved, models.TableStatusOccupied},
	{models.TableStatusReserved, models.TableStatusAvailable},
	{models.TableStatusReserved, models.TableStatusCleaning},

	{models.TableStatusCleaning, models.TableStatusAvailable},

	{models.TableStatusOutOfOrder, models.TableStatusAvailable},
	{models.TableStatusOutOfOrder, models.TableStatusCleaning},
}

var transitionIndex = func() map[transitionEdge]struct{} {
	idx := make(map[transitionEdge]struct{}, len(tableTransitions))
	for _, e := range tableTransitions {
		idx[e] = struct{}{}
	}
	return idx
}()

func CanTransition(from, to models.TableStatus) bool {
	_, ok := transitionIndex[transitionEdge{From: from, To: to}]
	return ok
}

// AllowedTargets lists the statuses reachable from `from`, in edge order.
func AllowedTargets(from models.TableStatus) []models.TableStatus {
	targets := []models.TableStatus{}
	for _, e := range tableTransitions {
		if e.From == from {
			targets = append(targets, e.To)
		}
	}
	return targets
}

// TransitionContext carries the optional data a target status may use.
type TransitionContext struct {
	GuestCount    *int
	CustomerName  *string
	CustomerPhone *string
	ReservedFrom  *time.Time
	ReservedUntil *time.Time
	PartySize     *int
	CleanedBy     *string
	UsageType     string
	Notes         *string
}

type TransitionOutcome struct {
	From          models.TableStatus        `json:"from"`
	To            models.TableStatus        `json:"to"`
	OpenedSession *models.TableUsageHistory `json:"opened_session,omitempty"`
	ClosedSession *models.TableUsageHistory `json:"closed_session,omitempty"`
}

type TableStateMachine struct {
	ledger *UsageLedger
}

func NewTableStateMachine(ledger *UsageLedger) *TableStateMachine {
	return &TableStateMachine{ledger: ledger}
}

// Apply validates from -> to for table, runs the ledger and cleaning-log side
// effects on tx and updates the table's metadata in memory. Persisting the
// table row is left to the caller so it can be guarded by a compare-and-swap.
func (m *TableStateMachine) Apply(tx *gorm.DB, table *models.Table, to models.TableStatus, tc TransitionContext, now time.Time) (*TransitionOutcome, error) {
	from := table.Status
	if !to.Valid() {
		return nil, newValidationError("status", "unknown status %q", to)
	}
	if !CanTransition(from, to) {
		return nil, &TransitionError{From: from, To: to}
	}
	if err := validateTransitionContext(table, to, tc); err != nil {
		return nil, err
	}

	outcome := &TransitionOutcome{From: from, To: to}

	if from == models.TableStatusOccupied {
		closed, err := m.ledger.CloseSession(tx, table.ID, now)
		switch {
		case errors.Is(err, ErrSessionNotFound):
			utils.ErrorLogger.WithFields(logrus.Fields{
				"table_id": table.ID,
				"to":       to,
			}).Warn("table left occupied without an open usage session")
		case err != nil:
			return nil, err
		default:
			outcome.ClosedSession = closed
		}
	}

	switch to {
	case models.TableStatusOccupied:
		opened, err := m.seat(tx, table, tc, now)
		if err != nil {
			return nil, err
		}
		outcome.OpenedSession = opened

	case models.TableStatusReserved:
		table.ClearOccupancy()
		table.ClearCleaning()
		table.ReservedByName = tc.CustomerName
		table.ReservedByPhone = tc.CustomerPhone
		table.ReservedFrom = tc.ReservedFrom
		table.ReservedUntil = tc.ReservedUntil
		table.ReservedPartySize = tc.PartySize
		if tc.Notes != nil {
			table.Notes = tc.Notes
		}

	case models.TableStatusCleaning:
		table.ClearOccupancy()
		table.ClearReservation()
		started := now
		table.CleaningStartedAt = &started
		table.CleanedBy = tc.CleanedBy
		log := models.CleaningLog{
			TableID:   table.ID,
			CleanedBy: tc.CleanedBy,
			Status:    models.CleaningStatusInProgress,
			StartedAt: now,
		}
		if err := tx.Create(&log).Error; err != nil {
			return nil, fmt.Errorf("m.createCleaningLog -> %w", err)
		}

	case models.TableStatusAvailable:
		if from == models.TableStatusCleaning {
			if err := m.finishCleaning(tx, table, tc, now); err != nil {
				return nil, err
			}
		}
		table.ClearOccupancy()
		table.ClearReservation()
		table.ClearCleaning()

	case models.TableStatusOutOfOrder:
		table.ClearOccupancy()
		table.ClearReservation()
		table.ClearCleaning()
		if tc.Notes != nil {
			table.Notes = tc.Notes
		}
	}

	table.Status = to
	return outcome, nil
}

func (m *TableStateMachine) seat(tx *gorm.DB, table *models.Table, tc TransitionContext, now time.Time) (*models.TableUsageHistory, error) {
	snap := SessionSnapshot{
		CustomerName:  tc.CustomerName,
		CustomerPhone: tc.CustomerPhone,
		UsageType:     strings.ToLower(tc.UsageType),
		Notes:         tc.Notes,
	}
	if table.Status == models.TableStatusReserved {
		if snap.CustomerName == nil {
			snap.CustomerName = table.ReservedByName
		}
		if snap.CustomerPhone == nil {
			snap.CustomerPhone = table.ReservedByPhone
		}
		if snap.UsageType == "" {
			snap.UsageType = models.UsageTypeReservation
		}
	}
	if snap.UsageType == "" {
		snap.UsageType = models.UsageTypeWalkIn
	}

	switch {
	case tc.GuestCount != nil:
		snap.GuestCount = *tc.GuestCount
	case table.Status == models.TableStatusReserved && table.ReservedPartySize != nil:
		snap.GuestCount = *table.ReservedPartySize
	}

	opened, err := m.ledger.OpenSession(tx, table.ID, snap, now)
	if err != nil {
		return nil, err
	}

	table.ClearReservation()
	table.ClearCleaning()
	since := now
	guests := snap.GuestCount
	table.OccupiedSince = &since
	table.CurrentGuests = &guests
	table.CustomerName = snap.CustomerName
	table.CustomerPhone = snap.CustomerPhone
	return opened, nil
}

func (m *TableStateMachine) finishCleaning(tx *gorm.DB, table *models.Table, tc TransitionContext, now time.Time) error {
	cleanedBy := table.CleanedBy
	if tc.CleanedBy != nil {
		cleanedBy = tc.CleanedBy
	}

	updates := map[string]any{
		"status":      models.CleaningStatusDone,
		"finished_at": now,
		"updated_at":  now,
	}
	if cleanedBy != nil {
		updates["cleaned_by"] = *cleanedBy
	}
	if err := tx.Model(&models.CleaningLog{}).
		Where("table_id = ? AND status = ?", table.ID, models.CleaningStatusInProgress).
		Updates(updates).Error; err != nil {
		return fmt.Errorf("m.finishCleaningLog -> %w", err)
	}

	cleanedAt := now
	table.LastCleanedAt = &cleanedAt
	table.LastCleanedBy = cleanedBy
	return nil
}

func validateTransitionContext(table *models.Table, to models.TableStatus, tc TransitionContext) error {
	// guest_count only matters when seating, party_size only when reserving
	if to == models.TableStatusOccupied && tc.GuestCount != nil && (*tc.GuestCount < 1 || *tc.GuestCount > table.Capacity) {
		return newValidationError("guest_count", "must be between 1 and %d", table.Capacity)
	}
	if to == models.TableStatusReserved && tc.PartySize != nil && (*tc.PartySize < 1 || *tc.PartySize > table.Capacity) {
		return newValidationError("party_size", "must be between 1 and %d", table.Capacity)
	}
	if tc.ReservedFrom != nil && tc.ReservedUntil != nil && !tc.ReservedUntil.After(*tc.ReservedFrom) {
		return newValidationError("reserved_until", "must be after reserved_from")
	}
	if tc.UsageType != "" {
		if to != models.TableStatusOccupied {
			return newValidationError("usage_type", "only applies when seating a table")
		}
		switch strings.ToLower(tc.UsageType) {
		case models.UsageTypeWalkIn, models.UsageTypeReservation:
		default:
			return newValidationError("usage_type", "must be %s or %s", models.UsageTypeWalkIn, models.UsageTypeReservation)
		}
	}
	return nil
}
