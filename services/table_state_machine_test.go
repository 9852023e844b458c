package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-tables/models"
)

func TestCanTransition_AllPairs(t *testing.T) {
	allowed := map[models.TableStatus][]models.TableStatus{
		models.TableStatusAvailable:  {models.TableStatusOccupied, models.TableStatusReserved, models.TableStatusCleaning, models.TableStatusOutOfOrder},
		models.TableStatusOccupied:   {models.TableStatusAvailable, models.TableStatusCleaning},
		models.TableStatusReserved:   {models.TableStatusOccupied, models.TableStatusAvailable, models.TableStatusCleaning},
		models.TableStatusCleaning:   {models.TableStatusAvailable},
		models.TableStatusOutOfOrder: {models.TableStatusAvailable, models.TableStatusCleaning},
	}

	for _, from := range models.AllTableStatuses {
		for _, to := range models.AllTableStatuses {
			want := false
			for _, target := range allowed[from] {
				if target == to {
					want = true
				}
			}
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				assert.Equal(t, want, CanTransition(from, to))
			})
		}
	}
}

func TestAllowedTargets(t *testing.T) {
	assert.Equal(t, []models.TableStatus{models.TableStatusAvailable}, AllowedTargets(models.TableStatusCleaning))
	assert.ElementsMatch(t,
		[]models.TableStatus{models.TableStatusAvailable, models.TableStatusCleaning},
		AllowedTargets(models.TableStatusOccupied))
	assert.Empty(t, AllowedTargets(models.TableStatus("dirty")))
}

func TestApply_RejectsEveryPairOutsideTheGraph(t *testing.T) {
	db := newTestDB(t)
	machine := NewTableStateMachine(NewUsageLedger(db))
	clock := newFakeClock()

	for _, from := range models.AllTableStatuses {
		for _, to := range models.AllTableStatuses {
			if CanTransition(from, to) {
				continue
			}
			table := models.Table{ID: 1, Capacity: 4, Status: from}
			_, err := machine.Apply(db, &table, to, TransitionContext{}, clock.Now())

			var terr *TransitionError
			require.True(t, errors.As(err, &terr), "%s -> %s", from, to)
			assert.Equal(t, from, terr.From)
			assert.Equal(t, to, terr.To)
			assert.Equal(t, from, table.Status, "status must not change on rejection")
		}
	}
}

func TestApply_UnknownStatus(t *testing.T) {
	db := newTestDB(t)
	machine := NewTableStateMachine(NewUsageLedger(db))

	table := models.Table{ID: 1, Capacity: 4, Status: models.TableStatusAvailable}
	_, err := machine.Apply(db, &table, models.TableStatus("dirty"), TransitionContext{}, newFakeClock().Now())
	assert.ErrorIs(t, err, ErrValidation)
}

func TestApply_ValidatesContext(t *testing.T) {
	db := newTestDB(t)
	machine := NewTableStateMachine(NewUsageLedger(db))
	now := newFakeClock().Now()

	tests := []struct {
		name  string
		to    models.TableStatus
		tc    TransitionContext
		field string
	}{
		{name: "too many guests", to: models.TableStatusOccupied, tc: TransitionContext{GuestCount: intPtr(5)}, field: "guest_count"},
		{name: "zero guests", to: models.TableStatusOccupied, tc: TransitionContext{GuestCount: intPtr(0)}, field: "guest_count"},
		{name: "party too large", to: models.TableStatusReserved, tc: TransitionContext{PartySize: intPtr(9)}, field: "party_size"},
		{
			name:  "reservation window reversed",
			to:    models.TableStatusReserved,
			tc:    TransitionContext{ReservedFrom: timePtr(now.Add(2 * time.Hour)), ReservedUntil: timePtr(now)},
			field: "reserved_until",
		},
		{name: "unknown usage type", to: models.TableStatusOccupied, tc: TransitionContext{UsageType: "takeaway"}, field: "usage_type"},
		{name: "usage type outside seating", to: models.TableStatusCleaning, tc: TransitionContext{UsageType: "walk_in"}, field: "usage_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := models.Table{ID: 1, Capacity: 4, Status: models.TableStatusAvailable}
			_, err := machine.Apply(db, &table, tt.to, tt.tc, now)

			var verr *ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tt.field, verr.Field)
			assert.Equal(t, models.TableStatusAvailable, table.Status)
		})
	}
}

func TestApply_IgnoresCountsTheTargetDoesNotUse(t *testing.T) {
	db := newTestDB(t)
	machine := NewTableStateMachine(NewUsageLedger(db))
	now := newFakeClock().Now()

	tests := []struct {
		name string
		to   models.TableStatus
		tc   TransitionContext
	}{
		{name: "guest count when cleaning", to: models.TableStatusCleaning, tc: TransitionContext{GuestCount: intPtr(0)}},
		{name: "party size when cleaning", to: models.TableStatusCleaning, tc: TransitionContext{PartySize: intPtr(40)}},
		{name: "guest count when reserving", to: models.TableStatusReserved, tc: TransitionContext{GuestCount: intPtr(0), PartySize: intPtr(2)}},
		{name: "party size when seating", to: models.TableStatusOccupied, tc: TransitionContext{GuestCount: intPtr(2), PartySize: intPtr(40)}},
		{name: "both when out of order", to: models.TableStatusOutOfOrder, tc: TransitionContext{GuestCount: intPtr(-1), PartySize: intPtr(0)}},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := models.Table{Capacity: 4, Area: "Main", Status: models.TableStatusAvailable}
			table.SetNumber(formatAutoNumber(i + 1))
			require.NoError(t, db.Create(&table).Error)

			_, err := machine.Apply(db, &table, tt.to, tt.tc, now)
			require.NoError(t, err)
			assert.Equal(t, tt.to, table.Status)
		})
	}
}

func TestApply_SeatingFromReservationCarriesGuestData(t *testing.T) {
	db := newTestDB(t)
	machine := NewTableStateMachine(NewUsageLedger(db))
	now := newFakeClock().Now()

	table := models.Table{Capacity: 6, Area: "Main", Status: models.TableStatusAvailable}
	table.SetNumber("T001")
	require.NoError(t, db.Create(&table).Error)

	_, err := machine.Apply(db, &table, models.TableStatusReserved, TransitionContext{
		CustomerName:  strPtr("Sari"),
		CustomerPhone: strPtr("0812"),
		PartySize:     intPtr(4),
	}, now)
	require.NoError(t, err)
	assert.Equal(t, "Sari", *table.ReservedByName)

	out, err := machine.Apply(db, &table, models.TableStatusOccupied, TransitionContext{}, now)
	require.NoError(t, err)
	require.NotNil(t, out.OpenedSession)
	assert.Equal(t, models.UsageTypeReservation, out.OpenedSession.UsageType)
	assert.Equal(t, 4, out.OpenedSession.GuestCount)
	assert.Equal(t, "Sari", *out.OpenedSession.CustomerName)

	assert.Equal(t, models.TableStatusOccupied, table.Status)
	assert.Equal(t, 4, *table.CurrentGuests)
	assert.Nil(t, table.ReservedByName)
	assert.Nil(t, table.ReservedPartySize)
}

func TestApply_CleaningRoundIsLogged(t *testing.T) {
	db := newTestDB(t)
	machine := NewTableStateMachine(NewUsageLedger(db))
	clock := newFakeClock()

	table := models.Table{Capacity: 2, Area: "Terrace", Status: models.TableStatusAvailable}
	table.SetNumber("T001")
	require.NoError(t, db.Create(&table).Error)

	_, err := machine.Apply(db, &table, models.TableStatusCleaning, TransitionContext{CleanedBy: strPtr("Budi")}, clock.Now())
	require.NoError(t, err)
	require.NotNil(t, table.CleaningStartedAt)

	var inProgress models.CleaningLog
	require.NoError(t, db.Where("table_id = ?", table.ID).First(&inProgress).Error)
	assert.Equal(t, models.CleaningStatusInProgress, inProgress.Status)

	clock.Advance(10 * time.Minute)
	_, err = machine.Apply(db, &table, models.TableStatusAvailable, TransitionContext{}, clock.Now())
	require.NoError(t, err)

	var done models.CleaningLog
	require.NoError(t, db.First(&done, inProgress.ID).Error)
	assert.Equal(t, models.CleaningStatusDone, done.Status)
	require.NotNil(t, done.FinishedAt)
	require.NotNil(t, table.LastCleanedBy)
	assert.Equal(t, "Budi", *table.LastCleanedBy)
	assert.Nil(t, table.CleaningStartedAt)
}

func TestApply_SecondOpenSessionIsRejected(t *testing.T) {
	db := newTestDB(t)
	ledger := NewUsageLedger(db)
	now := newFakeClock().Now()

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := ledger.OpenSession(tx, 7, SessionSnapshot{GuestCount: 2}, now)
		require.NoError(t, err)

		_, err = ledger.OpenSession(tx, 7, SessionSnapshot{GuestCount: 3}, now)
		assert.ErrorIs(t, err, ErrSessionConflict)
		return nil
	})
	require.NoError(t, err)

	open, err := ledger.OpenSessionFor(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, 2, open.GuestCount)
}
