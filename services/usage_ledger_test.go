package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yeremiapane/restaurant-tables/models"
)

// seatFor seats the table, lets the clock run and frees it again.
func (e *testEngine) seatFor(t *testing.T, tableID uint, guests int, d time.Duration) {
	t.Helper()
	ctx := context.Background()
	_, err := e.registry.ChangeStatus(ctx, tableID, models.TableStatusOccupied, TransitionContext{GuestCount: intPtr(guests)})
	require.NoError(t, err)
	e.clock.Advance(d)
	_, err = e.registry.ChangeStatus(ctx, tableID, models.TableStatusAvailable, TransitionContext{})
	require.NoError(t, err)
}

func TestNormalizePage(t *testing.T) {
	tests := []struct {
		page, perPage         int
		wantPage, wantPerPage int
	}{
		{0, 0, 1, DefaultPerPage},
		{-3, 10, 1, 10},
		{4, 500, 4, MaxPerPage},
		{2, 50, 2, 50},
	}
	for _, tt := range tests {
		page, perPage := NormalizePage(tt.page, tt.perPage)
		assert.Equal(t, tt.wantPage, page)
		assert.Equal(t, tt.wantPerPage, perPage)
	}
}

func TestAccumulate(t *testing.T) {
	e := newTestEngine(t, RegistryConfig{})
	ctx := context.Background()
	table := e.mustCreate(t, "", 4, "Main")

	_, err := e.ledger.Accumulate(ctx, table.ID, AmountDelta{Order: 1000})
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = e.registry.ChangeStatus(ctx, table.ID, models.TableStatusOccupied, TransitionContext{GuestCount: intPtr(2)})
	require.NoError(t, err)

	session, err := e.ledger.Accumulate(ctx, table.ID, AmountDelta{Order: 150000})
	require.NoError(t, err)
	assert.InDelta(t, 150000, session.TotalOrderAmount, 0.001)
	assert.Zero(t, session.TotalPaymentAmount)

	_, err = e.ledger.Accumulate(ctx, table.ID, AmountDelta{Order: -200000})
	assert.ErrorIs(t, err, ErrValidation)

	e.clock.Advance(time.Hour)
	_, err = e.registry.ChangeStatus(ctx, table.ID, models.TableStatusAvailable, TransitionContext{})
	require.NoError(t, err)

	// payment usually lands after the guests have left
	session, err = e.ledger.Accumulate(ctx, table.ID, AmountDelta{Payment: 150000})
	require.NoError(t, err)
	assert.NotNil(t, session.EndTime)
	assert.InDelta(t, 150000, session.TotalOrderAmount, 0.001)
	assert.InDelta(t, 150000, session.TotalPaymentAmount, 0.001)
}

func TestSummary(t *testing.T) {
	e := newTestEngine(t, RegistryConfig{})
	ctx := context.Background()
	table := e.mustCreate(t, "", 4, "Main")

	e.seatFor(t, table.ID, 2, 45*time.Minute)
	_, err := e.ledger.Accumulate(ctx, table.ID, AmountDelta{Order: 200000, Payment: 200000})
	require.NoError(t, err)

	e.clock.Advance(time.Hour)
	e.seatFor(t, table.ID, 4, 15*time.Minute)
	_, err = e.ledger.Accumulate(ctx, table.ID, AmountDelta{Order: 50000.5})
	require.NoError(t, err)

	summary, err := e.ledger.Summary(ctx, table.ID, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 2, summary.Sessions)
	assert.EqualValues(t, 2, summary.ClosedSessions)
	assert.EqualValues(t, 60, summary.TotalMinutes)
	assert.InDelta(t, 30, summary.AverageMinutes, 0.001)
	assert.Equal(t, "Rp 250.000,50", summary.TotalOrderFormatted)
	assert.Equal(t, "Rp 200.000", summary.TotalPaymentFormatted)

	from := e.clock.Now().Add(-30 * time.Minute)
	summary, err = e.ledger.Summary(ctx, table.ID, &from, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.Sessions)
	assert.EqualValues(t, 15, summary.TotalMinutes)

	to := from.Add(-time.Hour)
	_, err = e.ledger.Summary(ctx, table.ID, &from, &to)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSummary_OpenSessionCountsButHasNoDuration(t *testing.T) {
	e := newTestEngine(t, RegistryConfig{})
	ctx := context.Background()
	table := e.mustCreate(t, "", 4, "Main")

	_, err := e.registry.ChangeStatus(ctx, table.ID, models.TableStatusOccupied, TransitionContext{GuestCount: intPtr(2)})
	require.NoError(t, err)

	summary, err := e.ledger.Summary(ctx, table.ID, nil, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 1, summary.Sessions)
	assert.Zero(t, summary.ClosedSessions)
	assert.Zero(t, summary.AverageMinutes)
	assert.Equal(t, "Rp 0", summary.TotalOrderFormatted)
}

func TestHistory(t *testing.T) {
	e := newTestEngine(t, RegistryConfig{})
	ctx := context.Background()
	table := e.mustCreate(t, "", 6, "Main")
	other := e.mustCreate(t, "", 2, "Main")

	e.seatFor(t, table.ID, 2, 20*time.Minute)
	e.seatFor(t, other.ID, 2, 20*time.Minute)
	e.seatFor(t, table.ID, 3, 20*time.Minute)
	e.seatFor(t, table.ID, 5, 20*time.Minute)

	sessions, total, err := e.ledger.History(ctx, table.ID, HistoryFilter{})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, sessions, 3)
	assert.Equal(t, 5, sessions[0].GuestCount)
	assert.Equal(t, 3, sessions[1].GuestCount)
	assert.Equal(t, 2, sessions[2].GuestCount)

	sessions, total, err = e.ledger.History(ctx, table.ID, HistoryFilter{Page: 2, PerPage: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, sessions, 1)
	assert.Equal(t, 2, sessions[0].GuestCount)

	from := e.clock.Now().Add(-50 * time.Minute)
	_, total, err = e.ledger.History(ctx, table.ID, HistoryFilter{From: &from})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)

	to := from.Add(-time.Minute)
	_, _, err = e.ledger.History(ctx, table.ID, HistoryFilter{From: &from, To: &to})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCloseSession_WithoutOpenSession(t *testing.T) {
	e := newTestEngine(t, RegistryConfig{})
	table := e.mustCreate(t, "", 4, "Main")

	_, err := e.ledger.CloseSession(e.db, table.ID, e.clock.Now())
	assert.ErrorIs(t, err, ErrSessionNotFound)
}
