package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeremiapane/restaurant-tables/models"
	"github.com/yeremiapane/restaurant-tables/utils"
)

const (
	DefaultPerPage = 25
	MaxPerPage     = 200
)

// SessionSnapshot is the occupant data copied into a new session.
type SessionSnapshot struct {
	CustomerName  *string
	CustomerPhone *string
	GuestCount    int
	UsageType     string
	Notes         *string
}

type HistoryFilter struct {
	From    *time.Time
	To      *time.Time
	Page    int
	PerPage int
}

func (f *HistoryFilter) normalize() {
	f.Page, f.PerPage = NormalizePage(f.Page, f.PerPage)
}

// NormalizePage applies the default page size and clamps it to MaxPerPage.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}

type AmountDelta struct {
	Order   float64 `json:"order_delta"`
	Payment float64 `json:"payment_delta"`
}

type UsageSummary struct {
	TableID               uint    `json:"table_id"`
	Sessions              int64   `json:"sessions"`
	ClosedSessions        int64   `json:"closed_sessions"`
	TotalMinutes          int64   `json:"total_minutes"`
	AverageMinutes        float64 `json:"average_minutes"`
	TotalOrderAmount      float64 `json:"total_order_amount"`
	TotalPaymentAmount    float64 `json:"total_payment_amount"`
	TotalOrderFormatted   string  `json:"total_order_formatted"`
	TotalPaymentFormatted string  `json:"total_payment_formatted"`
}

// UsageLedger records occupancy sessions. OpenSession and CloseSession run
// inside the caller's transaction so they commit or roll back together with
// the status change that caused them.
type UsageLedger struct {
	db *gorm.DB
}

func NewUsageLedger(db *gorm.DB) *UsageLedger {
	return &UsageLedger{db: db}
}

func (l *UsageLedger) OpenSession(tx *gorm.DB, tableID uint, snap SessionSnapshot, now time.Time) (*models.TableUsageHistory, error) {
	var open int64
	if err := tx.Model(&models.TableUsageHistory{}).
		Where("table_id = ? AND end_time IS NULL", tableID).
		Count(&open).Error; err != nil {
		return nil, fmt.Errorf("l.countOpen -> %w", err)
	}
	if open > 0 {
		utils.ErrorLogger.WithField("table_id", tableID).Error("refusing to open a second usage session")
		return nil, ErrSessionConflict
	}

	usageType := snap.UsageType
	if usageType == "" {
		usageType = models.UsageTypeWalkIn
	}
	openID := tableID
	session := models.TableUsageHistory{
		TableID:       tableID,
		CustomerName:  snap.CustomerName,
		CustomerPhone: snap.CustomerPhone,
		GuestCount:    snap.GuestCount,
		UsageType:     usageType,
		StartTime:     now,
		Notes:         snap.Notes,
		OpenTableID:   &openID,
	}
	if err := tx.Create(&session).Error; err != nil {
		if isUniqueViolation(err) {
			utils.ErrorLogger.WithField("table_id", tableID).Error("open usage session already exists")
			return nil, ErrSessionConflict
		}
		return nil, fmt.Errorf("l.createSession -> %w", err)
	}

	usageSessions.WithLabelValues("opened").Inc()
	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id":   tableID,
		"session_id": session.ID,
		"usage_type": usageType,
	}).Info("usage session opened")
	return &session, nil
}

// CloseSession stamps the open session's end time and whole elapsed minutes.
func (l *UsageLedger) CloseSession(tx *gorm.DB, tableID uint, now time.Time) (*models.TableUsageHistory, error) {
	var session models.TableUsageHistory
	err := tx.Where("table_id = ? AND end_time IS NULL", tableID).
		Order("start_time DESC").Order("id DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("l.findOpen -> %w", err)
	}

	minutes := int(now.Sub(session.StartTime) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	if err := tx.Model(&models.TableUsageHistory{}).
		Where("id = ?", session.ID).
		Updates(map[string]any{
			"end_time":         now,
			"duration_minutes": minutes,
			"open_table_id":    nil,
			"updated_at":       now,
		}).Error; err != nil {
		return nil, fmt.Errorf("l.closeSession -> %w", err)
	}

	session.EndTime = &now
	session.DurationMinutes = &minutes
	session.OpenTableID = nil
	session.UpdatedAt = now

	usageSessions.WithLabelValues("closed").Inc()
	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id":         tableID,
		"session_id":       session.ID,
		"duration_minutes": minutes,
	}).Info("usage session closed")
	return &session, nil
}

// OpenSessionFor returns the table's open session or ErrSessionNotFound.
func (l *UsageLedger) OpenSessionFor(ctx context.Context, tableID uint) (*models.TableUsageHistory, error) {
	var session models.TableUsageHistory
	err := l.db.WithContext(ctx).
		Where("table_id = ? AND end_time IS NULL", tableID).
		Order("start_time DESC").
		First(&session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("l.db.First -> %w", err)
	}
	return &session, nil
}

// History lists a table's sessions newest first.
func (l *UsageLedger) History(ctx context.Context, tableID uint, filter HistoryFilter) ([]models.TableUsageHistory, int64, error) {
	filter.normalize()
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, 0, newValidationError("to", "must not be before from")
	}

	query := l.db.WithContext(ctx).Model(&models.TableUsageHistory{}).Where("table_id = ?", tableID)
	if filter.From != nil {
		query = query.Where("start_time >= ?", *filter.From)
	}
	if filter.To != nil {
		query = query.Where("start_time <= ?", *filter.To)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("l.countHistory -> %w", err)
	}

	var sessions []models.TableUsageHistory
	if err := query.
		Order("start_time DESC").Order("id DESC").
		Limit(filter.PerPage).
		Offset((filter.Page - 1) * filter.PerPage).
		Find(&sessions).Error; err != nil {
		return nil, 0, fmt.Errorf("l.findHistory -> %w", err)
	}
	return sessions, total, nil
}

// Accumulate adds order/payment amounts to the open session, or to the most
// recently closed one when the table is no longer seated.
func (l *UsageLedger) Accumulate(ctx context.Context, tableID uint, delta AmountDelta) (*models.TableUsageHistory, error) {
	if math.IsNaN(delta.Order) || math.IsInf(delta.Order, 0) {
		return nil, newValidationError("order_delta", "must be a finite number")
	}
	if math.IsNaN(delta.Payment) || math.IsInf(delta.Payment, 0) {
		return nil, newValidationError("payment_delta", "must be a finite number")
	}

	var session models.TableUsageHistory
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := l.accumulationTarget(tx, tableID, &session); err != nil {
			return err
		}

		res := tx.Model(&models.TableUsageHistory{}).
			Where("id = ?", session.ID).
			Where("total_order_amount + ? >= 0 AND total_payment_amount + ? >= 0", delta.Order, delta.Payment).
			Updates(map[string]any{
				"total_order_amount":   gorm.Expr("total_order_amount + ?", delta.Order),
				"total_payment_amount": gorm.Expr("total_payment_amount + ?", delta.Payment),
			})
		if res.Error != nil {
			return fmt.Errorf("l.accumulate -> %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return newValidationError("amount", "resulting totals must not be negative")
		}

		return tx.First(&session, session.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (l *UsageLedger) accumulationTarget(tx *gorm.DB, tableID uint, session *models.TableUsageHistory) error {
	locked := tx.Clauses(clause.Locking{Strength: "UPDATE"})

	err := locked.Where("table_id = ? AND end_time IS NULL", tableID).
		Order("start_time DESC").
		First(session).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("l.findOpen -> %w", err)
	}

	err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("table_id = ?", tableID).
		Order("end_time DESC").Order("id DESC").
		First(session).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("l.findLatest -> %w", err)
	}
	return nil
}

func (l *UsageLedger) Summary(ctx context.Context, tableID uint, from, to *time.Time) (UsageSummary, error) {
	summary := UsageSummary{TableID: tableID}
	if from != nil && to != nil && to.Before(*from) {
		return summary, newValidationError("to", "must not be before from")
	}

	query := l.db.WithContext(ctx).Model(&models.TableUsageHistory{}).Where("table_id = ?", tableID)
	if from != nil {
		query = query.Where("start_time >= ?", *from)
	}
	if to != nil {
		query = query.Where("start_time <= ?", *to)
	}

	var agg struct {
		Sessions       int64
		ClosedSessions int64
		TotalMinutes   int64
		TotalOrder     float64
		TotalPayment   float64
	}
	if err := query.Select(
		"COUNT(*) AS sessions, " +
			"COUNT(end_time) AS closed_sessions, " +
			"COALESCE(SUM(duration_minutes), 0) AS total_minutes, " +
			"COALESCE(SUM(total_order_amount), 0) AS total_order, " +
			"COALESCE(SUM(total_payment_amount), 0) AS total_payment",
	).Scan(&agg).Error; err != nil {
		return summary, fmt.Errorf("l.summary -> %w", err)
	}

	summary.Sessions = agg.Sessions
	summary.ClosedSessions = agg.ClosedSessions
	summary.TotalMinutes = agg.TotalMinutes
	if agg.ClosedSessions > 0 {
		summary.AverageMinutes = math.Round(float64(agg.TotalMinutes)/float64(agg.ClosedSessions)*10) / 10
	}
	summary.TotalOrderAmount = agg.TotalOrder
	summary.TotalPaymentAmount = agg.TotalPayment
	summary.TotalOrderFormatted = utils.FormatCurrencyIDR(agg.TotalOrder)
	summary.TotalPaymentFormatted = utils.FormatCurrencyIDR(agg.TotalPayment)
	return summary, nil
}
