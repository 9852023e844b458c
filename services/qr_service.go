package services

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-tables/models"
)

// QRProvisioner issues and revokes the ordering reference printed on a table.
// Remove runs inside the delete's transaction so a refused delete keeps the
// references.
type QRProvisioner interface {
	Provision(ctx context.Context, tableID uint, number string) (string, error)
	Remove(ctx context.Context, tx *gorm.DB, tableID uint) error
}

// QRService stores references in table_qr_codes and asks an external
// renderer, via the event publisher, to draw the image.
type QRService struct {
	db      *gorm.DB
	baseURL string
	events  EventPublisher
}

func NewQRService(db *gorm.DB, baseURL string, events EventPublisher) *QRService {
	if events == nil {
		events = NopPublisher{}
	}
	return &QRService{db: db, baseURL: baseURL, events: events}
}

func (s *QRService) reference(number string) string {
	q := url.Values{}
	q.Set("table", number)
	q.Set("token", uuid.NewString())
	return fmt.Sprintf("%s?%s", s.baseURL, q.Encode())
}

func (s *QRService) Provision(ctx context.Context, tableID uint, number string) (string, error) {
	ref := s.reference(number)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Table{}).Where("id = ?", tableID).Update("qr_reference", ref)
		if res.Error != nil {
			return fmt.Errorf("s.setReference -> %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTableNotFound
		}
		code := models.TableQRCode{TableID: tableID, Reference: ref}
		if err := tx.Create(&code).Error; err != nil {
			return fmt.Errorf("s.createQRCode -> %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	if err := s.events.Publish(ctx, EventQRProvision, TableEvent{
		Event:       EventQRProvision,
		TableID:     tableID,
		TableNumber: number,
		Reference:   ref,
		OccurredAt:  time.Now(),
	}); err != nil {
		return ref, err
	}
	return ref, nil
}

func (s *QRService) Remove(ctx context.Context, tx *gorm.DB, tableID uint) error {
	if err := tx.WithContext(ctx).Where("table_id = ?", tableID).Delete(&models.TableQRCode{}).Error; err != nil {
		return fmt.Errorf("s.deleteQRCodes -> %w", err)
	}
	return nil
}
