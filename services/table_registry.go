package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yeremiapane/restaurant-tables/models"
	"github.com/yeremiapane/restaurant-tables/utils"
)

type RegistryConfig struct {
	CapacityMin        int
	CapacityMax        int
	AllocationAttempts int
	QRTimeout          time.Duration
}

func (c *RegistryConfig) applyDefaults() {
	if c.CapacityMin <= 0 {
		c.CapacityMin = 1
	}
	if c.CapacityMax < c.CapacityMin {
		c.CapacityMax = 20
	}
	if c.AllocationAttempts <= 0 {
		c.AllocationAttempts = DefaultAllocationAttempts
	}
	if c.QRTimeout <= 0 {
		c.QRTimeout = 5 * time.Second
	}
}

type CreateTableInput struct {
	Number              string  `json:"table_number"`
	Capacity            int     `json:"capacity"`
	Area                string  `json:"area"`
	LocationDescription *string `json:"location_description"`
	Notes               *string `json:"notes"`
}

type UpdateTableInput struct {
	Number              *string `json:"table_number"`
	Capacity            *int    `json:"capacity"`
	Area                *string `json:"area"`
	LocationDescription *string `json:"location_description"`
	Notes               *string `json:"notes"`
}

type CreateTableResult struct {
	Table      *models.Table    `json:"table"`
	Allocation AllocationResult `json:"allocation"`
}

type StatusChangeResult struct {
	Table *models.Table `json:"table"`
	*TransitionOutcome
}

type TableFilter struct {
	Status      models.TableStatus
	Area        string
	MinCapacity *int
	MaxCapacity *int
	Search      string
	Sort        string
	Desc        bool
	Page        int
	PerPage     int
}

var tableSortColumns = map[string]string{
	"":           "table_number",
	"number":     "table_number",
	"capacity":   "capacity",
	"created_at": "created_at",
}

// TableRegistry is the entry point for every table mutation. Creates are
// serialized by the number_key unique index, status changes by a row lock
// plus a compare-and-swap on the observed status.
type TableRegistry struct {
	db        *gorm.DB
	cfg       RegistryConfig
	allocator *NumberAllocator
	machine   *TableStateMachine
	qr        QRProvisioner
	events    EventPublisher

	now func() time.Time
	wg  sync.WaitGroup
}

func NewTableRegistry(db *gorm.DB, ledger *UsageLedger, qr QRProvisioner, events EventPublisher, cfg RegistryConfig) *TableRegistry {
	cfg.applyDefaults()
	if events == nil {
		events = NopPublisher{}
	}
	return &TableRegistry{
		db:        db,
		cfg:       cfg,
		allocator: NewNumberAllocator(TakenTableNumbers(db), cfg.AllocationAttempts),
		machine:   NewTableStateMachine(ledger),
		qr:        qr,
		events:    events,
		now:       time.Now,
	}
}

// SetClock replaces the time source used for status side effects.
func (s *TableRegistry) SetClock(now func() time.Time) {
	s.now = now
}

// Wait blocks until background QR provisioning and event publishing finish.
func (s *TableRegistry) Wait() {
	s.wg.Wait()
}

func (s *TableRegistry) validateFields(number *string, capacity *int, area *string, location *string) error {
	type fields struct {
		Number   *string `json:"table_number"`
		Capacity *int    `json:"capacity"`
		Area     *string `json:"area"`
		Location *string `json:"location_description"`
	}
	f := fields{Number: number, Capacity: capacity, Area: area, Location: location}
	err := validation.ValidateStruct(&f,
		validation.Field(&f.Number, validation.NilOrNotEmpty, validation.Length(1, 50)),
		validation.Field(&f.Capacity, validation.NilOrNotEmpty, validation.Min(s.cfg.CapacityMin), validation.Max(s.cfg.CapacityMax)),
		validation.Field(&f.Area, validation.NilOrNotEmpty, validation.Length(1, 50)),
		validation.Field(&f.Location, validation.Length(0, 255)),
	)
	return toValidationError(err)
}

func toValidationError(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		keys := make([]string, 0, len(verrs))
		for k := range verrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return &ValidationError{Field: keys[0], Message: verrs[keys[0]].Error()}
	}
	return &ValidationError{Message: err.Error()}
}

func (s *TableRegistry) Create(ctx context.Context, in CreateTableInput) (*CreateTableResult, error) {
	area := strings.TrimSpace(in.Area)
	if area == "" {
		return nil, newValidationError("area", "cannot be blank")
	}
	var number *string
	if strings.TrimSpace(in.Number) != "" {
		number = &in.Number
	}
	if err := s.validateFields(number, &in.Capacity, &area, in.LocationDescription); err != nil {
		return nil, err
	}

	var table models.Table
	claim := func(candidate string) error {
		table = models.Table{
			Capacity:            in.Capacity,
			Area:                area,
			Status:              models.TableStatusAvailable,
			LocationDescription: in.LocationDescription,
			Notes:               in.Notes,
		}
		table.SetNumber(candidate)
		return s.db.WithContext(ctx).Create(&table).Error
	}

	alloc, err := s.allocator.Allocate(ctx, in.Number, claim)
	if err != nil {
		return nil, err
	}

	fields := logrus.Fields{"table_id": table.ID, "number": table.TableNumber, "attempts": alloc.Attempts}
	if alloc.Substituted {
		fields["requested"] = alloc.Requested
	}
	utils.InfoLogger.WithFields(fields).Info("table created")

	s.provisionQR(table.ID, table.TableNumber)
	s.publish(EventTableCreated, &table, "")
	return &CreateTableResult{Table: &table, Allocation: alloc}, nil
}

func (s *TableRegistry) Get(ctx context.Context, id uint) (*models.Table, error) {
	var table models.Table
	if err := s.db.WithContext(ctx).First(&table, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTableNotFound
		}
		return nil, fmt.Errorf("s.db.First -> %w", err)
	}
	return &table, nil
}

// errNumberTaken marks a rename that hit the number_key index; the suggestion
// is computed after the transaction releases its connection.
var errNumberTaken = errors.New("table number taken")

// Update changes descriptive fields only; status goes through ChangeStatus.
// The row is locked so the seated-guests guard sees the committed status.
func (s *TableRegistry) Update(ctx context.Context, id uint, in UpdateTableInput) (*models.Table, error) {
	var area *string
	if in.Area != nil {
		trimmed := strings.TrimSpace(*in.Area)
		area = &trimmed
	}
	if in.Number != nil && strings.TrimSpace(*in.Number) == "" {
		return nil, newValidationError("table_number", "cannot be blank")
	}
	if err := s.validateFields(in.Number, in.Capacity, area, in.LocationDescription); err != nil {
		return nil, err
	}

	var (
		table   models.Table
		renamed bool
		changed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&table, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTableNotFound
			}
			return fmt.Errorf("tx.lockTable -> %w", err)
		}

		updates := map[string]any{}
		if in.Number != nil && models.NormalizeNumberKey(*in.Number) != table.NumberKey {
			renamed = true
			table.SetNumber(*in.Number)
			updates["table_number"] = table.TableNumber
			updates["number_key"] = table.NumberKey
		} else if in.Number != nil && strings.TrimSpace(*in.Number) != table.TableNumber {
			table.SetNumber(*in.Number)
			updates["table_number"] = table.TableNumber
		}
		if in.Capacity != nil {
			if table.CurrentGuests != nil && *in.Capacity < *table.CurrentGuests {
				return newValidationError("capacity", "must not be below the %d guests currently seated", *table.CurrentGuests)
			}
			table.Capacity = *in.Capacity
			updates["capacity"] = table.Capacity
		}
		if area != nil {
			table.Area = *area
			updates["area"] = table.Area
		}
		if in.LocationDescription != nil {
			table.LocationDescription = in.LocationDescription
			updates["location_description"] = *in.LocationDescription
		}
		if in.Notes != nil {
			table.Notes = in.Notes
			updates["notes"] = *in.Notes
		}
		if len(updates) == 0 {
			return nil
		}
		table.UpdatedAt = s.now()
		updates["updated_at"] = table.UpdatedAt

		res := tx.Model(&models.Table{}).Where("id = ?", id).Updates(updates)
		if res.Error != nil {
			if isUniqueViolation(res.Error) {
				return errNumberTaken
			}
			return fmt.Errorf("tx.Updates -> %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrTableNotFound
		}
		changed = true
		return nil
	})
	if err != nil {
		if errors.Is(err, errNumberTaken) {
			suggested, _ := s.allocator.nextCandidate(ctx)
			return nil, &ConflictError{
				Reason:          fmt.Sprintf("table number %s is already in use", table.TableNumber),
				SuggestedNumber: suggested,
			}
		}
		return nil, err
	}
	if !changed {
		return &table, nil
	}

	utils.InfoLogger.WithFields(logrus.Fields{"table_id": id, "number": table.TableNumber}).Info("table updated")
	if renamed {
		s.provisionQR(table.ID, table.TableNumber)
	}
	s.publish(EventTableUpdated, &table, "")
	return &table, nil
}

func (s *TableRegistry) ChangeStatus(ctx context.Context, id uint, to models.TableStatus, tc TransitionContext) (*StatusChangeResult, error) {
	if !to.Valid() {
		return nil, newValidationError("status", "unknown status %q", to)
	}

	var (
		table   models.Table
		outcome *TransitionOutcome
	)
	now := s.now()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&table, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTableNotFound
			}
			return fmt.Errorf("tx.lockTable -> %w", err)
		}

		from := table.Status
		out, err := s.machine.Apply(tx, &table, to, tc, now)
		if err != nil {
			return err
		}
		table.UpdatedAt = now

		res := tx.Model(&models.Table{}).
			Where("id = ? AND status = ?", table.ID, from).
			Updates(statusColumns(&table))
		if res.Error != nil {
			return fmt.Errorf("tx.updateStatus -> %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConflictError{Reason: fmt.Sprintf("table %s changed status concurrently, reload and retry", table.TableNumber)}
		}
		outcome = out
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionConflict) {
			utils.ErrorLogger.WithFields(logrus.Fields{"table_id": id, "to": to}).Error("status change rolled back: open session already exists")
		}
		return nil, err
	}

	statusTransitions.WithLabelValues(string(outcome.From), string(outcome.To)).Inc()
	utils.InfoLogger.WithFields(logrus.Fields{
		"table_id": table.ID,
		"number":   table.TableNumber,
		"from":     outcome.From,
		"to":       outcome.To,
	}).Info("table status changed")

	s.publish(EventTableStatusChanged, &table, outcome.From)
	return &StatusChangeResult{Table: &table, TransitionOutcome: outcome}, nil
}

func statusColumns(t *models.Table) map[string]any {
	return map[string]any{
		"status":              t.Status,
		"notes":               t.Notes,
		"current_guests":      t.CurrentGuests,
		"occupied_since":      t.OccupiedSince,
		"customer_name":       t.CustomerName,
		"customer_phone":      t.CustomerPhone,
		"reserved_by_name":    t.ReservedByName,
		"reserved_by_phone":   t.ReservedByPhone,
		"reserved_from":       t.ReservedFrom,
		"reserved_until":      t.ReservedUntil,
		"reserved_party_size": t.ReservedPartySize,
		"cleaning_started_at": t.CleaningStartedAt,
		"cleaned_by":          t.CleanedBy,
		"last_cleaned_at":     t.LastCleanedAt,
		"last_cleaned_by":     t.LastCleanedBy,
		"updated_at":          t.UpdatedAt,
	}
}

// Delete refuses tables that are seated or held. The status check, the QR
// cleanup and the row delete share one locked transaction. Usage history is kept.
func (s *TableRegistry) Delete(ctx context.Context, id uint) (*models.Table, error) {
	var table models.Table
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&table, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrTableNotFound
			}
			return fmt.Errorf("tx.lockTable -> %w", err)
		}
		if isHeld(table.Status) {
			return &ConflictError{Reason: fmt.Sprintf("cannot delete table %s while it is %s", table.TableNumber, table.Status)}
		}

		s.removeQR(ctx, tx, id)

		res := tx.Where("id = ? AND status NOT IN ?", id, []string{string(models.TableStatusOccupied), string(models.TableStatusReserved)}).
			Delete(&models.Table{})
		if res.Error != nil {
			return fmt.Errorf("tx.Delete -> %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return &ConflictError{Reason: fmt.Sprintf("table %s changed status concurrently, reload and retry", table.TableNumber)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	utils.InfoLogger.WithFields(logrus.Fields{"table_id": id, "number": table.TableNumber}).Info("table deleted")
	s.publish(EventTableDeleted, &table, "")
	return &table, nil
}

// removeQR drops the table's QR references inside tx. A failure is rolled
// back to the savepoint and logged; it never blocks the delete.
func (s *TableRegistry) removeQR(ctx context.Context, tx *gorm.DB, id uint) {
	if s.qr == nil {
		return
	}
	if err := tx.SavePoint("qr_cleanup").Error; err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"table_id": id, "error": err}).Warn("qr cleanup skipped")
		return
	}
	if err := s.qr.Remove(ctx, tx, id); err != nil {
		utils.ErrorLogger.WithFields(logrus.Fields{"table_id": id, "error": err}).Warn("failed to remove qr references")
		if rbErr := tx.RollbackTo("qr_cleanup").Error; rbErr != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{"table_id": id, "error": rbErr}).Error("rollback to qr savepoint failed")
		}
	}
}

func isHeld(status models.TableStatus) bool {
	return status == models.TableStatusOccupied || status == models.TableStatusReserved
}

func (s *TableRegistry) List(ctx context.Context, f TableFilter) ([]models.Table, int64, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, newValidationError("status", "unknown status %q", f.Status)
	}
	if f.MinCapacity != nil && f.MaxCapacity != nil && *f.MinCapacity > *f.MaxCapacity {
		return nil, 0, newValidationError("min_capacity", "must not exceed max_capacity")
	}
	column, ok := tableSortColumns[f.Sort]
	if !ok {
		return nil, 0, newValidationError("sort", "must be one of number, capacity, created_at")
	}
	f.Page, f.PerPage = NormalizePage(f.Page, f.PerPage)

	query := s.db.WithContext(ctx).Model(&models.Table{})
	if f.Status != "" {
		query = query.Where("status = ?", string(f.Status))
	}
	if area := strings.TrimSpace(f.Area); area != "" {
		query = query.Where("LOWER(area) = ?", strings.ToLower(area))
	}
	if f.MinCapacity != nil {
		query = query.Where("capacity >= ?", *f.MinCapacity)
	}
	if f.MaxCapacity != nil {
		query = query.Where("capacity <= ?", *f.MaxCapacity)
	}
	if search := strings.TrimSpace(f.Search); search != "" {
		like := "%" + escapeLike(strings.ToLower(search)) + "%"
		query = query.Where("(LOWER(table_number) LIKE ? ESCAPE '!' OR LOWER(location_description) LIKE ? ESCAPE '!')", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("s.countTables -> %w", err)
	}

	var tables []models.Table
	if err := query.
		Order(clause.OrderByColumn{Column: clause.Column{Name: column}, Desc: f.Desc}).
		Order("id").
		Limit(f.PerPage).
		Offset((f.Page - 1) * f.PerPage).
		Find(&tables).Error; err != nil {
		return nil, 0, fmt.Errorf("s.findTables -> %w", err)
	}
	return tables, total, nil
}

// likeEscaper makes % and _ in a search term match literally. '!' is the
// escape character since backslash handling differs between dialects.
var likeEscaper = strings.NewReplacer("!", "!!", "%", "!%", "_", "!_")

func escapeLike(term string) string {
	return likeEscaper.Replace(term)
}

// All returns every table; used for stats.
func (s *TableRegistry) All(ctx context.Context) ([]models.Table, error) {
	var tables []models.Table
	if err := s.db.WithContext(ctx).Order("table_number").Find(&tables).Error; err != nil {
		return nil, fmt.Errorf("s.db.Find -> %w", err)
	}
	return tables, nil
}

func (s *TableRegistry) provisionQR(tableID uint, number string) {
	if s.qr == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.QRTimeout)
		defer cancel()

		ref, err := s.qr.Provision(ctx, tableID, number)
		if err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{
				"table_id": tableID,
				"number":   number,
				"error":    err,
			}).Warn(ErrUpstreamUnavailable.Error() + ": qr provisioning failed")
			return
		}
		utils.InfoLogger.WithFields(logrus.Fields{"table_id": tableID, "reference": ref}).Info("qr reference provisioned")
	}()
}

func (s *TableRegistry) publish(event string, table *models.Table, from models.TableStatus) {
	payload := TableEvent{
		Event:       event,
		TableID:     table.ID,
		TableNumber: table.TableNumber,
		Status:      table.Status,
		From:        from,
		OccurredAt:  s.now(),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), s.cfg.QRTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, event, payload); err != nil {
			utils.ErrorLogger.WithFields(logrus.Fields{"event": event, "table_id": payload.TableID, "error": err}).Warn("event publish failed")
		}
	}()
}
