package controllers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yeremiapane/restaurant-tables/kds"
	"github.com/yeremiapane/restaurant-tables/models"
	"github.com/yeremiapane/restaurant-tables/services"
	"github.com/yeremiapane/restaurant-tables/utils"
)

type TableController struct {
	Registry *services.TableRegistry
	Ledger   *services.UsageLedger
	Stats    *services.StatsAggregator
}

func NewTableController(registry *services.TableRegistry, ledger *services.UsageLedger, stats *services.StatsAggregator) *TableController {
	return &TableController{Registry: registry, Ledger: ledger, Stats: stats}
}

// CreateTable -> adds a table; table_number is optional and auto-assigned when empty.
func (tc *TableController) CreateTable(c *gin.Context) {
	var req services.CreateTableInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	result, err := tc.Registry.Create(c.Request.Context(), req)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	tc.broadcastTable(c, kds.EventTableCreate, *result.Table)
	utils.RespondJSON(c, http.StatusCreated, "Table created successfully", result)
}

type listTablesQuery struct {
	Status      string `form:"status"`
	Area        string `form:"area"`
	MinCapacity *int   `form:"min_capacity"`
	MaxCapacity *int   `form:"max_capacity"`
	Search      string `form:"search"`
	Sort        string `form:"sort"`
	Order       string `form:"order"`
	Page        int    `form:"page"`
	PerPage     int    `form:"per_page"`
}

// GetAllTables -> filtered, paginated list
func (tc *TableController) GetAllTables(c *gin.Context) {
	var q listTablesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	filter := services.TableFilter{
		Status:      models.TableStatus(strings.ToLower(strings.TrimSpace(q.Status))),
		Area:        q.Area,
		MinCapacity: q.MinCapacity,
		MaxCapacity: q.MaxCapacity,
		Search:      q.Search,
		Sort:        strings.ToLower(strings.TrimSpace(q.Sort)),
		Desc:        strings.EqualFold(q.Order, "desc"),
	}
	filter.Page, filter.PerPage = services.NormalizePage(q.Page, q.PerPage)

	tables, total, err := tc.Registry.List(c.Request.Context(), filter)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondPaginated(c, http.StatusOK, "List of tables", tables, utils.BuildPageMeta(total, filter.Page, filter.PerPage))
}

func (tc *TableController) GetTableByID(c *gin.Context) {
	id, ok := parseTableID(c)
	if !ok {
		return
	}
	table, err := tc.Registry.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table detail", table)
}

type updateTableRequest struct {
	services.UpdateTableInput
	Status *string `json:"status"`
}

// UpdateTable -> descriptive fields only
func (tc *TableController) UpdateTable(c *gin.Context) {
	id, ok := parseTableID(c)
	if !ok {
		return
	}
	var req updateTableRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if req.Status != nil {
		utils.RespondErrorData(c, http.StatusBadRequest, ErrStatusViaPath, gin.H{"field": "status"})
		return
	}

	table, err := tc.Registry.Update(c.Request.Context(), id, req.UpdateTableInput)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	tc.broadcastTable(c, kds.EventTableUpdate, *table)
	utils.RespondJSON(c, http.StatusOK, "Table updated", table)
}

type statusRequest struct {
	Status        string     `json:"status" binding:"required"`
	GuestCount    *int       `json:"guest_count"`
	CustomerName  *string    `json:"customer_name"`
	CustomerPhone *string    `json:"customer_phone"`
	ReservedFrom  *time.Time `json:"reserved_from"`
	ReservedUntil *time.Time `json:"reserved_until"`
	PartySize     *int       `json:"party_size"`
	CleanedBy     *string    `json:"cleaned_by"`
	UsageType     string     `json:"usage_type"`
	Notes         *string    `json:"notes"`
}

// UpdateTableStatus -> moves the table through its lifecycle
func (tc *TableController) UpdateTableStatus(c *gin.Context) {
	id, ok := parseTableID(c)
	if !ok {
		return
	}
	var body statusRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	to := models.TableStatus(strings.ToLower(strings.TrimSpace(body.Status)))
	result, err := tc.Registry.ChangeStatus(c.Request.Context(), id, to, services.TransitionContext{
		GuestCount:    body.GuestCount,
		CustomerName:  body.CustomerName,
		CustomerPhone: body.CustomerPhone,
		ReservedFrom:  body.ReservedFrom,
		ReservedUntil: body.ReservedUntil,
		PartySize:     body.PartySize,
		CleanedBy:     body.CleanedBy,
		UsageType:     strings.TrimSpace(body.UsageType),
		Notes:         body.Notes,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}

	tc.broadcastTable(c, kds.EventTableStatus, *result.Table)
	if result.ClosedSession != nil {
		kds.BroadcastSession(kds.EventSessionClosed, *result.ClosedSession)
	}
	if result.OpenedSession != nil {
		kds.BroadcastSession(kds.EventSessionOpened, *result.OpenedSession)
	}
	utils.RespondJSON(c, http.StatusOK, "Table status updated", result)
}

// GetTableTransitions -> statuses the table may move to next
func (tc *TableController) GetTableTransitions(c *gin.Context) {
	id, ok := parseTableID(c)
	if !ok {
		return
	}
	table, err := tc.Registry.Get(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Allowed transitions", gin.H{
		"status":  table.Status,
		"allowed": services.AllowedTargets(table.Status),
	})
}

func (tc *TableController) DeleteTable(c *gin.Context) {
	id, ok := parseTableID(c)
	if !ok {
		return
	}
	table, err := tc.Registry.Delete(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	tc.broadcastTable(c, kds.EventTableDelete, *table)
	utils.InfoLogger.WithField("table_id", table.ID).Info("Table deleted")
	utils.RespondJSON(c, http.StatusOK, "Table deleted", gin.H{
		"id": table.ID,
	})
}

func (tc *TableController) GetTableStats(c *gin.Context) {
	stats, err := tc.Stats.Stats(c.Request.Context())
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table statistics", stats)
}

// GetUsageHistory -> sessions of one table, newest first.
// Tidak cek keberadaan meja: riwayat tetap ada setelah meja dihapus.
func (tc *TableController) GetUsageHistory(c *gin.Context) {
	id, ok := parseTableID(c)
	if !ok {
		return
	}
	from, to, ok := parseRange(c)
	if !ok {
		return
	}

	var q struct {
		Page    int `form:"page"`
		PerPage int `form:"per_page"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	page, perPage := services.NormalizePage(q.Page, q.PerPage)

	sessions, total, err := tc.Ledger.History(c.Request.Context(), id, services.HistoryFilter{
		From: from, To: to, Page: page, PerPage: perPage,
	})
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondPaginated(c, http.StatusOK, "Table usage history", sessions, utils.BuildPageMeta(total, page, perPage))
}

func (tc *TableController) GetCurrentUsage(c *gin.Context) {
	id, ok := parseTableID(c)
	if !ok {
		return
	}
	if _, err := tc.Registry.Get(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}
	session, err := tc.Ledger.OpenSessionFor(c.Request.Context(), id)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Current usage session", session)
}

// GetUsageSummary -> juga berlaku untuk meja yang sudah dihapus
func (tc *TableController) GetUsageSummary(c *gin.Context) {
	id, ok := parseTableID(c)
	if !ok {
		return
	}
	from, to, ok := parseRange(c)
	if !ok {
		return
	}
	summary, err := tc.Ledger.Summary(c.Request.Context(), id, from, to)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table usage summary", summary)
}

// AccumulateUsage -> adds order/payment amounts to the current (or last) session
func (tc *TableController) AccumulateUsage(c *gin.Context) {
	id, ok := parseTableID(c)
	if !ok {
		return
	}
	var delta services.AmountDelta
	if err := c.ShouldBindJSON(&delta); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if _, err := tc.Registry.Get(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}

	session, err := tc.Ledger.Accumulate(c.Request.Context(), id, delta)
	if err != nil {
		respondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Usage amounts updated", session)
}

func parseRange(c *gin.Context) (*time.Time, *time.Time, bool) {
	from, err := parseTimeQuery(c, "from")
	if err != nil {
		utils.RespondErrorData(c, http.StatusBadRequest, err, gin.H{"field": "from"})
		return nil, nil, false
	}
	to, err := parseTimeQuery(c, "to")
	if err != nil {
		utils.RespondErrorData(c, http.StatusBadRequest, err, gin.H{"field": "to"})
		return nil, nil, false
	}
	return from, to, true
}

// parseTimeQuery accepts RFC3339 timestamps or plain dates (YYYY-MM-DD).
func parseTimeQuery(c *gin.Context, key string) (*time.Time, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, &CustomError{Message: key + " must be RFC3339 or YYYY-MM-DD"}
	}
	return &t, nil
}

// broadcastTable pushes the change and the refreshed stats to dashboards.
func (tc *TableController) broadcastTable(c *gin.Context, event string, table models.Table) {
	stats, err := tc.Stats.Stats(c.Request.Context())
	if err != nil {
		utils.ErrorLogger.WithField("event", event).Warnf("stats for broadcast failed: %v", err)
		kds.BroadcastTableChange(event, table, nil)
		return
	}
	kds.BroadcastTableChange(event, table, stats)
}
