package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yeremiapane/restaurant-tables/models"
	"github.com/yeremiapane/restaurant-tables/services"
	"github.com/yeremiapane/restaurant-tables/utils"
)

// CleaningLogController exposes the cleaning rounds recorded by status changes.
type CleaningLogController struct {
	DB       *gorm.DB
	Registry *services.TableRegistry
}

func NewCleaningLogController(db *gorm.DB, registry *services.TableRegistry) *CleaningLogController {
	return &CleaningLogController{DB: db, Registry: registry}
}

// GetTableCleaningLogs -> newest first, optional ?status=in_progress|done
func (clc *CleaningLogController) GetTableCleaningLogs(c *gin.Context) {
	id, ok := parseTableID(c)
	if !ok {
		return
	}
	if _, err := clc.Registry.Get(c.Request.Context(), id); err != nil {
		respondServiceError(c, err)
		return
	}

	var q struct {
		Status  string `form:"status" binding:"omitempty,oneof=in_progress done"`
		Page    int    `form:"page"`
		PerPage int    `form:"per_page"`
	}
	if err := c.ShouldBindQuery(&q); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	page, perPage := services.NormalizePage(q.Page, q.PerPage)

	query := clc.DB.WithContext(c.Request.Context()).Model(&models.CleaningLog{}).Where("table_id = ?", id)
	if q.Status != "" {
		query = query.Where("status = ?", q.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	var logs []models.CleaningLog
	if err := query.Order("started_at DESC").Order("id DESC").
		Limit(perPage).Offset((page - 1) * perPage).
		Find(&logs).Error; err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}

	utils.RespondPaginated(c, http.StatusOK, "Table cleaning logs", logs, utils.BuildPageMeta(total, page, perPage))
}
