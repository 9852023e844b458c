package controllers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/yeremiapane/restaurant-tables/services"
	"github.com/yeremiapane/restaurant-tables/utils"
)

type CustomError struct {
	Message string
}

func (e *CustomError) Error() string {
	return e.Message
}

var (
	ErrInvalidID     = &CustomError{Message: "invalid table id"}
	ErrStatusViaPath = &CustomError{Message: "status cannot be changed here, use PATCH /tables/:table_id/status"}
)

// respondServiceError maps the engine's error taxonomy onto HTTP statuses.
func respondServiceError(c *gin.Context, err error) {
	var (
		validationErr *services.ValidationError
		conflictErr   *services.ConflictError
		transitionErr *services.TransitionError
	)

	switch {
	case errors.As(err, &validationErr):
		utils.RespondErrorData(c, http.StatusBadRequest, err, gin.H{"field": validationErr.Field})
	case errors.Is(err, services.ErrValidation):
		utils.RespondError(c, http.StatusBadRequest, err)
	case errors.Is(err, services.ErrTableNotFound), errors.Is(err, services.ErrSessionNotFound):
		utils.RespondError(c, http.StatusNotFound, err)
	case errors.As(err, &transitionErr):
		utils.RespondErrorData(c, http.StatusConflict, err, gin.H{
			"from":    transitionErr.From,
			"to":      transitionErr.To,
			"allowed": services.AllowedTargets(transitionErr.From),
		})
	case errors.As(err, &conflictErr):
		var data interface{}
		if conflictErr.SuggestedNumber != "" {
			data = gin.H{"suggested_number": conflictErr.SuggestedNumber}
		}
		utils.RespondErrorData(c, http.StatusConflict, err, data)
	case errors.Is(err, services.ErrNoCapacity):
		utils.RespondError(c, http.StatusConflict, err)
	default:
		utils.ErrorLogger.WithFields(logrus.Fields{
			"method": c.Request.Method,
			"path":   c.FullPath(),
		}).Errorf("request failed: %v", err)
		utils.RespondError(c, http.StatusInternalServerError, err)
	}
}

func parseTableID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("table_id"), 10, 64)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, ErrInvalidID)
		return 0, false
	}
	return uint(id), true
}
