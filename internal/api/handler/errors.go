package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/inventory-counting/internal/api/dto"
	"github.com/cuongbtq/inventory-counting/internal/counting/domain"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

var statusByKind = map[domain.ErrorKind]int{
	domain.KindValidation:   http.StatusBadRequest,
	domain.KindNotFound:     http.StatusNotFound,
	domain.KindBusinessRule: http.StatusUnprocessableEntity,
	domain.KindConflict:     http.StatusConflict,
	domain.KindCreation:     http.StatusInternalServerError,
}

// HTTPStatus maps an error kind to its response status.
func HTTPStatus(kind domain.ErrorKind) int {
	if status, ok := statusByKind[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// respondError renders an orchestrator error. Untyped errors never reach the
// body; they are logged and reported as internal errors.
func (h *CountingHandler) respondError(c *gin.Context, err error) {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		h.logger.Error("Unexpected handler error",
			slog.String("path", c.Request.URL.Path),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
			Error:   domain.KindCreation.String(),
			Message: "internal error",
		})
		return
	}

	status := HTTPStatus(derr.Kind)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, dto.ErrorResponse{
		Error:   derr.Kind.String(),
		Message: derr.Message,
		Details: derr.Details,
	})
}

// respondBindError renders request binding failures as validation errors,
// listing the failing fields when the validator produced them.
func (h *CountingHandler) respondBindError(c *gin.Context, err error) {
	h.logger.Debug("Invalid request",
		slog.String("path", c.Request.URL.Path),
		slog.String("error", err.Error()),
	)

	resp := dto.ErrorResponse{
		Error:   domain.KindValidation.String(),
		Message: "invalid request",
	}
	if fields := validationDetails(err); len(fields) > 0 {
		resp.Details = map[string]any{"fields": fields}
	} else {
		resp.Message = "invalid request: " + err.Error()
	}
	c.JSON(http.StatusBadRequest, resp)
}

func validationDetails(err error) map[string]string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}

	fields := make(map[string]string, len(validationErrors))
	for _, ve := range validationErrors {
		fields[ve.Field()] = ve.Tag()
	}
	return fields
}
