package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/scheduler"
	"github.com/t77yq/nitrite-automation/internal/script"
	"github.com/t77yq/nitrite-automation/internal/templates"
)

// Response is the envelope of every API reply
type Response struct {
	Success  bool        `json:"success"`
	Data     interface{} `json:"data,omitempty"`
	Error    string      `json:"error,omitempty"`
	Warnings []string    `json:"warnings,omitempty"`
}

// SuccessResponse wraps data in a successful envelope
func SuccessResponse(data interface{}) Response {
	return Response{
		Success: true,
		Data:    data,
	}
}

// ErrorResponse builds a failed envelope carrying err
func ErrorResponse(err string) Response {
	return Response{
		Success: false,
		Error:   err,
	}
}

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch {
	case errors.Is(err, script.ErrRejected):
		return http.StatusUnprocessableEntity
	case errors.Is(err, script.ErrNotFound),
		errors.Is(err, scheduler.ErrTaskNotFound),
		errors.Is(err, templates.ErrTemplateNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrUnsupportedLanguage),
		errors.Is(err, scheduler.ErrInvalidScheduleType),
		errors.Is(err, scheduler.ErrInvalidScheduleValue):
		return http.StatusBadRequest
	case errors.Is(err, scheduler.ErrTaskSpent):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func errorResponse(err error) Response {
	resp := ErrorResponse(err.Error())
	var rejected *script.RejectedError
	if errors.As(err, &rejected) {
		resp.Error = script.ErrRejected.Error()
		resp.Warnings = rejected.Warnings
		resp.Data = gin.H{"risk_level": rejected.Level}
	}
	return resp
}
