package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/t77yq/nitrite-automation/internal/automation"
	"github.com/t77yq/nitrite-automation/internal/model"
	"github.com/t77yq/nitrite-automation/internal/script"
)

// Handler binds the automation service to HTTP
type Handler struct {
	logger  *zap.Logger
	service *automation.Service
}

// NewHandler creates a new handler
func NewHandler(service *automation.Service, logger *zap.Logger) *Handler {
	return &Handler{
		logger:  logger.Named("api"),
		service: service,
	}
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed",
			zap.String("path", c.FullPath()),
			zap.Error(err))
	}
	c.JSON(status, errorResponse(err))
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse(msg))
}

type createScriptRequest struct {
	Name        string   `json:"name" binding:"required"`
	Code        string   `json:"code"`
	Language    string   `json:"language" binding:"required"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

type updateScriptRequest struct {
	Code string `json:"code"`
}

type analyzeRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
}

type installTemplateRequest struct {
	Name string `json:"name"`
}

type createTaskRequest struct {
	Name          string `json:"name" binding:"required"`
	ScriptID      string `json:"script_id" binding:"required"`
	ScheduleType  string `json:"schedule_type" binding:"required"`
	ScheduleValue string `json:"schedule_value"`
	Enabled       *bool  `json:"enabled"`
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse(gin.H{"status": "healthy"}))
}

// ListScripts handles GET /api/scripts, newest first
func (h *Handler) ListScripts(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse(h.service.ListScripts()))
}

// CreateScript handles POST /api/scripts. Rejected source answers 422 with
// the warnings.
func (h *Handler) CreateScript(c *gin.Context) {
	var req createScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	lang, err := model.ParseLanguage(req.Language)
	if err != nil {
		h.fail(c, err)
		return
	}

	rec, err := h.service.CreateScript(c.Request.Context(), script.CreateRequest{
		Name:        req.Name,
		Source:      req.Code,
		Language:    lang,
		Description: req.Description,
		Tags:        req.Tags,
	})
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := SuccessResponse(rec)
	resp.Warnings = rec.Security.Warnings
	c.JSON(http.StatusCreated, resp)
}

// GetScript handles GET /api/scripts/:id and includes the source body
func (h *Handler) GetScript(c *gin.Context) {
	s, err := h.service.GetScript(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(s))
}

// UpdateScript handles PUT /api/scripts/:id
func (h *Handler) UpdateScript(c *gin.Context) {
	var req updateScriptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	rec, err := h.service.UpdateScript(c.Request.Context(), c.Param("id"), req.Code)
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := SuccessResponse(rec)
	resp.Warnings = rec.Security.Warnings
	c.JSON(http.StatusOK, resp)
}

// DeleteScript handles DELETE /api/scripts/:id and reports the scheduled
// tasks removed with it
func (h *Handler) DeleteScript(c *gin.Context) {
	removed, err := h.service.DeleteScript(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(gin.H{"deleted_tasks": removed}))
}

// ExecuteScript runs a script synchronously. Blocked and timed out runs are
// still 200; the caller branches on the result fields.
func (h *Handler) ExecuteScript(c *gin.Context) {
	result, err := h.service.ExecuteScript(c.Request.Context(), c.Param("id"), nil)
	if result == nil {
		h.fail(c, err)
		return
	}

	resp := SuccessResponse(result)
	resp.Warnings = result.Warnings
	if err != nil {
		h.logger.Error("Execution finished but statistics were not saved",
			zap.String("script_id", result.ScriptID),
			zap.Error(err))
		resp.Error = err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// ScriptHistory handles GET /api/scripts/:id/history with offset and limit
// query parameters
func (h *Handler) ScriptHistory(c *gin.Context) {
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		badRequest(c, "Invalid offset")
		return
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 0 {
		badRequest(c, "Invalid limit")
		return
	}

	records, err := h.service.ExecutionHistory(c.Request.Context(), c.Param("id"), offset, limit)
	if err != nil {
		h.fail(c, err)
		return
	}
	if records == nil {
		records = []*model.ExecutionRecord{}
	}
	c.JSON(http.StatusOK, SuccessResponse(records))
}

// Analyze handles POST /api/analyze without storing anything
func (h *Handler) Analyze(c *gin.Context) {
	var req analyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	var lang model.Language
	if req.Language != "" {
		parsed, err := model.ParseLanguage(req.Language)
		if err != nil {
			h.fail(c, err)
			return
		}
		lang = parsed
	}

	analysis := h.service.AnalyzeScript(req.Code, lang)
	resp := SuccessResponse(analysis)
	resp.Warnings = analysis.Warnings
	c.JSON(http.StatusOK, resp)
}

// ListTemplates handles GET /api/templates
func (h *Handler) ListTemplates(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse(h.service.ListTemplates()))
}

// GetTemplate handles GET /api/templates/:key
func (h *Handler) GetTemplate(c *gin.Context) {
	tpl, err := h.service.GetTemplate(c.Param("key"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(tpl))
}

// InstallTemplate handles POST /api/templates/:key/install
func (h *Handler) InstallTemplate(c *gin.Context) {
	var req installTemplateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	rec, err := h.service.CreateFromTemplate(c.Request.Context(), c.Param("key"), req.Name)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, SuccessResponse(rec))
}

// ListTasks handles GET /api/tasks
func (h *Handler) ListTasks(c *gin.Context) {
	c.JSON(http.StatusOK, SuccessResponse(h.service.ListScheduledTasks()))
}

// CreateTask handles POST /api/tasks
func (h *Handler) CreateTask(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	task, err := h.service.AddScheduledTask(c.Request.Context(), req.Name, req.ScriptID,
		model.ScheduleType(req.ScheduleType), req.ScheduleValue, enabled)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, SuccessResponse(task))
}

// ToggleTask handles POST /api/tasks/:id/toggle
func (h *Handler) ToggleTask(c *gin.Context) {
	task, err := h.service.ToggleScheduledTask(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(task))
}

// DeleteTask handles DELETE /api/tasks/:id
func (h *Handler) DeleteTask(c *gin.Context) {
	if err := h.service.DeleteScheduledTask(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, SuccessResponse(gin.H{"id": c.Param("id")}))
}

// RunningExecutions handles GET /api/executions/running
func (h *Handler) RunningExecutions(c *gin.Context) {
	running := h.service.RunningExecutions()
	if running == nil {
		running = []model.RunningExecution{}
	}
	c.JSON(http.StatusOK, SuccessResponse(running))
}
