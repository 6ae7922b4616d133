package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"discordautomation/config"
	"discordautomation/core"
	"discordautomation/models"
	"discordautomation/services"
	"discordautomation/usecases/moderation"
)

// AdminHTTPHandler exposes the management API: rule CRUD, task
// scheduling and the on-demand auto-mod scan.
type AdminHTTPHandler struct {
	rulesService      services.AutomationRulesService
	tasksService      services.ScheduledTasksService
	metricsService    services.MetricsService
	moderationUseCase *moderation.ModerationUseCase
	autoModCfg        config.AutoModConfig
}

func NewAdminHTTPHandler(
	rulesService services.AutomationRulesService,
	tasksService services.ScheduledTasksService,
	metricsService services.MetricsService,
	moderationUseCase *moderation.ModerationUseCase,
	autoModCfg config.AutoModConfig,
) *AdminHTTPHandler {
	return &AdminHTTPHandler{
		rulesService:      rulesService,
		tasksService:      tasksService,
		metricsService:    metricsService,
		moderationUseCase: moderationUseCase,
		autoModCfg:        autoModCfg,
	}
}

type CreateRuleRequest struct {
	Name          string            `json:"name"`
	GuildID       *string           `json:"guild_id,omitempty"`
	TriggerType   string            `json:"trigger_type"`
	Keywords      []string          `json:"keywords,omitempty"`
	Emoji         string            `json:"emoji,omitempty"`
	ActionType    string            `json:"action_type"`
	ActionPayload map[string]string `json:"action_payload"`
	Enabled       *bool             `json:"enabled,omitempty"`
}

type SetRuleEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

type ScheduleTaskRequest struct {
	TaskType string            `json:"task_type"`
	Payload  map[string]string `json:"payload"`
	RunAt    time.Time         `json:"run_at"`
}

type RescheduleTaskRequest struct {
	RunAt time.Time `json:"run_at"`
}

type ModerationScanRequest struct {
	GuildID   string `json:"guild_id"`
	ChannelID string `json:"channel_id"`
	Mode      string `json:"mode,omitempty"`
}

type ModerationScanResponse struct {
	Mode     models.ModerationMode         `json:"mode"`
	Actions  []*models.ModerationAction    `json:"actions"`
	Analysis *models.PatternAnalysisResult `json:"analysis"`
}

func (h *AdminHTTPHandler) HandleCreateRule(w http.ResponseWriter, r *http.Request) {
	log.Printf("➕ Create rule request received from %s", r.RemoteAddr)

	var req CreateRuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule, err := h.rulesService.CreateRule(r.Context(), services.CreateRuleParams{
		Name:          req.Name,
		GuildID:       req.GuildID,
		TriggerType:   models.TriggerType(req.TriggerType),
		Keywords:      req.Keywords,
		Emoji:         req.Emoji,
		ActionType:    models.ActionType(req.ActionType),
		ActionPayload: req.ActionPayload,
		Enabled:       enabled,
	})
	if err != nil {
		log.Printf("❌ Failed to create rule: %v", err)
		h.writeError(w, err, "failed to create rule")
		return
	}

	log.Printf("✅ Rule created successfully: %s", rule.ID)
	h.writeJSONResponse(w, http.StatusCreated, rule)
}

func (h *AdminHTTPHandler) HandleListRules(w http.ResponseWriter, r *http.Request) {
	log.Printf("📋 List rules request received from %s", r.RemoteAddr)

	rules, err := h.rulesService.ListRules(r.Context())
	if err != nil {
		log.Printf("❌ Failed to list rules: %v", err)
		h.writeError(w, err, "failed to list rules")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, rules)
}

func (h *AdminHTTPHandler) HandleGetRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["id"]
	log.Printf("📋 Get rule %s request received from %s", ruleID, r.RemoteAddr)

	maybeRule, err := h.rulesService.GetRuleByID(r.Context(), ruleID)
	if err != nil {
		log.Printf("❌ Failed to get rule: %v", err)
		h.writeError(w, err, "failed to get rule")
		return
	}
	if !maybeRule.IsPresent() {
		http.Error(w, "rule not found", http.StatusNotFound)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, maybeRule.MustGet())
}

func (h *AdminHTTPHandler) HandleSetRuleEnabled(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["id"]
	log.Printf("🔄 Set rule %s enabled request received from %s", ruleID, r.RemoteAddr)

	var req SetRuleEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.rulesService.SetRuleEnabled(r.Context(), ruleID, req.Enabled); err != nil {
		log.Printf("❌ Failed to update rule: %v", err)
		h.writeError(w, err, "failed to update rule")
		return
	}

	log.Printf("✅ Rule %s enabled set to %t", ruleID, req.Enabled)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHTTPHandler) HandleDeleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["id"]
	log.Printf("🗑️ Delete rule %s request received from %s", ruleID, r.RemoteAddr)

	if err := h.rulesService.DeleteRule(r.Context(), ruleID); err != nil {
		log.Printf("❌ Failed to delete rule: %v", err)
		h.writeError(w, err, "failed to delete rule")
		return
	}

	log.Printf("✅ Rule deleted successfully: %s", ruleID)
	w.WriteHeader(http.StatusNoContent)
}

func (h *AdminHTTPHandler) HandleScheduleTask(w http.ResponseWriter, r *http.Request) {
	log.Printf("➕ Schedule task request received from %s", r.RemoteAddr)

	var req ScheduleTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	task, err := h.tasksService.ScheduleTask(r.Context(), services.ScheduleTaskParams{
		TaskType: models.ActionType(req.TaskType),
		Payload:  req.Payload,
		RunAt:    req.RunAt,
	})
	if err != nil {
		log.Printf("❌ Failed to schedule task: %v", err)
		h.writeError(w, err, "failed to schedule task")
		return
	}

	log.Printf("✅ Task scheduled successfully: %s (runs at %s)", task.ID, task.RunAt.Format(time.RFC3339))
	h.writeJSONResponse(w, http.StatusCreated, task)
}

func (h *AdminHTTPHandler) HandleListTasks(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	if status == "" {
		status = string(models.TaskStatusPending)
	}
	log.Printf("📋 List %s tasks request received from %s", status, r.RemoteAddr)

	tasks, err := h.tasksService.ListTasksByStatus(r.Context(), models.TaskStatus(status))
	if err != nil {
		log.Printf("❌ Failed to list tasks: %v", err)
		h.writeError(w, err, "failed to list tasks")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, tasks)
}

func (h *AdminHTTPHandler) HandleGetTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	log.Printf("📋 Get task %s request received from %s", taskID, r.RemoteAddr)

	maybeTask, err := h.tasksService.GetTaskByID(r.Context(), taskID)
	if err != nil {
		log.Printf("❌ Failed to get task: %v", err)
		h.writeError(w, err, "failed to get task")
		return
	}
	if !maybeTask.IsPresent() {
		http.Error(w, "task not found", http.StatusNotFound)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, maybeTask.MustGet())
}

func (h *AdminHTTPHandler) HandleCancelTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	log.Printf("🗑️ Cancel task %s request received from %s", taskID, r.RemoteAddr)

	task, err := h.tasksService.CancelTask(r.Context(), taskID)
	if err != nil {
		log.Printf("❌ Failed to cancel task: %v", err)
		h.writeError(w, err, "failed to cancel task")
		return
	}

	log.Printf("✅ Task cancelled successfully: %s", taskID)
	h.writeJSONResponse(w, http.StatusOK, task)
}

func (h *AdminHTTPHandler) HandleRescheduleTask(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["id"]
	log.Printf("🔄 Reschedule task %s request received from %s", taskID, r.RemoteAddr)

	var req RescheduleTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	task, err := h.tasksService.RescheduleTask(r.Context(), taskID, req.RunAt)
	if err != nil {
		log.Printf("❌ Failed to reschedule task: %v", err)
		h.writeError(w, err, "failed to reschedule task")
		return
	}

	log.Printf("✅ Task rescheduled successfully: %s (runs at %s)", taskID, task.RunAt.Format(time.RFC3339))
	h.writeJSONResponse(w, http.StatusOK, task)
}

func (h *AdminHTTPHandler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		http.Error(w, "name query parameter is required", http.StatusBadRequest)
		return
	}

	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			http.Error(w, "since must be an RFC3339 timestamp", http.StatusBadRequest)
			return
		}
		since = parsed
	}
	log.Printf("📋 Get metrics %s since %s request received from %s", name, since.Format(time.RFC3339), r.RemoteAddr)

	samples, err := h.metricsService.GetMetrics(r.Context(), name, since)
	if err != nil {
		log.Printf("❌ Failed to get metrics: %v", err)
		h.writeError(w, err, "failed to get metrics")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, samples)
}

func (h *AdminHTTPHandler) HandleModerationScan(w http.ResponseWriter, r *http.Request) {
	log.Printf("🔍 Moderation scan request received from %s", r.RemoteAddr)

	var req ModerationScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("❌ Failed to parse request body: %v", err)
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.ChannelID == "" {
		http.Error(w, "channel_id is required", http.StatusBadRequest)
		return
	}

	// The configured mode applies unless the request overrides it
	mode := h.autoModCfg.Mode
	switch models.ModerationMode(req.Mode) {
	case models.ModerationModeEnforce:
		mode = models.ModerationModeEnforce
	case models.ModerationModeDryRun:
		mode = models.ModerationModeDryRun
	case "":
	default:
		http.Error(w, "mode must be enforce or dry_run", http.StatusBadRequest)
		return
	}

	actions, analysis, err := h.moderationUseCase.EvaluateChannel(r.Context(), req.GuildID, req.ChannelID, mode)
	if err != nil {
		log.Printf("❌ Moderation scan failed: %v", err)
		h.writeError(w, err, "moderation scan failed")
		return
	}

	h.writeJSONResponse(w, http.StatusOK, ModerationScanResponse{
		Mode:     mode,
		Actions:  actions,
		Analysis: analysis,
	})
}

func (h *AdminHTTPHandler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AdminHTTPHandler) SetupEndpoints(router *mux.Router) {
	log.Printf("🚀 Registering admin API endpoints")

	router.HandleFunc("/rules", h.HandleCreateRule).Methods("POST")
	router.HandleFunc("/rules", h.HandleListRules).Methods("GET")
	router.HandleFunc("/rules/{id}", h.HandleGetRule).Methods("GET")
	router.HandleFunc("/rules/{id}/enabled", h.HandleSetRuleEnabled).Methods("PUT")
	router.HandleFunc("/rules/{id}", h.HandleDeleteRule).Methods("DELETE")

	router.HandleFunc("/tasks", h.HandleScheduleTask).Methods("POST")
	router.HandleFunc("/tasks", h.HandleListTasks).Methods("GET")
	router.HandleFunc("/tasks/{id}", h.HandleGetTask).Methods("GET")
	router.HandleFunc("/tasks/{id}/cancel", h.HandleCancelTask).Methods("POST")
	router.HandleFunc("/tasks/{id}/reschedule", h.HandleRescheduleTask).Methods("POST")

	router.HandleFunc("/metrics", h.HandleGetMetrics).Methods("GET")
	router.HandleFunc("/moderation/scan", h.HandleModerationScan).Methods("POST")
	router.HandleFunc("/health", h.HandleHealthCheck).Methods("GET")

	log.Printf("✅ All admin API endpoints registered successfully")
}

// writeError maps the error taxonomy onto HTTP status codes
func (h *AdminHTTPHandler) writeError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case core.IsValidationError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, core.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, core.ErrConflict):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, core.ErrForbidden):
		http.Error(w, err.Error(), http.StatusForbidden)
	default:
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

func (h *AdminHTTPHandler) writeJSONResponse(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("❌ Failed to encode JSON response: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}
