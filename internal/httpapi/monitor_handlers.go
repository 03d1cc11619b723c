package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/peter29ljf/bybitoption/internal/core"
	apperrors "github.com/peter29ljf/bybitoption/pkg/errors"
)

// MonitorService is the subset of monitor.Service the HTTP layer needs.
type MonitorService interface {
	AddTask(task core.MonitorTask) (core.MonitorTask, error)
	RemoveTask(taskID string) error
	GetTask(taskID string) (core.MonitorTask, bool)
	ListTasks() []core.MonitorTask
}

// NewMonitorMux builds the Price Monitor's HTTP API: create/list/get/
// delete monitor tasks. Health and metrics are not served by this mux.
func NewMonitorMux(svc MonitorService, hm core.IHealthMonitor) *http.ServeMux {
	h := &monitorHandlers{svc: svc, hm: hm}
	mux := http.NewServeMux()
	mux.HandleFunc("/api/monitor/create", h.handleCreate)
	mux.HandleFunc("/api/monitor/tasks", h.handleList)
	mux.HandleFunc("/api/monitor/", h.handleItem)
	return mux
}

type monitorHandlers struct {
	svc MonitorService
	hm  core.IHealthMonitor
}

func (h *monitorHandlers) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	WriteOK(w, h.svc.ListTasks())
}

func (h *monitorHandlers) handleCreate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var task core.MonitorTask
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	created, err := h.svc.AddTask(task)
	if err != nil {
		writeMonitorError(w, err)
		return
	}
	WriteCreated(w, created)
}

func (h *monitorHandlers) handleItem(w http.ResponseWriter, r *http.Request) {
	taskID := r.URL.Path[len("/api/monitor/"):]
	if taskID == "" {
		WriteError(w, http.StatusBadRequest, "task id is required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		task, ok := h.svc.GetTask(taskID)
		if !ok {
			WriteError(w, http.StatusNotFound, "monitor task not found")
			return
		}
		WriteOK(w, task)
	case http.MethodDelete:
		if err := h.svc.RemoveTask(taskID); err != nil {
			writeMonitorError(w, err)
			return
		}
		WriteOK(w, map[string]string{"task_id": taskID, "status": "cancelled"})
	default:
		WriteError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func writeMonitorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperrors.ErrDuplicateTaskID):
		WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, apperrors.ErrCapacityExceeded):
		WriteError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, apperrors.ErrUnsupportedSpotSymbol):
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, apperrors.ErrTaskNotFound):
		WriteError(w, http.StatusNotFound, err.Error())
	default:
		WriteError(w, http.StatusUnprocessableEntity, err.Error())
	}
}
