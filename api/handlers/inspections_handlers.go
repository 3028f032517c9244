package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"lungsod-rms/core/reports"
	"lungsod-rms/core/store"
	"lungsod-rms/core/utils"
)

type InspectionsHandler struct {
	svc    *reports.Service
	logger *utils.Logger
}

func NewInspectionsHandler(svc *reports.Service, logger *utils.Logger) *InspectionsHandler {
	return &InspectionsHandler{svc: svc, logger: logger}
}

func (h *InspectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	items, err := h.svc.ListInspections(r.Context(), store.InspectionFilter{
		Status: strings.TrimSpace(q.Get("status")),
		Search: strings.TrimSpace(q.Get("search")),
		Limit:  limit,
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("inspections list: %v", err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.Inspection{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"inspections": items})
}

func (h *InspectionsHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(urlParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	insp, err := h.svc.GetInspection(r.Context(), id)
	if err != nil {
		if err == store.ErrNotFound {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"inspection": insp})
}

type inspectionDecisionRequest struct {
	Decision string `json:"decision"`
	reports.Payload
}

// Decide records the engineer verdict on an inspection. Approvals spawn a
// repair task.
func (h *InspectionsHandler) Decide(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(urlParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "invalid id"})
		return
	}
	var req inspectionDecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "bad request"})
		return
	}
	var approve bool
	switch strings.ToLower(strings.TrimSpace(req.Decision)) {
	case "approve", "approved":
		approve = true
	case "reject", "rejected":
		approve = false
	default:
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "decision must be approve or reject"})
		return
	}
	insp, err := h.svc.DecideInspection(r.Context(), actorFromRequest(r), id, approve, req.Payload)
	if err != nil {
		writeFailure(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "inspection": insp})
}

func (h *InspectionsHandler) ListRepairTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(r, "limit", 50)
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	filter := store.RepairTaskFilter{
		Status: strings.TrimSpace(q.Get("status")),
		Limit:  limit,
		Offset: queryInt(r, "offset", 0),
	}
	if raw := strings.TrimSpace(q.Get("inspection_id")); raw != "" {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
			filter.InspectionID = id
		}
	}
	items, err := h.svc.ListRepairTasks(r.Context(), filter)
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("repair tasks list: %v", err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if items == nil {
		items = []store.RepairTask{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"repair_tasks": items})
}
