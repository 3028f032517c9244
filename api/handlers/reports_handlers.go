package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"lungsod-rms/core/auth"
	"lungsod-rms/core/reports"
	"lungsod-rms/core/store"
	"lungsod-rms/core/utils"
)

const defaultFeedPageSize = 20

type ReportsHandler struct {
	svc    *reports.Service
	logger *utils.Logger
}

func NewReportsHandler(svc *reports.Service, logger *utils.Logger) *ReportsHandler {
	return &ReportsHandler{svc: svc, logger: logger}
}

func actorFromRequest(r *http.Request) reports.Actor {
	sess := auth.SessionFromContext(r.Context())
	if sess == nil {
		return reports.Actor{}
	}
	return reports.Actor{
		UserID:   sess.UserID,
		Username: sess.Username,
		Roles:    sess.Roles,
	}
}

func reportRef(r *http.Request) (reports.Ref, error) {
	id, err := strconv.ParseInt(urlParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return reports.Ref{}, errors.New("invalid id")
	}
	raw := r.URL.Query().Get("type")
	if raw == "" {
		raw = r.URL.Query().Get("source")
	}
	domain, err := store.ParseDomain(raw)
	if err != nil {
		return reports.Ref{}, err
	}
	return reports.Ref{Domain: domain, ID: id}, nil
}

func writeFailure(w http.ResponseWriter, logger *utils.Logger, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "message": "report not found"})
	case errors.Is(err, store.ErrConflict):
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "report was modified concurrently, reload and retry"})
	case errors.Is(err, reports.ErrInvalidTransition):
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "message": err.Error()})
	case errors.Is(err, reports.ErrValidation):
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
	default:
		if logger != nil {
			logger.Errorf("reports handler: %v", err)
		}
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "message": "server error"})
	}
}

func (h *ReportsHandler) failure(w http.ResponseWriter, err error) {
	writeFailure(w, h.logger, err)
}

func (h *ReportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in reports.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "bad request"})
		return
	}
	report, err := h.svc.Create(r.Context(), actorFromRequest(r), in)
	if err != nil {
		h.failure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "report": report})
}

func (h *ReportsHandler) Feed(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := queryInt(r, "limit", defaultFeedPageSize)
	if limit <= 0 || limit > 200 {
		limit = defaultFeedPageSize
	}
	offset := queryInt(r, "offset", 0)
	if page := queryInt(r, "page", 0); page > 1 && offset == 0 {
		offset = (page - 1) * limit
	}
	if offset < 0 {
		offset = 0
	}
	filter := store.FeedFilter{
		Status:   strings.TrimSpace(q.Get("status")),
		Type:     strings.TrimSpace(q.Get("type")),
		Severity: strings.TrimSpace(q.Get("severity")),
		Search:   strings.TrimSpace(q.Get("search")),
		Sort:     strings.TrimSpace(q.Get("sort")),
		Limit:    limit,
		Offset:   offset,
	}
	items, total, err := h.svc.Feed(r.Context(), filter)
	if err != nil {
		h.failure(w, err)
		return
	}
	stats, err := h.svc.Stats(r.Context(), filter)
	if err != nil {
		h.failure(w, err)
		return
	}
	if items == nil {
		items = []store.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reports": items,
		"total":   total,
		"limit":   limit,
		"offset":  offset,
		"stats":   stats,
	})
}

func (h *ReportsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.FeedFilter{
		Type:     strings.TrimSpace(q.Get("type")),
		Severity: strings.TrimSpace(q.Get("severity")),
		Search:   strings.TrimSpace(q.Get("search")),
	}
	stats, err := h.svc.Stats(r.Context(), filter)
	if err != nil {
		h.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (h *ReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	ref, err := reportRef(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}
	view, err := h.svc.Get(r.Context(), ref)
	if err != nil {
		h.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":                  true,
		"report":                   view.Report,
		"estimation_column_exists": view.EstimationSupported,
	})
}

type transitionRequest struct {
	Action string `json:"action"`
	reports.Payload
}

func (h *ReportsHandler) Transition(w http.ResponseWriter, r *http.Request) {
	ref, err := reportRef(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}
	var req transitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": "bad request"})
		return
	}
	action, err := reports.ParseAction(req.Action)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}
	updated, err := h.svc.Transition(r.Context(), actorFromRequest(r), ref, action, req.Payload)
	if err != nil {
		h.failure(w, err)
		return
	}
	resp := map[string]any{"success": true}
	if updated != nil {
		resp["report"] = updated
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ReportsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ref, err := reportRef(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "message": err.Error()})
		return
	}
	if _, err := h.svc.Transition(r.Context(), actorFromRequest(r), ref, reports.ActionDelete, reports.Payload{}); err != nil {
		h.failure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}
