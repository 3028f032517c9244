package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"lungsod-rms/config"
	"lungsod-rms/core/auth"
	"lungsod-rms/core/rbac"
	"lungsod-rms/core/store"
	"lungsod-rms/core/utils"
)

// AccountsHandler manages portal user accounts. Only holders of
// accounts.manage reach these endpoints.
type AccountsHandler struct {
	users    store.UsersStore
	sessions store.SessionStore
	policy   *rbac.Policy
	cfg      *config.AppConfig
	audits   store.AuditStore
	logger   *utils.Logger
}

func NewAccountsHandler(users store.UsersStore, sessions store.SessionStore, policy *rbac.Policy, cfg *config.AppConfig, audits store.AuditStore, logger *utils.Logger) *AccountsHandler {
	return &AccountsHandler{
		users:    users,
		sessions: sessions,
		policy:   policy,
		cfg:      cfg,
		audits:   audits,
		logger:   logger,
	}
}

func currentUser(r *http.Request) string {
	if sess := auth.SessionFromContext(r.Context()); sess != nil {
		return sess.Username
	}
	return "system"
}

type accountPayload struct {
	Username              string   `json:"username"`
	Email                 string   `json:"email"`
	FullName              string   `json:"full_name"`
	Password              string   `json:"password"`
	Roles                 []string `json:"roles"`
	Active                *bool    `json:"active,omitempty"`
	RequirePasswordChange bool     `json:"require_password_change"`
}

func sanitizeRoles(in []string) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, r := range in {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func validUsername(name string) bool {
	if len(name) < 3 || len(name) > 64 {
		return false
	}
	for _, c := range name {
		if c >= 'a' && c <= 'z' || c >= '0' && c <= '9' || c == '.' || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}

func (h *AccountsHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	users, err := h.users.List(ctx)
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("list users: %v", err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

func (h *AccountsHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	var p accountPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	p.Username = strings.ToLower(strings.TrimSpace(p.Username))
	if !validUsername(p.Username) {
		http.Error(w, "invalid username", http.StatusBadRequest)
		return
	}
	roles := sanitizeRoles(p.Roles)
	if len(roles) == 0 {
		http.Error(w, "role required", http.StatusBadRequest)
		return
	}
	password := strings.TrimSpace(p.Password)
	generated := false
	requireChange := p.RequirePasswordChange
	if password == "" {
		tmp, err := utils.RandString(16)
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		password = tmp
		generated = true
		requireChange = true
	} else if len(password) < 10 {
		http.Error(w, "password too short", http.StatusBadRequest)
		return
	}
	hash, err := auth.HashPassword(password, h.cfg.Pepper)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	u := &store.User{
		Username:              p.Username,
		Email:                 strings.TrimSpace(p.Email),
		FullName:              strings.TrimSpace(p.FullName),
		PasswordHash:          hash,
		RequirePasswordChange: requireChange,
		Active:                true,
	}
	if p.Active != nil {
		u.Active = *p.Active
	}
	id, err := h.users.Create(ctx, u, roles)
	if err != nil {
		if h.logger != nil {
			h.logger.Errorf("create user %s: %v", p.Username, err)
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.audits.Log(r.Context(), currentUser(r), fmt.Sprintf("Account %s created", p.Username), "ok", strings.Join(roles, ","))
	resp := map[string]any{"id": id}
	if generated {
		resp["temp_password"] = password
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *AccountsHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, _ := strconv.ParseInt(pathParams(r)["id"], 10, 64)
	existing, _, err := h.users.Get(ctx, id)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	var p accountPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	sess := auth.SessionFromContext(r.Context())
	if strings.TrimSpace(p.Email) != "" {
		existing.Email = strings.TrimSpace(p.Email)
	}
	if strings.TrimSpace(p.FullName) != "" {
		existing.FullName = strings.TrimSpace(p.FullName)
	}
	var roles []string
	if p.Roles != nil {
		roles = sanitizeRoles(p.Roles)
		if len(roles) == 0 {
			http.Error(w, "role required", http.StatusBadRequest)
			return
		}
		// An admin cannot strip their own account of account management.
		if sess != nil && sess.UserID == existing.ID && !h.policy.Allowed(roles, "accounts.manage") {
			http.Error(w, "self lockout prevented", http.StatusConflict)
			h.audits.Log(r.Context(), currentUser(r), "Account self-lockout blocked", "failed", existing.Username)
			return
		}
	}
	if p.Active != nil {
		if !*p.Active && sess != nil && sess.UserID == existing.ID {
			http.Error(w, "self lockout prevented", http.StatusConflict)
			h.audits.Log(r.Context(), currentUser(r), "Account self-lockout blocked", "failed", existing.Username)
			return
		}
		existing.Active = *p.Active
	}
	if p.RequirePasswordChange {
		existing.RequirePasswordChange = true
	}
	if err := h.users.Update(ctx, existing, roles); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	// Role and status changes invalidate anything the user has open.
	if p.Roles != nil || p.Active != nil {
		if _, err := h.sessions.DeleteAllForUser(ctx, existing.ID); err != nil && h.logger != nil {
			h.logger.Errorf("kill sessions for user %d: %v", existing.ID, err)
		}
	}
	h.audits.Log(r.Context(), currentUser(r), fmt.Sprintf("Account %s updated", existing.Username), "ok", "")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *AccountsHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, _ := strconv.ParseInt(pathParams(r)["id"], 10, 64)
	existing, _, err := h.users.Get(ctx, id)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if existing == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	var payload struct {
		Password      string `json:"password"`
		RequireChange *bool  `json:"require_change"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	password := strings.TrimSpace(payload.Password)
	generated := false
	if password == "" {
		tmp, err := utils.RandString(16)
		if err != nil {
			http.Error(w, "server error", http.StatusInternalServerError)
			return
		}
		password = tmp
		generated = true
	} else if len(password) < 10 {
		http.Error(w, "password too short", http.StatusBadRequest)
		return
	}
	hash, err := auth.HashPassword(password, h.cfg.Pepper)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	requireChange := true
	if payload.RequireChange != nil {
		requireChange = *payload.RequireChange
	}
	if err := h.users.SetPassword(ctx, id, hash, "", requireChange); err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	if _, err := h.sessions.DeleteAllForUser(ctx, id); err != nil && h.logger != nil {
		h.logger.Errorf("kill sessions for user %d: %v", id, err)
	}
	h.audits.Log(r.Context(), currentUser(r), fmt.Sprintf("Password reset for %s", existing.Username), "ok", "")
	resp := map[string]any{"status": "ok"}
	if generated {
		resp["temp_password"] = password
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *AccountsHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, _ := strconv.ParseInt(pathParams(r)["id"], 10, 64)
	sessions, err := h.sessions.ListByUser(ctx, id)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (h *AccountsHandler) KillSessions(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	id, _ := strconv.ParseInt(pathParams(r)["id"], 10, 64)
	if id <= 0 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	n, err := h.sessions.DeleteAllForUser(ctx, id)
	if err != nil {
		http.Error(w, "server error", http.StatusInternalServerError)
		return
	}
	h.audits.Log(r.Context(), currentUser(r), fmt.Sprintf("Sessions revoked for user %d", id), "ok", strconv.FormatInt(n, 10))
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "revoked": n})
}
