package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zj591227045/wxauto-mgt/internal/rules"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

type ruleRequest struct {
	Name           string `json:"name"`
	InstanceID     string `json:"instance_id"`
	ChatPattern    string `json:"chat_pattern"`
	PlatformID     string `json:"platform_id"`
	Priority       int    `json:"priority"`
	Enabled        *bool  `json:"enabled"`
	OnlyAtMessages bool   `json:"only_at_messages"`
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	rs, err := s.store.ListRules()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rs)
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.store.GetRule(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Name == "" || req.ChatPattern == "" || req.PlatformID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "name, chat_pattern, and platform_id are required"})
		return
	}
	instanceID := req.InstanceID
	if instanceID == "" {
		instanceID = "*"
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now()
	rule := store.Rule{
		RuleID:         uuid.NewString(),
		Name:           req.Name,
		InstanceID:     instanceID,
		ChatPattern:    req.ChatPattern,
		PlatformID:     req.PlatformID,
		Priority:       req.Priority,
		Enabled:        enabled,
		OnlyAtMessages: req.OnlyAtMessages,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.store.UpsertRule(rule); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateRules()
	writeJSON(w, http.StatusCreated, rule)
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.GetRule(id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req ruleRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.InstanceID != "" {
		existing.InstanceID = req.InstanceID
	}
	if req.ChatPattern != "" {
		existing.ChatPattern = req.ChatPattern
	}
	if req.PlatformID != "" {
		existing.PlatformID = req.PlatformID
	}
	existing.Priority = req.Priority
	existing.OnlyAtMessages = req.OnlyAtMessages
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	existing.UpdatedAt = time.Now()

	if err := s.store.UpsertRule(existing); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateRules()
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteRule(id); err != nil {
		writeError(w, err)
		return
	}
	s.invalidateRules()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleRuleConflicts reports advisory chat_pattern overlaps across every
// enabled rule, per the conservative detector in internal/rules.
func (s *Server) handleRuleConflicts(w http.ResponseWriter, r *http.Request) {
	rs, err := s.store.ListEnabledRules()
	if err != nil {
		writeError(w, err)
		return
	}
	conflicts := rules.FindConflicts(rs)
	if conflicts == nil {
		conflicts = []rules.Conflict{}
	}
	writeJSON(w, http.StatusOK, conflicts)
}

func (s *Server) invalidateRules() {
	if s.rules != nil {
		s.rules.Invalidate()
	}
	if s.configs != nil {
		s.configs.Notify("rule")
	}
}
