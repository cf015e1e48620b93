package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zj591227045/wxauto-mgt/internal/platform"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// platformRequest is the wire shape for platform create/update.
type platformRequest struct {
	Name    string              `json:"name"`
	Kind    store.PlatformKind  `json:"kind"`
	Config  map[string]any      `json:"config"`
	Enabled *bool               `json:"enabled"`
}

func (s *Server) handleListPlatforms(w http.ResponseWriter, r *http.Request) {
	ps, err := s.store.ListPlatforms()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ps)
}

func (s *Server) handleGetPlatform(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.GetPlatform(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleCreatePlatform(w http.ResponseWriter, r *http.Request) {
	var req platformRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Name == "" || req.Kind == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "name and kind are required"})
		return
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}
	now := time.Now()
	p := store.Platform{
		PlatformID: uuid.NewString(),
		Name:       req.Name,
		Kind:       req.Kind,
		Config:     req.Config,
		Enabled:    enabled,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.UpsertPlatform(p); err != nil {
		writeError(w, err)
		return
	}
	s.invalidatePlatform()
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) handleUpdatePlatform(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.GetPlatform(id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req platformRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.Kind != "" {
		existing.Kind = req.Kind
	}
	if req.Config != nil {
		existing.Config = req.Config
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	existing.UpdatedAt = time.Now()

	if err := s.store.UpsertPlatform(existing); err != nil {
		writeError(w, err)
		return
	}
	s.invalidatePlatform()
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeletePlatform(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeletePlatform(id); err != nil {
		writeError(w, err)
		return
	}
	s.invalidatePlatform()
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// testPlatformRequest carries an ad hoc message to probe a platform
// without going through the delivery dispatcher.
type testPlatformRequest struct {
	Content  string `json:"content"`
	Sender   string `json:"sender"`
	ChatName string `json:"chat_name"`
}

func (s *Server) handleTestPlatform(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req testPlatformRequest
	if err := readJSON(r, &req); err != nil || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "content is required"})
		return
	}

	impl, err := s.platforms.Get(id)
	if err != nil {
		writeError(w, err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	sender := req.Sender
	if sender == "" {
		sender = "test-probe"
	}
	chatName := req.ChatName
	if chatName == "" {
		chatName = "test"
	}

	reply, err := impl.ProcessMessage(ctx, platform.Envelope{
		Content:  req.Content,
		Sender:   sender,
		ChatName: chatName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) invalidatePlatform() {
	if s.platforms != nil {
		s.platforms.InvalidateAll()
	}
	if s.configs != nil {
		s.configs.Notify("platform")
	}
}
