package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

// instanceRequest is the wire shape for instance create/update. APIKey is
// write-only: it is never echoed back (Instance.APIKeyRedacted is, via the
// instance's own json tags).
type instanceRequest struct {
	Name    string               `json:"name"`
	BaseURL string               `json:"base_url"`
	APIKey  string               `json:"api_key"`
	Enabled *bool                `json:"enabled"`
	Config  *store.InstanceConfig `json:"config"`
}

func (s *Server) handleListInstances(w http.ResponseWriter, r *http.Request) {
	insts, err := s.store.ListInstances()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, insts)
}

func (s *Server) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := s.store.GetInstance(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleCreateInstance(w http.ResponseWriter, r *http.Request) {
	var req instanceRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Name == "" || req.BaseURL == "" || req.APIKey == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "name, base_url, and api_key are required"})
		return
	}

	cfg := store.DefaultInstanceConfig()
	if req.Config != nil {
		cfg = *req.Config
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	now := time.Now()
	inst := store.Instance{
		InstanceID: uuid.NewString(),
		Name:       req.Name,
		BaseURL:    req.BaseURL,
		APIKey:     req.APIKey,
		Enabled:    enabled,
		Status:     store.StatusInitializing,
		Config:     cfg,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.UpsertInstance(inst); err != nil {
		writeError(w, err)
		return
	}
	s.notifyAndPool(inst)
	writeJSON(w, http.StatusCreated, inst)
}

func (s *Server) handleUpdateInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	existing, err := s.store.GetInstance(id)
	if err != nil {
		writeError(w, err)
		return
	}

	var req instanceRequest
	if err := readJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid JSON body"})
		return
	}
	if req.Name != "" {
		existing.Name = req.Name
	}
	if req.BaseURL != "" {
		existing.BaseURL = req.BaseURL
	}
	if req.APIKey != "" {
		existing.APIKey = req.APIKey
	}
	if req.Config != nil {
		existing.Config = *req.Config
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}
	existing.UpdatedAt = time.Now()

	if err := s.store.UpsertInstance(existing); err != nil {
		writeError(w, err)
		return
	}
	s.notifyAndPool(existing)
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.store.DeleteInstance(id); err != nil {
		writeError(w, err)
		return
	}
	if s.agents != nil {
		s.agents.Remove(id)
	}
	if s.configs != nil {
		s.configs.Notify("instance:" + id)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleEnableInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inst, err := s.store.GetInstance(id)
	if err != nil {
		writeError(w, err)
		return
	}
	inst.Enabled = true
	inst.Status = store.StatusInitializing
	inst.UpdatedAt = time.Now()
	if err := s.store.UpsertInstance(inst); err != nil {
		writeError(w, err)
		return
	}
	s.notifyAndPool(inst)
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleDisableInstance(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inst, err := s.store.GetInstance(id)
	if err != nil {
		writeError(w, err)
		return
	}
	inst.Enabled = false
	inst.Status = store.StatusDisabled
	inst.UpdatedAt = time.Now()
	if err := s.store.SetInstanceStatus(id, store.StatusDisabled, ""); err != nil {
		writeError(w, err)
		return
	}
	if err := s.store.UpsertInstance(inst); err != nil {
		writeError(w, err)
		return
	}
	if s.agents != nil {
		s.agents.Remove(id)
	}
	if s.configs != nil {
		s.configs.Notify("instance:" + id)
	}
	writeJSON(w, http.StatusOK, inst)
}

func (s *Server) handleInstanceStatus(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	inst, err := s.store.GetInstance(id)
	if err != nil {
		writeError(w, err)
		return
	}
	listeners, err := s.store.ListListeners(id)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := InstanceStatusResponse{
		InstanceID:     inst.InstanceID,
		Status:         string(inst.Status),
		LastError:      inst.LastError,
		LastActiveTS:   inst.LastActiveTS,
		ListenerCount:  len(listeners),
		ClientHealthy:  false,
	}
	if s.agents != nil {
		if client, err := s.agents.Get(id); err == nil {
			resp.ClientHealthy = client.Initialized()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// InstanceStatusResponse is the payload for GET /api/instances/{id}/status.
type InstanceStatusResponse struct {
	InstanceID    string    `json:"instance_id"`
	Status        string    `json:"status"`
	LastError     string    `json:"last_error,omitempty"`
	LastActiveTS  time.Time `json:"last_active_ts"`
	ListenerCount int       `json:"listener_count"`
	ClientHealthy bool      `json:"client_healthy"`
}

// notifyAndPool installs/replaces the pooled agent client for inst and
// notifies config subscribers, mirroring what a real boot-time wiring does
// for an instance created or mutated through the API (§4.C "one client per
// enabled instance").
func (s *Server) notifyAndPool(inst store.Instance) {
	if s.agents != nil {
		if inst.Enabled {
			client := agentpool.New(inst.InstanceID, inst.BaseURL, inst.APIKey)
			client.Configure(inst.Config)
			s.agents.Put(inst.InstanceID, client)
		} else {
			s.agents.Remove(inst.InstanceID)
		}
	}
	if s.configs != nil {
		s.configs.Notify("instance:" + inst.InstanceID)
	}
}
