package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/zj591227045/wxauto-mgt/internal/agentpool"
	"github.com/zj591227045/wxauto-mgt/internal/store"
)

func (s *Server) handleListListeners(w http.ResponseWriter, r *http.Request) {
	instanceID := r.URL.Query().Get("instance_id")
	if instanceID != "" {
		ls, err := s.store.ListListeners(instanceID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, ls)
		return
	}
	ls, err := s.store.ListAllListeners()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

type addListenerRequest struct {
	InstanceID string `json:"instance_id"`
	ChatName   string `json:"chat_name"`
}

// handleAddListener adds a manual listener (the user-initiated counterpart
// to the ingest loops' automatic discovery, per §4.D's "manual" flag).
func (s *Server) handleAddListener(w http.ResponseWriter, r *http.Request) {
	var req addListenerRequest
	if err := readJSON(r, &req); err != nil || req.InstanceID == "" || req.ChatName == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "instance_id and chat_name are required"})
		return
	}

	inst, err := s.store.GetInstance(req.InstanceID)
	if err != nil {
		writeError(w, err)
		return
	}
	count, err := s.store.CountListeners(req.InstanceID)
	if err != nil {
		writeError(w, err)
		return
	}
	if count >= inst.Config.MaxListeners {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "listener capacity reached"})
		return
	}

	if s.agents != nil {
		client, err := s.agents.Get(req.InstanceID)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()
		if err := client.AddListener(ctx, req.ChatName, agentpool.AddListenerOptions{Manual: true}); err != nil {
			writeError(w, err)
			return
		}
	}

	now := time.Now()
	l := store.Listener{
		InstanceID:    req.InstanceID,
		ChatName:      req.ChatName,
		AddedTS:       now,
		LastMessageTS: now,
		Manual:        true,
		State:         store.ListenerInactive,
	}
	if err := s.store.UpsertListener(l); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (s *Server) handleRemoveListener(w http.ResponseWriter, r *http.Request) {
	instanceID := r.PathValue("instance_id")
	chatName := r.PathValue("chat_name")

	if s.agents != nil {
		if client, err := s.agents.Get(instanceID); err == nil {
			ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
			client.RemoveListener(ctx, chatName)
			cancel()
		}
	}
	if err := s.store.DeleteListener(instanceID, chatName); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
