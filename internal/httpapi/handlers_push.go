package httpapi

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/zj591227045/wxauto-mgt/internal/listener"
)

// handleMessagesSSE streams newly ingested messages over server-sent
// events, following the teacher's handleSSE shape (subscribe, initial
// comment so EventSource fires onopen, heartbeat ticker, flush per event).
func (s *Server) handleMessagesSSE(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		http.Error(w, "message tailing unavailable", http.StatusServiceUnavailable)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := s.events.Subscribe()
	if ch == nil {
		http.Error(w, "too many subscribers", http.StatusServiceUnavailable)
		return
	}
	defer s.events.Unsubscribe(ch)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprintf(w, ": heartbeat\n\n")
			flusher.Flush()
		case event, ok := <-ch:
			if !ok {
				return
			}
			s.writeMessageEvent(w, flusher, event)
		}
	}
}

// writeMessageEvent resolves the full message for an ingest event and
// writes it as one SSE frame, falling back to the bare event on a store
// miss (the message may have since been deleted by a retention sweep).
func (s *Server) writeMessageEvent(w http.ResponseWriter, flusher http.Flusher, event listener.IngestedEvent) {
	var payload any = event
	if msg, err := s.store.GetMessage(event.MessageID); err == nil {
		payload = msg
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", data)
	flusher.Flush()
}

var statusUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// statusSnapshot is the periodic payload pushed over /ws/status: the
// service-wide backlog counters plus per-instance health, letting a
// dashboard avoid polling GET /api/instances and /api/system/resources.
type statusSnapshot struct {
	Instances []instanceStatusSummary `json:"instances"`
	Pending   int                     `json:"pending_messages"`
	Failed    int                     `json:"failed_messages"`
}

type instanceStatusSummary struct {
	InstanceID string `json:"instance_id"`
	Status     string `json:"status"`
	Enabled    bool   `json:"enabled"`
}

// handleStatusWS pushes a statusSnapshot every few seconds over a
// WebSocket connection. Unlike the SSE message channel, status is a
// bidirectional connection in principle (a client could later send
// filter commands); gorilla/websocket is used here rather than SSE for
// that reason, matching spec.md §6's "push channel (server-sent events or
// WebSocket)" either-or.
func (s *Server) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := statusUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		snap, err := s.buildStatusSnapshot()
		if err == nil {
			if err := conn.WriteJSON(snap); err != nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (s *Server) buildStatusSnapshot() (statusSnapshot, error) {
	insts, err := s.store.ListInstances()
	if err != nil {
		return statusSnapshot{}, err
	}
	counts, err := s.store.PendingCounts()
	if err != nil {
		return statusSnapshot{}, err
	}

	snap := statusSnapshot{
		Instances: make([]instanceStatusSummary, 0, len(insts)),
		Pending:   counts.Pending,
		Failed:    counts.Failed,
	}
	for _, inst := range insts {
		snap.Instances = append(snap.Instances, instanceStatusSummary{
			InstanceID: inst.InstanceID,
			Status:     string(inst.Status),
			Enabled:    inst.Enabled,
		})
	}
	return snap, nil
}
