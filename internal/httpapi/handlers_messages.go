package httpapi

import (
	"net/http"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/zj591227045/wxauto-mgt/internal/store"
)

const defaultMessageLimit = 100

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	instanceID := q.Get("instance_id")
	chatName := q.Get("chat")

	since := time.Time{}
	if raw := q.Get("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "since must be RFC3339"})
			return
		}
		since = parsed
	}

	limit := defaultMessageLimit
	if raw := q.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "limit must be a positive integer"})
			return
		}
		limit = parsed
	}

	msgs, err := s.store.ListMessages(instanceID, chatName, since, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

// SystemResourcesResponse is the payload for GET /api/system/resources.
type SystemResourcesResponse struct {
	Goroutines      int            `json:"goroutines"`
	UptimeSeconds   float64        `json:"uptime_seconds"`
	DBSizeBytes     int64          `json:"db_size_bytes"`
	InstanceCount   int            `json:"instance_count"`
	ListenerCounts  map[string]int `json:"listener_counts"`
	PendingMessages int            `json:"pending_messages"`
	Delivering      int            `json:"delivering_messages"`
	FailedMessages  int            `json:"failed_messages"`
}

// handleSystemResources reports process and backlog health, the
// supplemented payload named in the management HTTP surface's resources
// route.
func (s *Server) handleSystemResources(w http.ResponseWriter, r *http.Request) {
	insts, err := s.store.ListInstances()
	if err != nil {
		writeError(w, err)
		return
	}
	counts, err := s.store.PendingCounts()
	if err != nil {
		writeError(w, err)
		return
	}

	listenerCounts := make(map[string]int, len(insts))
	for _, inst := range insts {
		n, err := s.store.CountListeners(inst.InstanceID)
		if err != nil {
			writeError(w, err)
			return
		}
		listenerCounts[inst.InstanceID] = n
	}

	writeJSON(w, http.StatusOK, SystemResourcesResponse{
		Goroutines:      runtime.NumGoroutine(),
		UptimeSeconds:   time.Since(s.startedAt).Seconds(),
		DBSizeBytes:     dbSizeBytes(s.store),
		InstanceCount:   len(insts),
		ListenerCounts:  listenerCounts,
		PendingMessages: counts.Pending,
		Delivering:      counts.Delivering,
		FailedMessages:  counts.Failed,
	})
}

// dbSizeBytes reports the on-disk size of the underlying SQLite file, or 0
// for an in-memory database or a Store implementation that doesn't expose
// a path.
func dbSizeBytes(st store.Store) int64 {
	sq, ok := st.(*store.SQLiteStore)
	if !ok {
		return 0
	}
	path := sq.Path()
	if path == "" || path == ":memory:" {
		return 0
	}
	info, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return info.Size()
}
