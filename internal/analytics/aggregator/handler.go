package aggregator

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"
)

const (
	defaultSnapshotLimit = 24
	maxSnapshotLimit     = 500
)

// Snapshots serves GET /api/v1/analytics/snapshots?limit=&since=, newest
// first. since is RFC 3339 or a duration back from now such as "6h".
func (s *Store) Snapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultSnapshotLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSnapshotLimit)
	}
	since, err := parseSince(q.Get("since"), s.now())
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	snapshots, err := s.ListSnapshots(r.Context(), since, limit)
	if err != nil {
		s.logger.Error("listing snapshots failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "snapshots unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"snapshots": snapshots, "count": len(snapshots)})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func parseSince(raw string, now time.Time) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return now.Add(-d), nil
	}
	return time.Time{}, errors.New("since must be an RFC 3339 time or a positive duration")
}
