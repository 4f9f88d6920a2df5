package runs

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kilianp07/negsched/infra/runlog"
)

// NewHandler returns an HTTP handler exposing planner runs via GET /api/runs.
// Requests must include an Authorization header with "Bearer <token>" when token is non-empty.
func NewHandler(store runlog.Store, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		v := r.URL.Query()
		q := runlog.Query{
			RequestID: v.Get("request_id"),
			Status:    v.Get("status"),
			LegID:     v.Get("leg_id"),
			TailID:    v.Get("tail_id"),
		}
		var err error
		if q.Start, err = parseTime(v.Get("start")); err != nil {
			http.Error(w, "bad start: "+err.Error(), http.StatusBadRequest)
			return
		}
		if q.End, err = parseTime(v.Get("end")); err != nil {
			http.Error(w, "bad end: "+err.Error(), http.StatusBadRequest)
			return
		}
		records, err := store.Query(r.Context(), q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if records == nil {
			records = []runlog.RunRecord{}
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(records); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	})
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}
