package plan

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/kilianp07/negsched/core/scenario"
)

// SolveFunc plans sc and returns the report sent back to the caller. A
// non-nil error still comes with a report describing the failure.
type SolveFunc func(ctx context.Context, sc scenario.Scenario, k int, budget time.Duration) (any, error)

type problem struct {
	Error  string   `json:"error"`
	Issues []string `json:"issues,omitempty"`
}

// NewHandler returns an HTTP handler planning the JSON scenario posted to
// /api/plan. Optional query parameters k and budget (a Go duration) override
// the solver defaults. Requests must include an Authorization header with
// "Bearer <token>" when token is non-empty.
//
// A planning failure answers 422 with the report; malformed input answers
// 400 with one issue per rejected record.
func NewHandler(solve SolveFunc, token string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if token != "" && r.Header.Get("Authorization") != "Bearer "+token {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		k, budget, err := params(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, problem{Error: err.Error()})
			return
		}
		sc, err := scenario.Decode(http.MaxBytesReader(w, r.Body, 8<<20), "json")
		if err != nil {
			p := problem{Error: "invalid scenario"}
			for _, ve := range scenario.ValidationErrors(err) {
				p.Issues = append(p.Issues, ve.Error())
			}
			if len(p.Issues) == 0 {
				p.Error = err.Error()
			}
			writeJSON(w, http.StatusBadRequest, p)
			return
		}
		rep, err := solve(r.Context(), sc, k, budget)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, rep)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})
}

func params(r *http.Request) (int, time.Duration, error) {
	var (
		k      int
		budget time.Duration
		err    error
	)
	v := r.URL.Query()
	if s := v.Get("k"); s != "" {
		if k, err = strconv.Atoi(s); err != nil {
			return 0, 0, err
		}
	}
	if s := v.Get("budget"); s != "" {
		if budget, err = time.ParseDuration(s); err != nil {
			return 0, 0, err
		}
	}
	return k, budget, nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
