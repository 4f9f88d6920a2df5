// Package runlog keeps an audit trail of planner runs: the request summary,
// the ranked solutions and anything excluded. It is a caller-side concern;
// the planner itself stays free of I/O.
package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/negsched/core/compat"
	"github.com/kilianp07/negsched/core/factory"
	"github.com/kilianp07/negsched/core/model"
)

// RunRecord captures one planner run.
type RunRecord struct {
	Timestamp time.Time                        `json:"timestamp"`
	RequestID string                           `json:"request_id"`
	Status    string                           `json:"status"`
	LegIDs    []string                         `json:"leg_ids"`
	TailIDs   []string                         `json:"tail_ids"`
	Policy    model.LeverPolicy                `json:"policy"`
	Solutions []model.Solution                 `json:"solutions,omitempty"`
	Excluded  []compat.StructuralInfeasibility `json:"excluded,omitempty"`
	Error     string                           `json:"error,omitempty"`
	Duration  time.Duration                    `json:"duration"`
}

// Query defines filters for retrieving records. Zero fields match anything.
type Query struct {
	Start     time.Time
	End       time.Time
	RequestID string
	Status    string
	// LegID matches runs that scheduled the leg.
	LegID string
	// TailID matches runs whose best solution flew a leg on the tail.
	TailID string
}

// Store persists RunRecords and supports querying.
type Store interface {
	Append(ctx context.Context, rec RunRecord) error
	Query(ctx context.Context, q Query) ([]RunRecord, error)
	Close() error
}

// matches applies the filters that the backends cannot express natively.
func (q Query) matches(r RunRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.RequestID != "" && r.RequestID != q.RequestID {
		return false
	}
	if q.Status != "" && r.Status != q.Status {
		return false
	}
	if q.LegID != "" && !contains(r.LegIDs, q.LegID) {
		return false
	}
	if q.TailID != "" {
		if len(r.Solutions) == 0 {
			return false
		}
		if _, ok := r.Solutions[0].ByTail()[q.TailID]; !ok {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

var storeRegistry = factory.NewRegistry[Store]()

func init() {
	_ = storeRegistry.Register("nop", func(map[string]any) (Store, error) { return NopStore{}, nil })
	_ = storeRegistry.Register("jsonl", func(conf map[string]any) (Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			return nil, fmt.Errorf("jsonl run log requires a path")
		}
		return NewJSONLStore(c.Path)
	})
	_ = storeRegistry.Register("sqlite", func(conf map[string]any) (Store, error) {
		var c struct {
			DSN string `json:"dsn"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.DSN == "" {
			return nil, fmt.Errorf("sqlite run log requires a dsn")
		}
		return NewSQLiteStore(c.DSN)
	})
}

// NewStore creates the store described by cfg. An empty type disables the
// run log.
func NewStore(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		return NopStore{}, nil
	}
	return storeRegistry.Create(cfg)
}

// NopStore discards every record.
type NopStore struct{}

func (NopStore) Append(context.Context, RunRecord) error           { return nil }
func (NopStore) Query(context.Context, Query) ([]RunRecord, error) { return nil, nil }
func (NopStore) Close() error                                      { return nil }
