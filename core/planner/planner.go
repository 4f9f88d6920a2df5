package planner

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/negsched/core/compat"
	"github.com/kilianp07/negsched/core/diagnostics"
	"github.com/kilianp07/negsched/core/enumerate"
	"github.com/kilianp07/negsched/core/events"
	"github.com/kilianp07/negsched/core/logger"
	"github.com/kilianp07/negsched/core/metrics"
	"github.com/kilianp07/negsched/core/model"
	"github.com/kilianp07/negsched/core/solver"
	"github.com/kilianp07/negsched/infra/runlog"
	"github.com/kilianp07/negsched/internal/eventbus"
)

// Outcome labels used for metrics, events and the run log when no solution
// carries a status of its own.
const (
	StatusInvalidInput            = "invalid_input"
	StatusStructuralInfeasibility = "structural_infeasibility"
	StatusInfeasible              = "infeasible"
	StatusSearchBudgetExceeded    = "search_budget_exceeded"
	StatusError                   = "error"
)

// DefaultBudget bounds a request that sets no budget of its own.
const DefaultBudget = 10 * time.Second

// Config holds planner-wide defaults. Request fields override them.
type Config struct {
	TurnBufferMinutes int
	Airports          compat.Airports
	K                 int
	Budget            time.Duration
	ExcludeInfeasible bool
	DisableLPBound    bool
}

// Request is one scheduling question. Legs, tails and policy are copied into
// the compatibility index; the caller may reuse them afterwards.
type Request struct {
	// ID identifies the request in logs and metrics; a UUID is generated
	// when empty.
	ID     string
	Legs   []model.Leg
	Tails  []model.Tail
	Policy model.LeverPolicy
	// K is the number of alternatives wanted; zero uses the planner default.
	K int
	// Budget bounds the whole enumeration; zero uses the planner default.
	Budget time.Duration
	// ExcludeInfeasible drops structurally infeasible legs instead of
	// failing the request.
	ExcludeInfeasible bool
}

// Result is the outcome of one request.
type Result struct {
	RequestID string                           `json:"request_id"`
	Solutions []model.Solution                 `json:"solutions"`
	Excluded  []compat.StructuralInfeasibility `json:"excluded,omitempty"`
	Elapsed   time.Duration                    `json:"elapsed"`

	idx *compat.Index
}

// Best returns the rank 1 solution.
func (r *Result) Best() (model.Solution, bool) {
	if r == nil || len(r.Solutions) == 0 {
		return model.Solution{}, false
	}
	return r.Solutions[0], true
}

// Explain lists, per lever used in sol, the constraint that forced it.
func (r *Result) Explain(sol model.Solution) []diagnostics.Explanation {
	if r == nil {
		return nil
	}
	return diagnostics.Explain(r.idx, sol)
}

// ExplainError lists the legs behind a structural or search infeasibility
// returned by Solve together with r.
func (r *Result) ExplainError(err error) []diagnostics.Explanation {
	if r == nil {
		return diagnostics.ExplainInfeasible(nil, err)
	}
	return diagnostics.ExplainInfeasible(r.idx, err)
}

// Planner answers scheduling requests. It keeps no per-request state and is
// safe for concurrent use.
type Planner struct {
	cfg     Config
	kernel  *solver.Kernel
	logger  logger.Logger
	metrics metrics.MetricsSink
	bus     eventbus.EventBus
	store   runlog.Store
}

// Option customises a Planner.
type Option func(*Planner)

// WithLogger sets the planner logger.
func WithLogger(l logger.Logger) Option { return func(p *Planner) { p.logger = logger.OrNop(l) } }

// WithMetrics sets the sink receiving one event per request.
func WithMetrics(m metrics.MetricsSink) Option {
	return func(p *Planner) {
		if m != nil {
			p.metrics = m
		}
	}
}

// WithEventBus publishes planner events on bus.
func WithEventBus(bus eventbus.EventBus) Option { return func(p *Planner) { p.bus = bus } }

// WithRunLog persists a record of every request.
func WithRunLog(s runlog.Store) Option { return func(p *Planner) { p.store = s } }

// New creates a planner with the given defaults.
func New(cfg Config, opts ...Option) *Planner {
	if cfg.K <= 0 {
		cfg.K = enumerate.DefaultK
	}
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	p := &Planner{cfg: cfg, logger: logger.NopLogger{}, metrics: metrics.NopSink{}}
	for _, o := range opts {
		o(p)
	}
	p.kernel = solver.NewKernel(p.logger)
	return p
}

// Solve validates the request, builds the compatibility index and returns
// up to K ranked solutions. On error the returned Result carries no
// solution but still identifies the request and can explain the failure.
//
// Errors are *model.ValidationError for bad input,
// *compat.StructuralInfeasibilityError when a mandatory leg has no placement
// and the request does not exclude such legs, *solver.NoFeasibleSolution
// when the search space is exhausted, or wrap solver.ErrSearchBudgetExceeded
// when the budget ran out before any solution.
func (p *Planner) Solve(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	id := req.ID
	if id == "" {
		id = uuid.NewString()
	}
	k := req.K
	if k <= 0 {
		k = p.cfg.K
	}
	budget := req.Budget
	if budget <= 0 {
		budget = p.cfg.Budget
	}
	res := &Result{RequestID: id}
	fail := func(status string, err error) (*Result, error) {
		res.Elapsed = time.Since(start)
		p.logger.Warnf("request %s failed (%s): %v", id, status, err)
		p.publish(events.PlanFailed{RequestID: id, Status: status, Err: err})
		p.record(ctx, req, res, status, err)
		return res, err
	}

	policy, err := model.NewLeverPolicy(req.Policy)
	if err != nil {
		return fail(StatusInvalidInput, err)
	}
	opts := compat.Options{TurnBufferMinutes: p.cfg.TurnBufferMinutes, Airports: p.cfg.Airports}
	idx, err := compat.Build(req.Legs, req.Tails, policy, opts)
	if err != nil {
		return fail(StatusInvalidInput, err)
	}
	if err := idx.Err(); err != nil {
		if !req.ExcludeInfeasible && !p.cfg.ExcludeInfeasible {
			return fail(StatusStructuralInfeasibility, err)
		}
		res.Excluded = idx.Infeasible()
		idx, err = compat.Build(withoutLegs(req.Legs, res.Excluded), req.Tails, policy, opts)
		if err != nil {
			return fail(StatusInvalidInput, err)
		}
		p.logger.Warnf("request %s: excluded %d structurally infeasible legs", id, len(res.Excluded))
		p.publish(events.LegsExcluded{RequestID: id, Legs: res.Excluded})
	}
	res.idx = idx

	p.logger.Infof("request %s: planning %d legs on %d tails (k=%d, budget=%s)", id, len(idx.Legs()), len(idx.Tails()), k, budget)
	p.publish(events.PlanRequested{RequestID: id, Legs: len(idx.Legs()), Tails: len(idx.Tails()), K: k, Budget: budget})

	en := enumerate.New(p.kernel, budget, p.logger)
	en.DisableLPBound = p.cfg.DisableLPBound
	sols, err := en.Run(ctx, idx, k)
	if err != nil {
		return fail(errorStatus(err), err)
	}
	if len(sols) == 0 {
		return fail(StatusSearchBudgetExceeded, solver.ErrSearchBudgetExceeded)
	}
	res.Solutions = sols
	res.Elapsed = time.Since(start)

	best := sols[0]
	status := string(best.Status)
	p.logger.Infof("request %s: %d solutions, best cost %.2f (%s) in %s", id, len(sols), best.Cost, status, res.Elapsed)
	p.logger.Debugw("planner result", map[string]any{
		"request_id":  id,
		"solutions":   len(sols),
		"best_cost":   best.Cost,
		"lower_bound": best.LowerBound,
		"nodes":       best.Stats.Nodes,
	})
	p.publish(events.PlanCompleted{RequestID: id, Status: status, Solutions: len(sols), BestCost: best.Cost, Elapsed: res.Elapsed})
	p.record(ctx, req, res, status, nil)
	return res, nil
}

// Diagnose explains the levers used by sol, one of the solutions of res.
func (p *Planner) Diagnose(res *Result, sol model.Solution) []diagnostics.Explanation {
	return res.Explain(sol)
}

// errorStatus maps a solve error onto an outcome label.
func errorStatus(err error) string {
	var nf *solver.NoFeasibleSolution
	switch {
	case errors.As(err, &nf):
		return StatusInfeasible
	case errors.Is(err, solver.ErrSearchBudgetExceeded):
		return StatusSearchBudgetExceeded
	default:
		return StatusError
	}
}

func withoutLegs(legs []model.Leg, excluded []compat.StructuralInfeasibility) []model.Leg {
	drop := make(map[string]bool, len(excluded))
	for _, e := range excluded {
		drop[e.LegID] = true
	}
	out := make([]model.Leg, 0, len(legs))
	for _, l := range legs {
		if !drop[l.ID()] {
			out = append(out, l)
		}
	}
	return out
}

func (p *Planner) publish(e eventbus.Event) {
	if p.bus != nil {
		p.bus.Publish(e)
	}
}

// record feeds the metrics sink and the run log. Failures there never fail
// the request.
func (p *Planner) record(ctx context.Context, req Request, res *Result, status string, solveErr error) {
	ev := metrics.SolveEvent{
		RequestID: res.RequestID,
		Status:    status,
		Legs:      len(req.Legs),
		Tails:     len(req.Tails),
		Excluded:  len(res.Excluded),
		Solutions: len(res.Solutions),
		Duration:  res.Elapsed,
		Time:      time.Now(),
	}
	if best, ok := res.Best(); ok {
		ev.BestCost = best.Cost
		ev.LowerBound = best.LowerBound
		for _, s := range res.Solutions {
			ev.Nodes += s.Stats.Nodes
		}
	}
	if err := p.metrics.RecordSolve(ev); err != nil {
		p.logger.Errorf("record solve metrics: %v", err)
	}
	if lr, ok := p.metrics.(metrics.LeverRecorder); ok && len(res.Solutions) > 0 {
		if err := lr.RecordLeverUsage(LeverUsage(res.RequestID, res.idx.Policy(), res.Solutions, ev.Time)); err != nil {
			p.logger.Errorf("record lever usage: %v", err)
		}
	}

	if p.store == nil {
		return
	}
	rec := runlog.RunRecord{
		Timestamp: ev.Time,
		RequestID: res.RequestID,
		Status:    status,
		LegIDs:    make([]string, 0, len(req.Legs)),
		TailIDs:   make([]string, 0, len(req.Tails)),
		Policy:    req.Policy,
		Solutions: res.Solutions,
		Excluded:  res.Excluded,
		Duration:  res.Elapsed,
	}
	for _, l := range req.Legs {
		rec.LegIDs = append(rec.LegIDs, l.ID())
	}
	for _, t := range req.Tails {
		rec.TailIDs = append(rec.TailIDs, t.ID())
	}
	sort.Strings(rec.LegIDs)
	sort.Strings(rec.TailIDs)
	if solveErr != nil {
		rec.Error = solveErr.Error()
	}
	if err := p.store.Append(context.WithoutCancel(ctx), rec); err != nil {
		p.logger.Errorf("append run record: %v", err)
	}
}
