package app

import (
	"errors"

	"github.com/kilianp07/negsched/core/compat"
	"github.com/kilianp07/negsched/core/diagnostics"
	"github.com/kilianp07/negsched/core/model"
	"github.com/kilianp07/negsched/core/planner"
	"github.com/kilianp07/negsched/core/solver"
)

// RankedSolution is a solution together with the reasons behind each lever
// it pulls.
type RankedSolution struct {
	model.Solution
	Explanations []diagnostics.Explanation `json:"explanations,omitempty"`
}

// Report is the caller-facing outcome of one planning request. It is what
// the CLI prints and what gets published to the negotiation workflow.
type Report struct {
	RequestID string                           `json:"request_id"`
	Status    string                           `json:"status"`
	Solutions []RankedSolution                 `json:"solutions,omitempty"`
	Excluded  []compat.StructuralInfeasibility `json:"excluded,omitempty"`
	// Infeasible explains a failed request leg by leg.
	Infeasible []diagnostics.Explanation `json:"infeasible,omitempty"`
	Error      string                    `json:"error,omitempty"`
	ElapsedMS  int64                     `json:"elapsed_ms"`
	Published  bool                      `json:"published,omitempty"`
	Acked      bool                      `json:"acked,omitempty"`
}

// NewReport assembles a report from the planner outcome.
func NewReport(res *planner.Result, err error) Report {
	rep := Report{}
	if res != nil {
		rep.RequestID = res.RequestID
		rep.Excluded = res.Excluded
		rep.ElapsedMS = res.Elapsed.Milliseconds()
	}
	if err != nil {
		rep.Status = failureStatus(err)
		rep.Error = err.Error()
		rep.Infeasible = res.ExplainError(err)
		return rep
	}
	rep.Solutions = make([]RankedSolution, 0, len(res.Solutions))
	for _, s := range res.Solutions {
		rep.Solutions = append(rep.Solutions, RankedSolution{Solution: s, Explanations: res.Explain(s)})
	}
	if best, ok := res.Best(); ok {
		rep.Status = string(best.Status)
	}
	return rep
}

func failureStatus(err error) string {
	var ve *model.ValidationError
	var si *compat.StructuralInfeasibilityError
	var nf *solver.NoFeasibleSolution
	switch {
	case errors.As(err, &ve):
		return planner.StatusInvalidInput
	case errors.As(err, &si):
		return planner.StatusStructuralInfeasibility
	case errors.As(err, &nf):
		return planner.StatusInfeasible
	case errors.Is(err, solver.ErrSearchBudgetExceeded):
		return planner.StatusSearchBudgetExceeded
	default:
		return planner.StatusError
	}
}
