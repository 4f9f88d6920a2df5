// Package enumerate produces up to K distinct ranked solutions by re-running
// the solver kernel with the signature of every solution found so far
// forbidden.
package enumerate

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/kilianp07/negsched/core/compat"
	"github.com/kilianp07/negsched/core/logger"
	"github.com/kilianp07/negsched/core/model"
	"github.com/kilianp07/negsched/core/solver"
)

// DefaultK is the number of alternatives returned when the caller does not
// ask for a specific count.
const DefaultK = 5

// Enumerator drives repeated kernel runs over one index.
type Enumerator struct {
	kernel *solver.Kernel
	// Budget bounds the whole enumeration, all re-solves included.
	Budget time.Duration
	// DisableLPBound is passed to every kernel run.
	DisableLPBound bool
	log            logger.Logger
}

// New returns an enumerator using kernel; a nil kernel gets a default one.
func New(kernel *solver.Kernel, budget time.Duration, log logger.Logger) *Enumerator {
	log = logger.OrNop(log)
	if kernel == nil {
		kernel = solver.NewKernel(log)
	}
	return &Enumerator{kernel: kernel, Budget: budget, log: log}
}

// Run returns up to k solutions in non-decreasing cost order with pairwise
// distinct signatures, Rank starting at 1. k <= 0 means DefaultK.
//
// The first kernel error is returned as is. Later ones end the enumeration:
// a *solver.NoFeasibleSolution means the alternatives are exhausted, an
// expired budget keeps what was found.
func (e *Enumerator) Run(ctx context.Context, idx *compat.Index, k int) ([]model.Solution, error) {
	if k <= 0 {
		k = DefaultK
	}
	var deadline time.Time
	if e.Budget > 0 {
		deadline = time.Now().Add(e.Budget)
	}
	var (
		out     []model.Solution
		noGoods []model.Signature
	)
	for len(out) < k {
		opts := solver.Options{NoGoods: noGoods, DisableLPBound: e.DisableLPBound}
		if !deadline.IsZero() {
			opts.Budget = time.Until(deadline)
			if opts.Budget <= 0 {
				e.log.Debugf("enumeration budget spent after %d solutions", len(out))
				break
			}
		}
		sol, err := e.kernel.Solve(ctx, idx, opts)
		if err != nil {
			if len(out) == 0 {
				return nil, err
			}
			var nf *solver.NoFeasibleSolution
			switch {
			case errors.As(err, &nf):
				e.log.Debugf("no further alternative after %d solutions", len(out))
			case errors.Is(err, solver.ErrSearchBudgetExceeded):
				e.log.Debugf("budget exceeded while looking for alternative %d", len(out)+1)
			default:
				e.log.Warnf("alternative %d failed: %v", len(out)+1, err)
			}
			break
		}
		out = append(out, sol)
		noGoods = append(noGoods, sol.Signature())
		if sol.Status == model.StatusBudgetExceeded {
			// budget spent
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Cost < out[j].Cost })
	for i := range out {
		out[i].Rank = i + 1
	}
	e.log.Infof("enumerated %d of %d requested alternatives", len(out), k)
	return out, nil
}
