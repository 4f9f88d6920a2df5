package solver

import (
	"errors"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/negsched/core/compat"
)

// maxLPVars caps the relaxation size; larger instances fall back to the
// per-leg bound.
const maxLPVars = 4000

var errNoRelaxation = errors.New("no relaxation to solve")

// relaxation is the LP relaxation of the assignment model without time
// windows: each leg picks a fractional mix of branches, tails respect their
// duty caps (tolerance included).
type relaxation struct {
	cost []float64
	// eq[i] lists the variables of leg i.
	eq [][]int
	// duty[r] holds the variable/coefficient pairs of tail row r.
	dutyVars  [][]int
	dutyCoef  [][]float64
	dutyLimit []float64
}

func buildRelaxation(idx *compat.Index) relaxation {
	p := idx.Policy()
	var r relaxation
	rows := make(map[int]int)
	for i, l := range idx.Legs() {
		var vars []int
		add := func(c float64) int {
			r.cost = append(r.cost, c)
			v := len(r.cost) - 1
			vars = append(vars, v)
			return v
		}
		for _, c := range idx.Candidates(i) {
			cost := 0.0
			if c.Swap {
				cost = p.Swap.Cost
			}
			v := add(cost)
			row, ok := rows[c.Tail]
			if !ok {
				row = len(r.dutyLimit)
				rows[c.Tail] = row
				r.dutyLimit = append(r.dutyLimit, float64(idx.Tail(c.Tail).DutyCapMinutes()+p.DutyTolerance()))
				r.dutyVars = append(r.dutyVars, nil)
				r.dutyCoef = append(r.dutyCoef, nil)
			}
			r.dutyVars[row] = append(r.dutyVars[row], v)
			r.dutyCoef[row] = append(r.dutyCoef[row], float64(idx.BlockMinutes(i)))
		}
		if l.Mandatory() {
			if idx.OutsourceAllowed(i) {
				add(p.Outsource.Cost)
			}
			if p.Skip.Enabled {
				add(p.Skip.Cost)
			}
		} else {
			add(0)
		}
		r.eq = append(r.eq, vars)
	}
	return r
}

// solveLP runs the simplex algorithm on the relaxation and returns its
// optimal objective. The model is built directly in standard form: leg rows
// sum to one and every duty row gets a slack column.
func solveLP(r relaxation) (float64, error) {
	nVar := len(r.cost)
	if nVar == 0 || len(r.dutyLimit) == 0 || len(r.eq) == 0 {
		return 0, errNoRelaxation
	}
	for _, vars := range r.eq {
		if len(vars) == 0 {
			return 0, lp.ErrInfeasible
		}
	}
	nRows := len(r.eq) + len(r.dutyLimit)
	nCols := nVar + len(r.dutyLimit)
	a := mat.NewDense(nRows, nCols, nil)
	b := make([]float64, nRows)
	for row, vars := range r.eq {
		for _, v := range vars {
			a.Set(row, v, 1)
		}
		b[row] = 1
	}
	for d := range r.dutyLimit {
		row := len(r.eq) + d
		for p, v := range r.dutyVars[d] {
			a.Set(row, v, r.dutyCoef[d][p])
		}
		a.Set(row, nVar+d, 1)
		b[row] = r.dutyLimit[d]
	}
	c := make([]float64, nCols)
	copy(c, r.cost)
	opt, _, err := lp.Simplex(c, a, b, 1e-9, nil)
	return opt, err
}

// lpSolve points to the function used to solve the relaxation. Tests
// override it to simulate solver failures.
var lpSolve = solveLP

// lowerBound returns the best available lower bound on the optimal cost:
// the LP relaxation when it solves, never below the sum of per-leg minima.
func lowerBound(idx *compat.Index, trivial float64) (float64, bool) {
	r := buildRelaxation(idx)
	if len(r.cost) > maxLPVars {
		return trivial, false
	}
	v, err := lpSolve(r)
	if err != nil {
		return trivial, false
	}
	if v < trivial {
		return trivial, true
	}
	return v, true
}
