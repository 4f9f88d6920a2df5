package solver

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSearchBudgetExceeded is returned when the budget expires before any
// feasible solution is found. When a solution exists it is returned instead,
// tagged model.StatusBudgetExceeded.
var ErrSearchBudgetExceeded = errors.New("search budget exceeded")

// NoFeasibleSolution reports that the search space was exhausted. Legs lists
// the legs that had no admissible branch at some point of the search;
// Excluded is the number of no-good signatures in force.
type NoFeasibleSolution struct {
	Legs     []string
	Excluded int
}

func (e *NoFeasibleSolution) Error() string {
	msg := "no feasible solution"
	if e.Excluded > 0 {
		msg = fmt.Sprintf("no feasible solution besides %d excluded alternatives", e.Excluded)
	}
	if len(e.Legs) == 0 {
		return msg
	}
	return msg + ": cannot place legs " + strings.Join(e.Legs, ", ")
}
