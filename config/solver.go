package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/negsched/core/compat"
	"github.com/kilianp07/negsched/core/enumerate"
)

// SolverConfig holds the planner defaults.
type SolverConfig struct {
	// K is the number of ranked alternatives returned per request.
	K int `json:"k"`
	// TimeBudgetMS bounds one request, enumeration included.
	TimeBudgetMS int `json:"time_budget_ms"`
	// TurnBufferMinutes is the idle time between two legs on one tail.
	// Unset means compat.DefaultTurnBufferMinutes; zero is allowed.
	TurnBufferMinutes *int `json:"turn_buffer_minutes"`
	// ExcludeInfeasible drops structurally infeasible legs instead of
	// failing the request.
	ExcludeInfeasible bool `json:"exclude_infeasible"`
	DisableLPBound    bool `json:"disable_lp_bound"`
}

// SetDefaults applies sane defaults.
func (c *SolverConfig) SetDefaults() {
	if c.K == 0 {
		c.K = enumerate.DefaultK
	}
	if c.TimeBudgetMS == 0 {
		c.TimeBudgetMS = 10000
	}
	if c.TurnBufferMinutes == nil {
		v := compat.DefaultTurnBufferMinutes
		c.TurnBufferMinutes = &v
	}
}

// Validate checks the bounds.
func (c SolverConfig) Validate() error {
	if c.K < 1 {
		return fmt.Errorf("k must be at least 1")
	}
	if c.TimeBudgetMS < 1 {
		return fmt.Errorf("time_budget_ms must be positive")
	}
	if c.TurnBufferMinutes != nil && *c.TurnBufferMinutes < 0 {
		return fmt.Errorf("turn_buffer_minutes must not be negative")
	}
	return nil
}

// Budget returns the time budget as a duration.
func (c SolverConfig) Budget() time.Duration {
	return time.Duration(c.TimeBudgetMS) * time.Millisecond
}

// TurnBuffer returns the configured turn buffer.
func (c SolverConfig) TurnBuffer() int {
	if c.TurnBufferMinutes == nil {
		return compat.DefaultTurnBufferMinutes
	}
	return *c.TurnBufferMinutes
}
