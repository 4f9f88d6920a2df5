package model

import (
	"fmt"
	"math"
	"sort"
)

// Shift directions accepted by LeverPolicy.ShiftDirection.
const (
	ShiftBoth  = "both"
	ShiftLate  = "late"
	ShiftEarly = "early"
)

// ShiftBucket is one permitted time-shift magnitude and its cost. A shift of
// s minutes falls into the smallest bucket whose Minutes is >= |s|.
type ShiftBucket struct {
	Minutes int     `json:"minutes" yaml:"minutes"`
	Cost    float64 `json:"cost" yaml:"cost"`
}

// Lever is an on/off relaxation with a flat cost per use.
type Lever struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Cost    float64 `json:"cost" yaml:"cost"`
}

// OutsourceLever prices handing a leg to a third-party operator. Ceiling
// bounds the total outsourcing spend of one solution; zero means unlimited.
type OutsourceLever struct {
	Enabled bool    `json:"enabled" yaml:"enabled"`
	Cost    float64 `json:"cost" yaml:"cost"`
	Ceiling float64 `json:"ceiling,omitempty" yaml:"ceiling,omitempty"`
}

// DutyOverride lets a tail exceed its duty cap by ToleranceMinutes. Cost is
// charged once per tail that uses the tolerance.
type DutyOverride struct {
	Enabled          bool    `json:"enabled" yaml:"enabled"`
	ToleranceMinutes int     `json:"tolerance_minutes" yaml:"tolerance_minutes"`
	Cost             float64 `json:"cost" yaml:"cost"`
}

// LeverPolicy bounds how far the solver may relax reality. It is plain data
// so that callers can build it from configuration; Validate is re-run on
// every solve.
type LeverPolicy struct {
	ShiftBuckets   []ShiftBucket  `json:"shift_buckets,omitempty" yaml:"shift_buckets,omitempty"`
	ShiftDirection string         `json:"shift_direction,omitempty" yaml:"shift_direction,omitempty"`
	Swap           Lever          `json:"swap" yaml:"swap"`
	Outsource      OutsourceLever `json:"outsource" yaml:"outsource"`
	Skip           Lever          `json:"skip" yaml:"skip"`
	DutyOverride   DutyOverride   `json:"duty_override" yaml:"duty_override"`
}

// NewLeverPolicy normalises p (bucket order, default direction) and validates it.
func NewLeverPolicy(p LeverPolicy) (LeverPolicy, error) {
	out := p
	out.ShiftBuckets = append([]ShiftBucket(nil), p.ShiftBuckets...)
	sort.SliceStable(out.ShiftBuckets, func(i, j int) bool {
		return out.ShiftBuckets[i].Minutes < out.ShiftBuckets[j].Minutes
	})
	if out.ShiftDirection == "" {
		out.ShiftDirection = ShiftBoth
	}
	if err := out.Validate(); err != nil {
		return LeverPolicy{}, err
	}
	return out, nil
}

// Validate checks costs and bounds. Costs of disabled levers are ignored.
func (p LeverPolicy) Validate() error {
	switch p.ShiftDirection {
	case "", ShiftBoth, ShiftLate, ShiftEarly:
	default:
		return invalid("policy", "", "shift_direction", fmt.Sprintf("unknown direction %q", p.ShiftDirection))
	}
	prev := 0
	for i, b := range p.ShiftBuckets {
		field := fmt.Sprintf("shift_buckets[%d]", i)
		if b.Minutes <= 0 {
			return invalid("policy", "", field+".minutes", "must be positive")
		}
		if b.Minutes <= prev {
			return invalid("policy", "", field+".minutes", "must be unique and ascending")
		}
		prev = b.Minutes
		if !validCost(b.Cost) {
			return invalid("policy", "", field+".cost", "must be finite and non-negative")
		}
	}
	if p.Swap.Enabled && !validCost(p.Swap.Cost) {
		return invalid("policy", "", "swap.cost", "must be finite and non-negative")
	}
	if p.Outsource.Enabled {
		if !validCost(p.Outsource.Cost) {
			return invalid("policy", "", "outsource.cost", "must be finite and non-negative")
		}
		if !validCost(p.Outsource.Ceiling) {
			return invalid("policy", "", "outsource.ceiling", "must be finite and non-negative")
		}
	}
	if p.Skip.Enabled && !validCost(p.Skip.Cost) {
		return invalid("policy", "", "skip.cost", "must be finite and non-negative")
	}
	if p.DutyOverride.Enabled {
		if p.DutyOverride.ToleranceMinutes <= 0 {
			return invalid("policy", "", "duty_override.tolerance_minutes", "must be positive")
		}
		if !validCost(p.DutyOverride.Cost) {
			return invalid("policy", "", "duty_override.cost", "must be finite and non-negative")
		}
	}
	return nil
}

func validCost(c float64) bool {
	return c >= 0 && !math.IsInf(c, 0) && !math.IsNaN(c)
}

// LateShifts reports whether departures may be moved past the window.
func (p LeverPolicy) LateShifts() bool {
	return len(p.ShiftBuckets) > 0 && p.ShiftDirection != ShiftEarly
}

// EarlyShifts reports whether departures may be moved before the window.
func (p LeverPolicy) EarlyShifts() bool {
	return len(p.ShiftBuckets) > 0 && p.ShiftDirection != ShiftLate
}

// MaxShift returns the largest bucket magnitude, or 0 without buckets.
func (p LeverPolicy) MaxShift() int {
	if len(p.ShiftBuckets) == 0 {
		return 0
	}
	return p.ShiftBuckets[len(p.ShiftBuckets)-1].Minutes
}

// Bucket returns the bucket covering a signed shift in minutes. A zero shift
// is always covered at zero cost.
func (p LeverPolicy) Bucket(shift int) (ShiftBucket, bool) {
	if shift == 0 {
		return ShiftBucket{}, true
	}
	if shift > 0 && !p.LateShifts() || shift < 0 && !p.EarlyShifts() {
		return ShiftBucket{}, false
	}
	mag := shift
	if mag < 0 {
		mag = -mag
	}
	for _, b := range p.ShiftBuckets {
		if b.Minutes >= mag {
			return b, true
		}
	}
	return ShiftBucket{}, false
}

// DutyTolerance returns the extra minutes a tail may carry past its cap.
func (p LeverPolicy) DutyTolerance() int {
	if !p.DutyOverride.Enabled {
		return 0
	}
	return p.DutyOverride.ToleranceMinutes
}
