// Package scenario reads schedule, fleet and policy records from YAML or
// JSON files and turns them into validated model values. A bad record does
// not stop the others from being converted: every rejection is collected and
// returned alongside what could be built.
package scenario

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kilianp07/negsched/core/model"
)

// File is the on-disk layout of a scenario.
type File struct {
	Legs   []model.LegSpec    `json:"legs" yaml:"legs"`
	Tails  []model.TailSpec   `json:"tails" yaml:"tails"`
	Policy *model.LeverPolicy `json:"policy,omitempty" yaml:"policy,omitempty"`
}

// Scenario holds the validated records of a File. Policy is nil when the
// file carries none.
type Scenario struct {
	Legs   []model.Leg
	Tails  []model.Tail
	Policy *model.LeverPolicy
}

// Load reads a scenario from a .yaml, .yml or .json file.
func Load(path string) (Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return Scenario{}, err
	}
	defer func() { _ = f.Close() }()
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	s, err := Decode(f, ext)
	if err != nil {
		return s, fmt.Errorf("scenario %s: %w", path, err)
	}
	return s, nil
}

// Decode reads a scenario in the given format ("yaml", "yml" or "json").
// Record validation errors are joined; the returned Scenario still holds
// every record that passed.
func Decode(r io.Reader, format string) (Scenario, error) {
	var f File
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.NewDecoder(r).Decode(&f); err != nil && !errors.Is(err, io.EOF) {
			return Scenario{}, err
		}
	case "json":
		if err := json.NewDecoder(r).Decode(&f); err != nil {
			return Scenario{}, err
		}
	default:
		return Scenario{}, fmt.Errorf("unsupported format: %s", format)
	}
	return f.Build()
}

// Build validates every record.
func (f File) Build() (Scenario, error) {
	var (
		s    Scenario
		errs []error
	)
	for i, spec := range f.Legs {
		l, err := model.NewLeg(spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("legs[%d]: %w", i, err))
			continue
		}
		s.Legs = append(s.Legs, l)
	}
	for i, spec := range f.Tails {
		t, err := model.NewTail(spec)
		if err != nil {
			errs = append(errs, fmt.Errorf("tails[%d]: %w", i, err))
			continue
		}
		s.Tails = append(s.Tails, t)
	}
	if f.Policy != nil {
		p, err := model.NewLeverPolicy(*f.Policy)
		if err != nil {
			errs = append(errs, fmt.Errorf("policy: %w", err))
		} else {
			s.Policy = &p
		}
	}
	return s, errors.Join(errs...)
}

// ValidationErrors flattens an error returned by Load, Decode or Build into
// its record errors, looking through any wrapping on the way.
func ValidationErrors(err error) []*model.ValidationError {
	if err == nil {
		return nil
	}
	var out []*model.ValidationError
	var walk func(error)
	walk = func(e error) {
		switch x := e.(type) {
		case *model.ValidationError:
			out = append(out, x)
		case interface{ Unwrap() []error }:
			for _, inner := range x.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			if inner := x.Unwrap(); inner != nil {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}
