package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilianp07/negsched/core/compat"
	"github.com/kilianp07/negsched/core/model"
	"github.com/kilianp07/negsched/core/scenario"
)

var validateScenario string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a scenario for bad records and legs no tail can fly",
	RunE:  validate,
}

func init() {
	validateCmd.Flags().StringVarP(&validateScenario, "scenario", "s", "", "scenario file (yaml or json)")
	_ = validateCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(validateCmd)
}

func validate(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	sc, loadErr := scenario.Load(validateScenario)
	records := scenario.ValidationErrors(loadErr)
	if loadErr != nil && len(records) == 0 {
		return loadErr
	}
	for _, ve := range records {
		fmt.Fprintln(out, ve)
	}

	policy := cfg.Policy
	if sc.Policy != nil {
		policy = *sc.Policy
	}
	policy, err = model.NewLeverPolicy(policy)
	if err != nil {
		return err
	}
	airports, err := cfg.Airports.Load()
	if err != nil {
		return err
	}
	idx, err := compat.Build(sc.Legs, sc.Tails, policy, compat.Options{
		TurnBufferMinutes: cfg.Solver.TurnBuffer(),
		Airports:          airports,
	})
	if err != nil {
		return err
	}
	infeasible := idx.Infeasible()
	for _, si := range infeasible {
		fmt.Fprintln(out, si)
	}

	if n := len(records) + len(infeasible); n > 0 {
		return fmt.Errorf("%d problems found", n)
	}
	fmt.Fprintf(out, "ok: %d legs, %d tails\n", len(sc.Legs), len(sc.Tails))
	return nil
}
