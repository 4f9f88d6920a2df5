package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/negsched/app"
	"github.com/kilianp07/negsched/core/model"
	"github.com/kilianp07/negsched/core/scenario"
	"github.com/kilianp07/negsched/infra/logger"
	"github.com/kilianp07/negsched/pkg/export"
)

var solveOpts struct {
	scenario string
	k        int
	budget   time.Duration
	publish  bool
	exclude  bool
	format   string
}

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Plan a scenario and print the ranked solutions",
	RunE:  solve,
}

func init() {
	f := solveCmd.Flags()
	f.StringVarP(&solveOpts.scenario, "scenario", "s", "", "scenario file (yaml or json)")
	f.IntVarP(&solveOpts.k, "k", "k", 0, "number of alternatives (0 uses solver.k)")
	f.DurationVar(&solveOpts.budget, "budget", 0, "time budget (0 uses solver.time_budget_ms)")
	f.BoolVar(&solveOpts.publish, "publish", false, "publish the report over MQTT")
	f.BoolVar(&solveOpts.exclude, "exclude-infeasible", false, "drop structurally infeasible legs instead of failing")
	f.StringVar(&solveOpts.format, "format", "json", "output format: json (full report) or csv (assignments only)")
	_ = solveCmd.MarkFlagRequired("scenario")
	rootCmd.AddCommand(solveCmd)
}

func solve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if solveOpts.exclude {
		cfg.Solver.ExcludeInfeasible = true
	}
	sc, err := scenario.Load(solveOpts.scenario)
	if err != nil {
		return err
	}
	if solveOpts.format != "json" && solveOpts.format != "csv" {
		return fmt.Errorf("unknown format %q", solveOpts.format)
	}
	if solveOpts.publish && cfg.MQTT.Broker == "" {
		return fmt.Errorf("--publish needs mqtt.broker in the configuration")
	}

	svc, err := app.New(cfg, app.WithLogOutput(cmd.ErrOrStderr()))
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	rep, solveErr := svc.Solve(ctx, sc, solveOpts.k, solveOpts.budget)
	if solveOpts.publish {
		if err := svc.Publish(ctx, &rep); err != nil {
			return err
		}
	}
	if err := writeReport(cmd.OutOrStdout(), rep); err != nil {
		return err
	}
	return solveErr
}

func writeReport(w io.Writer, rep app.Report) error {
	if solveOpts.format == "csv" {
		sols := make([]model.Solution, len(rep.Solutions))
		for i, s := range rep.Solutions {
			sols[i] = s.Solution
		}
		return export.WriteCSV(w, sols)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}
