package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/negsched/app"
	"github.com/kilianp07/negsched/infra/logger"
)

var serveOpts struct {
	scenario string
	interval time.Duration
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the planning API and re-plan a scenario periodically",
	RunE:  serve,
}

func init() {
	f := serveCmd.Flags()
	f.StringVarP(&serveOpts.scenario, "scenario", "s", "", "scenario file re-planned on every tick (empty serves the API only)")
	f.DurationVar(&serveOpts.interval, "interval", time.Minute, "time between runs")
	rootCmd.AddCommand(serveCmd)
}

func serve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
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
	return svc.Run(ctx, serveOpts.scenario, serveOpts.interval)
}
