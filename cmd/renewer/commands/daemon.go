package commands

import (
	"log/slog"

	"euserv-renewer/internal/components/chrono"
	"euserv-renewer/internal/components/serviceutil"

	"github.com/spf13/cobra"
)

var daemonRunNow bool

func init() {
	daemonCmd.Flags().BoolVar(&daemonRunNow, "now", false, "Also run a batch right away.")
	rootCmd.AddCommand(daemonCmd)
}

var daemonCmd = &cobra.Command{
	Use:   "daemon [--now]",
	Short: "Runs renewal batches on the configured cron schedule until interrupted.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		a := loadApp(cmd, true)
		flush := a.setupTracing(ctx)
		defer flush()

		batch := a.batchRunner()
		accounts := a.cfg.PortalAccounts()
		runBatch := func() {
			report := batch.Run(ctx, accounts)
			slog.Info("batch finished", "succeeded", report.Succeeded(), "accounts", len(report.Outcomes))
		}

		cron := chrono.NewStandardCron(a.tel, a.location)
		err := cron.Cron(a.cfg.Schedule, runBatch)
		if err != nil {
			serviceutil.Fatal("invalid schedule", err)
		}
		slog.Info("scheduled renewal batches", "schedule", a.cfg.Schedule, "accounts", len(accounts))

		if daemonRunNow {
			runBatch()
		}

		<-ctx.Done()
		slog.Info("stopping, waiting for a running batch")
		cron.Stop()
	},
}
