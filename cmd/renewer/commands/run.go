package commands

import (
	"log/slog"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Runs one renewal batch over every configured account and sends the report.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		a := loadApp(cmd, true)
		flush := a.setupTracing(cmd.Context())
		defer flush()

		slog.Info("starting batch", "accounts", len(a.cfg.Accounts), "workers", a.cfg.Workers)
		report := a.batchRunner().Run(cmd.Context(), a.cfg.PortalAccounts())
		slog.Info(
			"batch finished",
			"succeeded", report.Succeeded(),
			"accounts", len(report.Outcomes),
			"seconds", report.FinishedAt.Sub(report.StartedAt).Seconds(),
		)
	},
}
