package commands

import (
	"context"
	"fmt"
	"os"

	"euserv-renewer/internal/components/telemetry"

	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	dumpDir    string
)

var rootCmd = &cobra.Command{
	Use:   "renewer",
	Short: "renewer keeps EUserv contracts extended across several accounts.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		telemetry.InitSlog(os.Stderr, verbose)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "renewer.json5", "The json5 config file, searched for in parent directories unless set.")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show debug output.")
	rootCmd.PersistentFlags().StringVar(&dumpDir, "dump-dir", "", "Write every portal request and response to this directory.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
