package commands

import (
	"fmt"

	"euserv-renewer/internal/components/serviceutil"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(pinCmd)
}

var pinCmd = &cobra.Command{
	Use:   "pin <account email>",
	Short: "Prints the PIN from the newest portal mail of a configured account.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := loadApp(cmd, true)

		account, ok := a.cfg.FindAccount(args[0])
		if !ok {
			serviceutil.Fatal("unknown account", fmt.Errorf("%s is not configured", args[0]))
		}

		pin, err := a.pins.Fetch(cmd.Context(), account.PortalAccount().Mailbox)
		if err != nil {
			serviceutil.Fatal("failed to fetch pin", err)
		}
		fmt.Println(pin)
	},
}
