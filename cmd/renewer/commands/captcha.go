package commands

import (
	"fmt"
	"os"

	"euserv-renewer/internal/captcha"
	"euserv-renewer/internal/components/serviceutil"

	"github.com/spf13/cobra"
)

var captchaCleanedOut string

func init() {
	captchaCmd.Flags().StringVar(&captchaCleanedOut, "cleaned", "", "Also write the preprocessed image to this path.")
	rootCmd.AddCommand(captchaCmd)
}

var captchaCmd = &cobra.Command{
	Use:   "captcha <image> [--cleaned <out.png>]",
	Short: "Solves a saved captcha image with the configured OCR service.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		a := loadApp(cmd, false)

		image, err := os.ReadFile(args[0])
		if err != nil {
			serviceutil.Fatal("failed to read image", err)
		}

		if captchaCleanedOut != "" {
			cleaned, err := captcha.Preprocess(image, captcha.DefaultFilter)
			if err != nil {
				serviceutil.Fatal("failed to preprocess image", err)
			}
			err = os.WriteFile(captchaCleanedOut, cleaned, 0o644)
			if err != nil {
				serviceutil.Fatal("failed to write cleaned image", err)
			}
		}

		answer, err := a.solver.Solve(cmd.Context(), image)
		if err != nil {
			serviceutil.Fatal("failed to solve captcha", err)
		}
		fmt.Println(answer)
	},
}
