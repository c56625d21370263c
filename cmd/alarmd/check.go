package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"alarmd/internal/config"
	"alarmd/internal/notifier"
)

var checkConfigCmd = &cobra.Command{
	Use:   "check-config",
	Short: "Validate the config file and environment, then exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.NewManager(cfgPath).Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "config ok: %s\n", cfgPath)

		smtp := cfg.Notifier.SMTP
		if notifier.IsPlaceholder(smtp.Sender) || notifier.IsPlaceholder(smtp.Password) {
			fmt.Fprintln(out, "warning: email sender credentials are placeholders; email deliveries will fail")
		}
		if notifier.IsPlaceholder(cfg.Notifier.Telegram.Token) {
			fmt.Fprintln(out, "note: telegram token not set; telegram deliveries will fail")
		}
		return nil
	},
}
