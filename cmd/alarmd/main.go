package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"alarmd/internal/config"
)

var (
	cfgPath  string
	envFiles []string
)

var rootCmd = &cobra.Command{
	Use:   "alarmd",
	Short: "alarmd - delayed reminder delivery",
	Long: `alarmd accepts reminders over HTTP and delivers each one by email or
Telegram at its due time.

Examples:
  alarmd serve --config ./alarmd.yaml
  alarmd check-config --config ./alarmd.yaml`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return config.LoadDotenv(envFiles...)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "./alarmd.yaml", "path to alarmd.yaml or .json")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkConfigCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
