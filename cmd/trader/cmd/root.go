package cmd

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "trader",
	Short: "A leveraged trading terminal with a simulated exchange account",
	Long: `Trader streams market data, computes indicators, generates trade
signals and runs a leveraged position against a simulated account.

It provides tools for:
  - Running the terminal loop with manual or autonomous trading
  - Evaluating the signal rules for a symbol
  - Executing trades and inspecting the resulting account
  - Querying the trade journal`,
	SilenceUsage: true,
}

var (
	configPath string
	logLevel   string
	offline    bool
)

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "f", "", "path to config file (YAML or JSON), defaults are used when empty")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override log.level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "use synthetic market data only")
}
