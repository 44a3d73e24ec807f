package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Generate or validate configuration files",
	Long: `Manage terminal configuration files.

Subcommands:
  init     - Generate a default configuration file
  validate - Validate an existing configuration file

Examples:
  trader config init -o levterm.yaml
  trader config validate -f levterm.yaml`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Generate a default configuration file",
	Long: `Create a new configuration file with default settings. The format
follows the file extension (.json for JSON, YAML otherwise).

Example:
  trader config init -o levterm.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a configuration file",
	Long: `Check if a configuration file is valid and can be loaded.

Example:
  trader config validate -f levterm.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

var configInitOutput string

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configValidateCmd)

	configInitCmd.Flags().StringVarP(&configInitOutput, "output", "o", "levterm.yaml", "output config file path")
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.SaveToFile(configInitOutput); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Printf("✓ Created configuration: %s\n", configInitOutput)
	fmt.Println("\nEdit the file and run with:")
	fmt.Printf("  trader run -f %s\n", configInitOutput)
	return nil
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if configPath == "" {
		return fmt.Errorf("validate: --config is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Printf("✓ Configuration valid: %s\n", configPath)
	fmt.Printf("  Account: $%.2f\n", cfg.Account.Cash)
	fmt.Printf("  Risk: %dx, lot %s, SL %d%%, TP %d%%\n", cfg.Risk.Leverage, cfg.Risk.LotSize, cfg.Risk.StopLossPct, cfg.Risk.TakeProfitPct)
	fmt.Printf("  Feed: %s %s", cfg.Feed.Symbol, cfg.Feed.Timeframe)
	if cfg.Feed.Offline {
		fmt.Printf(" (offline)")
	}
	fmt.Println()
	fmt.Printf("  Terminal: generator %s, min confidence %.2f, autonomous %v\n", cfg.Terminal.Generator, cfg.Terminal.MinConfidence, cfg.Terminal.Autonomous)
	fmt.Printf("  Journal: %s\n", cfg.Journal.Type)
	return nil
}
