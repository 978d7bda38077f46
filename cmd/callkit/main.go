package main

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ent0n29/callkit/internal/config"
	"github.com/ent0n29/callkit/internal/logging"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(out io.Writer) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "callkit",
		Short:         "Register, run and verify agent voice calls",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			envFile, _ := cmd.Flags().GetString("env-file")
			if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
			return nil
		},
	}
	cmd.SetOut(out)

	cmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	cmd.PersistentFlags().Bool("json", false, "Log in JSON format")
	cmd.PersistentFlags().String("env-file", ".env", "Dotenv file loaded before reading the environment")
	cmd.PersistentFlags().String("brands", "", "Brand profiles file (overrides CALLKIT_BRANDS_FILE)")

	cmd.AddCommand(
		newServeCmd(),
		newCallCmd(),
		newReconcileCmd(),
		newBrandsCmd(),
	)
	return cmd
}

// loadConfig reads the environment and applies the persistent flags on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.LogLevel = "debug"
	}
	if jsonLogs, _ := cmd.Flags().GetBool("json"); jsonLogs {
		cfg.LogFormat = "json"
	}
	if brands, _ := cmd.Flags().GetString("brands"); strings.TrimSpace(brands) != "" {
		cfg.BrandsFile = brands
	}
	logging.Configure(cfg.LogLevel, cfg.LogFormat)
	return cfg, nil
}
