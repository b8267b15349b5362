package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"

	"github.com/chrlshc/Huntaze-sub010/di"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootFlags struct {
	configDir string
	envPrefix string
	envFile   string
}

// flagMapping binds persistent flags to config keys; flags outrank every file
// and environment variable
var flagMapping = map[string]string{
	"listen":           "http.listen",
	"log-level":        "logger.level",
	"on-store-failure": "admission.on_store_failure",
}

var rootCmd = &cobra.Command{
	Use:           "admission-gate",
	Short:         "Per-caller admission gate and ordered queue forwarder",
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := godotenv.Load(rootFlags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", rootFlags.envFile, err)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&rootFlags.configDir, "config-dir", "./configs", "directory holding config.yaml and <APP_ENV>.yaml")
	pf.StringVar(&rootFlags.envPrefix, "env-prefix", "ADMISSION", "environment variable prefix")
	pf.StringVar(&rootFlags.envFile, "env-file", ".env", "dotenv file loaded before the config")
	pf.String("listen", "", "HTTP listen address, e.g. :8080")
	pf.String("log-level", "", "log level: debug, info, warn, error")
	pf.String("on-store-failure", "", "open admits without the store, closed rejects")
}

func Execute() error {
	return rootCmd.Execute()
}

func configOptions(cmd *cobra.Command) []di.Option {
	return []di.Option{
		di.WithConfigPath(rootFlags.configDir),
		di.WithEnvPrefix(rootFlags.envPrefix),
		di.WithFlags(cmd.Flags(), flagMapping),
	}
}

// startApp sets up and starts the application; the caller shuts it down
func startApp(ctx context.Context, cmd *cobra.Command) (*di.Application, error) {
	app := di.NewApplication(configOptions(cmd)...)
	if err := app.Setup(); err != nil {
		return nil, err
	}
	if err := app.Start(ctx); err != nil {
		_ = app.Shutdown(ctx)
		return nil, err
	}
	return app, nil
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
