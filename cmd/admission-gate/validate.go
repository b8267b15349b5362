package main

import (
	"fmt"

	"github.com/chrlshc/Huntaze-sub010/di"
	"github.com/chrlshc/Huntaze-sub010/validator"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Load and validate the configuration without connecting",
	Long: `Merge config files, environment and flags, apply defaults and validate
every section. The policy table is checked first; any error exits non-zero.`,
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	_, cfg, err := di.LoadConfig(di.ConfigOptions{
		ConfigPath:  rootFlags.configDir,
		EnvPrefix:   rootFlags.envPrefix,
		Flags:       cmd.Flags(),
		FlagMapping: flagMapping,
	})
	if err != nil {
		for field, msg := range validator.Fields(err) {
			fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", field, msg)
		}
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "config ok: %d route policies, store %s, kafka %s\n",
		len(cfg.Policies.Routes), enabled(cfg.Store.Enabled), enabled(cfg.Kafka.Enabled))
	return nil
}

func enabled(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
