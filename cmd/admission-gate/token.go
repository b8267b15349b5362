package main

import (
	"fmt"

	"github.com/chrlshc/Huntaze-sub010/di"
	"github.com/chrlshc/Huntaze-sub010/jwt"
	"github.com/spf13/cobra"
)

var tokenFlags struct {
	subject string
	tier    string
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for local testing",
	Long: `Sign a token with the configured auth secret. The subject becomes the
caller's rate limit key and --tier selects its tier overrides.`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenFlags.subject, "subject", "", "token subject")
	tokenCmd.Flags().StringVar(&tokenFlags.tier, "tier", "", "caller tier")
	_ = tokenCmd.MarkFlagRequired("subject")
}

func runToken(cmd *cobra.Command, args []string) error {
	_, cfg, err := di.LoadConfig(di.ConfigOptions{
		ConfigPath:  rootFlags.configDir,
		EnvPrefix:   rootFlags.envPrefix,
		Flags:       cmd.Flags(),
		FlagMapping: flagMapping,
	})
	if err != nil {
		return err
	}
	if !cfg.Auth.Enabled {
		return di.ErrAuthDisabled
	}

	v, err := jwt.NewVerifier(cfg.Auth)
	if err != nil {
		return err
	}
	token, err := v.Sign(tokenFlags.subject, tokenFlags.tier)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
