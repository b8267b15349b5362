package main

import (
	"context"

	"github.com/chrlshc/Huntaze-sub010/server"
	"github.com/spf13/cobra"
)

var checkFlags struct {
	key  string
	path string
	tier string
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Ask the gate for one decision",
	Long: `Resolve the policy for --path and --tier and admit one request for --key
against the configured store. The decision consumes quota like a real request.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)
	checkCmd.Flags().StringVar(&checkFlags.key, "key", "", "caller key, e.g. ip:10.0.0.1")
	checkCmd.Flags().StringVar(&checkFlags.path, "path", "/", "request path")
	checkCmd.Flags().StringVar(&checkFlags.tier, "tier", "", "caller tier")
	_ = checkCmd.MarkFlagRequired("key")
}

func runCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	app, err := startApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	d, err := app.Gate().Admit(ctx, checkFlags.key, checkFlags.path, checkFlags.tier)
	if err != nil {
		return err
	}
	return printJSON(cmd, server.NewCheckResponse(d))
}
