package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/chrlshc/Huntaze-sub010/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve admission and forwarding over HTTP",
	Long: `Start the HTTP server. Every request except the health probes passes the
admission gate; POST /v1/forward is registered only when kafka is enabled.

SIGINT or SIGTERM drains in-flight requests, then closes the store, the
producer and the telemetry exporters.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := startApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	srv, err := server.New(app)
	if err != nil {
		return err
	}
	return srv.Run(ctx)
}
