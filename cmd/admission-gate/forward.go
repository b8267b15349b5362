package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/chrlshc/Huntaze-sub010/forwarder"
	"github.com/spf13/cobra"
)

var forwardFlags struct {
	file string
}

var forwardCmd = &cobra.Command{
	Use:   "forward",
	Short: "Forward one JSON payload to the queue",
	Long: `Read a payload such as {"action":"send_message","creator_id":"c-1"} from
--file, or stdin when --file is "-", and run it through the forwarder.
Exits non-zero unless the payload was forwarded.`,
	RunE: runForward,
}

func init() {
	rootCmd.AddCommand(forwardCmd)
	forwardCmd.Flags().StringVarP(&forwardFlags.file, "file", "f", "-", "payload file, - for stdin")
}

func readPayload(cmd *cobra.Command) (forwarder.Payload, error) {
	var r io.Reader = cmd.InOrStdin()
	if forwardFlags.file != "-" {
		f, err := os.Open(forwardFlags.file)
		if err != nil {
			return forwarder.Payload{}, err
		}
		defer f.Close()
		r = f
	}

	var p forwarder.Payload
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		return forwarder.Payload{}, fmt.Errorf("decode payload: %w", err)
	}
	return p, nil
}

func runForward(cmd *cobra.Command, args []string) error {
	p, err := readPayload(cmd)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	app, err := startApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer func() { _ = app.Shutdown(context.Background()) }()

	fwd, err := app.Forwarder()
	if err != nil {
		return err
	}
	out := fwd.Process(ctx, p)
	if err := printJSON(cmd, map[string]interface{}{
		"disposition":  out.Disposition,
		"ordering_key": out.OrderingKey,
		"dedup_key":    out.DedupKey,
		"retry_after":  out.RetryAfter,
		"duplicate":    out.Receipt.Duplicate,
	}); err != nil {
		return err
	}

	switch out.Disposition {
	case forwarder.Forwarded:
		return nil
	case forwarder.Delayed:
		return fmt.Errorf("delayed: retry after %ds", out.RetryAfter)
	default:
		if out.Err == nil {
			return forwarder.ErrQueueSendFailure
		}
		return out.Err
	}
}
