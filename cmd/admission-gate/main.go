// Command admission-gate runs the per-caller admission gate and the ordered
// queue forwarder.
//
// Usage:
//
//	# Serve HTTP with ./configs/config.yaml and ./configs/<APP_ENV>.yaml
//	admission-gate serve
//
//	# Ask for one decision without serving
//	admission-gate check --key ip:10.0.0.1 --path /api/ai/generate --tier pro
//
//	# Forward a payload read from a file or stdin
//	admission-gate forward --file payload.json
//
//	# Fail fast on a bad policy table
//	admission-gate validate-config --config-dir ./configs
package main

import "os"

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
