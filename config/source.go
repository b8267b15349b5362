// Package config loads layered configuration (files, env vars, CLI flags) into viper.
package config

// ConfigSource is one configuration layer.
// Suggested priorities: config.yaml 10, <env>.yaml 20, environment 50, flags 100.
type ConfigSource interface {
	// Name identifies the source in errors and logs
	Name() string

	// Priority decides merge order; higher wins
	Priority() int

	// Load returns dot-separated keys, e.g. "store.addrs"
	Load() (map[string]interface{}, error)
}
