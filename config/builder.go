package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/pflag"
)

// LoaderBuilder wires the standard layers:
// <dir>/config.yaml (10), <dir>/<APP_ENV>.yaml (20), env vars (50), flags (100)
type LoaderBuilder struct {
	configPath  string
	envPrefix   string
	envBindings map[string]string
	flags       *pflag.FlagSet
	flagMapping map[string]string
}

func NewLoaderBuilder() *LoaderBuilder {
	return &LoaderBuilder{}
}

func (b *LoaderBuilder) WithConfigPath(path string) *LoaderBuilder {
	b.configPath = path
	return b
}

func (b *LoaderBuilder) WithEnvPrefix(prefix string) *LoaderBuilder {
	b.envPrefix = prefix
	return b
}

// WithEnvBindings maps config keys containing underscores to env vars
func (b *LoaderBuilder) WithEnvBindings(bindings map[string]string) *LoaderBuilder {
	b.envBindings = bindings
	return b
}

func (b *LoaderBuilder) WithFlags(flags *pflag.FlagSet, mapping map[string]string) *LoaderBuilder {
	b.flags = flags
	b.flagMapping = mapping
	return b
}

// Build creates and loads the loader
func (b *LoaderBuilder) Build() (*Loader, error) {
	loader := NewLoader()

	if b.configPath != "" {
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, "config.yaml"), 10))
		loader.AddSource(NewFileSource(filepath.Join(b.configPath, GetEnv()+".yaml"), 20))
	}
	if b.envPrefix != "" {
		env := NewEnvSource(b.envPrefix, 50)
		for key, envKey := range b.envBindings {
			env.AddBinding(key, envKey)
		}
		loader.AddSource(env)
	}
	if b.flags != nil {
		loader.AddSource(NewFlagSource(b.flags, b.flagMapping, 100))
	}

	if err := loader.Load(); err != nil {
		return nil, err
	}
	return loader, nil
}

// GetEnv returns APP_ENV, then ENV, then "dev"
func GetEnv() string {
	if env := os.Getenv("APP_ENV"); env != "" {
		return env
	}
	if env := os.Getenv("ENV"); env != "" {
		return env
	}
	return "dev"
}
