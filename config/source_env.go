package config

import (
	"os"
	"strings"
)

// EnvSource reads PREFIX_* environment variables.
// PREFIX_STORE_ENABLED maps to store.enabled; keys containing underscores
// need an explicit binding.
type EnvSource struct {
	prefix   string
	priority int
	bindings map[string]string // config key -> env var (without prefix)
}

func NewEnvSource(prefix string, priority int) *EnvSource {
	return &EnvSource{prefix: prefix, priority: priority, bindings: make(map[string]string)}
}

// AddBinding maps a config key to an env var, e.g.
// AddBinding("store.key_prefix", "STORE_KEY_PREFIX")
func (s *EnvSource) AddBinding(key, envKey string) *EnvSource {
	s.bindings[key] = envKey
	return s
}

func (s *EnvSource) Name() string  { return "env:" + s.prefix }
func (s *EnvSource) Priority() int { return s.priority }

func (s *EnvSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if s.prefix == "" && len(s.bindings) == 0 {
		return result, nil
	}

	bound := make(map[string]bool, len(s.bindings))
	for key, envKey := range s.bindings {
		full := s.fullName(envKey)
		bound[full] = true
		if value, ok := os.LookupEnv(full); ok && value != "" {
			result[key] = value
		}
	}

	if s.prefix == "" {
		return result, nil
	}
	prefix := s.prefix + "_"
	for _, env := range os.Environ() {
		name, value, ok := strings.Cut(env, "=")
		if !ok || !strings.HasPrefix(name, prefix) || bound[name] {
			continue
		}
		key := strings.ToLower(strings.TrimPrefix(name, prefix))
		result[strings.ReplaceAll(key, "_", ".")] = value
	}
	return result, nil
}

func (s *EnvSource) fullName(envKey string) string {
	if s.prefix == "" || strings.HasPrefix(envKey, s.prefix+"_") {
		return envKey
	}
	return s.prefix + "_" + envKey
}
