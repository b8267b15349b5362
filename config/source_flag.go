package config

import (
	"github.com/spf13/pflag"
)

// FlagSource reads command line flags that were explicitly set.
// Flags left at their defaults never override lower layers.
type FlagSource struct {
	flags    *pflag.FlagSet
	mapping  map[string]string // flag name -> config key
	priority int
}

// NewFlagSource maps flag names to config keys, e.g. {"listen": "http.listen"}
func NewFlagSource(flags *pflag.FlagSet, mapping map[string]string, priority int) *FlagSource {
	return &FlagSource{flags: flags, mapping: mapping, priority: priority}
}

func (s *FlagSource) Name() string  { return "flags" }
func (s *FlagSource) Priority() int { return s.priority }

func (s *FlagSource) Load() (map[string]interface{}, error) {
	result := make(map[string]interface{})
	if s.flags == nil {
		return result, nil
	}
	s.flags.Visit(func(f *pflag.Flag) {
		key, ok := s.mapping[f.Name]
		if !ok {
			return
		}
		if sv, isSlice := f.Value.(pflag.SliceValue); isSlice {
			result[key] = sv.GetSlice()
			return
		}
		result[key] = f.Value.String()
	})
	return result, nil
}
