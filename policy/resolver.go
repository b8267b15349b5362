package policy

import (
	"errors"
	"sort"
	"strings"
)

// Route binds a policy to a path. Prefix routes match any path starting with Path.
// In config files the policy fields sit next to path and prefix.
type Route struct {
	Path   string          `mapstructure:"path"`
	Prefix bool            `mapstructure:"prefix"`
	Policy RateLimitPolicy `mapstructure:",squash"`
}

// Table is the static policy configuration loaded at startup
type Table struct {
	Default RateLimitPolicy `mapstructure:"default"`
	Routes  []Route         `mapstructure:"routes"`
}

// Validate checks the default, every route and duplicate paths, reporting
// every problem at once
func (t Table) Validate() error {
	var errs []error
	if err := t.Default.Validate(); err != nil {
		errs = append(errs, ErrPolicyInvalid.WithMsgf("default policy").Wrap(err))
	}

	seen := make(map[string]bool, len(t.Routes))
	for _, r := range t.Routes {
		if r.Path == "" {
			errs = append(errs, ErrPolicyInvalid.WithMsgf("route with empty path"))
			continue
		}
		id := routeID(r)
		if seen[id] {
			errs = append(errs, ErrPolicyInvalid.WithMsgf("duplicate route %s", id))
		}
		seen[id] = true
		if err := r.Policy.Validate(); err != nil {
			errs = append(errs, ErrPolicyInvalid.WithMsgf("route %s", id).Wrap(err))
		}
	}
	return errors.Join(errs...)
}

func routeID(r Route) string {
	if r.Prefix {
		return r.Path + "*"
	}
	return r.Path
}

// Resolver answers Resolve from an immutable, validated table
type Resolver struct {
	def      RateLimitPolicy
	exact    map[string]RateLimitPolicy
	prefixes []Route // longest first
}

// NewResolver validates t; an invalid table is returned as ErrPolicyInvalid
func NewResolver(t Table) (*Resolver, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	r := &Resolver{
		def:   normalize(t.Default),
		exact: make(map[string]RateLimitPolicy),
	}
	for _, route := range t.Routes {
		route.Policy = normalize(route.Policy)
		if route.Prefix {
			r.prefixes = append(r.prefixes, route)
		} else {
			r.exact[route.Path] = route.Policy
		}
	}
	sort.SliceStable(r.prefixes, func(i, j int) bool {
		return len(r.prefixes[i].Path) > len(r.prefixes[j].Path)
	})
	return r, nil
}

// MustNewResolver panics on an invalid table
func MustNewResolver(t Table) *Resolver {
	r, err := NewResolver(t)
	if err != nil {
		panic(err)
	}
	return r
}

// normalize lower-cases tier names, matching how configuration keys arrive
func normalize(p RateLimitPolicy) RateLimitPolicy {
	if len(p.TierOverrides) == 0 {
		return p
	}
	overrides := make(map[string]TierOverride, len(p.TierOverrides))
	for tier, o := range p.TierOverrides {
		overrides[strings.ToLower(tier)] = o
	}
	p.TierOverrides = overrides
	return p
}

// Resolve picks the exact route for path, else the longest matching prefix,
// else the default, then applies the tier override when one exists
func (r *Resolver) Resolve(path, tier string) RateLimitPolicy {
	return r.match(path).WithTier(tier)
}

// Match reports which route matched, "" for the default
func (r *Resolver) Match(path string) string {
	if _, ok := r.exact[path]; ok {
		return path
	}
	for _, route := range r.prefixes {
		if strings.HasPrefix(path, route.Path) {
			return routeID(route)
		}
	}
	return ""
}

func (r *Resolver) match(path string) RateLimitPolicy {
	if p, ok := r.exact[path]; ok {
		return p
	}
	for _, route := range r.prefixes {
		if strings.HasPrefix(path, route.Path) {
			return route.Policy
		}
	}
	return r.def
}

// Default returns the process-wide default policy
func (r *Resolver) Default() RateLimitPolicy {
	return r.def
}
