package store

import (
	"context"
	"time"
)

// UnavailableStore stands in when no store is configured.
// Every operation fails with ErrStoreUnavailable without touching the network.
type UnavailableStore struct {
	reason string
}

// NewUnavailableStore records why no live store was selected
func NewUnavailableStore(reason string) *UnavailableStore {
	return &UnavailableStore{reason: reason}
}

func (s *UnavailableStore) err() error {
	return ErrStoreUnavailable.WithMsgf("shared store unavailable: %s", s.reason)
}

func (s *UnavailableStore) Eval(context.Context, *Script, []string, ...interface{}) (interface{}, error) {
	return nil, s.err()
}

func (s *UnavailableStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, s.err()
}

func (s *UnavailableStore) Del(context.Context, ...string) error { return s.err() }

func (s *UnavailableStore) Ping(context.Context) error { return s.err() }

func (s *UnavailableStore) Available() bool { return false }

func (s *UnavailableStore) Name() string { return "unavailable" }

// Reason returns why the store is unavailable
func (s *UnavailableStore) Reason() string { return s.reason }

func (s *UnavailableStore) Close() error { return nil }
