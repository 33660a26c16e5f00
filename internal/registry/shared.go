package registry

import (
	"context"
	"sync"
)

var (
	shared   *Store
	sharedMu sync.Mutex
)

// Init starts s and installs it as the process-wide store. The first store
// to initialise successfully wins; later calls return it unchanged and leave
// their argument untouched.
func Init(ctx context.Context, s *Store) (*Store, error) {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared != nil {
		return shared, nil
	}
	if err := s.Start(ctx); err != nil {
		return nil, err
	}
	shared = s
	return shared, nil
}

// Shared returns the process-wide store, or nil before Init.
func Shared() *Store {
	sharedMu.Lock()
	defer sharedMu.Unlock()
	return shared
}

// Shutdown closes the process-wide store and forgets it.
func Shutdown() error {
	sharedMu.Lock()
	s := shared
	shared = nil
	sharedMu.Unlock()
	if s == nil {
		return nil
	}
	return s.Close()
}
