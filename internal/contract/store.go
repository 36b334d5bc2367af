package contract

import (
	"fmt"
	"log/slog"
	"sync/atomic"
)

// Store holds the active CompiledContract behind an atomic pointer. Readers
// take a snapshot once per request and keep it for the request's lifetime;
// Reload builds the replacement fully before swapping, so a reader can never
// observe a half-built index. Old snapshots are garbage collected once the
// last in-flight request drops its reference.
type Store struct {
	active atomic.Pointer[CompiledContract]
	path   string
	logger *slog.Logger
}

// NewStore loads the artifact at path and returns a store serving it.
// A load failure here is fatal to startup.
func NewStore(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	c, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: logger}
	s.active.Store(c)
	logger.Info("contract loaded",
		slog.String("service", c.Service),
		slog.String("version", c.Version),
		slog.Int("operations", c.Operations()))
	return s, nil
}

// Snapshot returns the active contract. The returned value is immutable.
func (s *Store) Snapshot() *CompiledContract {
	return s.active.Load()
}

// Reload re-reads the artifact and atomically swaps it in. On failure the
// previous contract stays active and the error is returned for reporting;
// steady-state reload failures are never fatal.
func (s *Store) Reload() error {
	c, err := Load(s.path)
	if err != nil {
		return fmt.Errorf("reload contract: %w", err)
	}
	old := s.active.Swap(c)
	s.logger.Info("contract reloaded",
		slog.String("old_version", old.Version),
		slog.String("new_version", c.Version),
		slog.Int("operations", c.Operations()))
	return nil
}

// Path returns the artifact path the store watches.
func (s *Store) Path() string { return s.path }
