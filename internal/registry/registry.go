// Package registry tracks the running connection manager for each
// configured account. All lookups go through an explicit Registry value;
// there is no package-level state.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
)

// Runner is the lifecycle surface the registry manages. gateway.Manager
// satisfies it.
type Runner interface {
	Start()
	Stop()
}

// Registry maps account ids to their connection managers.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]Runner
	logger  *slog.Logger
}

// New creates an empty Registry.
func New(logger *slog.Logger) *Registry {
	return &Registry{
		runners: make(map[string]Runner),
		logger:  logger,
	}
}

// Add registers a runner under an account id. Duplicate ids are rejected.
func (r *Registry) Add(accountID string, runner Runner) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runners[accountID]; exists {
		return fmt.Errorf("account %q already registered", accountID)
	}
	r.runners[accountID] = runner
	return nil
}

// Get returns the runner for an account id.
func (r *Registry) Get(accountID string) (Runner, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	runner, ok := r.runners[accountID]
	return runner, ok
}

// Accounts returns the registered account ids, sorted.
func (r *Registry) Accounts() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.runners))
	for id := range r.runners {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// StartAll starts every registered runner.
func (r *Registry) StartAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, runner := range r.runners {
		r.logger.Info("starting account", "account", id)
		runner.Start()
	}
}

// StopAll stops every registered runner. Each Stop bounds its own wait, so
// shutdown cannot hang on a stuck connection.
func (r *Registry) StopAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for id, runner := range r.runners {
		r.logger.Info("stopping account", "account", id)
		runner.Stop()
	}
}

// Len reports the number of registered accounts.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.runners)
}
