package classifier

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/titanous/json5"
)

// RuleStore holds per-caller custom rule sets, optionally backed by a json5
// file that is hot-reloaded on change. Replacement is atomic: readers see
// either the old map or the new one, never a partial edit.
type RuleStore struct {
	mu    sync.RWMutex
	rules map[string]*CustomRules // caller (user) id → rules; "*" applies to all
}

// NewRuleStore creates an empty rule store.
func NewRuleStore() *RuleStore {
	return &RuleStore{rules: make(map[string]*CustomRules)}
}

// For returns the effective rules for a caller: the caller-specific set if
// present, else the wildcard set, else nil.
func (rs *RuleStore) For(userID string) *CustomRules {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	if r, ok := rs.rules[userID]; ok {
		return r
	}
	return rs.rules["*"]
}

// Set installs rules for one caller.
func (rs *RuleStore) Set(userID string, r *CustomRules) {
	rs.mu.Lock()
	rs.rules[userID] = r
	rs.mu.Unlock()
}

// LoadFile replaces the entire store contents from a json5 file mapping
// caller id → rule set.
func (rs *RuleStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}
	parsed := make(map[string]*CustomRules)
	if err := json5.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("parse rules file: %w", err)
	}
	rs.mu.Lock()
	rs.rules = parsed
	rs.mu.Unlock()
	return nil
}

// Watch reloads the rules file whenever it changes, until ctx is done.
// A failed reload keeps the previous rules and logs the error.
func (rs *RuleStore) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rules watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", path, err)
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := rs.LoadFile(path); err != nil {
					slog.Warn("custom rules reload failed", "path", path, "error", err)
					continue
				}
				slog.Info("custom rules reloaded", "path", path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				slog.Warn("rules watcher error", "error", err)
			}
		}
	}()
	return nil
}
