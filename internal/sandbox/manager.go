package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// execTimeout is the fixed per-command limit inside a sandbox.
const execTimeout = 30 * time.Second

// ExecOutcome is the structured result of Manager.Execute. Failures are
// reported here, never as errors.
type ExecOutcome struct {
	Success      bool   `json:"success"`
	Output       string `json:"output,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
	ExitCode     int    `json:"exit_code"`
}

// Status is a snapshot of one user's sandbox state.
type Status struct {
	Active         bool       `json:"active"`
	SandboxID      string     `json:"sandbox_id,omitempty"`
	CreatedAt      *time.Time `json:"created_at,omitempty"`
	LastActivityAt *time.Time `json:"last_activity_at,omitempty"`
	UptimeMS       int64      `json:"uptime_ms,omitempty"`
}

// active tracks one live sandbox. gen increments on every timer re-arm so a
// stale fire after terminate/hibernate is a no-op.
type active struct {
	sb           Sandbox
	createdAt    time.Time
	lastActivity time.Time
	idleTimer    *time.Timer
	gen          uint64
}

// Listener observes lifecycle transitions (for event broadcast).
type Listener func(event, userID, sandboxID string)

// Manager owns the per-user sandbox lifecycle: lazy single-flight creation,
// activity tracking, idle hibernation, termination.
type Manager struct {
	provider    Provider
	idleTimeout time.Duration

	mu       sync.Mutex
	users    map[string]*active
	flight   singleflight.Group
	listener Listener
	now      func() time.Time
}

// NewManager creates a manager over the given provider.
func NewManager(provider Provider, idleTimeout time.Duration) *Manager {
	if idleTimeout <= 0 {
		idleTimeout = 50 * time.Minute
	}
	return &Manager{
		provider:    provider,
		idleTimeout: idleTimeout,
		users:       make(map[string]*active),
		now:         time.Now,
	}
}

// SetListener installs a lifecycle observer. Events: "created",
// "hibernated", "terminated".
func (m *Manager) SetListener(l Listener) {
	m.mu.Lock()
	m.listener = l
	m.mu.Unlock()
}

func (m *Manager) notify(event, userID, sandboxID string) {
	if m.listener != nil {
		go m.listener(event, userID, sandboxID)
	}
}

// GetOrCreate returns the user's active sandbox, creating one if needed.
// Concurrent calls for the same user share a single provider create.
func (m *Manager) GetOrCreate(ctx context.Context, userID string) (Sandbox, error) {
	m.mu.Lock()
	if a, ok := m.users[userID]; ok {
		m.touchLocked(userID, a)
		sb := a.sb
		m.mu.Unlock()
		return sb, nil
	}
	m.mu.Unlock()

	v, err, _ := m.flight.Do(userID, func() (interface{}, error) {
		// Re-check: another flight may have finished between the unlock and
		// the singleflight admission.
		m.mu.Lock()
		if a, ok := m.users[userID]; ok {
			m.touchLocked(userID, a)
			sb := a.sb
			m.mu.Unlock()
			return sb, nil
		}
		m.mu.Unlock()

		sb, err := m.provider.Create(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: create: %v", ErrUnavailable, err)
		}

		now := m.now()
		a := &active{sb: sb, createdAt: now, lastActivity: now}
		m.mu.Lock()
		m.users[userID] = a
		m.armIdleLocked(userID, a)
		m.mu.Unlock()

		slog.Info("sandbox created", "user", userID, "sandbox", sb.ID())
		m.notify("created", userID, sb.ID())
		return sb, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(Sandbox), nil
}

// touchLocked bumps last_activity and re-arms the idle timer. Caller holds mu.
func (m *Manager) touchLocked(userID string, a *active) {
	now := m.now()
	if now.After(a.lastActivity) {
		a.lastActivity = now
	}
	m.armIdleLocked(userID, a)
}

// armIdleLocked (re)arms the idle timer with a fresh generation. Caller
// holds mu.
func (m *Manager) armIdleLocked(userID string, a *active) {
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	a.gen++
	gen := a.gen
	a.idleTimer = time.AfterFunc(m.idleTimeout, func() {
		m.idleFire(userID, gen)
	})
}

// idleFire hibernates the user's sandbox if the firing timer is still the
// current generation. A timer that raced a touch, hibernate, or terminate
// does nothing.
func (m *Manager) idleFire(userID string, gen uint64) {
	m.mu.Lock()
	a, ok := m.users[userID]
	if !ok || a.gen != gen {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	slog.Info("sandbox idle timeout", "user", userID)
	m.Hibernate(context.Background(), userID)
}

// Execute runs a command in the user's sandbox with the fixed exec timeout.
// Output is stdout with stderr appended after a newline when non-empty.
// Errors surface as a structured failure, never as a returned error.
func (m *Manager) Execute(ctx context.Context, userID, command string) ExecOutcome {
	sb, err := m.GetOrCreate(ctx, userID)
	if err != nil {
		return ExecOutcome{Success: false, ErrorMessage: err.Error(), ExitCode: 1}
	}

	m.mu.Lock()
	if a, ok := m.users[userID]; ok {
		m.touchLocked(userID, a)
	}
	m.mu.Unlock()

	res, err := sb.Run(ctx, command, execTimeout)
	if err != nil {
		return ExecOutcome{Success: false, ErrorMessage: err.Error(), ExitCode: 1}
	}

	output := res.Stdout
	if res.Stderr != "" {
		if output != "" {
			output += "\n"
		}
		output += res.Stderr
	}
	return ExecOutcome{
		Success:  res.ExitCode == 0,
		Output:   output,
		ExitCode: res.ExitCode,
	}
}

// detach removes the user's mapping and disarms its timer, returning the
// sandbox handle (nil if none).
func (m *Manager) detach(userID string) Sandbox {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.users[userID]
	if !ok {
		return nil
	}
	if a.idleTimer != nil {
		a.idleTimer.Stop()
	}
	a.gen++ // invalidate any in-flight fire
	delete(m.users, userID)
	return a.sb
}

// Hibernate pauses the user's sandbox and drops the active mapping.
// Pause is best-effort: on failure the sandbox is killed instead.
func (m *Manager) Hibernate(ctx context.Context, userID string) {
	sb := m.detach(userID)
	if sb == nil {
		return
	}
	if err := sb.Pause(ctx); err != nil {
		slog.Warn("sandbox pause failed, killing", "user", userID, "error", err)
		if kerr := sb.Kill(ctx); kerr != nil {
			slog.Warn("sandbox kill failed", "user", userID, "error", kerr)
		}
	}
	m.notify("hibernated", userID, sb.ID())
}

// Terminate kills the user's sandbox best-effort and drops the mapping.
func (m *Manager) Terminate(ctx context.Context, userID string) {
	sb := m.detach(userID)
	if sb == nil {
		return
	}
	if err := sb.Kill(ctx); err != nil {
		slog.Warn("sandbox kill failed", "user", userID, "error", err)
	}
	m.notify("terminated", userID, sb.ID())
}

// TerminateAll fans out Terminate over every active user and waits.
func (m *Manager) TerminateAll(ctx context.Context) {
	m.mu.Lock()
	users := make([]string, 0, len(m.users))
	for u := range m.users {
		users = append(users, u)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, u := range users {
		wg.Add(1)
		go func(u string) {
			defer wg.Done()
			m.Terminate(ctx, u)
		}(u)
	}
	wg.Wait()
}

// Status returns the user's sandbox snapshot.
func (m *Manager) Status(userID string) Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.users[userID]
	if !ok {
		return Status{Active: false}
	}
	created := a.createdAt
	lastAct := a.lastActivity
	return Status{
		Active:         true,
		SandboxID:      a.sb.ID(),
		CreatedAt:      &created,
		LastActivityAt: &lastAct,
		UptimeMS:       m.now().Sub(a.createdAt).Milliseconds(),
	}
}
