package sandbox

import (
	"bytes"
	"context"
	"os/exec"
	"sync"
	"time"

	"github.com/google/uuid"
)

// LocalProvider runs commands as host processes. It is the default backend
// for standalone deployments; production deployments plug in a container or
// cloud provider instead.
type LocalProvider struct {
	WorkingDir string
}

// Create returns a host-process sandbox for the user.
func (p *LocalProvider) Create(ctx context.Context, userID string) (Sandbox, error) {
	return &localSandbox{
		id:         "local-" + uuid.NewString()[:8],
		workingDir: p.WorkingDir,
	}, nil
}

type localSandbox struct {
	id         string
	workingDir string

	mu     sync.Mutex
	paused bool
	killed bool
}

func (s *localSandbox) ID() string { return s.id }

// Run executes the command via sh -c with the given timeout. Stdout and
// stderr are captured separately; the manager merges them.
func (s *localSandbox) Run(ctx context.Context, command string, timeout time.Duration) (ExecResult, error) {
	s.mu.Lock()
	if s.killed {
		s.mu.Unlock()
		return ExecResult{}, ErrUnavailable
	}
	s.paused = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = s.workingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			res.ExitCode = exitErr.ExitCode()
			return res, nil
		}
		if ctx.Err() == context.DeadlineExceeded {
			res.ExitCode = 124
			res.Stderr = "command timed out"
			return res, nil
		}
		return res, err
	}
	return res, nil
}

// Pause marks the sandbox dormant. Host processes have nothing to freeze,
// so this only flips state.
func (s *localSandbox) Pause(ctx context.Context) error {
	s.mu.Lock()
	s.paused = true
	s.mu.Unlock()
	return nil
}

// Kill marks the sandbox dead; subsequent Runs fail.
func (s *localSandbox) Kill(ctx context.Context) error {
	s.mu.Lock()
	s.killed = true
	s.mu.Unlock()
	return nil
}
