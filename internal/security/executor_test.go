package security

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nextlevelbuilder/clawgate/internal/approval"
	"github.com/nextlevelbuilder/clawgate/internal/audit"
	"github.com/nextlevelbuilder/clawgate/internal/sandbox"
	"github.com/nextlevelbuilder/clawgate/internal/secrets"
)

// stubProvider returns sandboxes that echo a fixed output.
type stubProvider struct {
	output string
}

func (p *stubProvider) Create(ctx context.Context, userID string) (sandbox.Sandbox, error) {
	return &stubSandbox{id: "sb-" + userID, output: p.output}, nil
}

type stubSandbox struct {
	id     string
	output string
}

func (s *stubSandbox) ID() string { return s.id }
func (s *stubSandbox) Run(ctx context.Context, command string, timeout time.Duration) (sandbox.ExecResult, error) {
	return sandbox.ExecResult{Stdout: s.output}, nil
}
func (s *stubSandbox) Pause(ctx context.Context) error { return nil }
func (s *stubSandbox) Kill(ctx context.Context) error  { return nil }

func newExecutorFixture(t *testing.T, output string) (*Executor, *fixture, *approval.Waiter, *sandbox.Manager) {
	t.Helper()
	f := newFixture(t, secrets.ModeRedact)
	waiter := approval.NewWaiter()
	mgr := sandbox.NewManager(&stubProvider{output: output}, time.Hour)
	t.Cleanup(func() { mgr.TerminateAll(context.Background()) })
	exec := NewExecutor(f.pipeline, mgr, waiter, f.orchestrator, time.Minute)
	return exec, f, waiter, mgr
}

func TestRunShell_GreenExecutesImmediately(t *testing.T) {
	exec, _, _, _ := newExecutorFixture(t, "total 0")

	outcome, err := exec.RunShell(context.Background(), testCtx(), "ls -la")
	if err != nil {
		t.Fatal(err)
	}
	if !outcome.Success || outcome.Output != "total 0" {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestRunShell_BlockedReturnsReason(t *testing.T) {
	exec, _, _, _ := newExecutorFixture(t, "")

	_, err := exec.RunShell(context.Background(), testCtx(), "rm -rf /")
	if err == nil || !strings.Contains(err.Error(), "Command blocked for security") {
		t.Errorf("err = %v", err)
	}
}

func TestRunShell_AskWaitsForApproval(t *testing.T) {
	exec, f, waiter, _ := newExecutorFixture(t, "fetched")

	var (
		wg      sync.WaitGroup
		outcome sandbox.ExecOutcome
		runErr  error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		outcome, runErr = exec.RunShell(context.Background(), testCtx(), "curl https://example.com")
	}()

	// Wait until the request is pending, then approve it.
	deadline := time.Now().Add(2 * time.Second)
	var reqID string
	for time.Now().Before(deadline) {
		if pending := waiter.ListPending(); len(pending) > 0 {
			reqID = pending[0].ID
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if reqID == "" {
		t.Fatal("ask command never produced a pending approval")
	}
	if err := waiter.Approve(reqID, "admin"); err != nil {
		t.Fatal(err)
	}
	wg.Wait()

	if runErr != nil {
		t.Fatal(runErr)
	}
	if !outcome.Success || outcome.Output != "fetched" {
		t.Errorf("outcome = %+v", outcome)
	}

	// The approval is stamped onto the audit entry.
	entries := f.auditLog.Query("u1", audit.QueryOpts{})
	if len(entries) != 1 {
		t.Fatalf("audit entries = %d", len(entries))
	}
	e := entries[0]
	if e.Approved == nil || !*e.Approved || e.ApprovedBy != "admin" || e.ApprovedAt == nil {
		t.Errorf("approval not recorded: %+v", e)
	}
}

func TestRunShell_AskRejected(t *testing.T) {
	exec, _, waiter, _ := newExecutorFixture(t, "")

	errCh := make(chan error, 1)
	go func() {
		_, err := exec.RunShell(context.Background(), testCtx(), "curl https://example.com")
		errCh <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pending := waiter.ListPending(); len(pending) > 0 {
			waiter.Reject(pending[0].ID, "no thanks")
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	select {
	case err := <-errCh:
		if err == nil || !strings.Contains(err.Error(), "rejected") {
			t.Errorf("err = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("rejection never surfaced")
	}
}
