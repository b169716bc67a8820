package security

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nextlevelbuilder/clawgate/internal/approval"
	"github.com/nextlevelbuilder/clawgate/internal/classifier"
	"github.com/nextlevelbuilder/clawgate/internal/hooks"
	"github.com/nextlevelbuilder/clawgate/internal/sandbox"
)

// Executor drives one shell tool call through the full pipeline:
// before-hooks, the approval rendezvous for ask-tier commands, sandboxed
// execution, then after-hooks. The cron scheduler's shell lane runs through
// it, so cron commands cross the same hook bus as any other tool call.
type Executor struct {
	pipeline        *hooks.Pipeline
	sandboxes       *sandbox.Manager
	waiter          *approval.Waiter
	orchestrator    *Orchestrator
	approvalTimeout time.Duration
}

// NewExecutor wires the executor.
func NewExecutor(p *hooks.Pipeline, sm *sandbox.Manager, w *approval.Waiter, o *Orchestrator, approvalTimeout time.Duration) *Executor {
	if approvalTimeout <= 0 {
		approvalTimeout = 5 * time.Minute
	}
	return &Executor{
		pipeline:        p,
		sandboxes:       sm,
		waiter:          w,
		orchestrator:    o,
		approvalTimeout: approvalTimeout,
	}
}

// RunShell executes one command for the given caller. Blocked commands and
// rejected approvals return an error with the stable user-facing reason;
// execution failures come back inside the outcome.
func (e *Executor) RunShell(ctx context.Context, hctx hooks.Context, command string) (sandbox.ExecOutcome, error) {
	ev := &hooks.Event{
		ToolName: ShellToolName,
		Params:   map[string]interface{}{"command": command},
	}

	res := e.pipeline.RunBefore(ctx, hctx, ev)
	if res.Kind == hooks.Block {
		return sandbox.ExecOutcome{}, errors.New(res.Reason)
	}

	// Ask-tier commands rendezvous with an approver before running.
	if tier, _ := ev.Params[ParamTier].(string); tier == classifier.TierYellow {
		auditID, _ := ev.Params[ParamAuditID].(string)
		reason, _ := ev.Params[ParamReason].(string)

		decision, err := e.waiter.Request(ctx, command, tier, reason, hctx.UserID, e.approvalTimeout)
		if err != nil {
			var rejected *approval.RejectedError
			switch {
			case errors.As(err, &rejected):
				if auditID != "" {
					e.orchestrator.RecordApproval(auditID, "", false)
				}
				return sandbox.ExecOutcome{}, fmt.Errorf("approval rejected: %w", err)
			case errors.Is(err, approval.ErrTimeout):
				return sandbox.ExecOutcome{}, fmt.Errorf("approval timed out after %s", e.approvalTimeout)
			default:
				return sandbox.ExecOutcome{}, err
			}
		}
		if auditID != "" {
			e.orchestrator.RecordApproval(auditID, decision.ApprovedBy, true)
		}
	}

	// Execute with the (possibly rewritten) command.
	finalCommand, _ := ev.Params["command"].(string)
	if finalCommand == "" {
		finalCommand = command
	}
	start := time.Now()
	outcome := e.sandboxes.Execute(ctx, hctx.UserID, finalCommand)

	ev.Result = outcome.Output
	if !outcome.Success && outcome.ErrorMessage != "" {
		ev.Err = errors.New(outcome.ErrorMessage)
	}
	ev.DurationMS = time.Since(start).Milliseconds()

	after := e.pipeline.RunAfter(ctx, hctx, ev)
	if after.Kind == hooks.Block {
		outcome.Output = after.Reason
	}
	return outcome, nil
}
