// Package security wires the command pipeline: authorization, injection
// detection, rate limiting, classification, anomaly escalation, audit, and
// output scrubbing — attached to the hook pipeline around the Shell tool.
package security

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/nextlevelbuilder/clawgate/internal/anomaly"
	"github.com/nextlevelbuilder/clawgate/internal/audit"
	"github.com/nextlevelbuilder/clawgate/internal/classifier"
	"github.com/nextlevelbuilder/clawgate/internal/hooks"
	"github.com/nextlevelbuilder/clawgate/internal/injection"
	"github.com/nextlevelbuilder/clawgate/internal/ratelimit"
	"github.com/nextlevelbuilder/clawgate/internal/secrets"
)

// ShellToolName is the tool the orchestrator guards.
const ShellToolName = "Shell"

// Metadata keys injected into tool params for downstream hooks and the
// after-hook correlation.
const (
	ParamAuditID = "_audit_id"
	ParamTier    = "_tier"
	ParamReason  = "_reason"
)

// blockedOutputPlaceholder replaces output suppressed in block mode.
const blockedOutputPlaceholder = "[OUTPUT BLOCKED - Secrets detected]"

// Authorizer checks whether a platform user may execute commands. External
// collaborator; errors fail safe (block).
type Authorizer interface {
	IsPlatformUserAuthorized(ctx context.Context, userID, channelID, platformUserID string) (bool, error)
}

// AuthorizerFunc adapts a function to the Authorizer interface.
type AuthorizerFunc func(ctx context.Context, userID, channelID, platformUserID string) (bool, error)

func (f AuthorizerFunc) IsPlatformUserAuthorized(ctx context.Context, userID, channelID, platformUserID string) (bool, error) {
	return f(ctx, userID, channelID, platformUserID)
}

// Orchestrator owns the security pipeline components and exposes them as
// hook subscribers. All components are explicit dependencies passed in at
// construction, not package singletons.
type Orchestrator struct {
	authorizer Authorizer
	injector   *injection.Detector
	limiter    *ratelimit.Limiter
	classifier *classifier.Classifier
	rules      *classifier.RuleStore
	anomalies  *anomaly.Detector
	auditLog   *audit.Log
	scanner    *secrets.Scanner
	tracer     trace.Tracer
	now        func() time.Time
}

// New creates the orchestrator. limiter may be nil (disabled); rules may be
// nil (no custom rule sets); tracer may be nil (no tracing).
func New(
	authorizer Authorizer,
	injector *injection.Detector,
	limiter *ratelimit.Limiter,
	cls *classifier.Classifier,
	rules *classifier.RuleStore,
	anomalies *anomaly.Detector,
	auditLog *audit.Log,
	scanner *secrets.Scanner,
	tracer trace.Tracer,
) *Orchestrator {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("clawgate")
	}
	return &Orchestrator{
		authorizer: authorizer,
		injector:   injector,
		limiter:    limiter,
		classifier: cls,
		rules:      rules,
		anomalies:  anomalies,
		auditLog:   auditLog,
		scanner:    scanner,
		tracer:     tracer,
		now:        time.Now,
	}
}

// Attach subscribes the orchestrator to the hook pipeline. The before-hook
// runs at high priority so policy precedes any other subscriber.
func (o *Orchestrator) Attach(p *hooks.Pipeline) {
	p.Subscribe(hooks.BeforeToolCall, "security", 100, o.BeforeShell)
	p.Subscribe(hooks.AfterToolCall, "security", 100, o.AfterShell)
}

func orDefault(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

// BeforeShell is the pre-execution hook: authorize, scan for injection,
// rate limit, classify, escalate, audit, then branch.
func (o *Orchestrator) BeforeShell(ctx context.Context, hctx hooks.Context, ev *hooks.Event) hooks.Result {
	if ev.ToolName != ShellToolName {
		return hooks.PassResult()
	}

	command, _ := ev.Params["command"].(string)
	userID := orDefault(hctx.UserID)
	channelID := orDefault(hctx.ChannelID)
	platformUserID := orDefault(hctx.PlatformUserID)

	ctx, span := o.tracer.Start(ctx, "security.pipeline",
		trace.WithAttributes(
			attribute.String("clawgate.user_id", userID),
			attribute.String("clawgate.channel_id", channelID),
		),
	)
	defer span.End()

	// Authorization — fail safe on backend errors.
	authorized, err := o.authorizer.IsPlatformUserAuthorized(ctx, userID, channelID, platformUserID)
	if err != nil {
		slog.Error("authorization check failed", "user", userID, "error", err)
		o.auditLog.Create(command, classifier.TierRed, classifier.ActionBlock,
			"Authorization check failed", userID, channelID)
		span.SetAttributes(attribute.String("clawgate.decision", "block"))
		return hooks.BlockResult("Authorization check failed")
	}
	if !authorized {
		o.auditLog.Create(command, classifier.TierRed, classifier.ActionBlock,
			"User not authorized", userID, channelID)
		span.SetAttributes(attribute.String("clawgate.decision", "block"))
		return hooks.BlockResult("Security blocked: user not authorized to execute commands")
	}

	// Prompt-injection scan.
	det := o.injector.DetectAt(command, 0.5)
	if det.Confidence > 0.5 {
		o.auditLog.Create(command, classifier.TierRed, classifier.ActionBlock, det.Reason, userID, channelID)
		span.SetAttributes(attribute.String("clawgate.decision", "block"))
		return hooks.BlockResult("Security blocked: " + det.Reason)
	}

	// Rate limit — deny without auditing.
	if o.limiter.Enabled() {
		rl := o.limiter.Check(userID, channelID)
		if !rl.Allowed {
			span.SetAttributes(attribute.String("clawgate.decision", "rate_limited"))
			return hooks.BlockResult(fmt.Sprintf(
				"Rate limit exceeded. Try again in %d seconds.", rl.RetryAfterMS/1000+1))
		}
	}

	// Classification with the caller's custom rules.
	var rules *classifier.CustomRules
	if o.rules != nil {
		rules = o.rules.For(userID)
	}
	cls := o.classifier.ClassifyWithRules(command, rules)

	// Anomaly escalation.
	an := o.anomalies.Analyze(userID, command)
	if cls.Tier == classifier.TierGreen && an.IsAnomaly {
		cls.Tier = classifier.TierYellow
		cls.Action = classifier.ActionAsk
		cls.Reason = fmt.Sprintf("Anomalous behavior detected (%s)", joinFactors(an.Factors))
		cls.RequiresApproval = true
	} else if cls.Tier == classifier.TierYellow && an.Score >= 0.7 {
		cls.Tier = classifier.TierRed
		cls.Action = classifier.ActionBlock
		cls.Reason = fmt.Sprintf("Blocked due to anomalous behavior (%s)", joinFactors(an.Factors))
	}

	entry := o.auditLog.Create(command, cls.Tier, cls.Action, cls.Reason, userID, channelID)
	span.SetAttributes(
		attribute.String("clawgate.tier", cls.Tier),
		attribute.String("clawgate.decision", cls.Action),
	)

	switch cls.Action {
	case classifier.ActionBlock:
		return hooks.BlockResult("Command blocked for security: " + cls.Reason)
	case classifier.ActionAsk:
		return hooks.ModifyResult(map[string]interface{}{
			ParamAuditID: entry.ID,
			ParamTier:    cls.Tier,
			ParamReason:  cls.Reason,
		})
	default:
		return hooks.ModifyResult(map[string]interface{}{
			ParamAuditID: entry.ID,
		})
	}
}

// AfterShell is the post-execution hook: scrub the result for secrets and
// record the (possibly redacted) output on the audit entry.
func (o *Orchestrator) AfterShell(ctx context.Context, hctx hooks.Context, ev *hooks.Event) hooks.Result {
	if ev.ToolName != ShellToolName {
		return hooks.PassResult()
	}
	auditID, _ := ev.Params[ParamAuditID].(string)
	if auditID == "" {
		return hooks.PassResult()
	}

	output := ""
	if ev.Result != nil {
		output = fmt.Sprintf("%v", ev.Result)
	}

	executedAt := o.now()
	scan := o.scanner.ScanOutput(output)
	cfg := o.scanner.Current()

	if scan.HasSecrets {
		slog.Warn("secrets detected in command output",
			"audit_id", auditID,
			"count", scan.Count,
			"mode", cfg.Mode,
		)
	}

	redacted := true
	switch {
	case scan.HasSecrets && cfg.Mode == secrets.ModeBlock:
		blocked := blockedOutputPlaceholder
		if err := o.auditLog.Update(auditID, audit.Patch{
			ExecutedAt:      &executedAt,
			Output:          &blocked,
			SecretsFound:    scan.Matches,
			SecretsRedacted: &redacted,
		}); err != nil {
			slog.Warn("audit update failed", "id", auditID, "error", err)
		}
		return hooks.BlockResult(fmt.Sprintf(
			"Output blocked: %d secret(s) detected", scan.Count))

	case scan.HasSecrets && cfg.Mode == secrets.ModeRedact:
		if err := o.auditLog.Update(auditID, audit.Patch{
			ExecutedAt:      &executedAt,
			Output:          &scan.RedactedText,
			SecretsFound:    scan.Matches,
			SecretsRedacted: &redacted,
		}); err != nil {
			slog.Warn("audit update failed", "id", auditID, "error", err)
		}
		return hooks.PassResult()

	default:
		patch := audit.Patch{ExecutedAt: &executedAt, Output: &output}
		if scan.HasSecrets {
			patch.SecretsFound = scan.Matches
		}
		if err := o.auditLog.Update(auditID, patch); err != nil {
			slog.Warn("audit update failed", "id", auditID, "error", err)
		}
		return hooks.PassResult()
	}
}

// RecordApproval stamps an approval decision onto an audit entry.
func (o *Orchestrator) RecordApproval(auditID, approvedBy string, approved bool) error {
	now := o.now()
	return o.auditLog.Update(auditID, audit.Patch{
		Approved:   &approved,
		ApprovedBy: &approvedBy,
		ApprovedAt: &now,
	})
}

func joinFactors(factors []string) string {
	if len(factors) == 0 {
		return "behavioral anomaly"
	}
	out := factors[0]
	for _, f := range factors[1:] {
		out += "; " + f
	}
	return out
}
