package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/clawgate/internal/anomaly"
	"github.com/nextlevelbuilder/clawgate/internal/approval"
	"github.com/nextlevelbuilder/clawgate/internal/audit"
	"github.com/nextlevelbuilder/clawgate/internal/classifier"
	"github.com/nextlevelbuilder/clawgate/internal/config"
	"github.com/nextlevelbuilder/clawgate/internal/cron"
	"github.com/nextlevelbuilder/clawgate/internal/gateway"
	"github.com/nextlevelbuilder/clawgate/internal/gateway/methods"
	"github.com/nextlevelbuilder/clawgate/internal/hooks"
	"github.com/nextlevelbuilder/clawgate/internal/injection"
	"github.com/nextlevelbuilder/clawgate/internal/patterns"
	"github.com/nextlevelbuilder/clawgate/internal/ratelimit"
	"github.com/nextlevelbuilder/clawgate/internal/sandbox"
	"github.com/nextlevelbuilder/clawgate/internal/secrets"
	"github.com/nextlevelbuilder/clawgate/internal/security"
	"github.com/nextlevelbuilder/clawgate/internal/store"
	"github.com/nextlevelbuilder/clawgate/internal/telemetry"
	"github.com/nextlevelbuilder/clawgate/pkg/protocol"
)

func gatewayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Run the gateway server",
		Run: func(cmd *cobra.Command, args []string) {
			runGateway()
		},
	}
}

func runGateway() {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.NewProvider(ctx, cfg.Telemetry)
	if err != nil {
		slog.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		tp.Shutdown(shutdownCtx)
	}()

	stores, err := store.New(cfg)
	if err != nil {
		slog.Error("store init failed", "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	// Pipeline components — explicit objects, no package singletons.
	patternStore := patterns.NewStore()
	cls := classifier.New(patternStore)

	rules := classifier.NewRuleStore()
	if path := cfg.Security.CustomRulesFile; path != "" {
		path = config.ExpandHome(path)
		if err := rules.LoadFile(path); err != nil {
			slog.Warn("custom rules load failed", "path", path, "error", err)
		} else if err := rules.Watch(ctx, path); err != nil {
			slog.Warn("custom rules watch failed", "path", path, "error", err)
		}
	}

	scanner := secrets.NewScanner(secrets.Config{
		Mode:              cfg.Security.Secrets.Mode,
		EnableLineNumbers: cfg.Security.Secrets.EnableLineNumbers,
		MaxSecretsPerType: cfg.Security.Secrets.MaxSecretsPerType,
	})

	limiter := ratelimit.New(
		time.Duration(cfg.Security.RateLimit.WindowMS)*time.Millisecond,
		cfg.Security.RateLimit.MaxRequests,
		cfg.Security.RateLimit.PerChannel,
	)
	injector := injection.New(cfg.Security.Injection.Sensitivity)
	anomalies := anomaly.New()
	auditLog := audit.NewLog(stores.AuditArchive)
	waiter := approval.NewWaiter()

	provider := &sandbox.LocalProvider{WorkingDir: "."}
	sandboxes := sandbox.NewManager(provider, cfg.SandboxIdleTimeout())
	defer sandboxes.TerminateAll(context.Background())

	// Authorization is an external collaborator; standalone mode trusts the
	// host runtime's identity resolution.
	authorizer := security.AuthorizerFunc(func(ctx context.Context, userID, channelID, platformUserID string) (bool, error) {
		return true, nil
	})

	orchestrator := security.New(authorizer, injector, limiter, cls, rules, anomalies, auditLog, scanner, tp.Tracer())
	pipeline := hooks.NewPipeline()
	orchestrator.Attach(pipeline)

	executor := security.NewExecutor(pipeline, sandboxes, waiter, orchestrator, cfg.ApprovalTimeout())

	server := gateway.NewServer(cfg)

	// Broadcast lifecycle transitions to connected dashboards.
	waiter.SetListener(func(event string, req approval.Request) {
		name := protocol.EventApprovalResolved
		if event == "requested" {
			name = protocol.EventApprovalRequested
		}
		server.BroadcastEvent(*protocol.NewEvent(name, map[string]interface{}{
			"event":   event,
			"request": req,
		}))
	})
	sandboxes.SetListener(func(event, userID, sandboxID string) {
		name := protocol.EventSandboxCreated
		switch event {
		case "hibernated":
			name = protocol.EventSandboxHibernated
		case "terminated":
			name = protocol.EventSandboxTerminated
		}
		server.BroadcastEvent(*protocol.NewEvent(name, map[string]interface{}{
			"user_id":    userID,
			"sandbox_id": sandboxID,
		}))
	})

	// Cron shares the hook bus: its shell lane runs through the executor.
	scheduler := cron.NewScheduler(stores.Cron, cron.Options{
		MaxConcurrent:    cfg.Cron.MaxConcurrent,
		ExecutionTimeout: time.Duration(cfg.Cron.ExecutionTimeoutSec) * time.Second,
		MaxRetries:       cfg.Cron.MaxRetries,
		Backoff:          time.Duration(cfg.Cron.BackoffMS) * time.Millisecond,
	})
	scheduler.SetShellRunner(func(ctx context.Context, job *cron.Job, command string) (string, error) {
		hctx := hooks.Context{
			AgentID:   "cron",
			UserID:    job.UserID,
			ChannelID: job.ChannelID,
		}
		outcome, err := executor.RunShell(ctx, hctx, command)
		if err != nil {
			return "", err
		}
		if !outcome.Success {
			return outcome.Output, cronExecError(outcome)
		}
		return outcome.Output, nil
	})
	scheduler.SetNotifier(func(job *cron.Job, status string) {
		server.BroadcastEvent(*protocol.NewEvent(protocol.EventCron, map[string]interface{}{
			"job_id": job.ID,
			"name":   job.Name,
			"status": status,
		}))
	})
	if err := scheduler.Start(); err != nil {
		slog.Error("cron scheduler start failed", "error", err)
		os.Exit(1)
	}
	defer scheduler.UnscheduleAll()

	// RPC surface.
	router := server.Router()
	methods.NewSecurityMethods(cls, rules, limiter, anomalies, scanner, injector).Register(router)
	methods.NewAuditMethods(auditLog).Register(router)
	methods.NewApprovalMethods(waiter).Register(router)
	methods.NewSandboxMethods(sandboxes).Register(router)
	methods.NewCronMethods(stores.Cron, scheduler).Register(router)

	if err := server.Start(ctx); err != nil {
		slog.Error("gateway stopped", "error", err)
		os.Exit(1)
	}
}

func cronExecError(outcome sandbox.ExecOutcome) error {
	if outcome.ErrorMessage != "" {
		return &execFailure{outcome.ErrorMessage}
	}
	return &execFailure{"command failed"}
}

type execFailure struct{ msg string }

func (e *execFailure) Error() string { return e.msg }
