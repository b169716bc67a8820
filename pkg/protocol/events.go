package protocol

// WebSocket event names pushed from server to client.
const (
	EventHealth = "health"

	// Approval lifecycle (payload: request id, command, tier, reason).
	EventApprovalRequested = "approval.requested"
	EventApprovalResolved  = "approval.resolved"

	// Audit entry created (payload: entry id, tier, action).
	EventAuditCreated = "audit.created"

	// Sandbox lifecycle (payload: user_id, sandbox_id).
	EventSandboxCreated    = "sandbox.created"
	EventSandboxHibernated = "sandbox.hibernated"
	EventSandboxTerminated = "sandbox.terminated"

	// Cron execution (payload: job id, status).
	EventCron = "cron"

	EventShutdown = "shutdown"
)
