// Package approval implements the rendezvous between a command waiting for
// human confirmation and an out-of-band approver.
package approval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for request outcomes.
var (
	ErrNotFound = errors.New("approval request not found")
	ErrTimeout  = errors.New("approval request timed out")
)

// RejectedError carries the approver's optional reason.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Reason == "" {
		return "approval request rejected"
	}
	return fmt.Sprintf("approval request rejected: %s", e.Reason)
}

// Request is a pending approval.
type Request struct {
	ID          string    `json:"id"`
	Command     string    `json:"command"`
	Tier        string    `json:"tier"`
	Reason      string    `json:"reason"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	RequesterID string    `json:"requester_id"`
}

// Decision is delivered to the waiting requester on approval.
type Decision struct {
	Approved   bool      `json:"approved"`
	ApprovedBy string    `json:"approved_by"`
	Timestamp  time.Time `json:"timestamp"`
}

type outcome struct {
	decision Decision
	err      error
}

type pending struct {
	request Request
	done    chan outcome
	timer   *time.Timer
}

// Listener observes request lifecycle transitions (for event broadcast).
type Listener func(event string, req Request)

// Waiter coordinates pending approval requests. Safe for concurrent use.
type Waiter struct {
	mu       sync.Mutex
	pending  map[string]*pending
	listener Listener
	now      func() time.Time
}

// NewWaiter creates an empty waiter.
func NewWaiter() *Waiter {
	return &Waiter{
		pending: make(map[string]*pending),
		now:     time.Now,
	}
}

// SetListener installs a lifecycle observer. Events: "requested",
// "approved", "rejected", "expired".
func (w *Waiter) SetListener(l Listener) {
	w.mu.Lock()
	w.listener = l
	w.mu.Unlock()
}

func (w *Waiter) notify(event string, req Request) {
	if w.listener != nil {
		go w.listener(event, req)
	}
}

// Request registers a pending approval and blocks until it is approved,
// rejected, the timeout fires, or ctx is canceled. Approve/reject/timeout
// are mutually exclusive: the first to occur wins and removes the entry.
func (w *Waiter) Request(ctx context.Context, command, tier, reason, requesterID string, timeout time.Duration) (Decision, error) {
	w.mu.Lock()
	now := w.now()
	p := &pending{
		request: Request{
			ID:          uuid.NewString(),
			Command:     command,
			Tier:        tier,
			Reason:      reason,
			CreatedAt:   now,
			ExpiresAt:   now.Add(timeout),
			RequesterID: requesterID,
		},
		done: make(chan outcome, 1),
	}
	id := p.request.ID
	p.timer = time.AfterFunc(timeout, func() {
		w.resolve(id, outcome{err: ErrTimeout}, "expired")
	})
	w.pending[id] = p
	w.notify("requested", p.request)
	w.mu.Unlock()

	select {
	case out := <-p.done:
		return out.decision, out.err
	case <-ctx.Done():
		// Abandoned by the requester; drop the entry so approvers see
		// not_found rather than resolving into the void.
		w.resolve(id, outcome{err: ctx.Err()}, "expired")
		return Decision{}, ctx.Err()
	}
}

// resolve removes the entry and signals the waiting requester exactly once.
func (w *Waiter) resolve(id string, out outcome, event string) bool {
	w.mu.Lock()
	p, ok := w.pending[id]
	if !ok {
		w.mu.Unlock()
		return false
	}
	delete(w.pending, id)
	p.timer.Stop()
	req := p.request
	w.notify(event, req)
	w.mu.Unlock()

	p.done <- out
	return true
}

// Approve resolves a pending request in the requester's favor.
func (w *Waiter) Approve(id, approvedBy string) error {
	d := Decision{Approved: true, ApprovedBy: approvedBy, Timestamp: w.now()}
	if !w.resolve(id, outcome{decision: d}, "approved") {
		return ErrNotFound
	}
	return nil
}

// Reject resolves a pending request against the requester.
func (w *Waiter) Reject(id, reason string) error {
	if !w.resolve(id, outcome{err: &RejectedError{Reason: reason}}, "rejected") {
		return ErrNotFound
	}
	return nil
}

// ListPending returns pending requests sorted by creation time, newest
// first.
func (w *Waiter) ListPending() []Request {
	w.mu.Lock()
	out := make([]Request, 0, len(w.pending))
	for _, p := range w.pending {
		out = append(out, p.request)
	}
	w.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// CleanupExpired sweeps entries past their expiry. Defensive: the
// per-request timer is the primary timeout mechanism.
func (w *Waiter) CleanupExpired() int {
	w.mu.Lock()
	now := w.now()
	var expired []string
	for id, p := range w.pending {
		if !now.Before(p.request.ExpiresAt) {
			expired = append(expired, id)
		}
	}
	w.mu.Unlock()

	for _, id := range expired {
		w.resolve(id, outcome{err: ErrTimeout}, "expired")
	}
	return len(expired)
}
