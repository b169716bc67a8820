// Package audit records every pipeline decision in a bounded newest-first
// ring with derived statistics.
package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/clawgate/internal/secrets"
)

// MaxEntries bounds the in-memory ring; the oldest entry is evicted on
// overflow.
const MaxEntries = 10000

// maxOutputBytes caps the stored command output.
const maxOutputBytes = 4096

// ErrNotFound is returned when an entry id is unknown.
var ErrNotFound = errors.New("audit entry not found")

// Entry is one audited command decision. Fields are immutable once the
// entry reaches a terminal state.
type Entry struct {
	ID              string          `json:"id"`
	CreatedAt       time.Time       `json:"created_at"`
	UserID          string          `json:"user_id"`
	ChannelID       string          `json:"channel_id"`
	Command         string          `json:"command"`
	Tier            string          `json:"tier"`
	Action          string          `json:"action"`
	Reason          string          `json:"reason"`
	Approved        *bool           `json:"approved,omitempty"`
	ApprovedBy      string          `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time      `json:"approved_at,omitempty"`
	ExecutedAt      *time.Time      `json:"executed_at,omitempty"`
	Output          string          `json:"output,omitempty"`
	Error           string          `json:"error,omitempty"`
	SecretsFound    []secrets.Match `json:"secrets_found,omitempty"`
	SecretsRedacted bool            `json:"secrets_redacted"`
}

// Patch holds the mutable fields of an Update. Nil members are left as-is.
type Patch struct {
	Approved        *bool
	ApprovedBy      *string
	ApprovedAt      *time.Time
	ExecutedAt      *time.Time
	Output          *string
	Error           *string
	SecretsFound    []secrets.Match
	SecretsRedacted *bool
}

// QueryOpts filters a Query, applied in declared order.
type QueryOpts struct {
	Tier   string
	Action string
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

// Stats are derived from the current ring contents.
type Stats struct {
	Total        int            `json:"total"`
	ByTier       map[string]int `json:"by_tier"`
	ByAction     map[string]int `json:"by_action"`
	ApprovalRate float64        `json:"approval_rate"`
	LastUpdate   time.Time      `json:"last_update"`
}

// Archive receives each new entry and each updated snapshot of it for
// durable storage. Implementations must be safe for concurrent use.
type Archive interface {
	Append(ctx context.Context, e Entry) error
}

// Log is the in-process audit ring. Safe for concurrent use.
type Log struct {
	mu      sync.RWMutex
	entries []*Entry // newest first
	index   map[string]*Entry
	archive Archive
	now     func() time.Time
}

// NewLog creates an empty audit log. archive may be nil.
func NewLog(archive Archive) *Log {
	return &Log{
		index:   make(map[string]*Entry),
		archive: archive,
		now:     time.Now,
	}
}

// Create inserts a new entry at the head of the ring, evicting the oldest
// when full. Insertion never blocks on the archive.
func (l *Log) Create(command, tier, action, reason, userID, channelID string) *Entry {
	l.mu.Lock()

	e := &Entry{
		ID:        uuid.NewString(),
		CreatedAt: l.now(),
		UserID:    userID,
		ChannelID: channelID,
		Command:   command,
		Tier:      tier,
		Action:    action,
		Reason:    reason,
	}

	l.entries = append([]*Entry{e}, l.entries...)
	l.index[e.ID] = e
	if len(l.entries) > MaxEntries {
		evicted := l.entries[len(l.entries)-1]
		l.entries = l.entries[:len(l.entries)-1]
		delete(l.index, evicted.ID)
	}
	snapshot := *e
	l.mu.Unlock()

	if l.archive != nil {
		go func() {
			if err := l.archive.Append(context.Background(), snapshot); err != nil {
				slog.Warn("audit archive append failed", "id", snapshot.ID, "error", err)
			}
		}()
	}
	return e
}

// Update mutates an entry in place and re-archives it so the durable copy
// reflects the terminal state. Unknown ids return ErrNotFound.
func (l *Log) Update(id string, p Patch) error {
	l.mu.Lock()

	e, ok := l.index[id]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}

	if p.Approved != nil {
		e.Approved = p.Approved
	}
	if p.ApprovedBy != nil {
		e.ApprovedBy = *p.ApprovedBy
	}
	if p.ApprovedAt != nil {
		e.ApprovedAt = p.ApprovedAt
	}
	if p.ExecutedAt != nil {
		e.ExecutedAt = p.ExecutedAt
	}
	if p.Output != nil {
		e.Output = truncate(*p.Output, maxOutputBytes)
	}
	if p.Error != nil {
		e.Error = *p.Error
	}
	if p.SecretsFound != nil {
		e.SecretsFound = p.SecretsFound
	}
	if p.SecretsRedacted != nil {
		e.SecretsRedacted = *p.SecretsRedacted
	}
	snapshot := *e
	l.mu.Unlock()

	if l.archive != nil {
		go func() {
			if err := l.archive.Append(context.Background(), snapshot); err != nil {
				slog.Warn("audit archive append failed", "id", snapshot.ID, "error", err)
			}
		}()
	}
	return nil
}

// Get returns a copy of the entry with the given id.
func (l *Log) Get(id string) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	e, ok := l.index[id]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return *e, nil
}

// Query returns entries for a user (all users when userID is empty),
// newest first, with filters applied in declared order.
func (l *Log) Query(userID string, opts QueryOpts) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var out []Entry
	skipped := 0
	for _, e := range l.entries {
		if userID != "" && e.UserID != userID {
			continue
		}
		if opts.Tier != "" && e.Tier != opts.Tier {
			continue
		}
		if opts.Action != "" && e.Action != opts.Action {
			continue
		}
		if !opts.From.IsZero() && e.CreatedAt.Before(opts.From) {
			continue
		}
		if !opts.To.IsZero() && e.CreatedAt.After(opts.To) {
			continue
		}
		if skipped < opts.Offset {
			skipped++
			continue
		}
		out = append(out, *e)
		if len(out) >= limit {
			break
		}
	}
	return out
}

// Count returns how many entries match the user filter.
func (l *Log) Count(userID string) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if userID == "" {
		return len(l.entries)
	}
	n := 0
	for _, e := range l.entries {
		if e.UserID == userID {
			n++
		}
	}
	return n
}

// Stats derives aggregate statistics over the trailing window.
// approval_rate = approved asks / total asks (0 when no asks).
func (l *Log) Stats(userID string, days int) Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if days <= 0 {
		days = 7
	}
	cutoff := l.now().AddDate(0, 0, -days)

	st := Stats{
		ByTier:     make(map[string]int),
		ByAction:   make(map[string]int),
		LastUpdate: l.now(),
	}

	totalAsk, approvedAsk := 0, 0
	for _, e := range l.entries {
		if userID != "" && e.UserID != userID {
			continue
		}
		if e.CreatedAt.Before(cutoff) {
			continue
		}
		st.Total++
		st.ByTier[e.Tier]++
		st.ByAction[e.Action]++
		if e.Action == "ask" {
			totalAsk++
			if e.Approved != nil && *e.Approved {
				approvedAsk++
			}
		}
	}
	if totalAsk > 0 {
		st.ApprovalRate = float64(approvedAsk) / float64(totalAsk)
	}
	return st
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
