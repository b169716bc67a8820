package audit

import (
	"strings"
	"testing"
	"time"
)

func TestCreate_NewestFirst(t *testing.T) {
	l := NewLog(nil)
	a := l.Create("ls", "green", "allow", "safe", "u1", "c1")
	b := l.Create("rm -rf /", "red", "block", "dangerous", "u1", "c1")

	entries := l.Query("u1", QueryOpts{})
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}
	if entries[0].ID != b.ID || entries[1].ID != a.ID {
		t.Error("entries not newest-first")
	}
}

func TestCreate_EvictsOldest(t *testing.T) {
	l := NewLog(nil)
	first := l.Create("cmd-0", "green", "allow", "r", "u1", "c1")
	for i := 1; i <= MaxEntries; i++ {
		l.Create("cmd", "green", "allow", "r", "u1", "c1")
	}

	if got := l.Count(""); got != MaxEntries {
		t.Errorf("count = %d, want %d", got, MaxEntries)
	}
	if _, err := l.Get(first.ID); err == nil {
		t.Error("oldest entry should have been evicted")
	}
}

func TestUpdate_UnknownID(t *testing.T) {
	l := NewLog(nil)
	if err := l.Update("nope", Patch{}); err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestUpdate_TruncatesOutput(t *testing.T) {
	l := NewLog(nil)
	e := l.Create("cat big", "green", "allow", "r", "u1", "c1")

	big := strings.Repeat("x", 10000)
	if err := l.Update(e.ID, Patch{Output: &big}); err != nil {
		t.Fatal(err)
	}
	got, _ := l.Get(e.ID)
	if len(got.Output) != 4096 {
		t.Errorf("output len = %d, want 4096", len(got.Output))
	}
}

func TestUpdate_TimestampOrdering(t *testing.T) {
	l := NewLog(nil)
	e := l.Create("curl x", "yellow", "ask", "r", "u1", "c1")

	approved := true
	by := "admin"
	at := time.Now().Add(time.Second)
	exec := at.Add(time.Second)
	l.Update(e.ID, Patch{Approved: &approved, ApprovedBy: &by, ApprovedAt: &at, ExecutedAt: &exec})

	got, _ := l.Get(e.ID)
	if got.ApprovedAt == nil || got.ExecutedAt == nil {
		t.Fatal("timestamps missing")
	}
	if got.CreatedAt.After(*got.ApprovedAt) || got.ApprovedAt.After(*got.ExecutedAt) {
		t.Error("created_at ≤ approved_at ≤ executed_at violated")
	}
}

func TestQuery_Filters(t *testing.T) {
	l := NewLog(nil)
	l.Create("a", "green", "allow", "r", "u1", "c1")
	l.Create("b", "red", "block", "r", "u1", "c1")
	l.Create("c", "red", "block", "r", "u2", "c1")

	if got := l.Query("u1", QueryOpts{Tier: "red"}); len(got) != 1 || got[0].Command != "b" {
		t.Errorf("tier filter: %+v", got)
	}
	if got := l.Query("", QueryOpts{Action: "block"}); len(got) != 2 {
		t.Errorf("action filter across users: %d, want 2", len(got))
	}
	if got := l.Query("u1", QueryOpts{Limit: 1, Offset: 1}); len(got) != 1 || got[0].Command != "a" {
		t.Errorf("limit/offset: %+v", got)
	}
}

func TestStats_ApprovalRate(t *testing.T) {
	l := NewLog(nil)
	approved := true
	denied := false

	e1 := l.Create("x", "yellow", "ask", "r", "u1", "c1")
	l.Update(e1.ID, Patch{Approved: &approved})
	e2 := l.Create("y", "yellow", "ask", "r", "u1", "c1")
	l.Update(e2.ID, Patch{Approved: &denied})
	l.Create("z", "green", "allow", "r", "u1", "c1")

	st := l.Stats("u1", 7)
	if st.Total != 3 {
		t.Errorf("total = %d, want 3", st.Total)
	}
	if st.ApprovalRate != 0.5 {
		t.Errorf("approval_rate = %v, want 0.5", st.ApprovalRate)
	}
	if st.ByTier["yellow"] != 2 || st.ByAction["allow"] != 1 {
		t.Errorf("breakdowns: %v %v", st.ByTier, st.ByAction)
	}
}

func TestStats_NoAsks(t *testing.T) {
	l := NewLog(nil)
	l.Create("a", "green", "allow", "r", "u1", "c1")
	if rate := l.Stats("u1", 7).ApprovalRate; rate != 0 {
		t.Errorf("approval_rate = %v, want 0 with no asks", rate)
	}
}
