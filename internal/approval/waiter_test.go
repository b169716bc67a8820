package approval

import (
	"context"
	"errors"
	"testing"
	"time"
)

func requestAsync(w *Waiter, command string, timeout time.Duration) (chan Decision, chan error) {
	decCh := make(chan Decision, 1)
	errCh := make(chan error, 1)
	go func() {
		d, err := w.Request(context.Background(), command, "yellow", "needs approval", "u1", timeout)
		if err != nil {
			errCh <- err
			return
		}
		decCh <- d
	}()
	return decCh, errCh
}

func waitForPending(t *testing.T, w *Waiter) Request {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if pending := w.ListPending(); len(pending) > 0 {
			return pending[0]
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("request never became pending")
	return Request{}
}

func TestApprove_ResolvesRequester(t *testing.T) {
	w := NewWaiter()
	decCh, errCh := requestAsync(w, "curl example.com", time.Minute)

	req := waitForPending(t, w)
	if err := w.Approve(req.ID, "admin"); err != nil {
		t.Fatal(err)
	}

	select {
	case d := <-decCh:
		if !d.Approved || d.ApprovedBy != "admin" {
			t.Errorf("decision = %+v", d)
		}
	case err := <-errCh:
		t.Fatalf("unexpected error: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("requester never resumed")
	}

	if len(w.ListPending()) != 0 {
		t.Error("approved request still pending")
	}
}

func TestReject_DeliversReason(t *testing.T) {
	w := NewWaiter()
	_, errCh := requestAsync(w, "curl example.com", time.Minute)

	req := waitForPending(t, w)
	if err := w.Reject(req.ID, "too risky"); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-errCh:
		var rejected *RejectedError
		if !errors.As(err, &rejected) {
			t.Fatalf("err = %v, want RejectedError", err)
		}
		if rejected.Reason != "too risky" {
			t.Errorf("reason = %q", rejected.Reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("requester never resumed")
	}
}

func TestApproveReject_MutuallyExclusive(t *testing.T) {
	w := NewWaiter()
	decCh, _ := requestAsync(w, "x", time.Minute)

	req := waitForPending(t, w)
	if err := w.Approve(req.ID, "admin"); err != nil {
		t.Fatal(err)
	}
	// The loser observes not_found.
	if err := w.Reject(req.ID, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("second resolution err = %v, want ErrNotFound", err)
	}
	<-decCh
}

func TestRequest_Timeout(t *testing.T) {
	w := NewWaiter()
	_, errCh := requestAsync(w, "x", 30*time.Millisecond)

	select {
	case err := <-errCh:
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("err = %v, want ErrTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout never fired")
	}
	if len(w.ListPending()) != 0 {
		t.Error("timed-out request still pending")
	}
}

func TestApprove_UnknownID(t *testing.T) {
	w := NewWaiter()
	if err := w.Approve("nope", "admin"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if err := w.Reject("nope", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestListPending_NewestFirst(t *testing.T) {
	w := NewWaiter()
	base := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	step := 0
	w.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	requestAsync(w, "first", time.Minute)
	waitForPending(t, w)
	requestAsync(w, "second", time.Minute)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(w.ListPending()) == 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	pending := w.ListPending()
	if len(pending) != 2 {
		t.Fatalf("pending = %d, want 2", len(pending))
	}
	if pending[0].Command != "second" {
		t.Errorf("pending[0] = %q, want newest first", pending[0].Command)
	}
}

func TestCleanupExpired(t *testing.T) {
	w := NewWaiter()
	_, errCh := requestAsync(w, "x", time.Hour)
	req := waitForPending(t, w)

	// Force expiry from the sweeper's perspective.
	w.now = func() time.Time { return req.ExpiresAt.Add(time.Second) }

	if n := w.CleanupExpired(); n != 1 {
		t.Errorf("swept %d, want 1", n)
	}
	select {
	case err := <-errCh:
		if !errors.Is(err, ErrTimeout) {
			t.Errorf("err = %v, want ErrTimeout", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper never signaled the requester")
	}
}
