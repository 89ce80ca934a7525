package actionserver

import (
	"testing"
	"time"
)

func TestGoalRegistryInsertAndGet(t *testing.T) {
	r := NewGoalRegistry()
	as := newTestServer(t, newFakeMiddleware())
	h := newServerGoalHandle(goalID(1), "payload", time.Now(), as)

	r.Insert(h)

	got, ok := r.Get(goalID(1))
	if !ok {
		t.Fatalf("expected goal to be found")
	}
	if got != h {
		t.Fatalf("expected the same handle back")
	}
	if !r.Known(goalID(1)) {
		t.Fatalf("expected Known to report true")
	}
	if r.Known(goalID(2)) {
		t.Fatalf("expected Known to report false for unseen id")
	}
}

func TestGoalRegistryInsertDuplicatePanics(t *testing.T) {
	r := NewGoalRegistry()
	as := newTestServer(t, newFakeMiddleware())
	h1 := newServerGoalHandle(goalID(1), "a", time.Now(), as)
	h2 := newServerGoalHandle(goalID(1), "b", time.Now(), as)

	r.Insert(h1)

	defer func() {
		if recover() == nil {
			t.Fatalf("expected Insert to panic on duplicate id")
		}
	}()
	r.Insert(h2)
}

func TestGoalRegistryTerminateDrainsPendingRequests(t *testing.T) {
	r := NewGoalRegistry()
	id := goalID(3)

	req1 := RequestID{SequenceNumber: 1}
	req2 := RequestID{SequenceNumber: 2}

	if _, cached := r.EnqueueResultRequest(id, req1); cached {
		t.Fatalf("expected no cached result yet")
	}
	if _, cached := r.EnqueueResultRequest(id, req2); cached {
		t.Fatalf("expected no cached result yet")
	}

	pending := r.Terminate(id, []byte("result"))
	if len(pending) != 2 || pending[0] != req1 || pending[1] != req2 {
		t.Fatalf("expected both requests drained in order, got %v", pending)
	}

	// The queue must be empty and never repopulated after termination.
	if _, cached := r.EnqueueResultRequest(id, RequestID{SequenceNumber: 3}); !cached {
		t.Fatalf("expected EnqueueResultRequest to return the cached result once terminated")
	}

	res, ok := r.CachedResult(id)
	if !ok || string(res) != "result" {
		t.Fatalf("expected cached result %q, got %q (ok=%v)", "result", res, ok)
	}
}

func TestGoalRegistryEnqueueResultRequestReturnsCachedImmediately(t *testing.T) {
	r := NewGoalRegistry()
	id := goalID(4)
	r.Terminate(id, []byte("already done"))

	res, cached := r.EnqueueResultRequest(id, RequestID{SequenceNumber: 1})
	if !cached {
		t.Fatalf("expected cached=true")
	}
	if string(res) != "already done" {
		t.Fatalf("unexpected result: %q", res)
	}
}

func TestGoalRegistryRemoveClearsAllThreeMaps(t *testing.T) {
	r := NewGoalRegistry()
	as := newTestServer(t, newFakeMiddleware())
	id := goalID(5)
	h := newServerGoalHandle(id, "x", time.Now(), as)
	r.Insert(h)
	r.Terminate(id, []byte("r"))

	r.Remove(id)

	if r.Known(id) {
		t.Fatalf("expected handle removed")
	}
	if _, ok := r.CachedResult(id); ok {
		t.Fatalf("expected result removed")
	}
	if _, cached := r.EnqueueResultRequest(id, RequestID{SequenceNumber: 9}); cached {
		t.Fatalf("expected no cached result after removal")
	}
}

func TestGoalRegistrySnapshotReflectsLiveStatus(t *testing.T) {
	r := NewGoalRegistry()
	as := newTestServer(t, newFakeMiddleware())
	id := goalID(6)
	accepted := time.Now()
	h := newServerGoalHandle(id, "payload", accepted, as)
	r.Insert(h)

	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(snap))
	}
	if snap[0].Status != StatusAccepted {
		t.Fatalf("expected Accepted, got %v", snap[0].Status)
	}

	if err := h.Execute(); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	snap = r.Snapshot()
	if snap[0].Status != StatusExecuting {
		t.Fatalf("expected Executing after Execute(), got %v", snap[0].Status)
	}
}

func TestGoalRegistryCount(t *testing.T) {
	r := NewGoalRegistry()
	as := newTestServer(t, newFakeMiddleware())
	for i := byte(1); i <= 3; i++ {
		r.Insert(newServerGoalHandle(goalID(i), i, time.Now(), as))
	}
	if r.Count() != 3 {
		t.Fatalf("expected 3, got %d", r.Count())
	}
	r.Remove(goalID(1))
	if r.Count() != 2 {
		t.Fatalf("expected 2 after remove, got %d", r.Count())
	}
}
