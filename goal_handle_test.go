package actionserver

import (
	"testing"
	"time"

	"github.com/pkg/errors"
)

func TestServerGoalHandlePublishFeedbackWhileActive(t *testing.T) {
	mw := newFakeMiddleware()
	srv := newTestServer(t, mw)
	h := newServerGoalHandle(goalID(1), "g", time.Now(), srv)
	srv.registry.Insert(h)

	if err := h.PublishFeedback([]byte("progress")); err != nil {
		t.Fatalf("PublishFeedback: %v", err)
	}
	if len(mw.feedbackCalls) != 1 || string(mw.feedbackCalls[0].fb) != "progress" {
		t.Fatalf("expected one feedback call with payload, got %+v", mw.feedbackCalls)
	}
}

func TestServerGoalHandlePublishFeedbackAfterTerminalFails(t *testing.T) {
	mw := newFakeMiddleware()
	srv := newTestServer(t, mw)
	h := newServerGoalHandle(goalID(1), "g", time.Now(), srv)
	srv.registry.Insert(h)

	if err := h.Succeed([]byte("r")); err != nil {
		t.Fatalf("Succeed: %v", err)
	}

	err := h.PublishFeedback([]byte("too late"))
	if errors.Cause(err) != ErrGoalNotActive {
		t.Fatalf("expected ErrGoalNotActive, got %v", err)
	}
}

func TestServerGoalHandleInvalidTransitionsReturnError(t *testing.T) {
	srv := newTestServer(t, newFakeMiddleware())
	h := newServerGoalHandle(goalID(1), "g", time.Now(), srv)
	srv.registry.Insert(h)

	if err := h.Canceled(nil); errors.Cause(err) != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition canceling an Accepted goal directly, got %v", err)
	}

	if err := h.Succeed(nil); err != nil {
		t.Fatalf("Succeed: %v", err)
	}
	if err := h.Succeed(nil); errors.Cause(err) != ErrInvalidTransition {
		t.Fatalf("expected ErrInvalidTransition succeeding twice, got %v", err)
	}
}

func TestServerGoalHandleStatusPublishedBeforeResultStored(t *testing.T) {
	mw := newFakeMiddleware()
	srv := newTestServer(t, mw)
	id := goalID(1)
	h := newServerGoalHandle(id, "g", time.Now(), srv)
	srv.registry.Insert(h)

	if err := h.Succeed([]byte("R")); err != nil {
		t.Fatalf("Succeed: %v", err)
	}

	if len(mw.statusCalls) == 0 {
		t.Fatalf("expected at least one status publication")
	}
	last := mw.statusCalls[len(mw.statusCalls)-1]
	if len(last) != 1 || last[0].Status != StatusSucceeded {
		t.Fatalf("expected published snapshot to already show Succeeded, got %+v", last)
	}

	res, ok := srv.registry.CachedResult(id)
	if !ok || string(res) != "R" {
		t.Fatalf("expected cached result R, got %q (ok=%v)", res, ok)
	}
}

func TestServerGoalHandleBackRefClearedOnShutdown(t *testing.T) {
	srv := newTestServer(t, newFakeMiddleware())
	h := newServerGoalHandle(goalID(1), "g", time.Now(), srv)
	srv.registry.Insert(h)

	srv.Shutdown()

	if err := h.PublishFeedback([]byte("x")); errors.Cause(err) != ErrServerGone {
		t.Fatalf("expected ErrServerGone after shutdown, got %v", err)
	}
}
