package actionserver

import (
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// GoalCallback decides whether to accept a newly submitted goal, and if
// so, whether to start executing it immediately or defer execution to the
// embedder.
type GoalCallback func(id GoalID, goal Goal) GoalDecision

// CancelCallback decides whether one candidate goal may be canceled. It is
// called with the goal still in whatever active state it was in when the
// cancel request arrived.
type CancelCallback func(handle *ServerGoalHandle) CancelDecision

// AcceptedCallback is invoked once a goal has been accepted and
// registered. The embedder is expected to start execution here, typically
// on another goroutine; the server does not supervise it.
type AcceptedCallback func(handle *ServerGoalHandle)

// ActionServer owns the middleware handle and dispatches the four
// readiness modes to the registry, cancel coordinator and expiration
// sweeper: one struct owning the transport handle, the callbacks, and the
// goal registry, with each protocol sub-operation as its own method.
type ActionServer struct {
	action string
	mw     Middleware
	log    *logrus.Entry

	registry *GoalRegistry
	sweeper  *ExpirationSweeper

	goalCb     GoalCallback
	cancelCb   CancelCallback
	acceptedCb AcceptedCallback
	convert    Convert

	entityCounts   EntityCounts
	inUseByWaitSet atomic.Bool
	closed         atomic.Bool
}

// NewActionServer constructs an ActionServer bound to mw for the named
// action. goalCb and acceptedCb are required; cancelCb and convert may be
// nil, in which case cancellation is always rejected and the identity
// conversion is used, respectively. Construction failures leave no partial
// state: NewActionServer only reads mw.EntityCounts(), which allocates
// nothing that would need tearing down, and both error paths return before
// that, so there is nothing to roll back.
func NewActionServer(action string, mw Middleware, goalCb GoalCallback, cancelCb CancelCallback, acceptedCb AcceptedCallback, convert Convert) (*ActionServer, error) {
	if action == "" {
		return nil, errors.Wrap(ErrBadTopicName, "action name must not be empty")
	}
	if goalCb == nil || acceptedCb == nil {
		return nil, errors.New("actionserver: goalCb and acceptedCb are required")
	}
	if convert == nil {
		convert = IdentityConvert
	}

	registry := NewGoalRegistry()
	as := &ActionServer{
		action:     action,
		mw:         mw,
		log:        newComponentLogger(action),
		registry:   registry,
		sweeper:    newExpirationSweeper(registry, mw),
		goalCb:     goalCb,
		cancelCb:   cancelCb,
		acceptedCb: acceptedCb,
		convert:    convert,
		entityCounts: mw.EntityCounts(),
	}
	return as, nil
}

// EntityCounts returns the wait-set entity tally queried at construction.
func (as *ActionServer) EntityCounts() EntityCounts { return as.entityCounts }

// AcquireWaitSet claims the in-use-by-wait-set guard, returning false if
// another executor already holds it. This prevents the same action server
// from being registered with two wait-sets concurrently.
func (as *ActionServer) AcquireWaitSet() bool {
	return as.inUseByWaitSet.CompareAndSwap(false, true)
}

// ReleaseWaitSet releases the in-use-by-wait-set guard.
func (as *ActionServer) ReleaseWaitSet() {
	as.inUseByWaitSet.Store(false)
}

// Stats is a read-only observability snapshot.
type Stats struct {
	Goals int
}

// Stats reports the current number of registered goals.
func (as *ActionServer) Stats() Stats {
	return Stats{Goals: as.registry.Count()}
}

// Execute is the single entry point an executor invokes with a readiness
// mode. Dispatch is a pure switch over the four protocol sub-operations.
func (as *ActionServer) Execute(mode ReadyMode) error {
	switch mode {
	case GoalRequest:
		return as.executeGoalRequest()
	case CancelRequest:
		return as.executeCancelRequest()
	case ResultRequest:
		return as.executeResultRequest()
	case GoalExpired:
		return as.sweeper.Sweep()
	default:
		return errors.Errorf("actionserver: unknown ready mode %v", mode)
	}
}

// executeGoalRequest takes one pending goal request, asks goalCb whether
// to accept it, and if accepted registers and optionally starts it.
func (as *ActionServer) executeGoalRequest() error {
	id, rawGoal, req, ok, err := as.mw.TakeGoalRequest()
	if err != nil {
		return errors.Wrap(err, "take goal request")
	}
	if !ok {
		// Spurious wakeup: the wait-set said this was ready but nothing
		// was actually queued.
		return nil
	}

	goal, err := as.convert(rawGoal)
	if err != nil {
		return errors.Wrap(err, "convert goal payload")
	}

	decision := as.goalCb(id, goal)
	if decision == Reject {
		as.log.WithField("goal", id).Info("goal rejected")
		return as.respondGoal(req, false)
	}

	acceptedAt, err := as.mw.AcceptNewGoal(id)
	if err != nil {
		return errors.Wrap(err, "accept new goal")
	}

	handle := newServerGoalHandle(id, goal, acceptedAt, as)
	as.registry.Insert(handle)

	if err := as.respondGoal(req, true); err != nil {
		return err
	}

	if decision == AcceptAndExecute {
		if err := handle.Execute(); err != nil {
			return err
		}
	}

	as.PublishStatus()
	as.log.WithField("goal", id).Info("goal accepted")

	// The embedder is expected to start execution (often on another
	// goroutine); the server does not supervise it further.
	as.acceptedCb(handle)
	return nil
}

func (as *ActionServer) respondGoal(req RequestID, accepted bool) error {
	err := as.mw.SendGoalResponse(req, accepted)
	return as.swallowTimeout(err)
}

// executeCancelRequest takes one pending cancel request, resolves it to a
// set of candidate goal ids via the middleware's own filtering, and runs
// them through the cancel coordinator.
func (as *ActionServer) executeCancelRequest() error {
	filter, req, ok, err := as.mw.TakeCancelRequest()
	if err != nil {
		return errors.Wrap(err, "take cancel request")
	}
	if !ok {
		return nil
	}

	candidates, err := as.mw.ProcessCancelRequest(filter)
	if err != nil {
		return errors.Wrap(err, "process cancel request")
	}

	coord := &cancelCoordinator{registry: as.registry, cancelCb: as.cancelCb}
	resp := coord.run(candidates)

	if len(resp.GoalsCanceling) > 0 {
		as.PublishStatus()
	}

	err = as.mw.SendCancelResponse(req, resp)
	return as.swallowTimeout(err)
}

// executeResultRequest takes one pending get-result request and either
// answers it immediately, if the goal is unknown or its result is already
// cached, or enqueues it to be answered later from completeGoal.
func (as *ActionServer) executeResultRequest() error {
	id, req, ok, err := as.mw.TakeResultRequest()
	if err != nil {
		return errors.Wrap(err, "take result request")
	}
	if !ok {
		return nil
	}

	if !as.mw.GoalExists(id) {
		err := as.mw.SendResultResponse(req, ResultResponse{Status: ResultStatusUnknown})
		return as.swallowTimeout(err)
	}

	if result, cached := as.registry.EnqueueResultRequest(id, req); cached {
		handle, _ := as.registry.Get(id)
		status := ResultStatusCode(StatusAccepted)
		if handle != nil {
			status = ResultStatusCode(handle.Status())
		}
		err := as.mw.SendResultResponse(req, ResultResponse{Status: status, Result: result})
		return as.swallowTimeout(err)
	}

	// No response yet: the request id now sits in the registry's pending
	// queue and will be answered from completeGoal.
	return nil
}

// completeGoal is called by ServerGoalHandle.terminate once a goal has
// reached a terminal state. It writes the result into the registry and
// replies to every get-result caller that arrived before termination.
func (as *ActionServer) completeGoal(id GoalID, result []byte) {
	handle, ok := as.registry.Get(id)
	status := StatusSucceeded
	if ok {
		status = handle.Status()
	}

	// Status was already published by the goal handle's state transition
	// before it called us, so every caller sees the terminal status before
	// either the stored result or a delivered get-result response.
	pending := as.registry.Terminate(id, result)

	for _, req := range pending {
		err := as.mw.SendResultResponse(req, ResultResponse{
			Status: ResultStatusCode(status),
			Result: result,
		})
		if err := as.swallowTimeout(err); err != nil {
			as.log.WithError(err).WithField("goal", id).Error("failed to deliver queued result")
		}
	}
}

// PublishStatus publishes a full snapshot of every known goal. Called at
// every state transition and after batched cancellations.
func (as *ActionServer) PublishStatus() {
	if err := as.mw.PublishStatus(as.registry.Snapshot()); err != nil {
		as.log.WithError(err).Error("failed to publish status")
	}
}

// Shutdown invalidates every outstanding ServerGoalHandle's back-reference
// to this server, so that calls racing a shutdown observe ErrServerGone
// rather than reaching a server that is going away.
func (as *ActionServer) Shutdown() {
	if !as.closed.CompareAndSwap(false, true) {
		return
	}
	for _, h := range as.registry.All() {
		h.clearBackRef()
	}
}

// swallowTimeout logs and suppresses a middleware Timeout, since it means
// the remote client is gone rather than signaling a real failure; every
// other error is returned unchanged.
func (as *ActionServer) swallowTimeout(err error) error {
	if err == nil {
		return nil
	}
	if isTimeout(err) {
		as.log.WithError(err).Debug("send response timed out, client likely gone")
		return nil
	}
	return err
}

// RunExpirationLoop drives the sweeper on a fixed period until stop is
// closed. It is purely a convenience wrapper: Execute(GoalExpired) behaves
// identically whether invoked from here or directly by an executor.
func (as *ActionServer) RunExpirationLoop(period time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := as.Execute(GoalExpired); err != nil {
				as.log.WithError(err).Error("expiration sweep failed")
			}
		}
	}
}
