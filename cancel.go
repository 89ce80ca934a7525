package actionserver

// cancelCoordinator translates one bulk cancel request into per-goal
// cancel_cb invocations and an aggregated CancelResponse.
type cancelCoordinator struct {
	registry *GoalRegistry
	cancelCb CancelCallback
}

// run evaluates candidates in order, calling cancelCb for each one whose
// handle is still known and mutating accepted candidates' state machines
// to Canceling. The returned CancelResponse carries only the ids that were
// actually accepted.
func (c *cancelCoordinator) run(candidates []GoalID) CancelResponse {
	accepted := make([]GoalID, 0, len(candidates))

	for _, id := range candidates {
		handle, ok := c.registry.Get(id)
		if !ok {
			// Unknown to this server: reject this entry.
			continue
		}

		if c.cancelCb == nil || c.cancelCb(handle) != CancelAccept {
			continue
		}

		// The user accepted; the state machine may still refuse because
		// the goal has already reached a terminal state. That refusal is
		// not surfaced to cancel_cb a second time - it simply downgrades
		// this entry to a rejection.
		if err := handle.cancel(); err != nil {
			continue
		}

		accepted = append(accepted, id)
	}

	resp := CancelResponse{GoalsCanceling: accepted}
	switch {
	case len(candidates) == 0:
		resp.ReturnCode = CancelNone
	case len(accepted) == 0:
		resp.ReturnCode = CancelRejected
	default:
		resp.ReturnCode = CancelNone
	}
	return resp
}
