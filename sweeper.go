package actionserver

// ExpirationSweeper reaps terminated goals whose middleware-defined
// retention window has elapsed. Expiration is the sole path by which an id
// leaves the GoalRegistry; neither callbacks nor user code call
// GoalRegistry.Remove directly.
type ExpirationSweeper struct {
	registry *GoalRegistry
	mw       Middleware
}

func newExpirationSweeper(registry *GoalRegistry, mw Middleware) *ExpirationSweeper {
	return &ExpirationSweeper{registry: registry, mw: mw}
}

// Sweep drains Middleware.ExpireGoals until it reports zero expirations,
// removing each reported id from the registry. Calling it with nothing
// expired is a no-op, and calling it twice back-to-back yields the same
// registry state.
func (s *ExpirationSweeper) Sweep() error {
	for {
		expired, err := s.mw.ExpireGoals()
		if err != nil {
			return err
		}
		if len(expired) == 0 {
			return nil
		}
		for _, id := range expired {
			s.registry.Remove(id)
		}
	}
}
