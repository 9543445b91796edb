package throttle

import (
	"context"

	"golang.org/x/time/rate"
)

// FloodGate throttles request dispatch for REST-style gateway siblings.
// Streaming endpoints use Disabled(), which never blocks — per spec.md
// §4.C, flood control is "either disabled (streaming endpoints) or active
// with a policy object".
type FloodGate struct {
	enabled  bool
	priority *rate.Limiter
	regular  *rate.Limiter
}

// Disabled returns a gate that never blocks a request.
func Disabled() *FloodGate { return &FloodGate{enabled: false} }

// New builds an active gate. regularRate/regularBurst bound ordinary
// requests; priorityRate/priorityBurst bound requests made with
// isPriority=true, which are serviced from their own budget so a priority
// request is never starved behind a queue of regular ones.
func New(regularRate float64, regularBurst int, priorityRate float64, priorityBurst int) *FloodGate {
	return &FloodGate{
		enabled:  true,
		regular:  rate.NewLimiter(rate.Limit(regularRate), regularBurst),
		priority: rate.NewLimiter(rate.Limit(priorityRate), priorityBurst),
	}
}

// Check blocks, with precedence for isPriority requests, until the
// endpoint's rate budget allows a new request, or until ctx is canceled.
func (g *FloodGate) Check(ctx context.Context, isPriority bool) error {
	if !g.enabled {
		return nil
	}
	if isPriority {
		return g.priority.Wait(ctx)
	}
	return g.regular.Wait(ctx)
}
