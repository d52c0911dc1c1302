package session

import "github.com/dmweis/zenoh-tailscale/internal/check"

// Phase describes where the manager is in the session lifecycle.
type Phase uint32

const (
	PhaseIdle Phase = iota
	PhaseStarting
	PhaseRunning
	PhaseReconfiguringClose
	PhaseReconfiguringOpen
	PhaseShuttingDown
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseStarting:
		return "starting"
	case PhaseRunning:
		return "running"
	case PhaseReconfiguringClose:
		return "reconfiguring-close"
	case PhaseReconfiguringOpen:
		return "reconfiguring-open"
	case PhaseShuttingDown:
		return "shutting-down"
	case PhaseStopped:
		return "stopped"
	default:
		check.Assertf(false, "unknown session phase: %d", p)
		return "unknown"
	}
}
