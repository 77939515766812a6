package types

// Phase is the lifecycle stage of a book session.
type Phase string

// Session phases
const (
	PhaseIdle         Phase = "idle"
	PhaseOutlineReady Phase = "outline_ready"
	PhaseProducing    Phase = "producing"
	PhaseComplete     Phase = "complete"
)

// CanTransition reports whether moving from p to next is a legal edge.
// Reset to Idle is always legal.
func (p Phase) CanTransition(next Phase) bool {
	if next == PhaseIdle {
		return true
	}
	switch p {
	case PhaseIdle:
		return next == PhaseOutlineReady
	case PhaseOutlineReady:
		return next == PhaseProducing
	case PhaseProducing:
		return next == PhaseComplete || next == PhaseOutlineReady
	default:
		return false
	}
}
