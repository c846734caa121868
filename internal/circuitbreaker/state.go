package circuitbreaker

type State int

const (
	// StateClosed - normal operation, store calls pass through
	StateClosed State = iota

	// StateOpen - circuit is open, store calls are skipped
	StateOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
