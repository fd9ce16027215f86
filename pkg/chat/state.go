package chat

// State is the phase of the turn in progress.
type State int

const (
	// Idle means no request is outstanding; the user may submit.
	Idle State = iota

	// Sending means a request was dispatched and no reply content has arrived.
	Sending

	// Streaming means reply snapshots are arriving.
	Streaming

	// Settled means the reply ended and the exchange is being persisted.
	Settled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sending:
		return "sending"
	case Streaming:
		return "streaming"
	case Settled:
		return "settled"
	default:
		return "unknown"
	}
}
