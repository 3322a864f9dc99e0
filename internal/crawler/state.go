package crawler

// State is a step of the crawl state machine.
type State int32

const (
	// StateIdle is the state before Run is called.
	StateIdle State = iota

	// StateResolvingVisibility resolves every unknown identity in the store
	// and probes every public identity with unknown ownership.
	StateResolvingVisibility

	// StateSelecting asks the frontier selector for the next identity.
	StateSelecting

	// StateExpanding fetches the selected identity's friends list and
	// registers every friend.
	StateExpanding

	// StateResolvingNew resolves the friends registered by the expansion.
	StateResolvingNew

	// StateCheckpointing persists the store when the interval has elapsed.
	StateCheckpointing

	// StateDone is terminal: the frontier is empty or the run limit was hit.
	StateDone

	// StateAborted is terminal: the run was cancelled or failed.
	StateAborted
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingVisibility:
		return "resolving-visibility"
	case StateSelecting:
		return "selecting"
	case StateExpanding:
		return "expanding"
	case StateResolvingNew:
		return "resolving-new"
	case StateCheckpointing:
		return "checkpointing"
	case StateDone:
		return "done"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateAborted
}

// StopReason explains why a run ended.
type StopReason int

const (
	// ReasonNone means the run has not ended.
	ReasonNone StopReason = iota

	// ReasonExhausted means the frontier is empty.
	ReasonExhausted

	// ReasonLimit means the expansion limit was reached.
	ReasonLimit

	// ReasonCancelled means the context was cancelled.
	ReasonCancelled

	// ReasonError means an unrecoverable store error stopped the run.
	ReasonError
)

// String returns a short label for logs and the runs table.
func (r StopReason) String() string {
	switch r {
	case ReasonNone:
		return "none"
	case ReasonExhausted:
		return "exhausted"
	case ReasonLimit:
		return "limit"
	case ReasonCancelled:
		return "cancelled"
	case ReasonError:
		return "error"
	default:
		return "unknown"
	}
}
