package chunk

// State is the orchestrator's position in the recording flow.
type State int

const (
	StateIdle State = iota
	StateRecording
	StateDraining
	StateChunkComplete
	StatePromptNext
	StateAutoFinalize
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateDraining:
		return "draining"
	case StateChunkComplete:
		return "chunk_complete"
	case StatePromptNext:
		return "prompt_next"
	case StateAutoFinalize:
		return "auto_finalize"
	case StateFinalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// CanStart reports whether a new chunk may begin from this state.
func (s State) CanStart() bool {
	return s == StateIdle || s == StatePromptNext
}

// CanCombine reports whether combine-now is reachable from this state.
func (s State) CanCombine() bool {
	return s == StatePromptNext || s == StateAutoFinalize
}
