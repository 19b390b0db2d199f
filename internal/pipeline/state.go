package pipeline

import "fmt"

// State is the lifecycle position of a pipeline
type State int32

const (
	StateIdle State = iota
	StateGenerating
	StateDraining
	StateMerged
	StateDone
	// StateFailed is terminal; Status carries the error that caused it
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateGenerating:
		return "generating"
	case StateDraining:
		return "draining"
	case StateMerged:
		return "merged"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for c := StateIdle; c <= StateFailed; c++ {
		if c.String() == string(text) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown pipeline state %q", text)
}
