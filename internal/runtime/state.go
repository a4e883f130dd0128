package runtime

import "fmt"

// State is the lifecycle state of a Loop.
type State int32

const (
	Uninitialized State = iota
	Bootstrapping
	Running
	// Errored is terminal: bootstrap failed and no update was ever fetched.
	Errored
	// Stopped is terminal: the loop's context was cancelled.
	Stopped
)

var stateNames = map[State]string{
	Uninitialized: "uninitialized",
	Bootstrapping: "bootstrapping",
	Running:       "running",
	Errored:       "errored",
	Stopped:       "stopped",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// MarshalText renders the state by name in JSON status output.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses a state name as written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for state, name := range stateNames {
		if name == string(text) {
			*s = state
			return nil
		}
	}
	return fmt.Errorf("unknown loop state %q", text)
}
