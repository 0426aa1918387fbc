package session

import "fmt"

// State is the session connection state.
type State uint8

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// MarshalText renders the state for JSON status payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parses the wire form produced by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	switch string(text) {
	case "disconnected":
		*s = StateDisconnected
	case "connecting":
		*s = StateConnecting
	case "connected":
		*s = StateConnected
	default:
		return fmt.Errorf("session: unknown state %q", text)
	}
	return nil
}
