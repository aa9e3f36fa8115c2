package wisp

import "fmt"

// InvalidChannelNameError reports a channel name whose prefix does not match
// the requested variant. It is returned at construction time, before any
// authorizer or transport activity.
type InvalidChannelNameError struct {
	Name string
	Kind Kind
}

func (e InvalidChannelNameError) Error() string {
	switch e.Kind {
	case KindPrivate:
		return fmt.Sprintf("invalid channel name %q: private channels require the %q prefix", e.Name, PrivatePrefix)
	case KindPresence:
		return fmt.Sprintf("invalid channel name %q: presence channels require the %q prefix", e.Name, PresencePrefix)
	default:
		return fmt.Sprintf("invalid channel name %q", e.Name)
	}
}

// AuthError reports a rejected or failed authorization round trip. Status
// and Message carry whatever the upstream endpoint said.
type AuthError struct {
	Status  int
	Message string
}

func (e AuthError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("authentication failed (status %d): %s", e.Status, e.Message)
	}
	return fmt.Sprintf("authentication failed: %s", e.Message)
}

// ChannelStateError reports an operation attempted while the channel is in
// the wrong state, such as a whisper before the subscription completed.
type ChannelStateError struct {
	Op    string
	State State
}

func (e ChannelStateError) Error() string {
	return fmt.Sprintf("cannot %s while channel is %s", e.Op, e.State)
}

// ArgumentError reports a malformed call, such as a whisper event name
// missing the client- prefix.
type ArgumentError struct {
	Reason string
}

func (e ArgumentError) Error() string {
	return e.Reason
}
