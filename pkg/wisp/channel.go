// Copyright © 2026 the wisp authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package wisp

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is a channel's position in the subscription lifecycle.
type State string

const (
	StateUnsubscribed State = "unsubscribed"
	StateSubscribing  State = "subscribing"
	StateSubscribed   State = "subscribed"
	StateFailed       State = "failed"
)

// Kind is a channel variant, determined by the channel name's prefix.
type Kind int

const (
	KindPublic Kind = iota
	KindPrivate
	KindPresence
)

func (k Kind) String() string {
	switch k {
	case KindPrivate:
		return "private"
	case KindPresence:
		return "presence"
	default:
		return "public"
	}
}

// KindForName returns the variant a channel name selects.
func KindForName(name string) Kind {
	switch {
	case strings.HasPrefix(name, PresencePrefix):
		return KindPresence
	case strings.HasPrefix(name, PrivatePrefix):
		return KindPrivate
	default:
		return KindPublic
	}
}

// A Credential is the header-name to value mapping returned by an
// Authorizer. The channel forwards it in the subscribe frame without
// looking inside.
type Credential map[string]string

// An Authorizer proves the client's right to subscribe to a private or
// presence channel, typically by consulting an application backend. It may
// block; the channel stays in StateSubscribing until it returns.
type Authorizer func(channelName, socketID string) (Credential, error)

// A StateHandler observes channel state transitions. It is called with the
// new state on every transition; historical states are not replayed. On a
// transition to StateFailed, err carries the failure, usually an AuthError.
type StateHandler func(state State, err error)

// ChannelConfig carries the collaborators a channel needs. Conn is
// required; Authorizer only matters for private and presence channels.
type ChannelConfig struct {
	Conn       Sender
	Authorizer Authorizer
	SocketID   func() string
	Log        *logrus.Logger
}

// A Channel is a named logical topic over the shared transport. It owns its
// subscription lifecycle, event bindings and, for presence channels, the
// member set. It holds the transport only as a send capability.
type Channel struct {
	name       string
	kind       Kind
	log        *logrus.Logger
	conn       Sender
	authorizer Authorizer
	socketID   func() string
	bindings   *bindingRegistry
	presence   *presenceTracker

	mtx           sync.Mutex // Protects state, attempt and stateHandlers
	state         State
	attempt       *subscribeAttempt
	stateHandlers []StateHandler
}

// subscribeAttempt is the single in-flight subscription a channel may have.
// Concurrent Subscribe callers wait on done and share err.
type subscribeAttempt struct {
	done chan struct{}
	err  error
}

// NewChannel creates a channel whose variant is inferred from the name
// prefix.
func NewChannel(name string, cfg ChannelConfig) (*Channel, error) {
	return newChannel(name, KindForName(name), cfg)
}

// NewPrivateChannel creates a private channel. The name must carry the
// private- prefix; a mismatch fails before any network activity.
func NewPrivateChannel(name string, cfg ChannelConfig) (*Channel, error) {
	if !strings.HasPrefix(name, PrivatePrefix) {
		return nil, InvalidChannelNameError{Name: name, Kind: KindPrivate}
	}
	return newChannel(name, KindPrivate, cfg)
}

// NewPresenceChannel creates a presence channel. The name must carry the
// presence- prefix; a mismatch fails before any network activity.
func NewPresenceChannel(name string, cfg ChannelConfig) (*Channel, error) {
	if !strings.HasPrefix(name, PresencePrefix) {
		return nil, InvalidChannelNameError{Name: name, Kind: KindPresence}
	}
	return newChannel(name, KindPresence, cfg)
}

func newChannel(name string, kind Kind, cfg ChannelConfig) (*Channel, error) {
	if name == "" {
		return nil, InvalidChannelNameError{Name: name, Kind: kind}
	}
	if cfg.Conn == nil {
		return nil, errors.New("Channel requires a transport send capability")
	}
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}

	ch := &Channel{
		name:       name,
		kind:       kind,
		log:        log,
		conn:       cfg.Conn,
		authorizer: cfg.Authorizer,
		socketID:   cfg.SocketID,
		bindings:   newBindingRegistry(log),
		state:      StateUnsubscribed,
	}
	if kind == KindPresence {
		ch.presence = newPresenceTracker(log)
	}
	return ch, nil
}

// Name returns the channel's immutable name.
func (ch *Channel) Name() string { return ch.name }

// Kind returns the channel variant.
func (ch *Channel) Kind() Kind { return ch.kind }

// State returns the channel's current lifecycle state.
func (ch *Channel) State() State {
	ch.mtx.Lock()
	defer ch.mtx.Unlock()
	return ch.state
}

// IsSubscribed reports whether the channel is currently subscribed.
func (ch *Channel) IsSubscribed() bool {
	return ch.State() == StateSubscribed
}

// Subscribe drives the channel to StateSubscribed. Public channels send the
// subscribe frame immediately; private and presence channels first run the
// authorizer. If an attempt is already in flight, Subscribe waits for it and
// returns its outcome instead of starting a second one. Subscribing an
// already subscribed channel is a no-op.
func (ch *Channel) Subscribe() error {
	ch.mtx.Lock()
	switch ch.state {
	case StateSubscribed:
		ch.mtx.Unlock()
		return nil
	case StateSubscribing:
		att := ch.attempt
		ch.mtx.Unlock()
		<-att.done
		return att.err
	}

	att := &subscribeAttempt{done: make(chan struct{})}
	ch.attempt = att
	ch.state = StateSubscribing
	handlers := ch.stateHandlersLocked()
	ch.mtx.Unlock()
	ch.notifyState(handlers, StateSubscribing, nil)

	err := ch.performSubscribe()

	next := StateSubscribed
	if err != nil {
		next = StateFailed
		ch.log.WithFields(logrus.Fields{
			"channel": ch.name,
			"error":   err,
		}).Warn("Subscription failed")
	}

	ch.mtx.Lock()
	ch.state = next
	ch.attempt = nil
	handlers = ch.stateHandlersLocked()
	ch.mtx.Unlock()

	att.err = err
	close(att.done)
	ch.notifyState(handlers, next, err)
	return err
}

// performSubscribe runs the authorization handshake if the variant needs
// one, then puts the subscribe frame on the wire.
func (ch *Channel) performSubscribe() error {
	var cred Credential
	if ch.kind != KindPublic {
		if ch.authorizer == nil {
			return AuthError{Message: fmt.Sprintf("no authorizer configured for channel %q", ch.name)}
		}
		var socketID string
		if ch.socketID != nil {
			socketID = ch.socketID()
		}
		var err error
		cred, err = ch.authorizer(ch.name, socketID)
		if err != nil {
			var authErr AuthError
			if errors.As(err, &authErr) {
				return err
			}
			return AuthError{Message: err.Error()}
		}
	}

	payload, err := marshalSubscribe(ch.name, cred)
	if err != nil {
		return err
	}
	if err := ch.conn.Send(payload); err != nil {
		return errors.Wrap(err, "Send subscribe frame")
	}
	return nil
}

// Unsubscribe sends an unsubscribe frame and resets the channel to
// StateUnsubscribed. The send is best effort: a transport error is returned
// but the local state is reset regardless, and a presence channel's member
// set is cleared. Unsubscribing an unsubscribed channel is a no-op. If a
// subscription attempt is in flight, Unsubscribe waits for it to resolve
// first; it does not preempt the authorizer.
func (ch *Channel) Unsubscribe() error {
	ch.mtx.Lock()
	for ch.state == StateSubscribing {
		att := ch.attempt
		ch.mtx.Unlock()
		<-att.done
		ch.mtx.Lock()
	}
	if ch.state == StateUnsubscribed {
		ch.mtx.Unlock()
		return nil
	}
	ch.mtx.Unlock()

	var sendErr error
	payload, err := marshalUnsubscribe(ch.name)
	if err != nil {
		sendErr = err
	} else if err := ch.conn.Send(payload); err != nil {
		sendErr = errors.Wrap(err, "Send unsubscribe frame")
	}

	if ch.presence != nil {
		ch.presence.clear()
	}

	ch.mtx.Lock()
	ch.state = StateUnsubscribed
	handlers := ch.stateHandlersLocked()
	ch.mtx.Unlock()
	ch.notifyState(handlers, StateUnsubscribed, nil)
	return sendErr
}

// Whisper sends a client event to the channel's other subscribers without
// server mediation. The event name must carry the client- prefix and the
// channel must be subscribed; on either failure nothing touches the wire.
// Whispers are fire and forget.
func (ch *Channel) Whisper(event string, data interface{}) error {
	if !strings.HasPrefix(event, ClientEventPrefix) {
		return ArgumentError{
			Reason: fmt.Sprintf("whisper event %q must start with %q", event, ClientEventPrefix),
		}
	}
	if state := ch.State(); state != StateSubscribed {
		return ChannelStateError{Op: "whisper", State: state}
	}

	payload, err := marshalWhisper(event, ch.name, data)
	if err != nil {
		return err
	}
	if err := ch.conn.Send(payload); err != nil {
		return errors.Wrap(err, "Send whisper")
	}
	return nil
}

// Bind registers a handler for an event name. Handlers bound before the
// subscription completes are preserved and fire once events arrive.
func (ch *Channel) Bind(event string, handler Handler) *Binding {
	return ch.bindings.bind(event, handler)
}

// BindGlobal registers a handler invoked for every event dispatched on this
// channel, after the event's own handlers.
func (ch *Channel) BindGlobal(handler GlobalHandler) *GlobalBinding {
	return ch.bindings.bindGlobal(handler)
}

// Unbind removes every handler bound to the event name. To remove a single
// handler, use the Binding returned by Bind.
func (ch *Channel) Unbind(event string) {
	ch.bindings.unbindAll(event)
}

// BindState registers a handler for state transitions.
func (ch *Channel) BindState(handler StateHandler) {
	ch.mtx.Lock()
	ch.stateHandlers = append(ch.stateHandlers, handler)
	ch.mtx.Unlock()
}

// HandleEvent dispatches an inbound event to the channel's bound handlers in
// binding order. Presence bookkeeping happens before the generic dispatch so
// a handler reading Members sees the post-event set. Events with no bound
// handlers are no-ops.
func (ch *Channel) HandleEvent(event string, data json.RawMessage) {
	if ch.presence != nil {
		ch.presence.handleEvent(event, data)
	}
	ch.bindings.dispatch(event, data)
}

// Members returns a snapshot of the current presence members, sorted by
// user id. It returns nil for non-presence channels.
func (ch *Channel) Members() []Member {
	if ch.presence == nil {
		return nil
	}
	return ch.presence.snapshot()
}

// MemberCount returns the number of current presence members, or 0 for
// non-presence channels.
func (ch *Channel) MemberCount() int {
	if ch.presence == nil {
		return 0
	}
	return ch.presence.count()
}

// BindMemberChange registers a handler for presence membership changes. It
// is a no-op on non-presence channels.
func (ch *Channel) BindMemberChange(handler MemberHandler) {
	if ch.presence == nil {
		return
	}
	ch.presence.bind(handler)
}

func (ch *Channel) stateHandlersLocked() []StateHandler {
	handlers := make([]StateHandler, len(ch.stateHandlers))
	copy(handlers, ch.stateHandlers)
	return handlers
}

func (ch *Channel) notifyState(handlers []StateHandler, state State, err error) {
	for _, handler := range handlers {
		handler(state, err)
	}
}

func (ch *Channel) String() string {
	return fmt.Sprintf("Channel(%s)", ch.name)
}
