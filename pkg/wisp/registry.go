// Copyright © 2026 the wisp authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

package wisp

import (
	"sync"

	"github.com/sirupsen/logrus"
)

// Config carries the collaborators shared by every channel a Registry
// creates.
type Config struct {
	// Conn is the transport send capability. Required.
	Conn Sender
	// Authorizer runs the private/presence authorization handshake. May be
	// nil if only public channels are used.
	Authorizer Authorizer
	// SocketID reports the transport's current socket id for the
	// authorizer. May be nil.
	SocketID func() string
	// Log receives structured logs. Defaults to the logrus standard logger.
	Log *logrus.Logger
}

// A Registry owns all channel instances and routes inbound frames to them
// by channel name. It is the application's entry point to the channel
// layer.
type Registry struct {
	log        *logrus.Logger
	conn       Sender
	authorizer Authorizer
	socketID   func() string

	mtx      sync.RWMutex // Protects channels
	channels map[string]*Channel
}

// NewRegistry creates an empty registry.
func NewRegistry(cfg Config) *Registry {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Registry{
		log:        log,
		conn:       cfg.Conn,
		authorizer: cfg.Authorizer,
		socketID:   cfg.SocketID,
		channels:   make(map[string]*Channel),
	}
}

// Subscribe returns the channel with the given name, creating the variant
// the name prefix selects if it does not exist yet, and drives its
// subscription. Subscribing a name that is already subscribed (or mid
// subscription) returns the existing instance and the outcome of the one in
// flight attempt.
func (r *Registry) Subscribe(name string) (*Channel, error) {
	ch, err := r.ensure(name)
	if err != nil {
		return nil, err
	}
	if err := ch.Subscribe(); err != nil {
		return ch, err
	}
	return ch, nil
}

// ensure returns the existing channel for name, creating it if needed.
func (r *Registry) ensure(name string) (*Channel, error) {
	r.mtx.Lock()
	defer r.mtx.Unlock()

	if ch, ok := r.channels[name]; ok {
		return ch, nil
	}
	ch, err := NewChannel(name, ChannelConfig{
		Conn:       r.conn,
		Authorizer: r.authorizer,
		SocketID:   r.socketID,
		Log:        r.log,
	})
	if err != nil {
		return nil, err
	}
	r.channels[name] = ch
	return ch, nil
}

// Add hands a pre-constructed channel to the registry. If a channel with
// the same name already exists, the existing instance is kept and returned.
func (r *Registry) Add(ch *Channel) *Channel {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	if existing, ok := r.channels[ch.name]; ok {
		return existing
	}
	r.channels[ch.name] = ch
	return ch
}

// Channel returns the channel with the given name, or nil.
func (r *Registry) Channel(name string) *Channel {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	return r.channels[name]
}

// Unsubscribe unsubscribes the named channel and removes it from the
// registry. The removal happens even if the unsubscribe frame could not be
// sent; the error is still returned. Unknown names are no-ops.
func (r *Registry) Unsubscribe(name string) error {
	r.mtx.Lock()
	ch, ok := r.channels[name]
	delete(r.channels, name)
	r.mtx.Unlock()

	if !ok {
		return nil
	}
	return ch.Unsubscribe()
}

// Channels returns the names of every channel the registry owns.
func (r *Registry) Channels() []string {
	r.mtx.RLock()
	defer r.mtx.RUnlock()
	names := make([]string, 0, len(r.channels))
	for name := range r.channels {
		names = append(names, name)
	}
	return names
}

// HandleFrame routes an inbound frame to the channel named by its channel
// field. Frames for unknown channels are dropped silently; the transport
// may legitimately deliver late frames after an unsubscription. Frames
// without a channel field are connection scoped and not the registry's
// business.
func (r *Registry) HandleFrame(f Frame) {
	if f.Channel == "" {
		return
	}

	r.mtx.RLock()
	ch := r.channels[f.Channel]
	r.mtx.RUnlock()

	if ch == nil {
		r.log.WithFields(logrus.Fields{
			"channel": f.Channel,
			"event":   f.Event,
		}).Debug("Dropping frame for unknown channel")
		return
	}
	ch.HandleEvent(f.Event, f.Data)
}
