// Copyright © 2026 the wisp authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package wisp implements the client side of the wisp channel protocol:
// named channels over a shared bidirectional transport, with server
// broadcast events, member presence and client-to-client whispers.
package wisp

import (
	"encoding/json"

	"github.com/pkg/errors"
)

// Channel name prefixes determining the channel variant.
const (
	PrivatePrefix  = "private-"
	PresencePrefix = "presence-"
)

// ClientEventPrefix is required on every whisper event name.
const ClientEventPrefix = "client-"

// Protocol events exchanged with the server.
const (
	EventSubscribe             = "wisp:subscribe"
	EventUnsubscribe           = "wisp:unsubscribe"
	EventConnectionEstablished = "wisp:connection_established"
	EventSubscriptionSucceeded = "wisp:subscription_succeeded"
	EventMemberAdded           = "wisp:member_added"
	EventMemberRemoved         = "wisp:member_removed"
	EventError                 = "wisp:error"
)

// A Frame is a single decoded protocol message. Channel is empty on
// connection-scoped frames.
type Frame struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// ParseFrame decodes a raw inbound payload into a Frame.
func ParseFrame(payload []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(payload, &f); err != nil {
		return Frame{}, errors.Wrap(err, "Parse frame")
	}
	if f.Event == "" {
		return Frame{}, errors.New("Frame has no event")
	}
	return f, nil
}

// A Sender is the channel layer's capability to put one already-serialized
// message on the wire. The transport owns everything below that.
type Sender interface {
	Send(payload []byte) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(payload []byte) error

// Send calls f.
func (f SenderFunc) Send(payload []byte) error { return f(payload) }

// subscribeData is the data body of an outbound subscribe frame.
type subscribeData struct {
	Channel string     `json:"channel"`
	Auth    Credential `json:"auth,omitempty"`
}

// unsubscribeData is the data body of an outbound unsubscribe frame.
type unsubscribeData struct {
	Channel string `json:"channel"`
}

type outboundFrame struct {
	Event string      `json:"event"`
	Data  interface{} `json:"data"`
}

func marshalSubscribe(channel string, auth Credential) ([]byte, error) {
	payload, err := json.Marshal(outboundFrame{
		Event: EventSubscribe,
		Data:  subscribeData{Channel: channel, Auth: auth},
	})
	return payload, errors.Wrap(err, "Marshal subscribe frame")
}

func marshalUnsubscribe(channel string) ([]byte, error) {
	payload, err := json.Marshal(outboundFrame{
		Event: EventUnsubscribe,
		Data:  unsubscribeData{Channel: channel},
	})
	return payload, errors.Wrap(err, "Marshal unsubscribe frame")
}

// whisperFrame carries a client event. Unlike server frames, the channel
// name rides at the top level; the field set is part of the wire contract.
type whisperFrame struct {
	Event   string      `json:"event"`
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}

func marshalWhisper(event, channel string, data interface{}) ([]byte, error) {
	if data == nil {
		data = map[string]interface{}{}
	}
	payload, err := json.Marshal(whisperFrame{Event: event, Channel: channel, Data: data})
	return payload, errors.Wrap(err, "Marshal whisper")
}
