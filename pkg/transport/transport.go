// Copyright © 2026 the wisp authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package transport connects the wisp channel layer to a websocket server.
// It provides the send capability channels need and feeds decoded inbound
// frames to a handler, normally a registry. Reconnection and backoff are
// deliberately left to the application.
package transport

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/wisplib/wisp/pkg/wisp"
)

const (
	defaultHandshakeTimeout = 10 * time.Second

	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second
)

// ErrClosed is returned by Send after the connection closed.
var ErrClosed = errors.New("transport: connection closed")

// A FrameHandler receives every decoded inbound frame except the
// connection-scoped ones the transport consumes itself.
type FrameHandler func(f wisp.Frame)

// Config configures a connection.
type Config struct {
	// Handler receives inbound frames. May be nil.
	Handler FrameHandler
	// HandshakeTimeout bounds the websocket handshake. Defaults to 10s.
	HandshakeTimeout time.Duration
	// Log receives structured logs. Defaults to the logrus standard logger.
	Log *logrus.Logger
}

// A Conn is one websocket connection to a wisp server. It implements
// wisp.Sender.
type Conn struct {
	log     *logrus.Logger
	ws      *websocket.Conn
	handler FrameHandler

	writeMTX sync.Mutex // Serializes writes to the websocket

	idMTX    sync.RWMutex // Protects socketID
	socketID string

	done      chan struct{} // Closed when the read loop exits
	closeOnce sync.Once
}

// Dial connects to a wisp server and starts reading frames. The socket id
// starts as a locally generated placeholder and is replaced as soon as the
// server advertises one in its connection established frame.
func Dial(url string, cfg Config) (*Conn, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	handshakeTimeout := cfg.HandshakeTimeout
	if handshakeTimeout == 0 {
		handshakeTimeout = defaultHandshakeTimeout
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	ws, _, err := dialer.Dial(url, nil)
	if err != nil {
		return nil, errors.Wrap(err, "Dial websocket")
	}

	c := &Conn{
		log:      log,
		ws:       ws,
		handler:  cfg.Handler,
		socketID: uuid.NewString(),
		done:     make(chan struct{}),
	}

	log.WithFields(logrus.Fields{
		"url": url,
	}).Info("Connected to wisp server")
	go c.readLoop()
	return c, nil
}

// Send writes one already-serialized message to the server. It implements
// wisp.Sender.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.writeMTX.Lock()
	defer c.writeMTX.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(err, "Write message")
	}
	return nil
}

// SocketID returns the connection's socket id: the one the server
// advertised, or a local placeholder before that.
func (c *Conn) SocketID() string {
	c.idMTX.RLock()
	defer c.idMTX.RUnlock()
	return c.socketID
}

// Done returns a channel closed once the connection is gone.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Close closes the websocket. Close is idempotent.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMTX.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		// Best effort; the server may already be gone.
		c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.writeMTX.Unlock()
		err = c.ws.Close()
	})
	return err
}

type connectionEstablishedData struct {
	SocketID string `json:"socket_id"`
}

func (c *Conn) readLoop() {
	defer close(c.done)
	defer c.ws.Close()

	for {
		_, payload, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.WithFields(logrus.Fields{
					"error": err,
				}).Warn("Connection lost")
			}
			return
		}

		f, err := wisp.ParseFrame(payload)
		if err != nil {
			c.log.WithFields(logrus.Fields{
				"error": err,
			}).Debug("Skipping undecodable frame")
			continue
		}

		if f.Event == wisp.EventConnectionEstablished {
			c.establish(f.Data)
			continue
		}
		if c.handler != nil {
			c.handler(f)
		}
	}
}

// establish records the socket id the server assigned this connection.
func (c *Conn) establish(data json.RawMessage) {
	var established connectionEstablishedData
	if err := json.Unmarshal(data, &established); err != nil || established.SocketID == "" {
		c.log.WithFields(logrus.Fields{
			"error": err,
		}).Debug("Ignoring malformed connection established frame")
		return
	}

	c.idMTX.Lock()
	c.socketID = established.SocketID
	c.idMTX.Unlock()
	c.log.WithFields(logrus.Fields{
		"socket_id": established.SocketID,
	}).Debug("Connection established")
}
