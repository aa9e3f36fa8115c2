// Copyright © 2026 the wisp authors
//
// This source code is governed by the MIT license, which can be found in the LICENSE file.

// Package auth implements the wisp authorizer contract against an HTTP
// endpoint: the application backend is asked to sign a channel subscription
// for a given socket, and answers with an opaque credential object.
package auth

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"

	"github.com/wisplib/wisp/pkg/wisp"
)

const defaultTimeout = 10 * time.Second

// Client authorizes channel subscriptions against one HTTP endpoint.
type Client struct {
	http     *resty.Client
	endpoint string
}

// An Option customizes a Client.
type Option func(*Client)

// WithHeader adds a header to every authorization request, such as the
// application's session cookie or bearer token.
func WithHeader(name, value string) Option {
	return func(c *Client) {
		c.http.SetHeader(name, value)
	}
}

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.SetTimeout(d)
	}
}

// NewClient creates a client posting to the given endpoint.
func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		http:     resty.New().SetTimeout(defaultTimeout),
		endpoint: endpoint,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Authorize implements wisp.Authorizer. It posts the channel name and
// socket id form encoded, and decodes the endpoint's JSON object into the
// credential mapping the channel forwards in its subscribe frame. A non-2xx
// answer becomes a wisp.AuthError carrying the endpoint's status and body.
func (c *Client) Authorize(channelName, socketID string) (wisp.Credential, error) {
	resp, err := c.http.R().
		SetFormData(map[string]string{
			"channel_name": channelName,
			"socket_id":    socketID,
		}).
		Post(c.endpoint)
	if err != nil {
		return nil, errors.Wrap(err, "Authorize channel")
	}

	if resp.IsError() {
		return nil, wisp.AuthError{
			Status:  resp.StatusCode(),
			Message: strings.TrimSpace(string(resp.Body())),
		}
	}

	var cred wisp.Credential
	if err := json.Unmarshal(resp.Body(), &cred); err != nil {
		return nil, errors.Wrap(err, "Decode credentials")
	}
	return cred, nil
}
