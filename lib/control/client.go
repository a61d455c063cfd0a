// Copyright 2026 The Switcheroo Control Authors
// SPDX-License-Identifier: Apache-2.0

package control

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/xzl01/switcheroo-control/lib/codec"
)

// dialTimeout is the maximum time to wait for a connection to the
// control socket. This covers only the connect phase.
const dialTimeout = 5 * time.Second

// responseReadTimeout is how long the client waits for the response
// to a unary request. Matched to the server's readTimeout +
// writeTimeout. Watch streams carry no read deadline; state changes
// arrive whenever the hardware changes.
const responseReadTimeout = 45 * time.Second

// maxResponseSize is the maximum size of a single CBOR response.
// A full state for even an absurd number of GPUs fits well inside
// this.
const maxResponseSize = 1024 * 1024

// RequestError is returned when the server answers with ok=false. It
// carries the server's error message and the action that failed.
type RequestError struct {
	Action  string
	Message string
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("control request %q failed: %s", e.Action, e.Message)
}

// Client queries a control socket. Each unary call opens a new
// connection, matching the server's one-request-per-connection model.
// Watch holds its connection open for the life of the subscription.
type Client struct {
	socketPath string
}

// NewClient creates a client for the control socket at socketPath.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

// State fetches the current GPU state.
func (c *Client) State(ctx context.Context) (State, error) {
	data, err := c.call(ctx, ActionState)
	if err != nil {
		return State{}, err
	}
	var state State
	if err := codec.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decoding state: %w", err)
	}
	return state, nil
}

// Ping checks that the daemon is alive and answering.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.call(ctx, ActionPing)
	return err
}

// Watch subscribes to state changes. The returned channel delivers
// the current state first, then every subsequent distinct state. It
// is closed when ctx is cancelled, the daemon goes away, or the
// stream breaks; callers that need to distinguish shutdown from
// failure should check ctx.Err after the channel closes.
func (c *Client) Watch(ctx context.Context) (<-chan State, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", c.socketPath, err)
	}

	if err := codec.NewEncoder(conn).Encode(Request{Action: ActionWatch}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("writing watch request: %w", err)
	}
	// The write side stays open for the life of the subscription:
	// closing the connection is how the client unsubscribes, and the
	// server treats EOF on its read side as exactly that.

	states := make(chan State)
	readerDone := make(chan struct{})

	go func() {
		defer close(readerDone)
		defer close(states)
		decoder := codec.NewDecoder(conn)
		for {
			var response Response
			if err := decoder.Decode(&response); err != nil {
				return
			}
			if !response.OK {
				return
			}
			var state State
			if err := codec.Unmarshal(response.Data, &state); err != nil {
				return
			}
			select {
			case states <- state:
			case <-ctx.Done():
				return
			}
		}
	}()

	// Close the connection when the subscription ends, whichever side
	// ends it.
	go func() {
		select {
		case <-ctx.Done():
		case <-readerDone:
		}
		conn.Close()
	}()

	return states, nil
}

// call sends a unary request and returns the response data.
func (c *Client) call(ctx context.Context, action string) (codec.RawMessage, error) {
	response, err := c.send(ctx, Request{Action: action})
	if err != nil {
		return nil, fmt.Errorf("calling %q on %s: %w", action, c.socketPath, err)
	}
	if !response.OK {
		return nil, &RequestError{
			Action:  action,
			Message: response.Error,
		}
	}
	return response.Data, nil
}

// send connects to the socket, writes the request, and reads the
// response. Each call creates a new connection.
func (c *Client) send(ctx context.Context, request Request) (*Response, error) {
	dialer := net.Dialer{Timeout: dialTimeout}
	conn, err := dialer.DialContext(ctx, "unix", c.socketPath)
	if err != nil {
		return nil, fmt.Errorf("connecting: %w", err)
	}
	defer conn.Close()

	if err := codec.NewEncoder(conn).Encode(request); err != nil {
		return nil, fmt.Errorf("writing request: %w", err)
	}

	// Half-close the write side. CBOR is self-delimiting so this
	// isn't strictly necessary, but it lets the server's read side
	// see EOF cleanly.
	if unixConn, ok := conn.(*net.UnixConn); ok {
		unixConn.CloseWrite()
	}

	conn.SetReadDeadline(time.Now().Add(responseReadTimeout))
	var response Response
	if err := codec.NewDecoder(io.LimitReader(conn, maxResponseSize)).Decode(&response); err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	return &response, nil
}
