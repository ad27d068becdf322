// Package client gives producers synchronous access to the database service
// through the broker.
//
// A Client wraps one lock-step transport: each call sends one request and
// blocks for its reply. Worker-side failures arrive as ERROR replies and
// surface here as *CommError carrying the worker's description verbatim.
// Sending faster than replies return fails fast with
// transport.ErrBackpressure rather than queueing; callers needing
// concurrency use one Client per goroutine, typically via Pool.
package client

import (
	"fmt"
	"net"

	"pkgoracle/codec"
	"pkgoracle/loadbalance"
	"pkgoracle/message"
	"pkgoracle/registry"
	"pkgoracle/transport"
)

// CommError reports a failure that occurred on the worker side of an
// exchange. The message is the worker's error description, unmodified.
type CommError struct {
	Desc string
}

func (e *CommError) Error() string {
	return e.Desc
}

// Client is one synchronous channel to the database service.
type Client struct {
	t *transport.ClientTransport
}

// NewClient wraps an established broker connection.
func NewClient(conn net.Conn, codecType codec.CodecType) *Client {
	return &Client{t: transport.NewClientTransport(conn, codecType)}
}

// Dial connects to a broker frontend address.
func Dial(addr string, codecType codec.CodecType) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect %s: %w", addr, err)
	}
	return NewClient(conn, codecType), nil
}

// DialRegistry discovers the registered broker frontends, picks one with the
// given balancer, and connects to it.
func DialRegistry(reg registry.Registry, balancer loadbalance.Balancer, codecType codec.CodecType) (*Client, error) {
	instances, err := reg.Discover(registry.FrontendService)
	if err != nil {
		return nil, fmt.Errorf("client: discover frontends: %w", err)
	}
	instance, err := balancer.Pick(instances)
	if err != nil {
		return nil, fmt.Errorf("client: pick frontend: %w", err)
	}
	return Dial(instance.Addr, codecType)
}

// Do performs one complete exchange: it sends the named operation with the
// given arguments and blocks for the reply. An ERROR reply becomes a
// *CommError; a send while the previous reply is still pending fails with
// transport.ErrBackpressure.
func (c *Client) Do(op string, args ...message.Value) (message.Value, error) {
	reply, err := c.t.Call(op, message.List(args))
	if err != nil {
		return nil, err
	}
	if reply.Status == message.StatusError {
		desc, ok := reply.Payload.(message.String)
		if !ok {
			return nil, &CommError{Desc: fmt.Sprintf("malformed error reply of kind %s", reply.Payload.Kind())}
		}
		return nil, &CommError{Desc: string(desc)}
	}
	return reply.Payload, nil
}

// Transport exposes the underlying lock-step transport.
func (c *Client) Transport() *transport.ClientTransport {
	return c.t
}

func (c *Client) Close() error {
	return c.t.Close()
}
