package client

import (
	"net"

	"pkgoracle/codec"
	"pkgoracle/transport"
)

// Pool hands out Clients backed by a bounded transport pool. A lock-step
// client serves one request at a time, so concurrent producers borrow a
// Client each instead of sharing one.
type Pool struct {
	tp *transport.TransportPool
}

// NewPool creates a pool of at most maxConns clients toward one broker
// frontend. Connections are dialed lazily.
func NewPool(addr string, maxConns int, codecType codec.CodecType) *Pool {
	factory := func(addr string) (*transport.ClientTransport, error) {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return nil, err
		}
		return transport.NewClientTransport(conn, codecType), nil
	}
	return &Pool{tp: transport.NewTransportPool(addr, maxConns, factory)}
}

// Get borrows a client, dialing a new connection if the pool is under its
// limit, or blocking until one is returned.
func (p *Pool) Get() (*Client, error) {
	t, err := p.tp.Get()
	if err != nil {
		return nil, err
	}
	return &Client{t: t}, nil
}

// Put returns a healthy client to the pool.
func (p *Pool) Put(c *Client) {
	p.tp.Put(c.t)
}

// Discard closes a client whose connection has failed and frees its pool
// slot.
func (p *Pool) Discard(c *Client) error {
	return p.tp.Discard(c.t)
}

// Close shuts the pool down and closes all idle clients.
func (p *Pool) Close() error {
	return p.tp.Close()
}
