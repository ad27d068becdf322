// Package transport also provides a borrow/return pool of lock-step
// transports. Because each transport permits one outstanding request,
// concurrent producers need one transport each; the pool bounds how many
// exist toward a single broker frontend.
//
// Pool design: a buffered channel as a FIFO queue. Buffered channels are
// concurrency-safe and block naturally when the pool is empty.
package transport

import (
	"fmt"
	"sync"
)

// TransportPool manages reusable lock-step transports to a single address.
type TransportPool struct {
	mu         sync.Mutex
	transports chan *ClientTransport
	addr       string
	maxConns   int
	curConns   int
	factory    func(addr string) (*ClientTransport, error)
}

// NewTransportPool creates a pool with the given max size. Transports are
// created lazily: the pool starts empty and grows on demand.
func NewTransportPool(addr string, maxConns int, factory func(addr string) (*ClientTransport, error)) *TransportPool {
	return &TransportPool{
		transports: make(chan *ClientTransport, maxConns),
		addr:       addr,
		maxConns:   maxConns,
		factory:    factory,
	}
}

// Get retrieves a transport from the pool.
// Strategy:
//  1. Take an idle transport if one is available (non-blocking select)
//  2. If the pool is empty but under limit, create a new transport
//  3. If the pool is empty and at limit, block until one is returned
func (p *TransportPool) Get() (*ClientTransport, error) {
	select {
	case t := <-p.transports:
		return t, nil
	default:
		if p.underLimit() {
			return p.createNew()
		}
		t := <-p.transports
		return t, nil
	}
}

// Put returns a transport to the pool. A transport whose connection has
// failed should be closed by the caller instead of returned.
func (p *TransportPool) Put(t *ClientTransport) {
	p.transports <- t
}

// Discard closes a broken transport and frees its slot so Get can create a
// replacement.
func (p *TransportPool) Discard(t *ClientTransport) error {
	p.mu.Lock()
	p.curConns--
	p.mu.Unlock()
	return t.Close()
}

// Close shuts down the pool and closes all idle transports. Transports
// currently borrowed are the borrower's responsibility.
func (p *TransportPool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	close(p.transports)
	for t := range p.transports {
		t.Close()
		p.curConns--
	}
	return nil
}

func (p *TransportPool) underLimit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.curConns < p.maxConns
}

// createNew dials a new transport via the factory. Protected by the mutex so
// concurrent Gets cannot exceed maxConns.
func (p *TransportPool) createNew() (*ClientTransport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.curConns >= p.maxConns {
		return nil, fmt.Errorf("transport pool exhausted")
	}

	t, err := p.factory(p.addr)
	if err != nil {
		return nil, err
	}

	p.curConns++
	return t, nil
}
