// Package brokertest runs a minimal in-process broker implementing the
// routing contract workers and clients are written against: requests are
// stamped with a per-client routing address and handed to the
// least-recently-ready worker, and each reply is forwarded verbatim to the
// client its address names. It exists for tests; it has no persistence, no
// retries, and no worker health tracking beyond connection liveness.
package brokertest

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"pkgoracle/protocol"
)

// Broker is a two-sided router: clients dial the frontend, workers dial the
// backend and advertise READY.
type Broker struct {
	frontend net.Listener
	backend  net.Listener

	// ready queues workers in the order they announced availability, so
	// dispatch always picks the least recently used one.
	ready    chan *workerConn
	requests chan *protocol.Frame

	mu      sync.Mutex
	closed  bool
	clients map[string]net.Conn
	workers map[*workerConn]struct{}

	nextClient atomic.Int64
	wg         sync.WaitGroup
}

type workerConn struct {
	conn net.Conn
}

// New starts a broker on two ephemeral localhost ports.
func New() (*Broker, error) {
	front, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, err
	}
	back, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		front.Close()
		return nil, err
	}

	b := &Broker{
		frontend: front,
		backend:  back,
		ready:    make(chan *workerConn, 64),
		requests: make(chan *protocol.Frame, 64),
		clients:  make(map[string]net.Conn),
		workers:  make(map[*workerConn]struct{}),
	}

	b.wg.Add(3)
	go b.acceptLoop(front, b.serveClient)
	go b.acceptLoop(back, b.serveWorker)
	go b.dispatch()
	return b, nil
}

// FrontendAddr is the address clients dial.
func (b *Broker) FrontendAddr() string {
	return b.frontend.Addr().String()
}

// BackendAddr is the address workers dial.
func (b *Broker) BackendAddr() string {
	return b.backend.Addr().String()
}

func (b *Broker) acceptLoop(l net.Listener, serve func(net.Conn)) {
	defer b.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			serve(conn)
		}()
	}
}

// serveClient reads request frames, stamps each with this connection's
// routing address, and queues it for dispatch.
func (b *Broker) serveClient(conn net.Conn) {
	addr := fmt.Sprintf("client-%d", b.nextClient.Add(1))

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.clients[addr] = conn
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.clients, addr)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		frame, err := protocol.Decode(conn)
		if err != nil {
			return
		}
		if frame.Header.MsgType != protocol.MsgTypeRequest {
			continue
		}
		frame.Addr = []byte(addr)
		if !b.enqueueRequest(frame) {
			return
		}
	}
}

// serveWorker tracks one backend connection. A READY frame queues the worker
// for dispatch; a reply frame is routed to the addressed client, after which
// the worker is queued again.
func (b *Broker) serveWorker(conn net.Conn) {
	w := &workerConn{conn: conn}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.workers[w] = struct{}{}
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.workers, w)
		b.mu.Unlock()
		conn.Close()
	}()

	for {
		frame, err := protocol.Decode(conn)
		if err != nil {
			return
		}
		switch frame.Header.MsgType {
		case protocol.MsgTypeReady:
			b.enqueueReady(w)
		case protocol.MsgTypeReply:
			b.routeReply(frame)
			b.enqueueReady(w)
		}
	}
}

// enqueueRequest queues a request for dispatch. It reports false when the
// broker is shutting down or saturated; the caller drops the connection so
// the client sees a transport failure instead of a hang.
func (b *Broker) enqueueRequest(frame *protocol.Frame) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return false
	}
	select {
	case b.requests <- frame:
		return true
	default:
		return false
	}
}

func (b *Broker) enqueueReady(w *workerConn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.ready <- w:
	default:
	}
}

// routeReply forwards a reply frame, verbatim, to the client its routing
// address names. Replies for departed clients are dropped.
func (b *Broker) routeReply(frame *protocol.Frame) {
	b.mu.Lock()
	conn, ok := b.clients[string(frame.Addr)]
	b.mu.Unlock()
	if !ok {
		return
	}
	// One outstanding request per client means at most one reply in flight
	// toward any client connection, so writes here never interleave.
	if err := protocol.Encode(conn, frame); err != nil {
		conn.Close()
	}
}

// dispatch pairs each queued request with the least-recently-ready worker.
func (b *Broker) dispatch() {
	defer b.wg.Done()
	for frame := range b.requests {
		w, ok := <-b.ready
		if !ok {
			return
		}
		if err := protocol.Encode(w.conn, frame); err != nil {
			// Worker gone; it never re-enters the ready queue, and the
			// request is lost with it.
			w.conn.Close()
		}
	}
}

// Close stops the listeners and tears down every tracked connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.New("brokertest: already closed")
	}
	b.closed = true
	close(b.requests)
	close(b.ready)
	for _, conn := range b.clients {
		conn.Close()
	}
	for w := range b.workers {
		w.conn.Close()
	}
	b.mu.Unlock()

	b.frontend.Close()
	b.backend.Close()
	b.wg.Wait()
	return nil
}
