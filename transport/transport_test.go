package transport

import (
	"errors"
	"net"
	"testing"
	"time"

	"pkgoracle/codec"
	"pkgoracle/message"
	"pkgoracle/protocol"
)

// serveOneReply reads one request from the peer and answers it with an OK
// reply carrying the given payload.
func serveOneReply(t *testing.T, conn net.Conn, payload message.Value) {
	t.Helper()
	frame, err := protocol.Decode(conn)
	if err != nil {
		t.Errorf("server decode failed: %v", err)
		return
	}
	if frame.Header.MsgType != protocol.MsgTypeRequest {
		t.Errorf("server got frame type %d, want request", frame.Header.MsgType)
		return
	}
	body, err := codec.GetCodec(codec.CodecType(frame.Header.CodecType)).Encode(payload)
	if err != nil {
		t.Errorf("server encode failed: %v", err)
		return
	}
	err = protocol.Encode(conn, &protocol.Frame{
		Header: protocol.Header{CodecType: frame.Header.CodecType, MsgType: protocol.MsgTypeReply},
		Addr:   []byte("client-1"),
		Op:     message.StatusOK,
		Body:   body,
	})
	if err != nil {
		t.Errorf("server write failed: %v", err)
	}
}

func TestCallRoundTrip(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	tr := NewClientTransport(clientConn, codec.CodecTypeJSON)
	defer tr.Close()

	go serveOneReply(t, serverConn, message.Int(42))

	reply, err := tr.Call("GETPYPI", message.List{})
	if err != nil {
		t.Fatal(err)
	}
	if reply.Status != message.StatusOK {
		t.Errorf("status = %q", reply.Status)
	}
	if reply.Payload != message.Int(42) {
		t.Errorf("payload = %v, want 42", reply.Payload)
	}
}

func TestRequestCarriesNoAddress(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	tr := NewClientTransport(clientConn, codec.CodecTypeJSON)
	defer tr.Close()

	got := make(chan []byte, 1)
	go func() {
		frame, err := protocol.Decode(serverConn)
		if err != nil {
			t.Errorf("decode failed: %v", err)
			got <- nil
			return
		}
		got <- frame.Addr
	}()

	if err := tr.Send("ALLPKGS", message.List{}); err != nil {
		t.Fatal(err)
	}
	if addr := <-got; len(addr) != 0 {
		t.Errorf("client frame should leave the address empty, got %q", addr)
	}
}

func TestSendBackpressure(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	tr := NewClientTransport(clientConn, codec.CodecTypeJSON)
	defer tr.Close()

	served := make(chan struct{})
	go func() {
		frame, err := protocol.Decode(serverConn)
		if err != nil {
			t.Errorf("decode failed: %v", err)
			close(served)
			return
		}
		close(served)
		// Hold the reply until the test has probed the busy state.
		time.Sleep(20 * time.Millisecond)
		body, _ := codec.GetCodec(codec.CodecType(frame.Header.CodecType)).Encode(message.Null{})
		protocol.Encode(serverConn, &protocol.Frame{
			Header: protocol.Header{CodecType: frame.Header.CodecType, MsgType: protocol.MsgTypeReply},
			Op:     message.StatusOK,
			Body:   body,
		})
	}()

	if err := tr.Send("GETSTATS", message.List{}); err != nil {
		t.Fatal(err)
	}
	<-served

	// Second send with the reply still pending must fail immediately.
	if err := tr.Send("GETSTATS", message.List{}); !errors.Is(err, ErrBackpressure) {
		t.Fatalf("second Send = %v, want ErrBackpressure", err)
	}

	if _, err := tr.Recv(); err != nil {
		t.Fatal(err)
	}

	// Capacity is released; the next exchange proceeds.
	go serveOneReply(t, serverConn, message.Null{})
	if _, err := tr.Call("GETSTATS", message.List{}); err != nil {
		t.Fatalf("exchange after drained reply failed: %v", err)
	}
}

func TestRecvWithoutSend(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer serverConn.Close()

	tr := NewClientTransport(clientConn, codec.CodecTypeJSON)
	defer tr.Close()

	if _, err := tr.Recv(); err == nil {
		t.Fatal("expected error for Recv with no outstanding request")
	}
}

func pipeFactory(addr string) (*ClientTransport, error) {
	clientConn, _ := net.Pipe()
	return NewClientTransport(clientConn, codec.CodecTypeJSON), nil
}

func TestPoolGrowsToLimit(t *testing.T) {
	created := 0
	factory := func(addr string) (*ClientTransport, error) {
		created++
		return pipeFactory(addr)
	}
	p := NewTransportPool("unused", 2, factory)

	t1, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	t2, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	if created != 2 {
		t.Errorf("created = %d, want 2", created)
	}

	// Returned transports are reused, not recreated.
	p.Put(t1)
	t3, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	if t3 != t1 {
		t.Error("expected the returned transport to be reused")
	}
	if created != 2 {
		t.Errorf("created = %d after reuse, want 2", created)
	}
	p.Put(t2)
	p.Put(t3)
	p.Close()
}

func TestPoolBlocksAtLimit(t *testing.T) {
	p := NewTransportPool("unused", 1, pipeFactory)

	t1, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}

	acquired := make(chan *ClientTransport)
	go func() {
		t2, err := p.Get()
		if err != nil {
			t.Errorf("blocked Get failed: %v", err)
		}
		acquired <- t2
	}()

	select {
	case <-acquired:
		t.Fatal("Get should block while the pool is exhausted")
	case <-time.After(20 * time.Millisecond):
	}

	p.Put(t1)
	select {
	case t2 := <-acquired:
		if t2 != t1 {
			t.Error("expected the released transport")
		}
		p.Put(t2)
	case <-time.After(time.Second):
		t.Fatal("Get did not wake after Put")
	}
	p.Close()
}

func TestPoolDiscardFreesSlot(t *testing.T) {
	created := 0
	factory := func(addr string) (*ClientTransport, error) {
		created++
		return pipeFactory(addr)
	}
	p := NewTransportPool("unused", 1, factory)

	t1, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	if err := p.Discard(t1); err != nil {
		t.Fatal(err)
	}

	t2, err := p.Get()
	if err != nil {
		t.Fatal(err)
	}
	if created != 2 {
		t.Errorf("created = %d, want a replacement after Discard", created)
	}
	p.Put(t2)
	p.Close()
}
