// Package transport implements the client side of the lock-step channel to
// the broker.
//
// ClientTransport owns one connection and admits exactly one outstanding
// request: Send claims the single capacity slot without blocking and fails
// with ErrBackpressure if it is taken, and Recv releases the slot once the
// reply has been fully read. There is no request multiplexing and no
// sequence numbering; reply matching is the broker's job via routing
// addresses, which this layer never inspects.
package transport

import (
	"errors"
	"fmt"
	"net"
	"sync/atomic"

	"pkgoracle/codec"
	"pkgoracle/message"
	"pkgoracle/protocol"
)

// ErrBackpressure is returned by Send when the transport cannot accept
// another request immediately. The caller decides whether to retry or
// abandon; the transport never queues.
var ErrBackpressure = errors.New("transport: send would block, request capacity exhausted")

// ClientTransport manages a single lock-step connection to the broker
// frontend.
type ClientTransport struct {
	conn  net.Conn
	codec codec.CodecType
	// busy marks the one outstanding-request slot: set by Send, cleared when
	// Recv has consumed the matching reply.
	busy atomic.Bool
}

func NewClientTransport(conn net.Conn, codecType codec.CodecType) *ClientTransport {
	return &ClientTransport{conn: conn, codec: codecType}
}

// Send encodes and writes one request frame. It fails immediately with
// ErrBackpressure when the previous reply has not been received yet.
//
// The routing address part is left empty: the broker assigns it on the way
// to a worker.
func (t *ClientTransport) Send(op string, args message.List) error {
	if !t.busy.CompareAndSwap(false, true) {
		return ErrBackpressure
	}

	body, err := codec.GetCodec(t.codec).Encode(args)
	if err != nil {
		t.busy.Store(false)
		return err
	}

	frame := &protocol.Frame{
		Header: protocol.Header{
			CodecType: byte(t.codec),
			MsgType:   protocol.MsgTypeRequest,
		},
		Op:   op,
		Body: body,
	}
	if err := protocol.Encode(t.conn, frame); err != nil {
		t.busy.Store(false)
		return err
	}
	return nil
}

// Recv blocks until the reply for the outstanding request arrives and
// returns it decoded. Calling Recv with no request outstanding is a usage
// error.
func (t *ClientTransport) Recv() (*message.Reply, error) {
	if !t.busy.Load() {
		return nil, errors.New("transport: no outstanding request")
	}
	defer t.busy.Store(false)

	frame, err := protocol.Decode(t.conn)
	if err != nil {
		return nil, err
	}
	if frame.Header.MsgType != protocol.MsgTypeReply {
		return nil, fmt.Errorf("transport: unexpected frame type %d", frame.Header.MsgType)
	}

	var payload message.Value = message.Null{}
	if len(frame.Body) > 0 {
		payload, err = codec.GetCodec(codec.CodecType(frame.Header.CodecType)).Decode(frame.Body)
		if err != nil {
			return nil, err
		}
	}
	return &message.Reply{Addr: frame.Addr, Status: frame.Op, Payload: payload}, nil
}

// Call performs one complete lock-step exchange.
func (t *ClientTransport) Call(op string, args message.List) (*message.Reply, error) {
	if err := t.Send(op, args); err != nil {
		return nil, err
	}
	return t.Recv()
}

// Conn returns the underlying connection.
func (t *ClientTransport) Conn() net.Conn {
	return t.conn
}

func (t *ClientTransport) Close() error {
	return t.conn.Close()
}
