package worker

import (
	"bytes"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"pkgoracle/codec"
	"pkgoracle/message"
	"pkgoracle/middleware"
	"pkgoracle/protocol"
	"pkgoracle/store"
)

// startWorker runs a worker against a bare listener standing in for the
// broker backend, and returns the broker side of the connection after the
// READY advertisement has been consumed.
func startWorker(t *testing.T, db store.Database, mws ...middleware.Middleware) (*Worker, net.Conn) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })

	w, err := New(Config{
		QueueAddr: ln.Addr().String(),
		Store:     db,
		CodecType: codec.CodecTypeJSON,
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, mw := range mws {
		w.Use(mw)
	}
	go w.Serve()
	t.Cleanup(func() { w.Close() })

	conn, err := ln.Accept()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })

	ready, err := protocol.Decode(conn)
	if err != nil {
		t.Fatalf("no ready advertisement: %v", err)
	}
	if ready.Header.MsgType != protocol.MsgTypeReady {
		t.Fatalf("first frame type = %d, want ready", ready.Header.MsgType)
	}
	return w, conn
}

func sendRequest(t *testing.T, conn net.Conn, addr, op string, args message.List) {
	t.Helper()
	body, err := codec.GetCodec(codec.CodecTypeJSON).Encode(args)
	if err != nil {
		t.Fatal(err)
	}
	err = protocol.Encode(conn, &protocol.Frame{
		Header: protocol.Header{CodecType: byte(codec.CodecTypeJSON), MsgType: protocol.MsgTypeRequest},
		Addr:   []byte(addr),
		Op:     op,
		Body:   body,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func readReply(t *testing.T, conn net.Conn) (*protocol.Frame, message.Value) {
	t.Helper()
	frame, err := protocol.Decode(conn)
	if err != nil {
		t.Fatalf("reading reply: %v", err)
	}
	if frame.Header.MsgType != protocol.MsgTypeReply {
		t.Fatalf("frame type = %d, want reply", frame.Header.MsgType)
	}
	payload, err := codec.GetCodec(codec.CodecType(frame.Header.CodecType)).Decode(frame.Body)
	if err != nil {
		t.Fatalf("decoding reply payload: %v", err)
	}
	return frame, payload
}

func TestWorkerRepliesWithEchoedAddress(t *testing.T) {
	_, conn := startWorker(t, store.NewMemoryStore())

	sendRequest(t, conn, "client-42", "NEWPKG", message.List{message.String("numpy"), message.String("")})
	frame, payload := readReply(t, conn)

	if !bytes.Equal(frame.Addr, []byte("client-42")) {
		t.Errorf("reply addr = %q, want client-42", frame.Addr)
	}
	if frame.Op != message.StatusOK {
		t.Errorf("reply status = %q, want OK", frame.Op)
	}
	if payload != message.Bool(true) {
		t.Errorf("payload = %v, want true", payload)
	}
}

func TestWorkerUnknownOperationBecomesErrorReply(t *testing.T) {
	_, conn := startWorker(t, store.NewMemoryStore())

	sendRequest(t, conn, "client-1", "BOGUS", message.List{})
	frame, payload := readReply(t, conn)

	if frame.Op != message.StatusError {
		t.Fatalf("reply status = %q, want ERROR", frame.Op)
	}
	desc, ok := payload.(message.String)
	if !ok {
		t.Fatalf("error payload = %T, want String", payload)
	}
	if !strings.Contains(string(desc), "unknown operation") {
		t.Errorf("description = %q", desc)
	}
}

func TestWorkerStoreErrorBecomesErrorReply(t *testing.T) {
	_, conn := startWorker(t, store.NewMemoryStore())

	// Registering a version of an unknown package violates a store
	// constraint; the worker must answer, not drop the request.
	sendRequest(t, conn, "client-1", "NEWVER", message.List{
		message.String("ghost"), message.String("1.0"),
		message.Time(time.Now().UTC()), message.String(""),
	})
	frame, payload := readReply(t, conn)

	if frame.Op != message.StatusError {
		t.Fatalf("reply status = %q, want ERROR", frame.Op)
	}
	if payload != message.String(`unknown package "ghost"`) {
		t.Errorf("description = %v", payload)
	}
}

func TestWorkerSkipsMalformedBody(t *testing.T) {
	_, conn := startWorker(t, store.NewMemoryStore())

	// A request whose body does not decode yields no reply; the loop must
	// survive and serve the next request.
	err := protocol.Encode(conn, &protocol.Frame{
		Header: protocol.Header{CodecType: byte(codec.CodecTypeJSON), MsgType: protocol.MsgTypeRequest},
		Addr:   []byte("client-1"),
		Op:     "ALLPKGS",
		Body:   []byte("not a payload"),
	})
	if err != nil {
		t.Fatal(err)
	}

	sendRequest(t, conn, "client-2", "GETPYPI", message.List{})
	frame, payload := readReply(t, conn)

	if !bytes.Equal(frame.Addr, []byte("client-2")) {
		t.Errorf("reply addr = %q; the malformed request must produce no reply", frame.Addr)
	}
	if payload != message.Int(0) {
		t.Errorf("payload = %v, want 0", payload)
	}
}

func TestWorkerServesSequentially(t *testing.T) {
	_, conn := startWorker(t, store.NewMemoryStore())

	// Queue several requests at once; replies must come back one per
	// request, in order.
	for _, pkg := range []string{"numpy", "scipy", "flask"} {
		sendRequest(t, conn, "client-1", "NEWPKG", message.List{message.String(pkg), message.String("")})
	}
	for i := 0; i < 3; i++ {
		frame, payload := readReply(t, conn)
		if frame.Op != message.StatusOK {
			t.Fatalf("reply %d status = %q", i, frame.Op)
		}
		if payload != message.Bool(true) {
			t.Errorf("reply %d payload = %v", i, payload)
		}
	}

	sendRequest(t, conn, "client-1", "ALLPKGS", message.List{})
	_, payload := readReply(t, conn)
	if set, ok := payload.(message.Set); !ok || len(set) != 3 {
		t.Errorf("ALLPKGS = %v, want 3 packages", payload)
	}
}

func TestWorkerMiddlewareWrapsDispatch(t *testing.T) {
	var seen []string
	record := func(next middleware.HandlerFunc) middleware.HandlerFunc {
		return func(ctx context.Context, req *message.Request) *message.Reply {
			seen = append(seen, req.Op)
			return next(ctx, req)
		}
	}
	_, conn := startWorker(t, store.NewMemoryStore(), record)

	sendRequest(t, conn, "client-1", "GETPYPI", message.List{})
	readReply(t, conn)

	if len(seen) != 1 || seen[0] != "GETPYPI" {
		t.Errorf("middleware saw %v, want [GETPYPI]", seen)
	}
}

func TestWorkerCloseReleasesStore(t *testing.T) {
	db := store.NewMemoryStore()
	w, conn := startWorker(t, db)

	sendRequest(t, conn, "client-1", "GETPYPI", message.List{})
	readReply(t, conn)

	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := db.GetAllPackages(); err != store.ErrClosed {
		t.Errorf("store should be closed after worker shutdown, got %v", err)
	}
	// Close is idempotent.
	if err := w.Close(); err != nil {
		t.Errorf("second Close = %v", err)
	}
}

func TestNextIdentity(t *testing.T) {
	a := NextIdentity("oracle")
	b := NextIdentity("oracle")
	if a == b {
		t.Fatalf("identities must be unique, got %v twice", a)
	}
	if a.String() == b.String() {
		t.Errorf("identity strings collide: %s", a)
	}
	if NextIdentity("").BaseName != DefaultBaseName {
		t.Errorf("empty base should fall back to %q", DefaultBaseName)
	}
}
