// Package worker implements the database worker service: one instance owns
// one exclusive store connection and serves one operation at a time from a
// shared broker queue.
//
// Request processing pipeline:
//
//	Dial broker backend → READY advertisement
//	  → readLoop (decodes frames into a bounded queue)
//	  → serveLoop (strictly sequential): decode args → middleware chain
//	    → catalog dispatch → store call → reply frame with the original
//	    routing address
//
// The cardinal invariant is one reply per received request, sent before the
// next request is taken. Handler and dispatch failures therefore become
// ERROR replies, never crashes; only a failure to receive an envelope in the
// first place produces no reply, since there is no address to reply to.
// Throughput comes from running several independent instances, not from
// concurrency inside one.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pkgoracle/catalog"
	"pkgoracle/codec"
	"pkgoracle/message"
	"pkgoracle/middleware"
	"pkgoracle/protocol"
	"pkgoracle/registry"
	"pkgoracle/store"
)

// DefaultQueueDepth bounds the inbound frame queue. The bound is a
// resource-exhaustion signal, not a scheduling mechanism: a full queue makes
// the reader block, which pushes back on the broker through TCP.
const DefaultQueueDepth = 10

// Config carries a worker's construction parameters.
type Config struct {
	// QueueAddr is the broker backend address the worker dials.
	QueueAddr string

	// Store is the worker's exclusive store connection. Required; a worker
	// cannot start without one.
	Store store.Database

	// Identity names the instance. Zero value allocates the next identity
	// under DefaultBaseName.
	Identity Identity

	// CodecType selects the serialization for this worker's replies to
	// codec-less frames; requests are answered in the codec they arrived in.
	CodecType codec.CodecType

	// QueueDepth bounds the inbound queue; 0 means DefaultQueueDepth.
	QueueDepth int

	// Logger defaults to a no-op logger.
	Logger *zap.Logger

	// Registry, when set, receives the worker's identity registration for
	// operator visibility. Optional.
	Registry registry.Registry

	// RegistryTTL is the registration lease in seconds; 0 means 10.
	RegistryTTL int64
}

// Worker is one service instance running the receive→dispatch→reply loop.
type Worker struct {
	cfg         Config
	logger      *zap.Logger
	conn        net.Conn
	queue       chan *protocol.Frame
	stop        chan struct{}
	done        chan struct{}
	middlewares []middleware.Middleware
	handler     middleware.HandlerFunc
	closing     atomic.Bool
	closeOnce   sync.Once
	closeErr    error
}

// New validates the configuration and prepares a worker. The store
// connection must already be established: a worker without a store is a
// fatal misconfiguration, not a retriable condition.
func New(cfg Config) (*Worker, error) {
	if cfg.Store == nil {
		return nil, errors.New("worker: store connection is required")
	}
	if cfg.QueueAddr == "" {
		return nil, errors.New("worker: queue address is required")
	}
	if cfg.Identity == (Identity{}) {
		cfg.Identity = NextIdentity(DefaultBaseName)
	}
	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = DefaultQueueDepth
	}
	if cfg.RegistryTTL <= 0 {
		cfg.RegistryTTL = 10
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Worker{
		cfg:    cfg,
		logger: cfg.Logger.With(zap.String("worker", cfg.Identity.String())),
		queue:  make(chan *protocol.Frame, cfg.QueueDepth),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}, nil
}

// Use registers a middleware around dispatch. Middlewares apply in the order
// they are added and must be registered before Serve.
func (w *Worker) Use(mw middleware.Middleware) {
	w.middlewares = append(w.middlewares, mw)
}

// Identity returns the instance's assigned identity.
func (w *Worker) Identity() Identity {
	return w.cfg.Identity
}

// Serve connects to the broker backend, advertises readiness, and runs the
// serve loop until Close is called or the connection drops. It blocks for
// the worker's lifetime.
func (w *Worker) Serve() error {
	conn, err := net.Dial("tcp", w.cfg.QueueAddr)
	if err != nil {
		return fmt.Errorf("worker: connect queue: %w", err)
	}
	w.conn = conn

	// Build the dispatch chain once, not per request.
	w.handler = middleware.Chain(w.middlewares...)(w.dispatch)

	if w.cfg.Registry != nil {
		err := w.cfg.Registry.Register(registry.WorkerService, registry.ServiceInstance{
			Addr: w.cfg.Identity.String(),
		}, w.cfg.RegistryTTL)
		if err != nil {
			w.logger.Warn("worker registration failed", zap.Error(err))
		}
	}

	// The broker will not dispatch to this instance until it sees READY.
	if err := protocol.Encode(conn, protocol.Ready(byte(w.cfg.CodecType))); err != nil {
		conn.Close()
		return fmt.Errorf("worker: ready advertisement: %w", err)
	}

	w.logger.Info("worker ready", zap.String("queue", w.cfg.QueueAddr))
	go w.readLoop()
	w.serveLoop()
	return nil
}

// readLoop decodes inbound frames into the bounded queue. Frame-level
// failures end the loop: a TCP stream that has lost framing cannot be
// resynchronized.
func (w *Worker) readLoop() {
	defer close(w.queue)
	for {
		frame, err := protocol.Decode(w.conn)
		if err != nil {
			if !w.closing.Load() && !errors.Is(err, io.EOF) {
				w.logger.Warn("queue receive failed", zap.Error(err))
			}
			return
		}
		select {
		case w.queue <- frame:
		case <-w.stop:
			return
		}
	}
}

// serveLoop handles queued frames strictly one at a time.
func (w *Worker) serveLoop() {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case frame, ok := <-w.queue:
			if !ok {
				return
			}
			w.serveOne(frame)
		}
	}
}

// serveOne produces exactly one reply for a valid request frame. A frame
// whose body cannot be decoded yields no reply: with no usable envelope
// there is nothing to address a reply to, so the loop logs and resumes.
func (w *Worker) serveOne(frame *protocol.Frame) {
	if frame.Header.MsgType != protocol.MsgTypeRequest {
		w.logger.Warn("ignoring non-request frame", zap.Uint8("type", uint8(frame.Header.MsgType)))
		return
	}

	args, err := decodeArgs(frame)
	if err != nil {
		w.logger.Warn("malformed request body", zap.String("op", frame.Op), zap.Error(err))
		return
	}

	req := &message.Request{Addr: frame.Addr, Op: frame.Op, Args: args}
	reply := w.handler(context.Background(), req)

	if err := w.writeReply(reply, frame.Header.CodecType); err != nil {
		w.logger.Error("failed to send reply", zap.String("op", frame.Op), zap.Error(err))
	}
}

func decodeArgs(frame *protocol.Frame) (message.List, error) {
	if len(frame.Body) == 0 {
		return message.List{}, nil
	}
	v, err := codec.GetCodec(codec.CodecType(frame.Header.CodecType)).Decode(frame.Body)
	if err != nil {
		return nil, err
	}
	args, ok := v.(message.List)
	if !ok {
		return nil, fmt.Errorf("request body is %s, want list", v.Kind())
	}
	return args, nil
}

// dispatch runs the catalog operation and converts any failure, including an
// unknown operation name or a handler panic, into an ERROR reply. This is
// the single place a failure value becomes a wire envelope; letting one
// escape as a missing reply would wedge the lock-step channel permanently.
func (w *Worker) dispatch(ctx context.Context, req *message.Request) (reply *message.Reply) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("panic handling db request", zap.String("op", req.Op), zap.Any("panic", r))
			reply = message.ErrorReply(req.Addr, fmt.Sprint(r))
		}
	}()

	result, err := catalog.Dispatch(w.cfg.Store, req.Op, req.Args)
	if err != nil {
		w.logger.Error("error handling db request", zap.String("op", req.Op), zap.Error(err))
		return message.ErrorReply(req.Addr, err.Error())
	}
	return message.OKReply(req.Addr, result)
}

// writeReply sends the reply frame using the routing address and codec of
// the originating request.
func (w *Worker) writeReply(reply *message.Reply, codecType byte) error {
	cdc := codec.GetCodec(codec.CodecType(codecType))
	body, err := cdc.Encode(reply.Payload)
	if err != nil {
		// The reply must still go out; degrade to an ERROR envelope
		// describing the encoding failure.
		w.logger.Error("failed to encode reply payload", zap.Error(err))
		reply = message.ErrorReply(reply.Addr, err.Error())
		if body, err = cdc.Encode(reply.Payload); err != nil {
			return err
		}
	}
	return protocol.Encode(w.conn, &protocol.Frame{
		Header: protocol.Header{CodecType: codecType, MsgType: protocol.MsgTypeReply},
		Addr:   reply.Addr,
		Op:     reply.Status,
		Body:   body,
	})
}

// Close shuts the worker down: it stops intake, waits for any in-flight
// reply to finish, deregisters, and releases the store connection before the
// queue socket. Safe to call more than once. Close must not be called
// before Serve.
func (w *Worker) Close() error {
	w.closeOnce.Do(func() {
		w.closing.Store(true)
		close(w.stop)
		<-w.done

		if w.cfg.Registry != nil {
			if err := w.cfg.Registry.Deregister(registry.WorkerService, w.cfg.Identity.String()); err != nil {
				w.logger.Warn("worker deregistration failed", zap.Error(err))
			}
		}

		var err error
		err = multierr.Append(err, w.cfg.Store.Close())
		if w.conn != nil {
			err = multierr.Append(err, w.conn.Close())
		}
		w.closeErr = err
		w.logger.Info("worker stopped")
	})
	return w.closeErr
}
