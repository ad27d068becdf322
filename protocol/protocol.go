// Package protocol implements the binary frame protocol between clients, the
// broker, and database workers.
//
// A frame is a fixed 14-byte header followed by three variable-length parts:
// the routing address, the operation (or reply status), and the body. The
// receiver reads the header first to learn the part lengths, then reads
// exactly that many bytes, so frames survive TCP's stream semantics intact.
//
// Frame format:
//
//	0      3  4  5  6         8        10        14
//	┌──────┬──┬──┬──┬─────────┬─────────┬─────────┬──────┬────┬──────┐
//	│magic │v │ct│mt│ addrLen │  opLen  │ bodyLen │ addr │ op │ body │
//	│ orp  │01│  │  │ uint16  │ uint16  │ uint32  │      │    │      │
//	└──────┴──┴──┴──┴─────────┴─────────┴─────────┴──────┴────┴──────┘
//
// The routing address is assigned by the broker: empty on frames a client
// sends, filled in by the broker before dispatch to a worker, and echoed
// byte-identical on the worker's reply so the broker can route it back.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Magic number bytes: "orp" (oracle rpc protocol). Used to reject
// non-protocol connections before any further parsing.
const (
	MagicByte1 byte = 0x6f // 'o'
	MagicByte2 byte = 0x72 // 'r'
	MagicByte3 byte = 0x70 // 'p'
	Version    byte = 0x01
	HeaderSize int  = 14 // 3 (magic) + 1 (version) + 1 (codec) + 1 (msgType) + 2 (addrLen) + 2 (opLen) + 4 (bodyLen)
)

// MsgType distinguishes request, reply, and ready frames.
type MsgType byte

const (
	MsgTypeRequest MsgType = 0 // Client → Broker → Worker operation request
	MsgTypeReply   MsgType = 1 // Worker → Broker → Client reply
	MsgTypeReady   MsgType = 2 // Worker → Broker availability advertisement (all parts empty)
)

// Codec type constants, mirrored from the codec package to avoid a circular
// import.
const (
	CodecTypeJSON   byte = 0
	CodecTypeBinary byte = 1
)

// Header is the fixed portion of a frame.
type Header struct {
	CodecType byte
	MsgType   MsgType
	AddrLen   uint16
	OpLen     uint16
	BodyLen   uint32
}

// Frame is one complete decoded message. Op carries the operation name on
// requests and the reply status ("OK"/"ERROR") on replies; it is empty on
// ready frames.
type Frame struct {
	Header Header
	Addr   []byte
	Op     string
	Body   []byte
}

// Ready builds a worker's availability advertisement: no address, no
// operation, no body.
func Ready(codecType byte) *Frame {
	return &Frame{Header: Header{CodecType: codecType, MsgType: MsgTypeReady}}
}

// Encode writes a complete frame to w. The header length fields are derived
// from the frame parts, so callers only populate Addr, Op, Body, and the
// header's CodecType and MsgType.
//
// The whole frame is assembled into one buffer and written with a single
// Write call; callers sharing a writer across goroutines must still serialize
// Encode calls to keep frames from interleaving.
func Encode(w io.Writer, f *Frame) error {
	addrLen := len(f.Addr)
	opLen := len(f.Op)
	bodyLen := len(f.Body)
	buf := make([]byte, HeaderSize+addrLen+opLen+bodyLen)

	buf[0] = MagicByte1
	buf[1] = MagicByte2
	buf[2] = MagicByte3
	buf[3] = Version
	buf[4] = f.Header.CodecType
	buf[5] = byte(f.Header.MsgType)
	binary.BigEndian.PutUint16(buf[6:8], uint16(addrLen))
	binary.BigEndian.PutUint16(buf[8:10], uint16(opLen))
	binary.BigEndian.PutUint32(buf[10:14], uint32(bodyLen))

	offset := HeaderSize
	copy(buf[offset:], f.Addr)
	offset += addrLen
	copy(buf[offset:], f.Op)
	offset += opLen
	copy(buf[offset:], f.Body)

	_, err := w.Write(buf)
	return err
}

// Decode reads one complete frame from r. It validates the magic number,
// version, codec type, and message type, and uses io.ReadFull so partial
// reads never produce a truncated frame.
func Decode(r io.Reader) (*Frame, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, err
	}

	if headerBuf[0] != MagicByte1 || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	if headerBuf[4] != CodecTypeJSON && headerBuf[4] != CodecTypeBinary {
		return nil, fmt.Errorf("unsupported codec type: %d", headerBuf[4])
	}
	msgType := headerBuf[5]
	if msgType > byte(MsgTypeReady) {
		return nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	header := Header{
		CodecType: headerBuf[4],
		MsgType:   MsgType(msgType),
		AddrLen:   binary.BigEndian.Uint16(headerBuf[6:8]),
		OpLen:     binary.BigEndian.Uint16(headerBuf[8:10]),
		BodyLen:   binary.BigEndian.Uint32(headerBuf[10:14]),
	}

	rest := make([]byte, int(header.AddrLen)+int(header.OpLen)+int(header.BodyLen))
	if _, err := io.ReadFull(r, rest); err != nil {
		return nil, err
	}

	addr := rest[:header.AddrLen]
	op := rest[header.AddrLen : int(header.AddrLen)+int(header.OpLen)]
	body := rest[int(header.AddrLen)+int(header.OpLen):]

	return &Frame{Header: header, Addr: addr, Op: string(op), Body: body}, nil
}
