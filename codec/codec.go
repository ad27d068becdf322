// Package codec serializes message values for transmission inside protocol
// frames.
//
// Two codecs are provided, selected by a codec-type byte carried in the frame
// header: a tagged JSON encoding (human-readable, default) and a
// length-prefixed binary encoding (compact). Both carry an explicit kind tag
// per value, so every kind in the message union round-trips exactly:
// sets stay sets, times stay times, and domain records keep their type
// instead of decaying to generic containers.
package codec

import "pkgoracle/message"

type CodecType byte

const (
	CodecTypeJSON   CodecType = 0
	CodecTypeBinary CodecType = 1
)

type Codec interface {
	Encode(v message.Value) ([]byte, error)
	Decode(data []byte) (message.Value, error)
	Type() CodecType // 0=JSON, 1=Binary
}

func GetCodec(codecType CodecType) Codec {
	if codecType == CodecTypeJSON {
		return &JSONCodec{}
	}

	return &BinaryCodec{}
}
