package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"pkgoracle/message"
)

// BinaryCodec encodes values as a kind byte followed by a kind-specific,
// length-prefixed payload. Roughly half the size of the JSON encoding and
// allocation-light, at the cost of not being readable on the wire.
type BinaryCodec struct{}

func (c *BinaryCodec) Encode(v message.Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (c *BinaryCodec) Decode(data []byte) (message.Value, error) {
	r := bytes.NewReader(data)
	v, err := readValue(r)
	if err != nil {
		return nil, err
	}
	if r.Len() != 0 {
		return nil, errors.New("BinaryCodec: trailing bytes after value")
	}
	return v, nil
}

func (c *BinaryCodec) Type() CodecType {
	return CodecTypeBinary
}

func writeValue(buf *bytes.Buffer, v message.Value) error {
	if v == nil {
		v = message.Null{}
	}
	buf.WriteByte(byte(v.Kind()))

	switch val := v.(type) {
	case message.Null:
		return nil
	case message.Bool:
		if val {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		return nil
	case message.Int:
		writeInt64(buf, int64(val))
		return nil
	case message.String:
		writeString(buf, string(val))
		return nil
	case message.Time:
		// RFC3339Nano keeps the zone offset, matching the JSON codec.
		writeString(buf, time.Time(val).Format(time.RFC3339Nano))
		return nil
	case message.List:
		return writeElems(buf, val)
	case message.Set:
		return writeElems(buf, val)
	case message.Map:
		keys := sortedKeys(val)
		writeCount(buf, len(keys))
		for _, k := range keys {
			writeString(buf, k)
			if err := writeValue(buf, val[k]); err != nil {
				return err
			}
		}
		return nil
	case message.Fields:
		writeCount(buf, len(val))
		for _, f := range val {
			writeString(buf, f.Name)
			if err := writeValue(buf, f.Value); err != nil {
				return err
			}
		}
		return nil
	case message.FileInfo:
		writeFile(buf, val)
		return nil
	case message.BuildResult:
		writeString(buf, val.Package)
		writeString(buf, val.Version)
		writeString(buf, val.ABITag)
		if val.Status {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
		writeInt64(buf, int64(val.Duration))
		writeString(buf, val.Output)
		writeInt64(buf, val.BuildID)
		writeCount(buf, len(val.Files))
		for _, f := range val.Files {
			writeFile(buf, f)
		}
		return nil
	case message.Download:
		writeString(buf, val.Filename)
		writeString(buf, val.AccessedBy)
		writeString(buf, val.AccessedAt.Format(time.RFC3339Nano))
		writeString(buf, val.Arch)
		writeString(buf, val.DistroName)
		writeString(buf, val.DistroVersion)
		writeString(buf, val.OSName)
		writeString(buf, val.OSVersion)
		writeString(buf, val.PyName)
		writeString(buf, val.PyVersion)
		return nil
	}
	return fmt.Errorf("BinaryCodec: unsupported value type %T", v)
}

func readValue(r *bytes.Reader) (message.Value, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch message.Kind(kindByte) {
	case message.KindNull:
		return message.Null{}, nil
	case message.KindBool:
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		return message.Bool(b != 0), nil
	case message.KindInt:
		n, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		return message.Int(n), nil
	case message.KindString:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		return message.String(s), nil
	case message.KindTime:
		s, err := readString(r)
		if err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return message.Time(t), nil
	case message.KindList:
		elems, err := readElems(r)
		if err != nil {
			return nil, err
		}
		return message.List(elems), nil
	case message.KindSet:
		elems, err := readElems(r)
		if err != nil {
			return nil, err
		}
		return message.NewSet(elems...), nil
	case message.KindMap:
		count, err := readCount(r)
		if err != nil {
			return nil, err
		}
		m := make(message.Map, count)
		for i := 0; i < count; i++ {
			k, err := readString(r)
			if err != nil {
				return nil, err
			}
			v, err := readValue(r)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case message.KindFields:
		count, err := readCount(r)
		if err != nil {
			return nil, err
		}
		fields := make(message.Fields, count)
		for i := 0; i < count; i++ {
			name, err := readString(r)
			if err != nil {
				return nil, err
			}
			v, err := readValue(r)
			if err != nil {
				return nil, err
			}
			fields[i] = message.Field{Name: name, Value: v}
		}
		return fields, nil
	case message.KindFile:
		return readFile(r)
	case message.KindBuild:
		var b message.BuildResult
		if b.Package, err = readString(r); err != nil {
			return nil, err
		}
		if b.Version, err = readString(r); err != nil {
			return nil, err
		}
		if b.ABITag, err = readString(r); err != nil {
			return nil, err
		}
		statusByte, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		b.Status = statusByte != 0
		durationNS, err := readInt64(r)
		if err != nil {
			return nil, err
		}
		b.Duration = time.Duration(durationNS)
		if b.Output, err = readString(r); err != nil {
			return nil, err
		}
		if b.BuildID, err = readInt64(r); err != nil {
			return nil, err
		}
		count, err := readCount(r)
		if err != nil {
			return nil, err
		}
		b.Files = make([]message.FileInfo, count)
		for i := 0; i < count; i++ {
			f, err := readFile(r)
			if err != nil {
				return nil, err
			}
			b.Files[i] = f
		}
		return b, nil
	case message.KindDownload:
		var d message.Download
		if d.Filename, err = readString(r); err != nil {
			return nil, err
		}
		if d.AccessedBy, err = readString(r); err != nil {
			return nil, err
		}
		at, err := readString(r)
		if err != nil {
			return nil, err
		}
		if d.AccessedAt, err = time.Parse(time.RFC3339Nano, at); err != nil {
			return nil, err
		}
		if d.Arch, err = readString(r); err != nil {
			return nil, err
		}
		if d.DistroName, err = readString(r); err != nil {
			return nil, err
		}
		if d.DistroVersion, err = readString(r); err != nil {
			return nil, err
		}
		if d.OSName, err = readString(r); err != nil {
			return nil, err
		}
		if d.OSVersion, err = readString(r); err != nil {
			return nil, err
		}
		if d.PyName, err = readString(r); err != nil {
			return nil, err
		}
		if d.PyVersion, err = readString(r); err != nil {
			return nil, err
		}
		return d, nil
	}
	return nil, fmt.Errorf("BinaryCodec: unknown kind byte %d", kindByte)
}

func writeElems(buf *bytes.Buffer, elems []message.Value) error {
	writeCount(buf, len(elems))
	for _, e := range elems {
		if err := writeValue(buf, e); err != nil {
			return err
		}
	}
	return nil
}

func readElems(r *bytes.Reader) ([]message.Value, error) {
	count, err := readCount(r)
	if err != nil {
		return nil, err
	}
	elems := make([]message.Value, count)
	for i := 0; i < count; i++ {
		v, err := readValue(r)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	return elems, nil
}

func writeFile(buf *bytes.Buffer, f message.FileInfo) {
	writeString(buf, f.Filename)
	writeInt64(buf, f.Filesize)
	writeString(buf, f.FileHash)
	writeString(buf, f.PackageTag)
	writeString(buf, f.PlatformTag)
}

func readFile(r *bytes.Reader) (message.FileInfo, error) {
	var f message.FileInfo
	var err error
	if f.Filename, err = readString(r); err != nil {
		return f, err
	}
	if f.Filesize, err = readInt64(r); err != nil {
		return f, err
	}
	if f.FileHash, err = readString(r); err != nil {
		return f, err
	}
	if f.PackageTag, err = readString(r); err != nil {
		return f, err
	}
	if f.PlatformTag, err = readString(r); err != nil {
		return f, err
	}
	return f, nil
}

func writeCount(buf *bytes.Buffer, n int) {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(n))
	buf.Write(b[:])
}

func readCount(r *bytes.Reader) (int, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int(binary.BigEndian.Uint32(b[:])), nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeCount(buf, len(s))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	n, err := readCount(r)
	if err != nil {
		return "", err
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeInt64(buf *bytes.Buffer, n int64) {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	buf.Write(b[:])
}

func readInt64(r *bytes.Reader) (int64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b[:])), nil
}

func sortedKeys(m message.Map) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
