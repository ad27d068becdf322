package codec

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"pkgoracle/message"
)

// JSONCodec encodes values as JSON objects of the form {"k": kind, "v": ...}.
// Pros: human-readable, easy to inspect on the wire, unicode handled by
// encoding/json. Cons: larger payloads than the binary codec.
type JSONCodec struct{}

// jsonValue is the wire form of every value: a kind tag plus the
// kind-specific inner encoding.
type jsonValue struct {
	K string          `json:"k"`
	V json.RawMessage `json:"v,omitempty"`
}

type jsonField struct {
	N string          `json:"n"`
	V json.RawMessage `json:"v"`
}

type jsonFile struct {
	Filename    string `json:"filename"`
	Filesize    int64  `json:"filesize"`
	FileHash    string `json:"filehash"`
	PackageTag  string `json:"package_tag"`
	PlatformTag string `json:"platform_tag"`
}

type jsonBuild struct {
	Package  string     `json:"package"`
	Version  string     `json:"version"`
	ABITag   string     `json:"abi_tag"`
	Status   bool       `json:"status"`
	Duration int64      `json:"duration_ns"`
	Output   string     `json:"output"`
	Files    []jsonFile `json:"files"`
	BuildID  int64      `json:"build_id"`
}

type jsonDownload struct {
	Filename      string `json:"filename"`
	AccessedBy    string `json:"accessed_by"`
	AccessedAt    string `json:"accessed_at"`
	Arch          string `json:"arch"`
	DistroName    string `json:"distro_name"`
	DistroVersion string `json:"distro_version"`
	OSName        string `json:"os_name"`
	OSVersion     string `json:"os_version"`
	PyName        string `json:"py_name"`
	PyVersion     string `json:"py_version"`
}

func (c *JSONCodec) Encode(v message.Value) ([]byte, error) {
	return encodeJSONValue(v)
}

func (c *JSONCodec) Decode(data []byte) (message.Value, error) {
	return decodeJSONValue(data)
}

func (c *JSONCodec) Type() CodecType {
	return CodecTypeJSON
}

func jsonTag(kind string, inner any) ([]byte, error) {
	raw, err := json.Marshal(inner)
	if err != nil {
		return nil, err
	}
	return json.Marshal(jsonValue{K: kind, V: raw})
}

func encodeJSONValue(v message.Value) ([]byte, error) {
	switch val := v.(type) {
	case nil, message.Null:
		return json.Marshal(jsonValue{K: "null"})
	case message.Bool:
		return jsonTag("bool", bool(val))
	case message.Int:
		return jsonTag("int", int64(val))
	case message.String:
		return jsonTag("str", string(val))
	case message.Time:
		return jsonTag("time", time.Time(val).Format(time.RFC3339Nano))
	case message.List:
		return encodeJSONElems("list", val)
	case message.Set:
		return encodeJSONElems("set", val)
	case message.Map:
		inner := make(map[string]json.RawMessage, len(val))
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			raw, err := encodeJSONValue(val[k])
			if err != nil {
				return nil, err
			}
			inner[k] = raw
		}
		return jsonTag("map", inner)
	case message.Fields:
		inner := make([]jsonField, len(val))
		for i, f := range val {
			raw, err := encodeJSONValue(f.Value)
			if err != nil {
				return nil, err
			}
			inner[i] = jsonField{N: f.Name, V: raw}
		}
		return jsonTag("fields", inner)
	case message.FileInfo:
		return jsonTag("file", fileToJSON(val))
	case message.BuildResult:
		files := make([]jsonFile, len(val.Files))
		for i, f := range val.Files {
			files[i] = fileToJSON(f)
		}
		return jsonTag("build", jsonBuild{
			Package:  val.Package,
			Version:  val.Version,
			ABITag:   val.ABITag,
			Status:   val.Status,
			Duration: int64(val.Duration),
			Output:   val.Output,
			Files:    files,
			BuildID:  val.BuildID,
		})
	case message.Download:
		return jsonTag("download", jsonDownload{
			Filename:      val.Filename,
			AccessedBy:    val.AccessedBy,
			AccessedAt:    val.AccessedAt.Format(time.RFC3339Nano),
			Arch:          val.Arch,
			DistroName:    val.DistroName,
			DistroVersion: val.DistroVersion,
			OSName:        val.OSName,
			OSVersion:     val.OSVersion,
			PyName:        val.PyName,
			PyVersion:     val.PyVersion,
		})
	}
	return nil, fmt.Errorf("codec: unsupported value type %T", v)
}

func encodeJSONElems(kind string, elems []message.Value) ([]byte, error) {
	inner := make([]json.RawMessage, len(elems))
	for i, e := range elems {
		raw, err := encodeJSONValue(e)
		if err != nil {
			return nil, err
		}
		inner[i] = raw
	}
	return jsonTag(kind, inner)
}

func decodeJSONValue(data []byte) (message.Value, error) {
	var jv jsonValue
	if err := json.Unmarshal(data, &jv); err != nil {
		return nil, err
	}
	switch jv.K {
	case "null":
		return message.Null{}, nil
	case "bool":
		var b bool
		if err := json.Unmarshal(jv.V, &b); err != nil {
			return nil, err
		}
		return message.Bool(b), nil
	case "int":
		var n int64
		if err := json.Unmarshal(jv.V, &n); err != nil {
			return nil, err
		}
		return message.Int(n), nil
	case "str":
		var s string
		if err := json.Unmarshal(jv.V, &s); err != nil {
			return nil, err
		}
		return message.String(s), nil
	case "time":
		var s string
		if err := json.Unmarshal(jv.V, &s); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return nil, err
		}
		return message.Time(t), nil
	case "list":
		elems, err := decodeJSONElems(jv.V)
		if err != nil {
			return nil, err
		}
		return message.List(elems), nil
	case "set":
		elems, err := decodeJSONElems(jv.V)
		if err != nil {
			return nil, err
		}
		return message.NewSet(elems...), nil
	case "map":
		var inner map[string]json.RawMessage
		if err := json.Unmarshal(jv.V, &inner); err != nil {
			return nil, err
		}
		m := make(message.Map, len(inner))
		for k, raw := range inner {
			v, err := decodeJSONValue(raw)
			if err != nil {
				return nil, err
			}
			m[k] = v
		}
		return m, nil
	case "fields":
		var inner []jsonField
		if err := json.Unmarshal(jv.V, &inner); err != nil {
			return nil, err
		}
		fields := make(message.Fields, len(inner))
		for i, f := range inner {
			v, err := decodeJSONValue(f.V)
			if err != nil {
				return nil, err
			}
			fields[i] = message.Field{Name: f.N, Value: v}
		}
		return fields, nil
	case "file":
		var inner jsonFile
		if err := json.Unmarshal(jv.V, &inner); err != nil {
			return nil, err
		}
		return fileFromJSON(inner), nil
	case "build":
		var inner jsonBuild
		if err := json.Unmarshal(jv.V, &inner); err != nil {
			return nil, err
		}
		files := make([]message.FileInfo, len(inner.Files))
		for i, f := range inner.Files {
			files[i] = fileFromJSON(f)
		}
		return message.BuildResult{
			Package:  inner.Package,
			Version:  inner.Version,
			ABITag:   inner.ABITag,
			Status:   inner.Status,
			Duration: time.Duration(inner.Duration),
			Output:   inner.Output,
			Files:    files,
			BuildID:  inner.BuildID,
		}, nil
	case "download":
		var inner jsonDownload
		if err := json.Unmarshal(jv.V, &inner); err != nil {
			return nil, err
		}
		at, err := time.Parse(time.RFC3339Nano, inner.AccessedAt)
		if err != nil {
			return nil, err
		}
		return message.Download{
			Filename:      inner.Filename,
			AccessedBy:    inner.AccessedBy,
			AccessedAt:    at,
			Arch:          inner.Arch,
			DistroName:    inner.DistroName,
			DistroVersion: inner.DistroVersion,
			OSName:        inner.OSName,
			OSVersion:     inner.OSVersion,
			PyName:        inner.PyName,
			PyVersion:     inner.PyVersion,
		}, nil
	}
	return nil, fmt.Errorf("codec: unknown kind tag %q", jv.K)
}

func decodeJSONElems(raw json.RawMessage) ([]message.Value, error) {
	var inner []json.RawMessage
	if err := json.Unmarshal(raw, &inner); err != nil {
		return nil, err
	}
	elems := make([]message.Value, len(inner))
	for i, r := range inner {
		v, err := decodeJSONValue(r)
		if err != nil {
			return nil, err
		}
		elems[i] = v
	}
	return elems, nil
}

func fileToJSON(f message.FileInfo) jsonFile {
	return jsonFile{
		Filename:    f.Filename,
		Filesize:    f.Filesize,
		FileHash:    f.FileHash,
		PackageTag:  f.PackageTag,
		PlatformTag: f.PlatformTag,
	}
}

func fileFromJSON(f jsonFile) message.FileInfo {
	return message.FileInfo{
		Filename:    f.Filename,
		Filesize:    f.Filesize,
		FileHash:    f.FileHash,
		PackageTag:  f.PackageTag,
		PlatformTag: f.PlatformTag,
	}
}
