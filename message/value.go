// Package message defines the data model exchanged between RPC clients and
// database workers.
//
// Every argument and result travelling over the wire is a Value: a member of a
// small, closed union of kinds (scalars, containers, and a handful of flat
// domain records). The codec layer serializes Values with an explicit kind tag
// so that structured types like Set or BuildResult survive the round trip
// instead of degrading to generic tuples.
package message

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Kind identifies the concrete type of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt
	KindString
	KindTime
	KindList
	KindSet
	KindMap
	KindFields
	KindBuild
	KindFile
	KindDownload
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindString:
		return "str"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	case KindSet:
		return "set"
	case KindMap:
		return "map"
	case KindFields:
		return "fields"
	case KindBuild:
		return "build"
	case KindFile:
		return "file"
	case KindDownload:
		return "download"
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// Value is the closed union of wire-transferable types. Only the types in
// this package implement it.
type Value interface {
	Kind() Kind
}

// Null is the unit value, used as the result of side-effect-only operations.
type Null struct{}

func (Null) Kind() Kind { return KindNull }

type Bool bool

func (Bool) Kind() Kind { return KindBool }

type Int int64

func (Int) Kind() Kind { return KindInt }

type String string

func (String) Kind() Kind { return KindString }

// Time wraps time.Time so timestamps keep their kind across the wire.
type Time time.Time

func (Time) Kind() Kind { return KindTime }

// List is an ordered sequence of values. Request argument sequences are Lists.
type List []Value

func (List) Kind() Kind { return KindList }

// Set is an unordered collection of values, held in canonical order so that
// two Sets with the same elements compare equal. Construct with NewSet.
type Set []Value

func (Set) Kind() Kind { return KindSet }

// NewSet builds a Set from the given elements, sorting them into canonical
// order. Codecs call this on decode, so a Set round-trips to an equal Set
// regardless of the element order it was built with.
func NewSet(elems ...Value) Set {
	s := make(Set, len(elems))
	copy(s, elems)
	sort.Slice(s, func(i, j int) bool {
		return sortKey(s[i]) < sortKey(s[j])
	})
	return s
}

// Map is a string-keyed mapping of values.
type Map map[string]Value

func (Map) Kind() Kind { return KindMap }

// Field is one named value inside a Fields record.
type Field struct {
	Name  string
	Value Value
}

// Fields is an ordered sequence of (name, value) pairs. The statistics and
// recent-downloads operations return their results in this form; order is
// preserved, unlike Map.
type Fields []Field

func (Fields) Kind() Kind { return KindFields }

// Get returns the value for the named field, or false if absent.
func (f Fields) Get(name string) (Value, bool) {
	for _, field := range f {
		if field.Name == name {
			return field.Value, true
		}
	}
	return nil, false
}

// sortKey renders a value into a deterministic string used only to order Set
// elements canonically. It is not a wire format.
func sortKey(v Value) string {
	switch val := v.(type) {
	case nil:
		return "!"
	case Null:
		return "0"
	case Bool:
		return fmt.Sprintf("1%t", bool(val))
	case Int:
		return fmt.Sprintf("2%020d", int64(val))
	case String:
		return "3" + string(val)
	case Time:
		return "4" + time.Time(val).UTC().Format(time.RFC3339Nano)
	case List:
		keys := make([]string, len(val))
		for i, e := range val {
			keys[i] = sortKey(e)
		}
		return "5[" + strings.Join(keys, ",") + "]"
	case Set:
		keys := make([]string, len(val))
		for i, e := range val {
			keys[i] = sortKey(e)
		}
		sort.Strings(keys)
		return "6{" + strings.Join(keys, ",") + "}"
	case Map:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + "=" + sortKey(val[k])
		}
		return "7{" + strings.Join(parts, ",") + "}"
	case Fields:
		parts := make([]string, len(val))
		for i, f := range val {
			parts[i] = f.Name + "=" + sortKey(f.Value)
		}
		return "8[" + strings.Join(parts, ",") + "]"
	case FileInfo:
		return "9f" + val.Filename + "/" + val.FileHash
	case BuildResult:
		return "9b" + val.Package + "/" + val.Version + "/" + val.ABITag
	case Download:
		return "9d" + val.Filename + "/" + val.AccessedBy +
			"/" + time.Time(val.AccessedAt).UTC().Format(time.RFC3339Nano)
	}
	return fmt.Sprintf("?%v", v)
}
