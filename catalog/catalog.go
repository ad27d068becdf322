// Package catalog defines the fixed table of operations the RPC layer
// exposes over the database store.
//
// Each entry declares its argument kinds, result kind, and whether it mutates
// the store, and binds a typed handler that unpacks the argument sequence and
// calls the corresponding Database method. Dispatch is by exact name match;
// the table is built once at process start and never mutated.
package catalog

import (
	"errors"
	"fmt"
	"time"

	"pkgoracle/message"
	"pkgoracle/store"
)

// ErrUnknownOperation is wrapped into the error returned by Dispatch for
// names absent from the table. At the worker boundary it becomes an ERROR
// reply like any other handler failure, never a dropped request.
var ErrUnknownOperation = errors.New("unknown operation")

// Handler executes one operation against a store connection. The argument
// sequence has already been validated against the entry's declared kinds, so
// handlers assert argument types directly.
type Handler func(db store.Database, args message.List) (message.Value, error)

// Entry describes one operation: its name, declared argument and result
// kinds, whether it mutates the store, and the handler that executes it.
type Entry struct {
	Name       string
	Args       []message.Kind
	Result     message.Kind
	SideEffect bool
	handler    Handler
}

// Invoke validates the argument sequence against the entry's declared kinds
// and runs the handler.
func (e *Entry) Invoke(db store.Database, args message.List) (message.Value, error) {
	if len(args) != len(e.Args) {
		return nil, fmt.Errorf("%s: want %d args, got %d", e.Name, len(e.Args), len(args))
	}
	for i, want := range e.Args {
		if args[i] == nil || args[i].Kind() != want {
			return nil, fmt.Errorf("%s: arg %d: want %s, got %s", e.Name, i, want, kindOf(args[i]))
		}
	}
	return e.handler(db, args)
}

func kindOf(v message.Value) string {
	if v == nil {
		return "nil"
	}
	return v.Kind().String()
}

// Lookup finds an entry by exact name.
func Lookup(name string) (*Entry, bool) {
	e, ok := index[name]
	return e, ok
}

// Names returns every operation name in the catalog, in table order.
func Names() []string {
	names := make([]string, len(table))
	for i, e := range table {
		names[i] = e.Name
	}
	return names
}

// Dispatch looks up and invokes an operation in one step. Unknown names
// return an error wrapping ErrUnknownOperation.
func Dispatch(db store.Database, op string, args message.List) (message.Value, error) {
	e, ok := Lookup(op)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, op)
	}
	return e.Invoke(db, args)
}

var index = make(map[string]*Entry, len(table))

func init() {
	for _, e := range table {
		index[e.Name] = e
	}
}

var table = []*Entry{
	{
		Name: "ALLPKGS", Result: message.KindSet,
		handler: func(db store.Database, _ message.List) (message.Value, error) {
			return valueOrErr(db.GetAllPackages())
		},
	},
	{
		Name: "ALLVERS", Result: message.KindSet,
		handler: func(db store.Database, _ message.List) (message.Value, error) {
			return valueOrErr(db.GetAllPackageVersions())
		},
	},
	{
		Name: "NEWPKG", Args: []message.Kind{message.KindString, message.KindString},
		Result: message.KindBool, SideEffect: true,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			added, err := db.AddNewPackage(str(args[0]), str(args[1]))
			if err != nil {
				return nil, err
			}
			return message.Bool(added), nil
		},
	},
	{
		Name: "NEWVER",
		Args: []message.Kind{message.KindString, message.KindString, message.KindTime, message.KindString},
		Result: message.KindBool, SideEffect: true,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			released := time.Time(args[2].(message.Time))
			added, err := db.AddNewPackageVersion(str(args[0]), str(args[1]), released, str(args[3]))
			if err != nil {
				return nil, err
			}
			return message.Bool(added), nil
		},
	},
	{
		Name: "SKIPPKG", Args: []message.Kind{message.KindString, message.KindString},
		Result: message.KindNull, SideEffect: true,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			return unitOrErr(db.SkipPackage(str(args[0]), str(args[1])))
		},
	},
	{
		Name: "SKIPVER",
		Args: []message.Kind{message.KindString, message.KindString, message.KindString},
		Result: message.KindNull, SideEffect: true,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			return unitOrErr(db.SkipPackageVersion(str(args[0]), str(args[1]), str(args[2])))
		},
	},
	{
		Name: "LOGDOWNLOAD", Args: []message.Kind{message.KindDownload},
		Result: message.KindNull, SideEffect: true,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			return unitOrErr(db.LogDownload(args[0].(message.Download)))
		},
	},
	{
		Name: "LOGBUILD", Args: []message.Kind{message.KindBuild},
		Result: message.KindInt, SideEffect: true,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			id, err := db.LogBuild(args[0].(message.BuildResult))
			if err != nil {
				return nil, err
			}
			return message.Int(id), nil
		},
	},
	{
		Name: "DELBUILD", Args: []message.Kind{message.KindString, message.KindString},
		Result: message.KindNull, SideEffect: true,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			return unitOrErr(db.DeleteBuild(str(args[0]), str(args[1])))
		},
	},
	{
		Name: "PKGFILES", Args: []message.Kind{message.KindString}, Result: message.KindMap,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			return valueOrErr(db.GetPackageFiles(str(args[0])))
		},
	},
	{
		Name: "PROJVERS", Args: []message.Kind{message.KindString}, Result: message.KindList,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			return valueOrErr(db.GetProjectVersions(str(args[0])))
		},
	},
	{
		Name: "PROJFILES", Args: []message.Kind{message.KindString}, Result: message.KindList,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			return valueOrErr(db.GetProjectFiles(str(args[0])))
		},
	},
	{
		Name: "VERFILES", Args: []message.Kind{message.KindString, message.KindString},
		Result: message.KindSet,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			return valueOrErr(db.GetVersionFiles(str(args[0]), str(args[1])))
		},
	},
	{
		Name: "GETSKIP", Args: []message.Kind{message.KindString, message.KindString},
		Result: message.KindString,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			reason, err := db.GetVersionSkip(str(args[0]), str(args[1]))
			if err != nil {
				return nil, err
			}
			return message.String(reason), nil
		},
	},
	{
		Name: "PKGEXISTS", Args: []message.Kind{message.KindString, message.KindString},
		Result: message.KindBool,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			exists, err := db.PackageVersionExists(str(args[0]), str(args[1]))
			if err != nil {
				return nil, err
			}
			return message.Bool(exists), nil
		},
	},
	{
		Name: "GETABIS", Result: message.KindSet,
		handler: func(db store.Database, _ message.List) (message.Value, error) {
			return valueOrErr(db.GetBuildABIs())
		},
	},
	{
		Name: "GETPYPI", Result: message.KindInt,
		handler: func(db store.Database, _ message.List) (message.Value, error) {
			serial, err := db.GetPyPISerial()
			if err != nil {
				return nil, err
			}
			return message.Int(serial), nil
		},
	},
	{
		Name: "SETPYPI", Args: []message.Kind{message.KindInt},
		Result: message.KindNull, SideEffect: true,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			return unitOrErr(db.SetPyPISerial(int64(args[0].(message.Int))))
		},
	},
	{
		Name: "GETSTATS", Result: message.KindFields,
		handler: func(db store.Database, _ message.List) (message.Value, error) {
			return valueOrErr(db.GetStatistics())
		},
	},
	{
		Name: "GETDL", Result: message.KindFields,
		handler: func(db store.Database, _ message.List) (message.Value, error) {
			return valueOrErr(db.GetDownloadsRecent())
		},
	},
	{
		Name: "FILEDEPS", Args: []message.Kind{message.KindString}, Result: message.KindMap,
		handler: func(db store.Database, args message.List) (message.Value, error) {
			return valueOrErr(db.GetFileDependencies(str(args[0])))
		},
	},
}

func str(v message.Value) string {
	return string(v.(message.String))
}

// valueOrErr adapts the (concrete value, error) returns of Database methods
// to the Handler signature without hiding a typed nil inside the interface.
func valueOrErr[T message.Value](v T, err error) (message.Value, error) {
	if err != nil {
		return nil, err
	}
	return v, nil
}

func unitOrErr(err error) (message.Value, error) {
	if err != nil {
		return nil, err
	}
	return message.Null{}, nil
}
