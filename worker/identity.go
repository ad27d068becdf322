package worker

import (
	"fmt"
	"sync/atomic"
)

// DefaultBaseName is the base name used when a Config supplies no identity.
const DefaultBaseName = "oracle"

// Identity names one worker instance for registration and diagnostics. It
// plays no part in routing: the broker tracks workers by connection, not by
// name.
type Identity struct {
	BaseName string
	Instance int64
}

func (id Identity) String() string {
	return fmt.Sprintf("%s_%d", id.BaseName, id.Instance)
}

var instanceCounter atomic.Int64

// NextIdentity allocates the next instance number from a process-wide atomic
// counter and binds it to the given base name. Identities are handed to
// workers at construction; a worker never mutates shared naming state after
// that.
func NextIdentity(base string) Identity {
	if base == "" {
		base = DefaultBaseName
	}
	return Identity{BaseName: base, Instance: instanceCounter.Add(1)}
}
