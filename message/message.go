package message

// Reply status values. These travel in the operation slot of a reply frame.
const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Request is one inbound operation as seen by a worker: the broker-assigned
// routing address, the operation name, and the decoded argument sequence.
// Addr is opaque; it is echoed back on the reply byte-for-byte and never
// inspected.
type Request struct {
	Addr []byte
	Op   string
	Args List
}

// Reply is the single response produced for a Request. On StatusOK the
// payload is the operation's result (Null for side-effect-only operations);
// on StatusError it is a String describing the failure.
type Reply struct {
	Addr    []byte
	Status  string
	Payload Value
}

// OKReply builds a success reply carrying the given payload.
func OKReply(addr []byte, payload Value) *Reply {
	if payload == nil {
		payload = Null{}
	}
	return &Reply{Addr: addr, Status: StatusOK, Payload: payload}
}

// ErrorReply builds a failure reply. Only the description string crosses the
// wire; the original error's type is not preserved.
func ErrorReply(addr []byte, desc string) *Reply {
	return &Reply{Addr: addr, Status: StatusError, Payload: String(desc)}
}
