package station

import "fmt"

// SetResult is the outcome reported by a station for a setValues command.
type SetResult string

const (
	// SetResultOK means the station accepted the new values.
	SetResultOK SetResult = "OK"
	// SetResultFailed means the station rejected the payload.
	SetResultFailed SetResult = "FAILED"
)

// ParseSetResult validates a wire token. Only "OK" and "FAILED" are accepted.
func ParseSetResult(s string) (SetResult, error) {
	switch SetResult(s) {
	case SetResultOK, SetResultFailed:
		return SetResult(s), nil
	default:
		return "", fmt.Errorf("unknown set result %q", s)
	}
}

// Request is a well-typed station command.
// The payload is tracked separately from its value so that an unset payload
// is distinguishable from an explicit zero.
type Request struct {
	Command CommandKind
	payload *int32
}

// NewRequest creates a request for the given command with no payload.
func NewRequest(kind CommandKind) Request {
	return Request{Command: kind}
}

// WithPayload returns a copy of the request with the payload set.
func (r Request) WithPayload(p int32) Request {
	r.payload = &p
	return r
}

// Payload returns the payload and whether it was explicitly set.
func (r Request) Payload() (int32, bool) {
	if r.payload == nil {
		return 0, false
	}
	return *r.payload, true
}

// MalformedRequest is a free-form request body used for negative testing.
// It is sent exactly as given, without validation or coercion.
type MalformedRequest map[string]any

// Response is the decoded reply to a typed request. The concrete type is
// determined by the command that was sent.
type Response interface {
	Command() CommandKind
	isResponse()
}

// VersionResponse is the reply to getVersion. Result is empty for a
// station that does not exist.
type VersionResponse struct {
	Result string `json:"result"`
}

// IntervalResponse is the reply to getInterval. A zero Result means no
// interval is set or the station does not exist.
type IntervalResponse struct {
	Result int64 `json:"result"`
}

// SetValuesResponse is the reply to setValues. Result is nil when the
// station does not exist.
type SetValuesResponse struct {
	Result *SetResult `json:"result"`
}

func (VersionResponse) Command() CommandKind   { return GetVersion }
func (IntervalResponse) Command() CommandKind  { return GetInterval }
func (SetValuesResponse) Command() CommandKind { return SetValues }

func (VersionResponse) isResponse()   {}
func (IntervalResponse) isResponse()  {}
func (SetValuesResponse) isResponse() {}

// Succeeded reports whether the station returned OK.
func (r SetValuesResponse) Succeeded() bool {
	return r.Result != nil && *r.Result == SetResultOK
}
