package station

import (
	"errors"
	"fmt"
)

// Sentinel errors for station exchanges.
var (
	// ErrUnknownCommand indicates a request was built with an unsupported command kind.
	ErrUnknownCommand = errors.New("unknown command kind")
	// ErrTransport indicates the request never produced an HTTP response.
	ErrTransport = errors.New("station transport failure")
	// ErrContractViolation indicates a status or content type outside the success envelope.
	ErrContractViolation = errors.New("station contract violation")
	// ErrSchemaViolation indicates a response body that does not match the expected shape.
	ErrSchemaViolation = errors.New("station schema violation")
)

// TransportError is returned when the request could not be completed at the
// connection level (dial, DNS, timeout, open circuit).
type TransportError struct {
	StationID StationID
	Err       error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("station %s: transport: %v", e.StationID, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is matches ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// ContractViolation is returned when a typed response was requested but the
// station answered with an unexpected status code or content type.
// The raw reply is attached for diagnostics.
type ContractViolation struct {
	StationID   StationID
	StatusCode  int
	ContentType string
	Body        []byte
}

func (e *ContractViolation) Error() string {
	return fmt.Sprintf("station %s: unexpected response: status %d, content type %q",
		e.StationID, e.StatusCode, e.ContentType)
}

// Is matches ErrContractViolation.
func (e *ContractViolation) Is(target error) bool {
	return target == ErrContractViolation
}

// SchemaViolation is returned when a response body parsed but did not match
// the shape expected for the command that was sent.
type SchemaViolation struct {
	Command CommandKind
	Field   string // empty when the body is not a JSON object
	Reason  string
	Err     error
}

func (e *SchemaViolation) Error() string {
	msg := fmt.Sprintf("%s response: ", e.Command)
	if e.Field != "" {
		msg += "field " + e.Field + ": "
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SchemaViolation) Unwrap() error {
	return e.Err
}

// Is matches ErrSchemaViolation.
func (e *SchemaViolation) Is(target error) bool {
	return target == ErrSchemaViolation
}
