package station

import (
	"encoding/json"
	"fmt"
)

// wireRequest is the JSON body of a typed request.
type wireRequest struct {
	Command string `json:"command"`
	Payload *int32 `json:"payload,omitempty"`
}

// EncodeRequest produces the JSON body for a typed request. The payload key
// is present only when the payload was explicitly set.
func EncodeRequest(r Request) ([]byte, error) {
	if !r.Command.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, r.Command)
	}

	body, err := json.Marshal(wireRequest{
		Command: r.Command.Token(),
		Payload: r.payload,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	return body, nil
}

// EncodeMalformed produces the JSON body for a free-form request. A nil
// mapping encodes as an empty object.
func EncodeMalformed(m MalformedRequest) ([]byte, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	body, err := json.Marshal(map[string]any(m))
	if err != nil {
		return nil, fmt.Errorf("marshaling malformed request: %w", err)
	}
	return body, nil
}
