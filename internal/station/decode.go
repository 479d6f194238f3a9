package station

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
)

const resultField = "result"

// Decode maps a response body onto the response type of the given command.
func Decode(kind CommandKind, body []byte) (Response, error) {
	switch kind {
	case GetVersion:
		return DecodeVersion(body)
	case GetInterval:
		return DecodeInterval(body)
	case SetValues:
		return DecodeSetValues(body)
	default:
		return nil, ErrUnknownCommand
	}
}

// DecodeVersion requires "result" to be present and a string. An empty
// string is accepted.
func DecodeVersion(body []byte) (VersionResponse, error) {
	raw, present, err := resultOf(GetVersion, body)
	if err != nil {
		return VersionResponse{}, err
	}
	if !present || isNull(raw) {
		return VersionResponse{}, missing(GetVersion)
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return VersionResponse{}, &SchemaViolation{
			Command: GetVersion,
			Field:   resultField,
			Reason:  "expected string, got " + jsonKind(raw),
		}
	}
	return VersionResponse{Result: s}, nil
}

// DecodeInterval requires "result" to be present and an integral number.
func DecodeInterval(body []byte) (IntervalResponse, error) {
	raw, present, err := resultOf(GetInterval, body)
	if err != nil {
		return IntervalResponse{}, err
	}
	if !present || isNull(raw) {
		return IntervalResponse{}, missing(GetInterval)
	}

	// json.Number also accepts quoted numerals, so the kind is checked first.
	var n json.Number
	if kind := jsonKind(raw); kind != "number" {
		return IntervalResponse{}, &SchemaViolation{
			Command: GetInterval,
			Field:   resultField,
			Reason:  "expected integer, got " + kind,
		}
	}
	if err := json.Unmarshal(raw, &n); err != nil {
		return IntervalResponse{}, &SchemaViolation{
			Command: GetInterval,
			Field:   resultField,
			Reason:  "expected integer, got " + jsonKind(raw),
		}
	}

	v, ok := integral(n)
	if !ok {
		return IntervalResponse{}, &SchemaViolation{
			Command: GetInterval,
			Field:   resultField,
			Reason:  "expected integer, got " + n.String(),
		}
	}
	return IntervalResponse{Result: v}, nil
}

// DecodeSetValues accepts an absent or null "result" (station does not
// exist) or one of the SetResult tokens.
func DecodeSetValues(body []byte) (SetValuesResponse, error) {
	raw, present, err := resultOf(SetValues, body)
	if err != nil {
		return SetValuesResponse{}, err
	}
	if !present || isNull(raw) {
		return SetValuesResponse{}, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return SetValuesResponse{}, &SchemaViolation{
			Command: SetValues,
			Field:   resultField,
			Reason:  "expected OK or FAILED, got " + jsonKind(raw),
		}
	}

	res, err := ParseSetResult(s)
	if err != nil {
		return SetValuesResponse{}, &SchemaViolation{
			Command: SetValues,
			Field:   resultField,
			Reason:  "expected OK or FAILED",
			Err:     err,
		}
	}
	return SetValuesResponse{Result: &res}, nil
}

// resultOf extracts the raw "result" member. Unknown members are ignored.
func resultOf(kind CommandKind, body []byte) (json.RawMessage, bool, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil || obj == nil {
		return nil, false, &SchemaViolation{
			Command: kind,
			Reason:  "body is not a JSON object",
			Err:     err,
		}
	}
	raw, ok := obj[resultField]
	return raw, ok, nil
}

func missing(kind CommandKind) error {
	return &SchemaViolation{Command: kind, Field: resultField, Reason: "missing"}
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// integral parses n as an int64, accepting exponent forms such as 1e3 when
// they denote a whole number.
func integral(n json.Number) (int64, bool) {
	if v, err := strconv.ParseInt(n.String(), 10, 64); err == nil {
		return v, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func jsonKind(raw json.RawMessage) string {
	t := bytes.TrimSpace(raw)
	if len(t) == 0 {
		return "nothing"
	}
	switch t[0] {
	case '"':
		return "string"
	case '{':
		return "object"
	case '[':
		return "array"
	case 't', 'f':
		return "boolean"
	case 'n':
		return "null"
	default:
		return "number"
	}
}
