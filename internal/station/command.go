// Package station provides the command model, wire encoding and response
// decoding for the station command protocol.
package station

import "strconv"

// StationID identifies a station. Any value, including zero and negative
// ids, is a syntactically valid request target.
type StationID int64

// String returns the decimal form used in request paths.
func (id StationID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// CommandKind is one of the commands a station understands.
// The zero value is not a valid command.
type CommandKind uint8

const (
	// GetVersion reads the station firmware version.
	GetVersion CommandKind = iota + 1
	// GetInterval reads the currently configured interval.
	GetInterval
	// SetValues writes a new interval.
	SetValues
)

// Wire tokens for each command kind.
const (
	TokenGetVersion  = "getVersion"
	TokenGetInterval = "getInterval"
	TokenSetValues   = "setValues"
)

// Kinds returns every supported command kind in declaration order.
func Kinds() []CommandKind {
	return []CommandKind{GetVersion, GetInterval, SetValues}
}

// Token returns the wire token for the command kind, or "" for an
// unknown kind.
func (k CommandKind) Token() string {
	switch k {
	case GetVersion:
		return TokenGetVersion
	case GetInterval:
		return TokenGetInterval
	case SetValues:
		return TokenSetValues
	default:
		return ""
	}
}

// Valid reports whether k is one of the supported command kinds.
func (k CommandKind) Valid() bool {
	return k.Token() != ""
}

func (k CommandKind) String() string {
	if t := k.Token(); t != "" {
		return t
	}
	return "CommandKind(" + strconv.Itoa(int(k)) + ")"
}

// ParseCommandKind maps a wire token back to its command kind.
// Matching is exact: tokens are case-sensitive and never trimmed.
func ParseCommandKind(token string) (CommandKind, bool) {
	for _, k := range Kinds() {
		if k.Token() == token {
			return k, true
		}
	}
	return 0, false
}
