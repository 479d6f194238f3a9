package station_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stationcheck/stationcheck/internal/station"
)

func TestCommandKind_Tokens(t *testing.T) {
	assert.Equal(t, "getVersion", station.GetVersion.Token())
	assert.Equal(t, "getInterval", station.GetInterval.Token())
	assert.Equal(t, "setValues", station.SetValues.Token())
	assert.Equal(t, "", station.CommandKind(0).Token())
	assert.False(t, station.CommandKind(0).Valid())
	assert.Equal(t, "CommandKind(9)", station.CommandKind(9).String())
}

func TestParseCommandKind(t *testing.T) {
	for _, k := range station.Kinds() {
		got, ok := station.ParseCommandKind(k.Token())
		assert.True(t, ok)
		assert.Equal(t, k, got)
	}

	for _, token := range []string{"", " ", "getversion", " getVersion", "random_non_existing_command"} {
		_, ok := station.ParseCommandKind(token)
		assert.False(t, ok, "token %q", token)
	}
}

func TestStationID_String(t *testing.T) {
	assert.Equal(t, "-1", station.StationID(-1).String())
	assert.Equal(t, "0", station.StationID(0).String())
	assert.Equal(t, "42", station.StationID(42).String())
}

func TestParseSetResult(t *testing.T) {
	r, err := station.ParseSetResult("OK")
	assert.NoError(t, err)
	assert.Equal(t, station.SetResultOK, r)

	r, err = station.ParseSetResult("FAILED")
	assert.NoError(t, err)
	assert.Equal(t, station.SetResultFailed, r)

	for _, s := range []string{"", "ok", "UNKNOWN", "FAILED "} {
		_, err := station.ParseSetResult(s)
		assert.Error(t, err, "token %q", s)
	}
}

func TestResponse_Command(t *testing.T) {
	assert.Equal(t, station.GetVersion, station.VersionResponse{}.Command())
	assert.Equal(t, station.GetInterval, station.IntervalResponse{}.Command())
	assert.Equal(t, station.SetValues, station.SetValuesResponse{}.Command())

	ok := station.SetResultOK
	failed := station.SetResultFailed
	assert.True(t, station.SetValuesResponse{Result: &ok}.Succeeded())
	assert.False(t, station.SetValuesResponse{Result: &failed}.Succeeded())
	assert.False(t, station.SetValuesResponse{}.Succeeded())
}
