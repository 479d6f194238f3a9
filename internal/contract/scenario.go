// Package contract holds the scenario matrix that pins down the response
// contract a station service must honor, and a runner that executes it.
package contract

import (
	"context"
	"errors"
	"fmt"

	"github.com/stationcheck/stationcheck/internal/station"
	"github.com/stationcheck/stationcheck/internal/station/stationapi"
)

// ErrExpectation is wrapped by every scenario failure that is not a
// client-side error.
var ErrExpectation = errors.New("expectation not met")

// Severity ranks the impact of a failing scenario.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityNormal   Severity = "normal"
	SeverityMinor    Severity = "minor"
	SeverityTrivial  Severity = "trivial"
)

// Target selects which station ids a scenario runs against.
type Target int

const (
	// TargetExisting runs once per station known to the fleet.
	TargetExisting Target = iota
	// TargetNonExisting runs once per id known not to exist.
	TargetNonExisting
	// TargetNone runs once without a station; used for manual scenarios.
	TargetNone
)

func (t Target) String() string {
	switch t {
	case TargetExisting:
		return "existing"
	case TargetNonExisting:
		return "non_existing"
	default:
		return "none"
	}
}

// Client is the subset of the station client scenarios use.
type Client interface {
	Dispatch(ctx context.Context, id station.StationID, req station.Request) (station.Response, error)
	DispatchRaw(ctx context.Context, id station.StationID, req station.MalformedRequest) (*stationapi.RawResponse, error)
	DispatchMalformedTyped(ctx context.Context, id station.StationID, kind station.CommandKind, req station.MalformedRequest) (station.Response, error)
	GetVersion(ctx context.Context, id station.StationID) (station.VersionResponse, error)
	GetInterval(ctx context.Context, id station.StationID) (station.IntervalResponse, error)
	SetValues(ctx context.Context, id station.StationID, payload int32) (station.SetValuesResponse, error)
}

var _ Client = (*stationapi.Client)(nil)

// RunFunc executes one scenario against one station. A nil error means the
// station honored the contract.
type RunFunc func(ctx context.Context, c Client, id station.StationID) error

// Scenario is one entry of the contract matrix.
type Scenario struct {
	Name     string
	Features []station.CommandKind
	Severity Severity
	Target   Target

	// Assumption marks scenarios that rely on the service tolerating
	// unknown request fields.
	Assumption bool

	// Manual scenarios are listed with their steps but never executed.
	Manual bool
	Steps  []string

	Run RunFunc
}

// FeatureTokens returns the wire tokens of the scenario features.
func (s Scenario) FeatureTokens() []string {
	tokens := make([]string, 0, len(s.Features))
	for _, f := range s.Features {
		tokens = append(tokens, f.Token())
	}
	return tokens
}

func expectf(ok bool, format string, args ...any) error {
	if ok {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrExpectation, fmt.Sprintf(format, args...))
}
