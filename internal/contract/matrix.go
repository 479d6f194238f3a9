package contract

import (
	"context"
	"math"
	"net/http"
	"strings"

	"github.com/stationcheck/stationcheck/internal/station"
)

const unknownField = "random_frontend_field"

// Matrix returns every contract scenario in execution order. Scenarios that
// mutate a station are ordered so later reads see a known interval.
func Matrix() []Scenario {
	var m []Scenario
	m = append(m, positiveScenarios()...)
	m = append(m, nonExistingScenarios()...)
	m = append(m, payloadFailureScenarios()...)
	m = append(m, commandRejectionScenarios()...)
	m = append(m, forwardCompatibilityScenarios()...)
	m = append(m, manualScenarios()...)
	return m
}

func positiveScenarios() []Scenario {
	return []Scenario{
		{
			Name:     "version is non-blank for an existing station",
			Features: []station.CommandKind{station.GetVersion},
			Severity: SeverityCritical,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				resp, err := c.GetVersion(ctx, id)
				if err != nil {
					return err
				}
				return expectf(strings.TrimSpace(resp.Result) != "", "version %q is blank", resp.Result)
			},
		},
		{
			Name:     "interval is an integer for an existing station",
			Features: []station.CommandKind{station.GetInterval},
			Severity: SeverityCritical,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				_, err := c.GetInterval(ctx, id)
				return err
			},
		},
		setOK("set accepts the minimum interval", 1, SeverityCritical),
		setOK("set accepts the maximum interval", math.MaxInt32, SeverityNormal),
		{
			Name:     "interval reads back the value just set",
			Features: []station.CommandKind{station.SetValues, station.GetInterval},
			Severity: SeverityCritical,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				const want = 1
				if _, err := c.SetValues(ctx, id, want); err != nil {
					return err
				}
				resp, err := c.GetInterval(ctx, id)
				if err != nil {
					return err
				}
				return expectf(resp.Result == want, "interval %d, want %d", resp.Result, want)
			},
		},
		{
			Name:     "version tolerates an optional payload",
			Features: []station.CommandKind{station.GetVersion},
			Severity: SeverityCritical,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				resp, err := c.Dispatch(ctx, id, station.NewRequest(station.GetVersion).WithPayload(1))
				if err != nil {
					return err
				}
				v := resp.(station.VersionResponse)
				return expectf(strings.TrimSpace(v.Result) != "", "version %q is blank", v.Result)
			},
		},
		{
			Name:     "interval tolerates an optional payload",
			Features: []station.CommandKind{station.GetInterval},
			Severity: SeverityCritical,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				_, err := c.Dispatch(ctx, id, station.NewRequest(station.GetInterval).WithPayload(1))
				return err
			},
		},
	}
}

func setOK(name string, payload int32, severity Severity) Scenario {
	return Scenario{
		Name:     name,
		Features: []station.CommandKind{station.SetValues},
		Severity: severity,
		Run: func(ctx context.Context, c Client, id station.StationID) error {
			resp, err := c.SetValues(ctx, id, payload)
			if err != nil {
				return err
			}
			return expectSetResult(resp, station.SetResultOK)
		},
	}
}

func nonExistingScenarios() []Scenario {
	return []Scenario{
		{
			Name:     "version is empty for a non-existing station",
			Features: []station.CommandKind{station.GetVersion},
			Severity: SeverityMinor,
			Target:   TargetNonExisting,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				resp, err := c.GetVersion(ctx, id)
				if err != nil {
					return err
				}
				return expectf(resp.Result == "", "version %q, want empty", resp.Result)
			},
		},
		{
			Name:     "interval is zero for a non-existing station",
			Features: []station.CommandKind{station.GetInterval},
			Severity: SeverityMinor,
			Target:   TargetNonExisting,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				resp, err := c.GetInterval(ctx, id)
				if err != nil {
					return err
				}
				return expectf(resp.Result == 0, "interval %d, want 0", resp.Result)
			},
		},
		{
			Name:     "set result is null for a non-existing station",
			Features: []station.CommandKind{station.SetValues},
			Severity: SeverityMinor,
			Target:   TargetNonExisting,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				resp, err := c.SetValues(ctx, id, 1)
				if err != nil {
					return err
				}
				if resp.Result != nil {
					return expectf(false, "set result %s, want null", *resp.Result)
				}
				return nil
			},
		},
	}
}

func payloadFailureScenarios() []Scenario {
	scenarios := []Scenario{{
		Name:     "set fails for a zero payload",
		Features: []station.CommandKind{station.SetValues},
		Severity: SeverityMinor,
		Run: func(ctx context.Context, c Client, id station.StationID) error {
			resp, err := c.SetValues(ctx, id, 0)
			if err != nil {
				return err
			}
			return expectSetResult(resp, station.SetResultFailed)
		},
	}}

	bad := []struct {
		name string
		req  station.MalformedRequest
	}{
		{"set fails for a negative payload", station.MalformedRequest{"command": station.TokenSetValues, "payload": math.MinInt32}},
		{"set fails for a float payload", station.MalformedRequest{"command": station.TokenSetValues, "payload": 1.5}},
		{"set fails for a string payload", station.MalformedRequest{"command": station.TokenSetValues, "payload": "1"}},
		{"set fails for a boolean payload", station.MalformedRequest{"command": station.TokenSetValues, "payload": true}},
		{"set fails without a payload", station.MalformedRequest{"command": station.TokenSetValues}},
	}
	for _, b := range bad {
		req := b.req
		scenarios = append(scenarios, Scenario{
			Name:     b.name,
			Features: []station.CommandKind{station.SetValues},
			Severity: SeverityMinor,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				resp, err := c.DispatchMalformedTyped(ctx, id, station.SetValues, req)
				if err != nil {
					return err
				}
				return expectSetResult(resp.(station.SetValuesResponse), station.SetResultFailed)
			},
		})
	}
	return scenarios
}

func commandRejectionScenarios() []Scenario {
	bad := []struct {
		name string
		req  station.MalformedRequest
	}{
		{"an unknown command", station.MalformedRequest{"command": "random_non_existing_command", "payload": 1}},
		{"an integer command", station.MalformedRequest{"command": 0, "payload": 1}},
		{"a float command", station.MalformedRequest{"command": 1.5, "payload": 1}},
		{"a boolean command", station.MalformedRequest{"command": false, "payload": 1}},
		{"an empty command", station.MalformedRequest{"command": "", "payload": 1}},
		{"a blank command", station.MalformedRequest{"command": " ", "payload": 1}},
		{"a missing command", station.MalformedRequest{"payload": 1}},
	}

	scenarios := make([]Scenario, 0, len(bad)+1)
	for _, b := range bad {
		scenarios = append(scenarios, rejected("request with "+b.name+" is rejected", SeverityMinor, b.req,
			station.SetValues))
	}
	scenarios = append(scenarios, rejected("empty request body is rejected", SeverityTrivial, nil,
		station.SetValues, station.GetInterval, station.GetVersion))
	return scenarios
}

func rejected(name string, severity Severity, req station.MalformedRequest, features ...station.CommandKind) Scenario {
	return Scenario{
		Name:     name,
		Features: features,
		Severity: severity,
		Run: func(ctx context.Context, c Client, id station.StationID) error {
			raw, err := c.DispatchRaw(ctx, id, req)
			if err != nil {
				return err
			}
			return expectf(raw.StatusCode == http.StatusBadRequest, "status %d, want %d", raw.StatusCode, http.StatusBadRequest)
		},
	}
}

func forwardCompatibilityScenarios() []Scenario {
	return []Scenario{
		{
			Name:       "set accepts an unknown request field",
			Features:   []station.CommandKind{station.SetValues},
			Severity:   SeverityMinor,
			Assumption: true,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				resp, err := c.DispatchMalformedTyped(ctx, id, station.SetValues, station.MalformedRequest{
					"command":    station.TokenSetValues,
					"payload":    1,
					unknownField: "random_value",
				})
				if err != nil {
					return err
				}
				return expectSetResult(resp.(station.SetValuesResponse), station.SetResultOK)
			},
		},
		{
			Name:       "version accepts an unknown request field",
			Features:   []station.CommandKind{station.GetVersion},
			Severity:   SeverityMinor,
			Assumption: true,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				resp, err := c.DispatchMalformedTyped(ctx, id, station.GetVersion, station.MalformedRequest{
					"command":    station.TokenGetVersion,
					unknownField: "random_value",
				})
				if err != nil {
					return err
				}
				v := resp.(station.VersionResponse)
				return expectf(v.Result != "", "version is empty")
			},
		},
		{
			Name:       "interval accepts an unknown request field",
			Features:   []station.CommandKind{station.GetInterval},
			Severity:   SeverityMinor,
			Assumption: true,
			Run: func(ctx context.Context, c Client, id station.StationID) error {
				_, err := c.DispatchMalformedTyped(ctx, id, station.GetInterval, station.MalformedRequest{
					"command":    station.TokenGetInterval,
					unknownField: "random_value",
				})
				return err
			},
		},
	}
}

func manualScenarios() []Scenario {
	return []Scenario{{
		Name:     "disallowed HTTP methods get a client error",
		Features: []station.CommandKind{station.GetInterval},
		Severity: SeverityMinor,
		Target:   TargetNone,
		Manual:   true,
		Steps: []string{
			"Send GET, PUT, PATCH and DELETE requests to {basePath}/{existingStationId}",
			"Expect a 4xx status for each, 405 Method Not Allowed preferred",
		},
	}}
}

func expectSetResult(resp station.SetValuesResponse, want station.SetResult) error {
	if resp.Result == nil {
		return expectf(false, "set result is null, want %s", want)
	}
	return expectf(*resp.Result == want, "set result %s, want %s", *resp.Result, want)
}
