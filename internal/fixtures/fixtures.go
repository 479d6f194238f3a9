// Package fixtures supplies the station ids a contract run targets.
package fixtures

import (
	"context"
	"errors"

	"github.com/stationcheck/stationcheck/internal/station"
)

// ErrNoStations is returned when a source yields no station ids.
var ErrNoStations = errors.New("fixture source returned no stations")

// Source lists stations known to exist.
type Source interface {
	StationIDs(ctx context.Context) ([]station.StationID, error)
}

// StaticSource is a literal list of station ids.
type StaticSource []station.StationID

// StationIDs returns a copy of the list.
func (s StaticSource) StationIDs(context.Context) ([]station.StationID, error) {
	if len(s) == 0 {
		return nil, ErrNoStations
	}
	return append([]station.StationID(nil), s...), nil
}
