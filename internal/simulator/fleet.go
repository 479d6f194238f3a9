// Package simulator implements the station command API in memory. It is the
// reference behavior the contract matrix is checked against.
package simulator

import (
	"sort"
	"sync"

	"github.com/stationcheck/stationcheck/internal/station"
)

// DefaultVersion is reported by stations created without a version.
const DefaultVersion = "1.0.0"

// Station is the seed state of a simulated station.
type Station struct {
	ID       station.StationID
	Version  string
	Interval int64
}

// Fleet holds the state of every simulated station. It is safe for
// concurrent use.
type Fleet struct {
	mu       sync.RWMutex
	stations map[station.StationID]*Station
}

// NewFleet creates a fleet seeded with the given stations.
func NewFleet(stations ...Station) *Fleet {
	f := &Fleet{stations: make(map[station.StationID]*Station, len(stations))}
	for _, s := range stations {
		f.Add(s)
	}
	return f
}

// NewFleetFromIDs creates a fleet of stations with default state.
func NewFleetFromIDs(ids []station.StationID) *Fleet {
	f := NewFleet()
	for _, id := range ids {
		f.Add(Station{ID: id})
	}
	return f
}

// Add inserts or replaces a station.
func (f *Fleet) Add(s Station) {
	if s.Version == "" {
		s.Version = DefaultVersion
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stations[s.ID] = &s
}

// Exists reports whether the station is part of the fleet.
func (f *Fleet) Exists(id station.StationID) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.stations[id]
	return ok
}

// Version returns the station version, or "" if the station does not exist.
func (f *Fleet) Version(id station.StationID) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.stations[id]; ok {
		return s.Version
	}
	return ""
}

// Interval returns the station interval, or 0 if the station does not exist.
func (f *Fleet) Interval(id station.StationID) int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if s, ok := f.stations[id]; ok {
		return s.Interval
	}
	return 0
}

// SetInterval updates the interval and reports whether the station exists.
func (f *Fleet) SetInterval(id station.StationID, v int64) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.stations[id]
	if !ok {
		return false
	}
	s.Interval = v
	return true
}

// IDs returns the ids of all stations in ascending order.
func (f *Fleet) IDs() []station.StationID {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]station.StationID, 0, len(f.stations))
	for id := range f.stations {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
