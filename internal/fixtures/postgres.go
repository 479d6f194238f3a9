package fixtures

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stationcheck/stationcheck/internal/station"
)

// DefaultStationsQuery lists active stations from the fleet inventory.
const DefaultStationsQuery = `
	SELECT station_id
	FROM stations
	WHERE active
	ORDER BY station_id
`

// Querier is satisfied by *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PostgresSource reads station ids from the fleet inventory database.
type PostgresSource struct {
	db    Querier
	query string
}

// NewPostgresSource creates a source. An empty query uses DefaultStationsQuery.
func NewPostgresSource(db Querier, query string) *PostgresSource {
	if query == "" {
		query = DefaultStationsQuery
	}
	return &PostgresSource{db: db, query: query}
}

// StationIDs runs the inventory query.
func (s *PostgresSource) StationIDs(ctx context.Context) ([]station.StationID, error) {
	rows, err := s.db.Query(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("query stations: %w", err)
	}

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (station.StationID, error) {
		var id int64
		err := row.Scan(&id)
		return station.StationID(id), err
	})
	if err != nil {
		return nil, fmt.Errorf("scan stations: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNoStations
	}
	return ids, nil
}
