package fixtures

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/stationcheck/stationcheck/internal/station"
)

// CSVSource reads station ids from the first column of a CSV file. The first
// row is a header and is skipped. Blank rows are ignored.
type CSVSource struct {
	Path string
}

// StationIDs reads the file on every call.
func (s CSVSource) StationIDs(context.Context) ([]station.StationID, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open fixtures: %w", err)
	}
	defer f.Close()

	ids, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("read fixtures %s: %w", s.Path, err)
	}
	return ids, nil
}

// ReadCSV parses station ids from r.
func ReadCSV(r io.Reader) ([]station.StationID, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	if _, err := reader.Read(); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrNoStations
		}
		return nil, err
	}

	var ids []station.StationID
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		field := strings.TrimSpace(record[0])
		if field == "" {
			continue
		}
		n, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d: station id %q: %w", line, field, err)
		}
		ids = append(ids, station.StationID(n))
	}

	if len(ids) == 0 {
		return nil, ErrNoStations
	}
	return ids, nil
}
