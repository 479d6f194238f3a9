package simulator

import (
	"encoding/json"
	"errors"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/stationcheck/stationcheck/internal/station"
)

const maxBodyBytes = 64 << 10

var (
	errMissingCommand = errors.New("command is required")
	errCommandType    = errors.New("command must be a string")
	errBlankCommand   = errors.New("command must not be blank")
	errUnknownCommand = errors.New("unknown command")
	errUnknownField   = errors.New("unexpected field")
	errBody           = errors.New("body must be a JSON object")
)

// Handler serves station commands against a Fleet.
type Handler struct {
	fleet               *Fleet
	rejectUnknownFields bool
	logger              zerolog.Logger
}

// NewHandler creates a command handler.
func NewHandler(fleet *Fleet, rejectUnknownFields bool, logger zerolog.Logger) *Handler {
	return &Handler{
		fleet:               fleet,
		rejectUnknownFields: rejectUnknownFields,
		logger:              logger,
	}
}

type commandResponse struct {
	Result any `json:"result"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// ServeCommand handles POST {basePath}/{stationId}.
func (h *Handler) ServeCommand(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "stationId"), 10, 64)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "station id must be an integer"})
		return
	}
	stationID := station.StationID(id)

	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	kind, fields, err := h.parseCommand(data)
	if err != nil {
		h.logger.Debug().
			Err(err).
			Int64("station_id", id).
			Msg("rejected command")
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	var result any
	switch kind {
	case station.GetVersion:
		result = h.fleet.Version(stationID)
	case station.GetInterval:
		result = h.fleet.Interval(stationID)
	case station.SetValues:
		result = h.setValues(stationID, fields["payload"])
	}

	writeJSON(w, http.StatusOK, commandResponse{Result: result})
}

// parseCommand validates the command field. Payload problems are never a
// parse error.
func (h *Handler) parseCommand(data []byte) (station.CommandKind, map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil || fields == nil {
		return 0, nil, errBody
	}

	raw, ok := fields["command"]
	if !ok {
		return 0, nil, errMissingCommand
	}
	var token string
	if err := json.Unmarshal(raw, &token); err != nil || isNull(raw) {
		return 0, nil, errCommandType
	}
	if strings.TrimSpace(token) == "" {
		return 0, nil, errBlankCommand
	}
	kind, ok := station.ParseCommandKind(token)
	if !ok {
		return 0, nil, errUnknownCommand
	}

	if h.rejectUnknownFields {
		for name := range fields {
			if name != "command" && name != "payload" {
				return 0, nil, errUnknownField
			}
		}
	}
	return kind, fields, nil
}

// setValues returns nil for a missing station, FAILED for a payload that is
// not an integer in [1, MaxInt32], and OK otherwise.
func (h *Handler) setValues(id station.StationID, raw json.RawMessage) any {
	if !h.fleet.Exists(id) {
		return nil
	}
	v, ok := validPayload(raw)
	if !ok || !h.fleet.SetInterval(id, v) {
		return station.SetResultFailed
	}
	return station.SetResultOK
}

func validPayload(raw json.RawMessage) (int64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	v, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil || v < 1 || v > math.MaxInt32 {
		return 0, false
	}
	return v, true
}

func isNull(raw json.RawMessage) bool {
	return string(raw) == "null"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
