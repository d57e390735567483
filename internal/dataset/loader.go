package dataset

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"rainpoint/internal/types"
)

// fieldSeparator is the fixed delimiter of dataset sources.
const fieldSeparator = ';'

// ColumnSpec names the required columns of a dataset source: the coordinate
// columns plus one column per tracked metric.
type ColumnSpec struct {
	Lat     string
	Lon     string
	Metrics map[types.MetricKind]string
}

// Loader reads a dataset source, cleans locale-formatted numeric fields and
// produces an immutable Dataset containing only fully-populated records.
type Loader struct {
	source  Source
	columns ColumnSpec
	logger  *slog.Logger
}

// NewLoader creates a Loader reading from the given source with the given
// column mapping.
func NewLoader(source Source, columns ColumnSpec, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		source:  source,
		columns: columns,
		logger:  logger,
	}
}

// Fingerprint returns the current content fingerprint of the identified
// source. Exposed for the cache's staleness check.
func (l *Loader) Fingerprint(ctx context.Context, sourceID string) (string, error) {
	return l.source.Fingerprint(ctx, sourceID)
}

// Load reads, cleans and parses one dataset source. Load is all-or-nothing:
// either the whole source parses as delimited text, or an AppError with
// code load_source_not_found / load_source_malformed is returned. Rows with
// unparseable required cells are dropped, never fatal; a source reduced to
// zero valid rows yields a valid empty Dataset.
func (l *Loader) Load(ctx context.Context, horizon, sourceID string) (*types.Dataset, error) {
	fp, err := l.source.Fingerprint(ctx, sourceID)
	if err != nil {
		return nil, err
	}

	body, err := l.source.Open(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	ds, dropped, err := ParseDataset(body, l.columns, horizon, sourceID)
	if err != nil {
		return nil, err
	}
	ds.Fingerprint = fp

	if dropped > 0 {
		l.logger.Warn("dropped incomplete station records",
			"horizon", horizon,
			"source", sourceID,
			"dropped", dropped,
			"kept", len(ds.Records),
		)
	}
	l.logger.Info("dataset loaded",
		"horizon", horizon,
		"source", sourceID,
		"records", len(ds.Records),
		"fingerprint", fp,
	)

	return ds, nil
}

// ParseDataset parses semicolon-delimited text into a Dataset. It returns
// the dataset, the number of rows dropped for missing/unparseable required
// cells, and an error only when the source as a whole is malformed (missing
// header, missing required columns, ragged rows).
func ParseDataset(r io.Reader, columns ColumnSpec, horizon, sourceID string) (*types.Dataset, int, error) {
	cr := csv.NewReader(r)
	cr.Comma = fieldSeparator

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, 0, types.NewAppError(
				types.ErrCodeLoadMalformed,
				fmt.Sprintf("dataset source %s is empty: no header row", sourceID),
				err,
			)
		}
		return nil, 0, types.NewAppError(
			types.ErrCodeLoadMalformed,
			fmt.Sprintf("dataset source %s has an unreadable header row", sourceID),
			err,
		)
	}

	idx, err := resolveColumns(header, columns, sourceID)
	if err != nil {
		return nil, 0, err
	}

	ds := &types.Dataset{
		Horizon:  horizon,
		SourceID: sourceID,
		Records:  []types.StationRecord{},
	}

	dropped := 0
	for {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Ragged rows mean the separator contract is broken; the whole
			// load fails rather than silently skipping structure errors.
			return nil, 0, types.NewAppError(
				types.ErrCodeLoadMalformed,
				fmt.Sprintf("dataset source %s is not valid %c-delimited text", sourceID, fieldSeparator),
				err,
			)
		}

		rec, ok := buildRecord(row, idx)
		if !ok {
			dropped++
			continue
		}
		ds.Records = append(ds.Records, rec)
	}

	return ds, dropped, nil
}

// columnIndex holds the resolved header positions of the required columns.
type columnIndex struct {
	lat     int
	lon     int
	metrics map[types.MetricKind]int
}

// resolveColumns maps required column names to header positions. Header
// cells are matched after trimming surrounding whitespace.
func resolveColumns(header []string, columns ColumnSpec, sourceID string) (columnIndex, error) {
	pos := make(map[string]int, len(header))
	for i, name := range header {
		pos[strings.TrimSpace(name)] = i
	}

	idx := columnIndex{lat: -1, lon: -1, metrics: make(map[types.MetricKind]int, len(columns.Metrics))}
	var missing []string

	if i, ok := pos[columns.Lat]; ok {
		idx.lat = i
	} else {
		missing = append(missing, columns.Lat)
	}
	if i, ok := pos[columns.Lon]; ok {
		idx.lon = i
	} else {
		missing = append(missing, columns.Lon)
	}
	for kind, name := range columns.Metrics {
		if i, ok := pos[name]; ok {
			idx.metrics[kind] = i
		} else {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return columnIndex{}, types.NewAppErrorWithDetails(
			types.ErrCodeLoadMalformed,
			fmt.Sprintf("dataset source %s is missing required columns", sourceID),
			nil,
			map[string]any{"missing_columns": missing},
		)
	}

	return idx, nil
}

// buildRecord coerces one raw row into a StationRecord. It returns ok=false
// when any required cell is missing or unparseable; coercion never fails
// the load.
func buildRecord(row []string, idx columnIndex) (types.StationRecord, bool) {
	lat, ok := parseLocaleNumber(row[idx.lat])
	if !ok {
		return types.StationRecord{}, false
	}
	lon, ok := parseLocaleNumber(row[idx.lon])
	if !ok {
		return types.StationRecord{}, false
	}

	metrics := make(map[types.MetricKind]float64, len(idx.metrics))
	for kind, col := range idx.metrics {
		v, ok := parseLocaleNumber(row[col])
		if !ok {
			return types.StationRecord{}, false
		}
		metrics[kind] = v
	}

	return types.StationRecord{
		Latitude:  lat,
		Longitude: lon,
		Metrics:   metrics,
	}, true
}

// parseLocaleNumber coerces a locale-formatted numeric cell to a float:
// surrounding whitespace and stray apostrophes/quotes are stripped, the
// decimal comma becomes a decimal point, and the result must be a finite
// number. Failure marks the cell missing rather than raising an error.
func parseLocaleNumber(cell string) (float64, bool) {
	s := strings.Trim(cell, " \t'\"")
	if s == "" {
		return 0, false
	}
	s = strings.ReplaceAll(s, ",", ".")

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
