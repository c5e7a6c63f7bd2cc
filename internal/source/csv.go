package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ThurX360/WIZFUT/internal/market"
)

// CSVOptions parameterise the CSV file source.
type CSVOptions struct {
	Path string
	// Columns maps canonical field names to the file's header names.
	// Nil falls back to DefaultColumns.
	Columns map[string]string
	// WatchModTime skips re-reading a file whose mtime has not advanced
	// since the previous fetch. Replay-style one-shot reads disable it.
	WatchModTime bool
}

// CSVSource reads marketplace snapshots from a Futbin-style CSV export.
type CSVSource struct {
	opts    CSVOptions
	columns map[string]string
	logger  zerolog.Logger

	lastModTime time.Time
}

// NewCSV constructs a CSV source.
func NewCSV(opts CSVOptions, logger zerolog.Logger) *CSVSource {
	columns := opts.Columns
	if len(columns) == 0 {
		columns = DefaultColumns()
	}
	return &CSVSource{
		opts:    opts,
		columns: columns,
		logger:  logger.With().Str("component", "csv_source").Logger(),
	}
}

// Fetch reads and normalizes the configured file. An unchanged file yields
// an empty batch; a missing file is a transient fetch failure.
func (s *CSVSource) Fetch(ctx context.Context) ([]market.PriceObservation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(s.opts.Path)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", s.opts.Path, err)
	}
	if s.opts.WatchModTime && !info.ModTime().After(s.lastModTime) {
		s.logger.Debug().Str("path", s.opts.Path).Msg("file unchanged since last fetch")
		return nil, nil
	}
	s.lastModTime = info.ModTime()

	file, err := os.Open(s.opts.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", s.opts.Path, err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}

	index, err := s.headerIndex(header)
	if err != nil {
		return nil, err
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv rows: %w", err)
	}

	now := time.Now().UTC()
	observations := make([]market.PriceObservation, 0, len(records))
	for i, record := range records {
		obs, err := s.normalizeRow(record, index, now)
		if err != nil {
			s.logger.Warn().Err(err).Int("row", i+2).Msg("skipping malformed row")
			continue
		}
		observations = append(observations, obs)
	}

	s.logger.Info().Int("rows", len(records)).Int("normalized", len(observations)).Msg("csv batch read")
	return observations, nil
}

// headerIndex resolves canonical fields to column positions. Every mapped
// required field must exist in the header.
func (s *CSVSource) headerIndex(header []string) (map[string]int, error) {
	position := make(map[string]int, len(header))
	for i, name := range header {
		position[strings.ToLower(strings.TrimSpace(name))] = i
	}

	index := make(map[string]int, len(s.columns))
	var missing []string
	for field, column := range s.columns {
		idx, ok := position[strings.ToLower(column)]
		if !ok {
			if field == FieldAvg24h || field == FieldStd24h || field == FieldUpdatedAt {
				continue
			}
			missing = append(missing, column)
			continue
		}
		index[field] = idx
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv missing required columns: %s", strings.Join(missing, ", "))
	}
	return index, nil
}

func (s *CSVSource) normalizeRow(record []string, index map[string]int, fallback time.Time) (market.PriceObservation, error) {
	cell := func(field string) string {
		idx, ok := index[field]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	entityID := cell(FieldEntityID)
	name := cell(FieldName)
	if entityID == "" {
		// The export occasionally drops ids; fall back to the name the way
		// the upstream tooling does.
		entityID = strings.ToLower(strings.ReplaceAll(name, " ", "-"))
	}
	if entityID == "" {
		return market.PriceObservation{}, fmt.Errorf("missing entity id and name")
	}

	price, ok := ParseCoins(cell(FieldPrice))
	if !ok {
		return market.PriceObservation{}, fmt.Errorf("entity %s: unparseable price %q", entityID, cell(FieldPrice))
	}

	obs := market.PriceObservation{
		EntityID:   entityID,
		Name:       name,
		League:     cell(FieldLeague),
		Position:   cell(FieldPosition),
		Price:      price,
		ObservedAt: fallback,
	}

	if text := cell(FieldRating); text != "" {
		if rating, err := strconv.Atoi(text); err == nil {
			obs.Rating = rating
		}
	}

	if text := cell(FieldAvg24h); text != "" {
		if avg, err := strconv.ParseFloat(text, 64); err == nil && avg > 0 {
			obs.Avg24h = &avg
		}
	}

	// A negative std is upstream garbage; treat it as absent rather than
	// poisoning the z-score.
	if text := cell(FieldStd24h); text != "" {
		if std, err := strconv.ParseFloat(text, 64); err == nil && std >= 0 {
			obs.Std24h = &std
		}
	}

	if ts := parseTimestamp(cell(FieldUpdatedAt)); !ts.IsZero() {
		obs.ObservedAt = ts
	}

	return obs, nil
}

var _ Source = (*CSVSource)(nil)
