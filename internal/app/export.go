package app

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	chart "github.com/wcharczuk/go-chart/v2"

	"github.com/ThurX360/WIZFUT/internal/storage"
)

// ExportOptions hold parameters for exporting one entity's price history.
type ExportOptions struct {
	EntityID  string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// Export renders an entity's persisted price series as CSV and/or PNG.
func (a *App) Export(ctx context.Context, opts ExportOptions) error {
	if opts.EntityID == "" {
		return errors.New("--entity must be provided")
	}
	if opts.CSVPath == "" && opts.PNGPath == "" {
		return errors.New("at least one of --csv or --png must be provided")
	}

	opts.MaxPoints = a.Config.ResolveMaxPoints(opts.MaxPoints)

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot export")
	}
	if closeStore != nil {
		defer closeStore()
	}

	to := time.Now().UTC()
	if opts.To != nil {
		to = opts.To.UTC()
	}

	from := to.Add(-time.Duration(opts.MaxPoints) * a.Config.Scheduler.Interval)
	if opts.From != nil {
		from = opts.From.UTC()
	}

	if !from.Before(to) {
		return errors.New("from must be before to")
	}

	series, err := store.ListEntitySeries(ctx, opts.EntityID, from, to)
	if err != nil {
		return err
	}
	if len(series) == 0 {
		a.Logger.Info().Str("entity", opts.EntityID).Msg("no observations found for export window")
		return nil
	}

	downsampled := downsample(series, opts.MaxPoints)
	a.Logger.Info().
		Str("entity", opts.EntityID).
		Int("total", len(series)).
		Int("exported", len(downsampled)).
		Msg("exporting price history")

	if opts.CSVPath != "" {
		if err := writeSeriesCSV(opts.CSVPath, downsampled); err != nil {
			return err
		}
	}

	if opts.PNGPath != "" {
		if err := writeSeriesPNG(opts.PNGPath, opts.EntityID, downsampled); err != nil {
			return err
		}
	}

	return nil
}

func downsample(series []storage.ObservationRecord, max int) []storage.ObservationRecord {
	if max <= 0 || len(series) <= max {
		return series
	}

	result := make([]storage.ObservationRecord, 0, max)
	step := float64(len(series)-1) / float64(max-1)
	for i := 0; i < max; i++ {
		idx := int(math.Round(step * float64(i)))
		if idx >= len(series) {
			idx = len(series) - 1
		}
		result = append(result, series[idx])
	}
	return result
}

func writeSeriesCSV(path string, series []storage.ObservationRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"observed_at", "entity_id", "name", "rating", "price", "avg_24h", "std_24h", "zscore", "sample_count"}
	if err := writer.Write(header); err != nil {
		return err
	}

	for _, obs := range series {
		zscore := ""
		if obs.ZScore != nil {
			zscore = decimal.NewFromFloat(*obs.ZScore).Round(3).String()
		}
		record := []string{
			obs.ObservedAt.Format(time.RFC3339),
			obs.EntityID,
			obs.Name,
			fmt.Sprintf("%d", obs.Rating),
			fmt.Sprintf("%d", obs.Price),
			decimal.NewFromFloat(obs.Avg24h).Round(2).String(),
			decimal.NewFromFloat(obs.Std24h).Round(2).String(),
			zscore,
			fmt.Sprintf("%d", obs.SampleCount),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	return writer.Error()
}

func writeSeriesPNG(path, entityID string, series []storage.ObservationRecord) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	x := make([]time.Time, len(series))
	price := make([]float64, len(series))
	average := make([]float64, len(series))

	for i, obs := range series {
		x[i] = obs.ObservedAt
		price[i] = float64(obs.Price)
		average[i] = obs.Avg24h
	}

	coinFormatter := func(v interface{}) string {
		return chart.FloatValueFormatterWithFormat(v, "%.0f")
	}
	graph := chart.Chart{
		Title:  entityID,
		Width:  1280,
		Height: 720,
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatter,
		},
		YAxis: chart.YAxis{
			Name:           "Price (coins)",
			ValueFormatter: coinFormatter,
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Price",
				XValues: x,
				YValues: price,
			},
			chart.TimeSeries{
				Name:    "24h average",
				XValues: x,
				YValues: average,
			},
		},
	}
	graph.Elements = []chart.Renderable{chart.Legend(&graph)}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return graph.Render(chart.PNG, file)
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
