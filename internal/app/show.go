package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/ThurX360/WIZFUT/internal/alerting"
	"github.com/ThurX360/WIZFUT/internal/storage"
)

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit  int
	Alerts bool
}

// Show prints recent observations, or recent alerts with --alerts.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database not configured; cannot show history")
	}
	if closeStore != nil {
		defer closeStore()
	}

	if opts.Alerts {
		return showAlerts(ctx, store, opts.Limit)
	}
	return showObservations(ctx, store, opts.Limit)
}

func showObservations(ctx context.Context, store *storage.Store, limit int) error {
	observations, err := store.ListRecentObservations(ctx, limit)
	if err != nil {
		return err
	}
	if len(observations) == 0 {
		fmt.Fprintln(os.Stdout, "no observations found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Observed (UTC)\tEntity\tName\tRating\tPrice\tAvg24h\tStd24h\tZ\tSamples")

	for _, obs := range observations {
		zscore := "-"
		if obs.ZScore != nil {
			zscore = fmt.Sprintf("%.2f", *obs.ZScore)
		}
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%d\t%s\t%.0f\t%.1f\t%s\t%d\n",
			obs.ObservedAt.UTC().Format(time.RFC3339),
			obs.EntityID,
			sanitizeInline(obs.Name),
			obs.Rating,
			alerting.FormatCoins(obs.Price),
			obs.Avg24h,
			obs.Std24h,
			zscore,
			obs.SampleCount,
		)
	}

	return writer.Flush()
}

func showAlerts(ctx context.Context, store *storage.Store, limit int) error {
	alerts, err := store.ListRecentAlerts(ctx, limit)
	if err != nil {
		return err
	}
	if len(alerts) == 0 {
		fmt.Fprintln(os.Stdout, "no alerts found")
		return nil
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Triggered (UTC)\tEntity\tKind\tPrice\tAvg24h\tDeviation%\tSamples\tLowConf")

	for _, alert := range alerts {
		fmt.Fprintf(
			writer,
			"%s\t%s\t%s\t%s\t%.0f\t%.1f\t%d\t%v\n",
			alert.TriggeredAt.UTC().Format(time.RFC3339),
			alert.EntityID,
			alert.Kind,
			alerting.FormatCoins(alert.Price),
			alert.Avg24h,
			alert.DeviationPct*100,
			alert.SampleCount,
			alert.LowConfidence,
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
