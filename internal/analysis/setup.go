package analysis

import (
	"context"
	"fmt"
	"time"

	"github.com/pdetect/pdetect-go/internal/conf"
	"github.com/pdetect/pdetect-go/internal/dataload"
	"github.com/pdetect/pdetect-go/internal/datastore"
	"github.com/pdetect/pdetect-go/internal/detector"
	"github.com/pdetect/pdetect-go/internal/export"
	"github.com/pdetect/pdetect-go/internal/logging"
	"github.com/pdetect/pdetect-go/internal/monitor"
	"github.com/pdetect/pdetect-go/internal/results"
)

// Execute assembles the pipeline from the settings and runs one detection
// run. It returns the run id of the executed run.
func Execute(ctx context.Context, settings *conf.Settings) (string, error) {
	log := logging.ForService("analysis")

	det, err := detector.New(&settings.Detector)
	if err != nil {
		return "", fmt.Errorf("failed to create detector: %w", err)
	}
	if closer, ok := det.(interface{ Close() }); ok {
		defer closer.Close()
	}

	store := datastore.New(settings)
	if store != nil {
		if err := store.Open(); err != nil {
			return "", fmt.Errorf("failed to open datastore: %w", err)
		}
		defer closeStore(store)
	} else {
		log.Warn("no database sink enabled")
	}

	var exporter *export.Exporter
	if settings.Output.CSV.Enabled {
		exporter, err = export.NewExporter(settings.Output.CSV.Path)
		if err != nil {
			return "", fmt.Errorf("failed to create CSV exporter: %w", err)
		}
	}

	if store == nil && exporter == nil {
		log.Warn("all output sinks disabled, results will not be persisted")
	}

	loader := dataload.NewLoader(&settings.Input)
	mon := monitor.NewResourceMonitor(time.Duration(settings.Monitor.IntervalMs) * time.Millisecond)
	recorder := results.NewRecorder(store, exporter)

	runner := NewRunner(settings, det, loader, mon, recorder, log)
	return runner.Run(ctx)
}

func closeStore(store datastore.Interface) {
	if err := store.Close(); err != nil {
		logging.ForService("analysis").Error("failed to close datastore", "error", err)
	}
}
