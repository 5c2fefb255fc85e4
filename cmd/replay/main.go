// Command replay runs recorded station observations through the QC pipeline
// offline and prints one maintenance ticket per packet. It reads the same
// environment settings as the service for thresholds, history bounds, and
// the optional remote diagnosis backend.
//
// Usage:
//
//	go run ./cmd/replay -csv data/mock/sample_observations.csv
//	go run ./cmd/replay -demo
//	go run ./cmd/replay -csv obs.csv -format json -workers 4
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/couchcryptid/station-qc/internal/adapter/csvstream"
	"github.com/couchcryptid/station-qc/internal/adapter/diagnosis"
	"github.com/couchcryptid/station-qc/internal/config"
	"github.com/couchcryptid/station-qc/internal/diagnostics"
	"github.com/couchcryptid/station-qc/internal/domain"
	"github.com/couchcryptid/station-qc/internal/history"
	"github.com/couchcryptid/station-qc/internal/observability"
	"github.com/couchcryptid/station-qc/internal/pipeline"
	"github.com/couchcryptid/station-qc/internal/qc"
	"github.com/couchcryptid/station-qc/internal/reporter"
)

// demoPackets are wire packets covering a spatial deviation, a weak radar
// return, a composite pressure jump, and a sane humidity reading.
var demoPackets = []struct {
	title  string
	packet string
}{
	{
		title: "Temperature spatial deviation",
		packet: `{"type":"temperature","station_id":"S1","value":29.0,"timestamp":"2025-12-01T14:00:00",
			"neighbors":[{"id":"S2","value":24.1},{"id":"S3","value":23.9}]}`,
	},
	{
		title:  "Radar low SNR",
		packet: `{"type":"radar","snr":8.5,"reflectivity_bias":3.5,"timestamp":"2025-12-01T14:00:00"}`,
	},
	{
		title: "Composite packet with pressure jump",
		packet: `{"type":"composite","station_id":"S5","timestamp":"2025-12-01T14:01:00",
			"temperature":{"value":24.0},"humidity":{"value":55.0},"pressure":{"value":850.0},
			"precipitation":{"value":0.0},"wind":{"speed":3.0,"direction":120.0},
			"radar":{"snr":12.0,"reflectivity_bias":0.5},
			"neighbors":[{"id":"S2","value":23.9},{"id":"S3","value":24.1}]}`,
	},
	{
		title:  "Humidity sane",
		packet: `{"type":"humidity","value":70.0,"timestamp":"2025-12-01T14:00:00"}`,
	},
}

func main() {
	csvPath := flag.String("csv", "", "CSV file of composite observations to replay")
	demo := flag.Bool("demo", false, "run the built-in sample packets instead of a CSV file")
	format := flag.String("format", "markdown", "output format: markdown or json")
	workers := flag.Int("workers", 0, "shard packets across workers by station (default INGEST_WORKERS)")
	flag.Parse()

	if *csvPath == "" && !*demo {
		flag.Usage()
		os.Exit(2)
	}
	if *format != "markdown" && *format != "json" {
		fmt.Fprintf(os.Stderr, "unknown -format %q\n", *format)
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *csvPath, *demo, *format, *workers, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "replay: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, csvPath string, demo bool, format string, workers int, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := observability.NewCLILogger(os.Stderr, cfg.LogLevel)
	metrics := observability.NewMetricsForTesting()

	orch, err := newOrchestrator(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer orch.Close() //nolint:errcheck // in-memory state only

	if demo {
		return runDemo(ctx, orch, format, out)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		return err
	}
	defer f.Close()

	src, err := csvstream.NewReader(f, csvstream.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("%s: %w", csvPath, err)
	}

	if workers <= 0 {
		workers = cfg.IngestWorkers
	}
	sink := &pipeline.CollectSink{}
	n, runErr := orch.RunSharded(ctx, src, sink, workers)

	// Reports finished before a failure are still printed.
	reports := sink.Reports()
	for _, r := range reports {
		if err := printReport(out, format, r); err != nil {
			return err
		}
	}
	printRiskTally(os.Stderr, reports)
	if runErr != nil {
		return fmt.Errorf("replay stopped after %d packets: %w", n, runErr)
	}
	logger.Info("replay finished", "packets", n, "workers", workers, "skipped_rows", src.Skipped())
	return nil
}

func newOrchestrator(cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics) (*pipeline.Orchestrator, error) {
	thresholds := qc.DefaultThresholds()
	if cfg.ThresholdsFile != "" {
		var err error
		if thresholds, err = qc.LoadThresholds(cfg.ThresholdsFile); err != nil {
			return nil, err
		}
	}

	var remote diagnostics.Diagnoser
	if cfg.Diagnosis.Enabled {
		remote = diagnosis.NewCachedDiagnoser(
			diagnosis.NewClient(cfg.Diagnosis.URL, cfg.Diagnosis.Token, cfg.Diagnosis.Timeout, metrics, logger),
			max(cfg.Diagnosis.CacheSize, 1), metrics)
	}

	return pipeline.NewOrchestrator(pipeline.Options{
		Thresholds: thresholds,
		History: history.Config{
			MaxEntries: cfg.HistoryMaxEntries,
			MaxAge:     cfg.HistoryMaxAge,
			Shards:     cfg.HistoryShards,
		},
		Diagnoser:   remote,
		DiagTimeout: cfg.Diagnosis.Timeout,
	}, logger, metrics)
}

func runDemo(ctx context.Context, orch *pipeline.Orchestrator, format string, out io.Writer) error {
	for _, d := range demoPackets {
		r, err := orch.Decode(ctx, []byte(d.packet))
		if err != nil {
			return fmt.Errorf("%s: %w", d.title, err)
		}
		if format == "markdown" {
			fmt.Fprintf(out, "<!-- %s -->\n", d.title)
		}
		if err := printReport(out, format, r); err != nil {
			return err
		}
	}
	return nil
}

func printReport(out io.Writer, format string, r domain.Report) error {
	if format == "json" {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	}
	_, err := fmt.Fprintln(out, reporter.RenderMarkdown(r.Ticket))
	return err
}

// printRiskTally writes one line per risk level seen, most urgent first.
func printRiskTally(w io.Writer, reports []domain.Report) {
	counts := map[domain.RiskLevel]int{}
	for _, r := range reports {
		counts[r.Ticket.RiskLevel]++
	}
	levels := make([]domain.RiskLevel, 0, len(counts))
	for l := range counts {
		levels = append(levels, l)
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Rank() > levels[j].Rank() })
	for _, l := range levels {
		fmt.Fprintf(w, "  %-9s %d\n", l, counts[l])
	}
}
