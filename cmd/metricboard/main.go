package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/oklog/run"
	"github.com/rs/zerolog"

	"github.com/blackroad/metricboard/internal/config"
	"github.com/blackroad/metricboard/pkg/api"
	"github.com/blackroad/metricboard/pkg/dashboard"
	"github.com/blackroad/metricboard/pkg/query"
	"github.com/blackroad/metricboard/pkg/storage"
	"github.com/blackroad/metricboard/pkg/types"
)

const version = "0.1.0"

func main() {
	app := kingpin.New("metricboard", "Metric store, query engine and dashboard builder.")
	app.Version(version)

	configPath := app.Flag("config", "Path to YAML config file.").Envar("METRICBOARD_CONFIG").String()
	pretty := app.Flag("pretty", "Human-friendly console log output.").Bool()

	serveCmd := app.Command("serve", "Run the HTTP API server.")

	pushCmd := app.Command("push", "Write a metric point to the local store.")
	pushMetric := pushCmd.Arg("metric", "Metric name.").Required().String()
	pushValue := pushCmd.Arg("value", "Metric value.").Required().Float64()
	pushLabels := pushCmd.Flag("label", "Label as key=value; repeatable.").StringMap()
	pushTS := pushCmd.Flag("timestamp", "Unix timestamp in seconds; defaults to now.").String()

	queryCmd := app.Command("query", "Run a range query against the local store.")
	queryMetric := queryCmd.Flag("metric", "Metric name.").Required().String()
	queryFrom := queryCmd.Flag("from", "Range start, Unix seconds.").Required().Int64()
	queryTo := queryCmd.Flag("to", "Range end, Unix seconds.").Required().Int64()
	queryLabels := queryCmd.Flag("label", "Label filter as key=value; repeatable.").StringMap()

	latestCmd := app.Command("latest", "Show the most recent point of a metric.")
	latestMetric := latestCmd.Flag("metric", "Metric name.").Required().String()
	latestLabels := latestCmd.Flag("label", "Label filter as key=value; repeatable.").StringMap()

	backupCmd := app.Command("backup", "Stream a compressed store backup to a file.")
	backupOut := backupCmd.Flag("out", "Backup file path.").Required().String()

	dashCmd := app.Command("dashboard", "Manage stored dashboards.")
	dashImportCmd := dashCmd.Command("import", "Import a Grafana-compatible dashboard document.")
	dashImportFile := dashImportCmd.Arg("file", "Path to the JSON document.").Required().String()
	dashExportCmd := dashCmd.Command("export", "Export a dashboard as Grafana-compatible JSON.")
	dashExportID := dashExportCmd.Arg("id", "Dashboard id.").Required().String()
	dashListCmd := dashCmd.Command("list", "List stored dashboards.")
	dashDeleteCmd := dashCmd.Command("delete", "Delete a dashboard.")
	dashDeleteID := dashDeleteCmd.Arg("id", "Dashboard id.").Required().String()

	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := newLogger(*pretty)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().Err(err).Msg("loading configuration")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	switch cmd {
	case serveCmd.FullCommand():
		err = runServe(cfg, logger)
	case pushCmd.FullCommand():
		err = runPush(cfg, *pushMetric, *pushValue, *pushLabels, *pushTS)
	case queryCmd.FullCommand():
		err = runQuery(cfg, types.QuerySpec{
			Metric:      *queryMetric,
			Range:       types.TimeRange{From: *queryFrom, To: *queryTo},
			LabelFilter: *queryLabels,
		})
	case latestCmd.FullCommand():
		err = runLatest(cfg, *latestMetric, *latestLabels)
	case backupCmd.FullCommand():
		err = runBackup(cfg, *backupOut)
	case dashImportCmd.FullCommand():
		err = runDashboardImport(cfg, *dashImportFile)
	case dashExportCmd.FullCommand():
		err = runDashboardExport(cfg, *dashExportID)
	case dashListCmd.FullCommand():
		err = runDashboardList(cfg)
	case dashDeleteCmd.FullCommand():
		err = runDashboardDelete(cfg, *dashDeleteID)
	}
	if err != nil {
		logger.Fatal().Err(err).Msg("command failed")
	}
}

func newLogger(pretty bool) zerolog.Logger {
	if pretty {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

// runServe starts the HTTP API server and blocks until a signal or a
// server failure stops the run group.
func runServe(cfg *config.Config, logger zerolog.Logger) error {
	store, err := storage.NewStore(cfg.ToStorageConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	registry, err := dashboard.NewRegistry(cfg.ToRegistryConfig())
	if err != nil {
		return err
	}
	defer registry.Close()

	server := api.NewServer(cfg.Server.ListenAddr, store, registry, logger)

	var g run.Group
	g.Add(func() error {
		logger.Info().Str("addr", cfg.Server.ListenAddr).Msg("API server listening")
		return server.Start()
	}, func(error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.Timeout))
		defer cancel()
		if err := server.Stop(ctx); err != nil {
			logger.Error().Err(err).Msg("server shutdown")
		}
	})
	g.Add(run.SignalHandler(context.Background(), syscall.SIGINT, syscall.SIGTERM))

	err = g.Run()
	if _, ok := err.(run.SignalError); ok {
		logger.Info().Msg("shutdown signal received")
		return nil
	}
	return err
}

func runPush(cfg *config.Config, metric string, value float64, labels map[string]string, rawTS string) error {
	ts, err := resolveTimestamp(rawTS, time.Now)
	if err != nil {
		return err
	}

	store, err := storage.NewStore(cfg.ToStorageConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	return store.Write(context.Background(), types.Point{
		Metric:    metric,
		Timestamp: ts,
		Value:     value,
		Labels:    labels,
	})
}

// resolveTimestamp parses the --timestamp flag. An absent flag means
// "now"; any explicit value is used verbatim, zero and negative
// included.
func resolveTimestamp(raw string, now func() time.Time) (int64, error) {
	if raw == "" {
		return now().Unix(), nil
	}
	ts, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, types.NewValidationError("invalid timestamp %q", raw)
	}
	return ts, nil
}

func runQuery(cfg *config.Config, spec types.QuerySpec) error {
	store, err := storage.NewStore(cfg.ToStorageConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	result, err := query.NewEngine(store).Query(context.Background(), spec)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func runLatest(cfg *config.Config, metric string, labels map[string]string) error {
	store, err := storage.NewStore(cfg.ToStorageConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	p, err := query.NewEngine(store).Latest(context.Background(), metric, labels)
	if err != nil {
		return err
	}
	if p == nil {
		return fmt.Errorf("metric %q: %w", metric, types.ErrNotFound)
	}
	return printJSON(p)
}

func runBackup(cfg *config.Config, out string) error {
	store, err := storage.NewStore(cfg.ToStorageConfig())
	if err != nil {
		return err
	}
	defer store.Close()

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("creating backup file: %w", err)
	}
	defer f.Close()

	return store.Backup(context.Background(), f)
}

func runDashboardImport(cfg *config.Config, file string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading dashboard document: %w", err)
	}
	d, err := dashboard.UnmarshalGrafana(data)
	if err != nil {
		return err
	}

	registry, err := dashboard.NewRegistry(cfg.ToRegistryConfig())
	if err != nil {
		return err
	}
	defer registry.Close()

	if err := registry.Save(context.Background(), d); err != nil {
		return err
	}
	fmt.Println(d.ID)
	return nil
}

func runDashboardExport(cfg *config.Config, id string) error {
	registry, err := dashboard.NewRegistry(cfg.ToRegistryConfig())
	if err != nil {
		return err
	}
	defer registry.Close()

	d, err := registry.Get(context.Background(), id)
	if err != nil {
		return err
	}
	doc, err := dashboard.MarshalGrafana(d)
	if err != nil {
		return err
	}
	fmt.Println(string(doc))
	return nil
}

func runDashboardList(cfg *config.Config) error {
	registry, err := dashboard.NewRegistry(cfg.ToRegistryConfig())
	if err != nil {
		return err
	}
	defer registry.Close()

	list, err := registry.List(context.Background())
	if err != nil {
		return err
	}
	for _, d := range list {
		fmt.Printf("%s\t%s\n", d.ID, d.Title)
	}
	return nil
}

func runDashboardDelete(cfg *config.Config, id string) error {
	registry, err := dashboard.NewRegistry(cfg.ToRegistryConfig())
	if err != nil {
		return err
	}
	defer registry.Close()

	return registry.Delete(context.Background(), id)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
