package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"idsguard/internal/api"
	"idsguard/internal/config"
	"idsguard/internal/engine"
	"idsguard/internal/inference"
	"idsguard/internal/ingest"
	"idsguard/internal/logging"
	"idsguard/internal/metrics"
	"idsguard/internal/normalize"
	"idsguard/internal/notify"
	"idsguard/internal/storage"
)

var version = "dev"

func main() {
	args := os.Args[1:]
	cmd := "serve"
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}
	var err error
	switch cmd {
	case "serve":
		err = serve(args)
	case "fit-scaler":
		err = fitScaler(args)
	case "version":
		fmt.Println(version)
	default:
		err = fmt.Errorf("unknown command %q (want serve, fit-scaler or version)", cmd)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "idsguard:", err)
		os.Exit(1)
	}
}

func serve(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv(config.EnvConfigPath), "path to YAML or JSON config")
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg, err := config.LoadOrDefault(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger := logging.New(os.Stdout, cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ic, err := inference.LoadArtifacts(inference.ArtifactPaths{
		Model:     cfg.Model.Path(cfg.Model.ModelFile),
		Scaler:    cfg.Model.Path(cfg.Model.ScalerFile),
		Threshold: cfg.Model.Path(cfg.Model.ThresholdFile),
		Features:  cfg.Model.Path(cfg.Model.FeaturesFile),
		Info:      cfg.Model.Path(cfg.Model.InfoFile),
	})
	if err != nil {
		return err
	}
	info := ic.Info()
	logger.Info("model loaded", "model", info.String(), "dir", config.ResolvePath(cfg.Model.Dir))
	if len(info.DegenerateFeatures) > 0 {
		logger.Warn("features with zero scale are centered only", "features", info.DegenerateFeatures)
	}

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()
	if err := store.Init(ctx); err != nil {
		return err
	}
	if err := recordModelSettings(ctx, store, info); err != nil {
		return err
	}

	publisher, err := notify.FromConfig(cfg.Notify, logger)
	if err != nil {
		return err
	}
	if publisher != nil {
		defer publisher.Close()
	}

	var (
		promCollectors *metrics.Collectors
		metricsHandler http.Handler
		writer         metrics.Writer
	)
	if cfg.Metrics.Prometheus {
		metricsHandler, promCollectors = prometheusHandler()
	}
	if cfg.Metrics.RecordScoring {
		writer = store
	}
	recorder := metrics.NewRecorder(promCollectors, writer, logger)

	eng := engine.NewEngine(ic, store, publisher, recorder, logger)
	srv := api.NewServer(cfg, eng, store, metricsHandler, logger, version)
	if api.Start(ctx, srv) == nil {
		return errors.New("api is disabled; nothing to serve")
	}
	<-ctx.Done()
	logger.Info("shutting down")
	return nil
}

func prometheusHandler() (http.Handler, *metrics.Collectors) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), metrics.NewCollectors(reg)
}

func recordModelSettings(ctx context.Context, store storage.Store, info inference.ModelInfo) error {
	if err := store.SetSetting(ctx, "model.threshold", strconv.FormatFloat(info.Threshold, 'g', -1, 64), "decision threshold loaded at startup"); err != nil {
		return err
	}
	return store.SetSetting(ctx, "model.features", strings.Join(info.Features, ","), "feature contract loaded at startup")
}

func fitScaler(args []string) error {
	fs := flag.NewFlagSet("fit-scaler", flag.ContinueOnError)
	in := fs.String("in", "", "training CSV with a header row")
	features := fs.String("features", "selected_features.csv", "header-less feature list")
	out := fs.String("out", "scaler.json", "output path")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("fit-scaler: -in is required")
	}
	logger := logging.NewLogger("info")

	ff, err := os.Open(*features)
	if err != nil {
		return err
	}
	names, err := inference.ReadFeatureList(ff)
	ff.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", *features, err)
	}
	contract, err := normalize.NewContract(names)
	if err != nil {
		return err
	}

	df, err := os.Open(*in)
	if err != nil {
		return err
	}
	rows, err := ingest.ReadCSV(df)
	df.Close()
	if err != nil {
		return err
	}
	x, err := normalize.NormalizeBatch(contract, rows)
	if err != nil {
		return err
	}
	scaler, err := inference.FitScaler(x)
	if err != nil {
		return err
	}

	f, err := os.Create(*out)
	if err != nil {
		return err
	}
	if err := inference.WriteScaler(f, scaler); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	attrs := []any{"rows", len(rows), "features", contract.Len(), "out", *out}
	if d := scaler.Degenerate(); len(d) > 0 {
		attrs = append(attrs, "zero_variance", len(d))
	}
	logger.Info("scaler fitted", attrs...)
	return nil
}
