// Command biome-ingest loads study bundles into the biomecore store. Each
// argument (or each subdirectory of -bundles) is one per-study directory;
// studies are ingested sequentially, and one failed study does not stop
// the run.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"biomecore/internal/core"
	"biomecore/internal/ingest"
	"biomecore/internal/ingest/tabular"
	"biomecore/pkg/domain"
)

// runConfig is the optional YAML run description. Flags override it.
type runConfig struct {
	BundlesDir  string   `yaml:"bundles_dir"`
	Studies     []string `yaml:"studies"`
	Replace     bool     `yaml:"replace"`
	MetricsAddr string   `yaml:"metrics_addr"`
	SampleVocab string   `yaml:"sample_vocab"`
	PrepVocab   string   `yaml:"prep_vocab"`
}

func loadRunConfig(path string) (runConfig, error) {
	var cfg runConfig
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read run config: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, fmt.Errorf("parse run config %s: %w", path, err)
	}
	return cfg, nil
}

func main() {
	var (
		configPath  = flag.String("config", "", "path to a YAML run config")
		bundlesDir  = flag.String("bundles", "", "directory whose subdirectories are study bundles")
		replace     = flag.Bool("replace", false, "replace studies that are already loaded")
		metricsAddr = flag.String("metrics-addr", "", "listen address for the prometheus scrape endpoint")
		verbose     = flag.Bool("v", false, "debug logging")
	)
	flag.Parse()

	logger := newLogger(*verbose)
	defer func() { _ = logger.Sync() }()

	cfg, err := loadRunConfig(*configPath)
	if err != nil {
		logger.Fatal("run config", zap.Error(err))
	}
	if *bundlesDir != "" {
		cfg.BundlesDir = *bundlesDir
	}
	if *replace {
		cfg.Replace = true
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	cfg.Studies = append(cfg.Studies, flag.Args()...)

	dirs, err := resolveBundleDirs(cfg)
	if err != nil {
		logger.Fatal("resolve bundles", zap.Error(err))
	}
	if len(dirs) == 0 {
		logger.Fatal("no study bundles given; pass directories or -bundles")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger = logger.With(zap.String("run_id", runID))

	store, err := core.OpenPersistentStore(ctx)
	if err != nil {
		logger.Fatal("open store", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	blobs, err := core.OpenBlobStore(ctx)
	if err != nil {
		logger.Fatal("open archive", zap.Error(err))
	}

	metrics := core.NewPrometheusMetricsRecorder()
	if cfg.MetricsAddr != "" {
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics endpoint", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	opts := []core.Option{core.WithLogger(logger), core.WithMetrics(metrics)}
	if blobs != nil {
		opts = append(opts, core.WithBlobStore(blobs))
	}
	parser, err := newParser(cfg)
	if err != nil {
		logger.Fatal("load vocabulary", zap.Error(err))
	}
	opts = append(opts, core.WithParser(parser))
	svc := core.NewService(store, opts...)

	failed := ingestAll(ctx, svc, dirs, cfg.Replace, logger)
	if failed > 0 {
		logger.Error("run finished with failures", zap.Int("failed", failed))
		os.Exit(1)
	}
}

// ingestAll runs every bundle sequentially and returns the failure count.
// A per-study failure does not stop the run; cancellation does.
func ingestAll(ctx context.Context, svc *core.Service, dirs []string, replace bool, logger *zap.Logger) int {
	failed := 0
	for i, dir := range dirs {
		if ctx.Err() != nil {
			logger.Warn("run interrupted", zap.Int("remaining", len(dirs)-i))
			break
		}
		summary, err := svc.IngestStudy(ctx, dir, replace)
		switch {
		case errors.Is(err, domain.ErrStudyExists):
			logger.Warn("study already loaded, skipping",
				zap.String("bundle", dir))
		case err != nil:
			failed++
			logger.Error("study failed", zap.String("bundle", dir), zap.Error(err))
		default:
			logger.Info("study ingested",
				zap.String("study_id", summary.StudyID),
				zap.Int("samples", summary.Samples),
				zap.Int("counts", summary.Counts),
				zap.Int("diagnostics", len(summary.Diagnostics)))
			for _, d := range summary.Diagnostics {
				logger.Debug("diagnostic", zap.String("detail", d.String()))
			}
		}
	}
	return failed
}

func newLogger(verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	logger, err := cfg.Build()
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	return logger
}

// newParser builds the bundle parser, replacing the embedded default
// vocabularies with per-run files when configured.
func newParser(cfg runConfig) (*ingest.Parser, error) {
	p := ingest.NewParser()
	if cfg.SampleVocab != "" {
		v, err := tabular.LoadVocabulary(cfg.SampleVocab)
		if err != nil {
			return nil, fmt.Errorf("sample vocabulary: %w", err)
		}
		p.SampleVocab = v
	}
	if cfg.PrepVocab != "" {
		v, err := tabular.LoadVocabulary(cfg.PrepVocab)
		if err != nil {
			return nil, fmt.Errorf("prep vocabulary: %w", err)
		}
		p.PrepVocab = v
	}
	return p, nil
}

// resolveBundleDirs merges explicit study directories with the
// subdirectories of the bundles root, preserving order and dropping
// duplicates.
func resolveBundleDirs(cfg runConfig) ([]string, error) {
	var dirs []string
	seen := map[string]struct{}{}
	add := func(dir string) {
		clean := filepath.Clean(dir)
		if _, ok := seen[clean]; ok {
			return
		}
		seen[clean] = struct{}{}
		dirs = append(dirs, clean)
	}
	for _, d := range cfg.Studies {
		add(d)
	}
	if cfg.BundlesDir != "" {
		entries, err := os.ReadDir(cfg.BundlesDir)
		if err != nil {
			return nil, fmt.Errorf("read bundles dir: %w", err)
		}
		for _, e := range entries {
			if e.IsDir() {
				add(filepath.Join(cfg.BundlesDir, e.Name()))
			}
		}
	}
	return dirs, nil
}
