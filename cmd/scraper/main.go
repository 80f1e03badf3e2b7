package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aluiziolira/go-scrape-members/config"
	"github.com/aluiziolira/go-scrape-members/models"
	"github.com/aluiziolira/go-scrape-members/pipeline"
	"github.com/aluiziolira/go-scrape-members/scraper"
)

func main() {
	defaultCfg := config.DefaultConfig()
	parallelDefault := defaultCfg.Parallelism
	if value, ok, err := config.EnvInt("SCRAPER_PARALLEL"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_PARALLEL: %v\n", err)
		os.Exit(1)
	} else if ok {
		parallelDefault = value
	}
	discoveryDefault := defaultCfg.DiscoveryWorkers
	if value, ok, err := config.EnvInt("SCRAPER_DISCOVERY_WORKERS"); err != nil {
		fmt.Fprintf(os.Stderr, "invalid SCRAPER_DISCOVERY_WORKERS: %v\n", err)
		os.Exit(1)
	} else if ok {
		discoveryDefault = value
	}
	outputDefault := defaultCfg.OutputFile
	if value, ok := config.EnvString("SCRAPER_OUTPUT"); ok {
		outputDefault = value
	}
	metricsDefault := defaultCfg.MetricsAddr
	if value, ok := config.EnvString("SCRAPER_METRICS_ADDR"); ok {
		metricsDefault = value
	}

	baseURL := flag.String("base-url", defaultCfg.BaseURL, "Directory base URL")
	parallelism := flag.Int("parallel", parallelDefault, "Concurrent detail-scrape workers")
	discoveryWorkers := flag.Int("discovery-workers", discoveryDefault, "Concurrent listing-page workers")
	delayMs := flag.Int("delay", int(defaultCfg.Delay/time.Millisecond), "Delay before each request (milliseconds)")
	timeoutSec := flag.Int("timeout", int(defaultCfg.Timeout/time.Second), "Per-request timeout (seconds)")
	maxRetries := flag.Int("max-retries", defaultCfg.MaxRetries, "Attempts per URL before it is marked failed")
	retryBackoffMs := flag.Int("retry-backoff", int(defaultCfg.RetryBackoff/time.Millisecond), "Initial retry backoff (milliseconds)")
	retryBackoffMaxMs := flag.Int("retry-backoff-max", int(defaultCfg.RetryBackoffMax/time.Millisecond), "Maximum retry backoff (milliseconds)")
	outputFile := flag.String("output", outputDefault, "Output file path")
	outputFormat := flag.String("format", defaultCfg.OutputFormat, "Output format: csv, json, or dual")
	logFile := flag.String("log-file", defaultCfg.LogFile, "Persistent log file path")
	metricsAddr := flag.String("metrics-addr", metricsDefault, "Prometheus metrics listen address (e.g. :9090)")
	verbose := flag.Bool("v", false, "Enable verbose logging")

	flag.Parse()

	cfg := defaultCfg
	cfg.BaseURL = *baseURL
	cfg.Parallelism = *parallelism
	cfg.DiscoveryWorkers = *discoveryWorkers
	cfg.Delay = time.Duration(*delayMs) * time.Millisecond
	cfg.Timeout = time.Duration(*timeoutSec) * time.Second
	cfg.MaxRetries = *maxRetries
	cfg.RetryBackoff = time.Duration(*retryBackoffMs) * time.Millisecond
	cfg.RetryBackoffMax = time.Duration(*retryBackoffMaxMs) * time.Millisecond
	cfg.OutputFile = *outputFile
	cfg.OutputFormat = strings.ToLower(*outputFormat)
	cfg.LogFile = *logFile
	cfg.MetricsAddr = *metricsAddr
	cfg.Verbose = *verbose

	logger, logClose, err := newLogger(cfg.Verbose, cfg.LogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open log file: %v\n", err)
		os.Exit(1)
	}
	defer logClose()
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	slog.Info("starting member scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("sections", len(cfg.SectionPaths)),
		slog.Int("workers", cfg.Parallelism),
	)

	s, err := scraper.NewScraper(cfg)
	if err != nil {
		slog.Error("initialising scraper", slog.Any("error", err))
		os.Exit(1)
	}

	writer, err := createWriter(cfg.OutputFormat, cfg.OutputFile)
	if err != nil {
		slog.Error("creating writer", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := writer.Close(); err != nil {
			slog.Error("close writer", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received, exporting what has been scraped so far")
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:    cfg.MetricsAddr,
			Handler: promhttp.HandlerFor(s.Metrics.Registry, promhttp.HandlerOpts{}),
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
	}

	p, err := pipeline.NewPipeline(writer, cfg)
	if err != nil {
		slog.Error("initialising pipeline", slog.Any("error", err))
		os.Exit(1)
	}
	p.Start(4)
	if cfg.Verbose {
		p.StartMetricsReporting(10 * time.Second)
	}

	result, err := s.Run(ctx, p)
	if err != nil && !errors.Is(err, context.Canceled) {
		closeErr := p.Close()
		if errors.Is(err, scraper.ErrNoMembersFound) {
			slog.Error("no member URLs found, scraping aborted")
		} else {
			slog.Error("scraping failed", slog.Any("error", err))
		}
		if closeErr != nil {
			slog.Error("pipeline shutdown failed", slog.Any("error", closeErr))
		}
		os.Exit(1)
	}

	if err := p.Close(); err != nil {
		slog.Error("pipeline shutdown failed", slog.Any("error", err))
		os.Exit(1)
	}

	if result == nil {
		// Interrupted before discovery finished.
		now := time.Now()
		result = &models.ScrapeResult{StartTime: now, EndTime: now}
	}

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("metrics server shutdown failed", slog.Any("error", err))
		}
		cancel()
	}

	records := p.Records()
	if err := writer.Validate(); err != nil {
		slog.Error("output validation failed", slog.Any("error", err))
	}

	report := pipeline.BuildReport(records)
	report.Log()

	interrupted := ctx.Err() != nil
	outputPath := cfg.OutputFile
	if interrupted && len(records) > 0 {
		outputPath = partialPath(cfg.OutputFile)
		if err := os.Rename(cfg.OutputFile, outputPath); err != nil {
			slog.Error("rename partial output failed", slog.Any("error", err))
			outputPath = cfg.OutputFile
		}
	}

	printSummary(result, report, outputPath, interrupted)
}

func createWriter(format, filename string) (pipeline.OutputWriter, error) {
	switch format {
	case "json":
		return pipeline.NewJSONWriter(filename)
	case "csv":
		return pipeline.NewCSVWriter(filename)
	case "dual":
		jsonFilename := strings.TrimSuffix(filename, ".csv") + ".json"
		return pipeline.NewDualWriter(filename, jsonFilename)
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

func printSummary(result *models.ScrapeResult, report *pipeline.Report, outputPath string, interrupted bool) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if interrupted {
		fmt.Println("Scrape interrupted, partial export written")
	} else {
		fmt.Println("Scrape complete")
	}

	duration := result.EndTime.Sub(result.StartTime)
	successRate := 0.0
	if result.Discovered > 0 {
		successRate = float64(result.TotalScraped) / float64(result.Discovered) * 100
	}
	rate := 0.0
	if duration.Seconds() > 0 {
		rate = float64(result.TotalScraped) / duration.Seconds()
	}

	fmt.Printf("  Members found:   %d\n", result.Discovered)
	fmt.Printf("  Members scraped: %d\n", result.TotalScraped)
	fmt.Printf("  Recovered:       %d\n", result.Recovered)
	fmt.Printf("  Failed URLs:     %d\n", len(result.FailedURLs))
	fmt.Printf("  Success rate:    %.1f%%\n", successRate)
	fmt.Printf("  Requests:        %d\n", result.RequestCount)
	fmt.Printf("  Retries:         %d\n", result.RetryCount)
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:     %v\n", result.ErrorsByType)
	}
	fmt.Printf("  Duration:        %v\n", duration)
	fmt.Printf("  Members/sec:     %.2f\n", rate)
	fmt.Printf("  Data fill rate:  %.1f%%\n", report.FillRate())
	fmt.Printf("  Output file:     %s\n", outputPath)

	if len(result.FailedURLs) > 0 {
		fmt.Println("\nFailed URLs (also in the log):")
		for i, url := range result.FailedURLs {
			if i >= 5 {
				fmt.Printf("  ... and %d more\n", len(result.FailedURLs)-5)
				break
			}
			fmt.Printf("  - %s\n", url)
		}
	}
	fmt.Println(separator)
}

func partialPath(output string) string {
	dir := filepath.Dir(output)
	base := filepath.Base(output)
	return filepath.Join(dir, "partial_"+base)
}

func newLogger(verbose bool, logFile string) (*slog.Logger, func(), error) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	sink := io.Writer(os.Stdout)
	closeFn := func() {}
	if logFile != "" {
		if dir := filepath.Dir(logFile); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, err
			}
		}
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		sink = io.MultiWriter(os.Stdout, f)
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(sink, opts)
	} else {
		handler = slog.NewJSONHandler(sink, opts)
	}

	return slog.New(handler), closeFn, nil
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
