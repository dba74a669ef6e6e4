package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"go.uber.org/zap"

	"github.com/eugenenazirov/picklists/internal/application"
	"github.com/eugenenazirov/picklists/internal/config"
	"github.com/eugenenazirov/picklists/internal/logging"
	"github.com/eugenenazirov/picklists/internal/metrics"
)

var signalNotify = signal.Notify

const (
	cmdGenerate = "generate"
	cmdEvaluate = "evaluate"
	cmdServe    = "serve"
)

// cli holds parsed flags. Numeric flags default to -1 meaning "not set".
type cli struct {
	app *kingpin.Application

	configFile       *string
	logLevel         *string
	unitCap          *int
	normalWeightCap  *float64
	fragileWeightCap *float64
	workers          *int
	rejectUnpackable *bool
	rejectSet        bool
	reportFormat     *string
	input            *string
	outputDir        *string
	generateSummary  *string
	maxRows          *int
	evaluateSummary  *string
	port             *string
	rateLimitRPS     *float64
	rateLimitBurst   *int
}

func newCLI() *cli {
	c := &cli{}
	c.app = kingpin.New("picklists", "Picklist generator - packs order lines into zone and fragility segregated picklists")

	c.configFile = c.app.Flag("config", "Path to YAML configuration file").String()
	c.logLevel = c.app.Flag("log-level", "Log level (debug, info, warn, error)").String()
	c.unitCap = c.app.Flag("unit-cap", "Maximum units per picklist").Default("-1").Int()
	c.normalWeightCap = c.app.Flag("normal-weight-cap", "Weight cap in kg for normal picklists").Default("-1").Float64()
	c.fragileWeightCap = c.app.Flag("fragile-weight-cap", "Weight cap in kg for fragile picklists").Default("-1").Float64()
	c.workers = c.app.Flag("workers", "Number of zone groups packed concurrently").Default("-1").Int()
	c.rejectUnpackable = c.app.Flag("reject-unpackable", "Set aside items heavier than the weight cap instead of failing").
		Action(func(*kingpin.ParseContext) error {
			c.rejectSet = true
			return nil
		}).Bool()
	c.reportFormat = c.app.Flag("format", "Evaluation report format (text, json)").String()

	generate := c.app.Command(cmdGenerate, "Generate picklists from an order CSV and evaluate them")
	c.input = generate.Arg("input", "Order CSV file").String()
	c.outputDir = generate.Flag("output-dir", "Directory for picklist CSV files").String()
	c.generateSummary = generate.Flag("summary", "Path of the summary CSV").String()
	c.maxRows = generate.Flag("max-rows", "Read at most this many rows (0 reads all)").Default("-1").Int()

	evaluate := c.app.Command(cmdEvaluate, "Evaluate an existing summary CSV")
	c.evaluateSummary = evaluate.Arg("summary", "Path of the summary CSV").String()

	serve := c.app.Command(cmdServe, "Serve the picklist HTTP API")
	c.port = serve.Flag("port", "HTTP port exposed by the service").String()
	c.rateLimitRPS = serve.Flag("rate-limit-rps", "Requests per second allowed (set 0 to disable)").Default("-1").Float64()
	c.rateLimitBurst = serve.Flag("rate-limit-burst", "Burst capacity for rate limiter (set 0 to disable)").Default("-1").Int()

	return c
}

// overrides converts the parsed flags into config overrides for command.
func (c *cli) overrides(command string) *config.CLIOverrides {
	o := &config.CLIOverrides{
		ConfigFile:   *c.configFile,
		LogLevel:     c.logLevel,
		ReportFormat: c.reportFormat,
		Port:         c.port,
		InputPath:    c.input,
		OutputDir:    c.outputDir,
	}
	if *c.unitCap >= 0 {
		o.UnitCap = c.unitCap
	}
	if *c.normalWeightCap >= 0 {
		o.NormalWeightCapKg = c.normalWeightCap
	}
	if *c.fragileWeightCap >= 0 {
		o.FragileWeightCapKg = c.fragileWeightCap
	}
	if *c.workers >= 0 {
		o.Workers = c.workers
	}
	if c.rejectSet {
		o.RejectUnpackable = c.rejectUnpackable
	}
	if *c.maxRows >= 0 {
		o.MaxRows = c.maxRows
	}
	if *c.rateLimitRPS >= 0 {
		o.RateLimitRPS = c.rateLimitRPS
	}
	if *c.rateLimitBurst >= 0 {
		o.RateLimitBurst = c.rateLimitBurst
	}
	switch command {
	case cmdGenerate:
		o.SummaryPath = c.generateSummary
	case cmdEvaluate:
		o.SummaryPath = c.evaluateSummary
	}
	return o
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	c := newCLI()
	command, err := c.app.Parse(args)
	if err != nil {
		return err
	}

	cfg, err := config.Load(c.overrides(command))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	switch command {
	case cmdGenerate:
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		m := metrics.New()
		pipeline := application.NewPipeline(cfg, logger, application.WithObserver(m))
		_, err := pipeline.Generate(ctx, stdout)
		logRunMetrics(logger, m)
		if err != nil {
			logger.Error("generate failed", zap.Error(err))
			return err
		}
	case cmdEvaluate:
		if _, err := application.NewPipeline(cfg, logger).Evaluate(stdout); err != nil {
			logger.Error("evaluate failed", zap.Error(err))
			return err
		}
	case cmdServe:
		app, err := application.New(cfg, logger)
		if err != nil {
			logger.Error("failed to initialize application", zap.Error(err))
			return err
		}
		return shutdown(app.Server(), app.Start(), cfg.ShutdownGracePeriod, logger)
	}
	return nil
}

// logRunMetrics logs the packing counters collected during a batch run.
func logRunMetrics(logger *zap.Logger, m *metrics.Metrics) {
	snap, err := m.Snapshot()
	if err != nil {
		logger.Warn("gather metrics failed", zap.Error(err))
		return
	}
	logger.Info("run metrics", zap.Any("metrics", snap))
}

// shutdown waits for a termination signal or a serve error, then stops the server.
func shutdown(server *http.Server, serveErr <-chan error, timeout time.Duration, logger *zap.Logger) error {
	quit := make(chan os.Signal, 1)
	signalNotify(quit, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
	case err, ok := <-serveErr:
		if ok && err != nil {
			logger.Error("server error", zap.Error(err))
			return err
		}
	}
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
		if closeErr := server.Close(); closeErr != nil {
			logger.Error("forced close failed", zap.Error(closeErr))
		}
	}
	return nil
}
