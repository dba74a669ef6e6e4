package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenenazirov/picklists/internal/config"
	"github.com/eugenenazirov/picklists/internal/export"
	"github.com/eugenenazirov/picklists/internal/normalizer"
	"github.com/eugenenazirov/picklists/internal/packer"
	"github.com/eugenenazirov/picklists/internal/report"
)

// ErrNoInput is returned by Generate when no input CSV is configured.
var ErrNoInput = errors.New("no input CSV configured")

// Pipeline runs the batch flows: CSV in, picklist files and an evaluation report out.
type Pipeline struct {
	cfg      config.Config
	logger   *zap.Logger
	observer packer.Observer
	clock    func() time.Time
	newRunID func() string
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithObserver attaches a packing observer, typically *metrics.Metrics.
func WithObserver(o packer.Observer) PipelineOption {
	return func(p *Pipeline) {
		p.observer = o
	}
}

// WithPipelineClock overrides the clock used to date picklist file names.
func WithPipelineClock(clock func() time.Time) PipelineOption {
	return func(p *Pipeline) {
		p.clock = clock
	}
}

// WithRunID overrides run id generation.
func WithRunID(gen func() string) PipelineOption {
	return func(p *Pipeline) {
		p.newRunID = gen
	}
}

// NewPipeline builds a batch pipeline for cfg.
func NewPipeline(cfg config.Config, logger *zap.Logger, opts ...PipelineOption) *Pipeline {
	p := &Pipeline{
		cfg:      cfg,
		logger:   logger,
		clock:    time.Now,
		newRunID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Outcome describes one Generate run.
type Outcome struct {
	RunID  string
	Stats  normalizer.Stats
	Result packer.Result
	Report report.Report
}

// Generate reads the configured input CSV, packs it, writes picklist files and the
// summary, then renders the evaluation report to out.
func (p *Pipeline) Generate(ctx context.Context, out io.Writer) (Outcome, error) {
	if p.cfg.InputPath == "" {
		return Outcome{}, ErrNoInput
	}

	runID := p.newRunID()
	logger := p.logger.With(zap.String("run_id", runID))

	f, err := os.Open(p.cfg.InputPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()

	items, stats, err := normalizer.New(normalizer.WithMaxRows(p.cfg.MaxRows)).Normalize(f)
	if err != nil {
		return Outcome{}, fmt.Errorf("normalize %s: %w", p.cfg.InputPath, err)
	}
	logger.Info("input normalized",
		zap.String("input", p.cfg.InputPath),
		zap.Int("rows", stats.Rows),
		zap.Strings("missing_columns", stats.Missing),
		zap.Any("defaulted_fields", stats.Defaulted),
	)

	opts := []packer.Option{
		packer.WithWorkers(p.cfg.Workers),
		packer.WithClock(p.clock),
		packer.WithRejectUnpackable(p.cfg.RejectUnpackable),
	}
	if p.observer != nil {
		opts = append(opts, packer.WithObserver(p.observer))
	}
	pk, err := packer.New(p.cfg.Capacity, opts...)
	if err != nil {
		return Outcome{}, err
	}

	start := time.Now()
	res, err := pk.Pack(ctx, items)
	if err != nil {
		return Outcome{}, fmt.Errorf("pack: %w", err)
	}
	logger.Info("packing completed",
		zap.Int("items", len(items)),
		zap.Int("picklists", res.TotalPicklists),
		zap.Duration("duration", time.Since(start)),
	)
	for _, rej := range res.Rejected {
		logger.Warn("item set aside",
			zap.String("order_id", rej.Item.OrderID),
			zap.String("sku", rej.Item.SKU),
			zap.String("zone", rej.Item.Zone),
			zap.String("reason", rej.Reason),
		)
	}

	if err := export.NewWriter(p.cfg.OutputDir, p.cfg.SummaryPath).Write(res); err != nil {
		return Outcome{}, fmt.Errorf("export: %w", err)
	}
	logger.Info("picklists written",
		zap.String("output_dir", p.cfg.OutputDir),
		zap.String("summary", p.cfg.SummaryPath),
	)

	rep := report.Evaluate(res.Summary, p.cfg.Capacity)
	if err := report.Write(out, rep, p.cfg.ReportFormat); err != nil {
		return Outcome{}, fmt.Errorf("write report: %w", err)
	}

	return Outcome{RunID: runID, Stats: stats, Result: res, Report: rep}, nil
}

// Evaluate reads the configured summary file and renders its evaluation report to out.
func (p *Pipeline) Evaluate(out io.Writer) (report.Report, error) {
	rows, err := export.ReadSummaryFile(p.cfg.SummaryPath)
	if err != nil {
		return report.Report{}, err
	}
	p.logger.Info("summary loaded", zap.String("summary", p.cfg.SummaryPath), zap.Int("picklists", len(rows)))

	rep := report.Evaluate(rows, p.cfg.Capacity)
	if err := report.Write(out, rep, p.cfg.ReportFormat); err != nil {
		return report.Report{}, fmt.Errorf("write report: %w", err)
	}
	return rep, nil
}
