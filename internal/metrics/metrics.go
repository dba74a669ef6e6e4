// Package metrics provides Prometheus metrics collection for packing runs.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	dto "github.com/prometheus/client_model/go"

	"github.com/eugenenazirov/picklists/internal/packer"
)

// Run status label values.
const (
	StatusSuccess    = "success"
	StatusUnpackable = "unpackable"
	StatusInvalid    = "invalid"
	StatusCanceled   = "canceled"
	StatusError      = "error"
)

// Metrics holds the packing collectors. It implements packer.Observer.
type Metrics struct {
	registry prometheus.Gatherer

	RunsTotal       *prometheus.CounterVec
	PicklistsTotal  *prometheus.CounterVec
	ItemLinesTotal  prometheus.Counter
	RejectedLines   prometheus.Counter
	RunDuration     prometheus.Histogram
	PicklistsPerRun prometheus.Histogram
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	return NewWithRegistry(reg, reg)
}

// NewWithRegistry registers the collectors on reg and serves them from gatherer.
func NewWithRegistry(reg prometheus.Registerer, gatherer prometheus.Gatherer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		registry: gatherer,

		RunsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "picklist_pack_runs_total",
				Help: "Total number of packing runs by outcome",
			},
			[]string{"status"},
		),

		PicklistsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "picklists_generated_total",
				Help: "Total number of sealed picklists by type",
			},
			[]string{"type"},
		),

		ItemLinesTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "picklist_item_lines_total",
				Help: "Total number of item lines submitted for packing",
			},
		),

		RejectedLines: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "picklist_rejected_lines_total",
				Help: "Item lines set aside because a single unit exceeds the weight cap",
			},
		),

		RunDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "picklist_pack_duration_seconds",
				Help:    "Packing run duration in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
			},
		),

		PicklistsPerRun: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "picklists_per_run",
				Help:    "Number of picklists produced by one run",
				Buckets: prometheus.ExponentialBuckets(1, 4, 8),
			},
		),
	}
}

// ObservePack records a finished packing run.
func (m *Metrics) ObservePack(stats packer.RunStats) {
	m.RunsTotal.WithLabelValues(status(stats.Err)).Inc()
	m.ItemLinesTotal.Add(float64(stats.Items))
	m.RunDuration.Observe(stats.Duration.Seconds())
	if stats.Err != nil {
		return
	}
	m.PicklistsTotal.WithLabelValues(string(packer.TypeNormal)).Add(float64(stats.Picklists - stats.Fragile))
	m.PicklistsTotal.WithLabelValues(string(packer.TypeFragile)).Add(float64(stats.Fragile))
	m.RejectedLines.Add(float64(stats.Rejected))
	m.PicklistsPerRun.Observe(float64(stats.Picklists))
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Snapshot flattens the gathered metrics into name{labels} keys. Histograms
// contribute _count and _sum entries.
func (m *Metrics) Snapshot() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, err
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName() + labelString(metric.GetLabel())
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			case metric.GetHistogram() != nil:
				h := metric.GetHistogram()
				out[key+"_count"] = float64(h.GetSampleCount())
				out[key+"_sum"] = h.GetSampleSum()
			}
		}
	}
	return out, nil
}

func labelString(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, fmt.Sprintf("%s=%q", l.GetName(), l.GetValue()))
	}
	return "{" + strings.Join(parts, ",") + "}"
}

func status(err error) string {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, packer.ErrUnpackableItem):
		return StatusUnpackable
	case errors.Is(err, packer.ErrInvalidItem):
		return StatusInvalid
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StatusCanceled
	default:
		return StatusError
	}
}
