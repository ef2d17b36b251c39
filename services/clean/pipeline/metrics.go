// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package pipeline

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("rficlean.pipeline")

// =============================================================================
// Prometheus Metrics for Cleaning
// =============================================================================

// Metrics counts batch outcomes. A one-shot CLI run has no scrape
// endpoint, so metrics live in their own registry and are written to a
// node_exporter textfile at the end of the batch.
type Metrics struct {
	registry *prometheus.Registry

	// files counts processed files.
	// Labels: status (ok, failed)
	files *prometheus.CounterVec

	// failures counts failures by the stage that failed.
	// Labels: stage
	failures *prometheus.CounterVec

	// stageDuration measures each stage.
	// Labels: stage
	stageDuration *prometheus.HistogramVec

	// excluded counts slices zero-weighted.
	// Labels: axis (channel, subint), by (deweight, clean)
	excluded *prometheus.CounterVec

	// hotBins counts repaired bins.
	hotBins prometheus.Counter
}

// NewMetrics registers the cleaning metrics in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		files: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rficlean",
			Name:      "files_total",
			Help:      "Files processed by status",
		}, []string{"status"}),
		failures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rficlean",
			Name:      "failures_total",
			Help:      "File failures by stage",
		}, []string{"stage"}),
		stageDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "rficlean",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each cleaning stage",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
		}, []string{"stage"}),
		excluded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "rficlean",
			Name:      "excluded_slices_total",
			Help:      "Channels and sub-integrations zero-weighted",
		}, []string{"axis", "by"}),
		hotBins: f.NewCounter(prometheus.CounterOpts{
			Namespace: "rficlean",
			Name:      "hot_bins_total",
			Help:      "Hot bins repaired",
		}),
	}
}

// Registry returns the registry holding the metrics.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// WriteTextfile writes the current values in the Prometheus text format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func (m *Metrics) observeStage(stage Stage, d time.Duration) {
	if m == nil {
		return
	}
	m.stageDuration.WithLabelValues(string(stage)).Observe(d.Seconds())
}

func (m *Metrics) observeFile(rep *FileReport, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.files.WithLabelValues("failed").Inc()
		if fe, ok := err.(*FileError); ok {
			m.failures.WithLabelValues(string(fe.Stage)).Inc()
		}
		return
	}
	m.files.WithLabelValues("ok").Inc()
	m.excluded.WithLabelValues("channel", "deweight").Add(float64(rep.DeweightedChannels))
	m.excluded.WithLabelValues("subint", "deweight").Add(float64(rep.DeweightedSubints))
	if rep.Clean != nil {
		m.excluded.WithLabelValues("channel", "clean").Add(float64(len(rep.Clean.ExcludedChannels)))
		m.excluded.WithLabelValues("subint", "clean").Add(float64(len(rep.Clean.ExcludedSubints)))
		m.hotBins.Add(float64(rep.Clean.HotBins))
	}
}

// =============================================================================
// Tracing
// =============================================================================

func startFileSpan(ctx context.Context, runID, file string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline.CleanFile",
		trace.WithAttributes(
			attribute.String("rficlean.run_id", runID),
			attribute.String("rficlean.file", file),
		),
	)
}

func startStageSpan(ctx context.Context, stage Stage) (context.Context, trace.Span) {
	return tracer.Start(ctx, "pipeline."+string(stage))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
