// Copyright 2021 TiFS Authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package monitor wires the process into OpenTelemetry: per-operation spans
// and the commit-latency histogram of the retry driver. Without an exporter
// configured everything degrades to no-ops.
package monitor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/hexilee/tifs"

var (
	commitLatencyOnce sync.Once
	commitLatency     metric.Float64Histogram
)

// EnableOTLPTraceExporter ships spans to the collector behind endpoint.
// Returns a shutdown function flushing outstanding spans.
func EnableOTLPTraceExporter(ctx context.Context, endpoint string) (func(context.Context) error, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating otlp trace exporter: %w", err)
	}
	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
	otel.SetTracerProvider(provider)
	return provider.Shutdown, nil
}

// StartSpan opens a span named after the filesystem operation.
func StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	return otel.Tracer(instrumentationName).Start(ctx, name)
}

// RecordCommit records one successful transaction commit.
func RecordCommit(ctx context.Context, latency time.Duration) {
	commitLatencyOnce.Do(func() {
		var err error
		commitLatency, err = otel.Meter(instrumentationName).Float64Histogram(
			"fs/commit_latency",
			metric.WithUnit("ms"),
		)
		if err != nil {
			commitLatency = nil
		}
	})
	if commitLatency != nil {
		commitLatency.Record(ctx, float64(latency)/float64(time.Millisecond))
	}
}
