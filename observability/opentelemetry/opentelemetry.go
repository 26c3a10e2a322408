// Copyright 2021-2025
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package opentelemetry configures span export for the holdings service
package opentelemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/penny-vault/pv-holdings/common"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.10.0"
)

// Name is the instrumentation name every tracer in the module uses
const Name = "github.com/penny-vault/pv-holdings"

// ShutdownFunc flushes buffered spans
type ShutdownFunc func(context.Context) error

// Setup installs a global tracer provider exporting to otlp.endpoint. Without
// an endpoint tracing stays disabled and the returned ShutdownFunc does nothing.
func Setup() (ShutdownFunc, error) {
	endpoint := viper.GetString("otlp.endpoint")
	if endpoint == "" {
		log.Info().Msg("no otlp endpoint configured; tracing disabled")
		return func(context.Context) error { return nil }, nil
	}

	ctx := context.Background()
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(common.ProgramName),
			semconv.ServiceVersionKey.String(common.CurrentVersion.String()),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	exporter, err := otlptrace.New(ctx, newClient(endpoint))
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	sampler := sdktrace.AlwaysSample()
	if ratio := viper.GetFloat64("otlp.sample_ratio"); ratio > 0 && ratio < 1 {
		sampler = sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sampler),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return provider.Shutdown, nil
}

// newClient selects the OTLP transport from otlp.http and otlp.insecure
func newClient(endpoint string) otlptrace.Client {
	headers := viper.GetStringMapString("otlp.headers")
	insecure := viper.GetBool("otlp.insecure")

	if viper.GetBool("otlp.http") {
		log.Info().Str("Endpoint", endpoint).Bool("Insecure", insecure).Msg("exporting spans over HTTP")
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint), otlptracehttp.WithHeaders(headers)}
		if insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.NewClient(opts...)
	}

	log.Info().Str("Endpoint", endpoint).Bool("Insecure", insecure).Msg("exporting spans over gRPC")
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint), otlptracegrpc.WithHeaders(headers)}
	if insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.NewClient(opts...)
}

// SpanAttributesFromFiber describes the client and target of an HTTP request
func SpanAttributesFromFiber(c *fiber.Ctx) []attribute.KeyValue {
	return []attribute.KeyValue{
		semconv.HTTPClientIPKey.String(c.IP()),
		semconv.HTTPMethodKey.String(c.Method()),
		semconv.HTTPTargetKey.String(c.OriginalURL()),
		semconv.HTTPUserAgentKey.String(string(c.Context().UserAgent())),
	}
}
