// Copyright 2026 The Nakama Authors
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

package server

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/uber-go/tally/v4"
	"github.com/uber-go/tally/v4/prometheus"
	"go.uber.org/zap"
)

type Metrics interface {
	Stop(logger *zap.Logger)

	TransactionEvent(state TransactionState)
	DuplicateDelivery()
	Acknowledged()
	VerificationLatency(elapsed time.Duration, outcome string)
	PurchaseOutcome(outcome string)
	EntitlementNotified()
	CatalogLookup(elapsed time.Duration, outcome string)
}

type LocalMetrics struct {
	logger *zap.Logger
	config Config

	cancelFn context.CancelFunc

	scope       tally.Scope
	scopeCloser io.Closer

	prometheusHTTPServer *http.Server
}

func NewLocalMetrics(logger, startupLogger *zap.Logger, config Config) *LocalMetrics {
	ctx, cancelFn := context.WithCancel(context.Background())

	m := &LocalMetrics{
		logger:   logger,
		config:   config,
		cancelFn: cancelFn,
	}

	tags := map[string]string{"node_name": config.GetName()}
	if namespace := config.GetMetrics().Namespace; namespace != "" {
		tags["namespace"] = namespace
	}

	reporter := prometheus.NewReporter(prometheus.Options{
		OnRegisterError: func(e error) {
			logger.Error("Error registering Prometheus metric", zap.Error(e))
		},
	})
	m.scope, m.scopeCloser = tally.NewRootScope(tally.ScopeOptions{
		Prefix:          config.GetMetrics().Prefix,
		Tags:            tags,
		CachedReporter:  reporter,
		Separator:       prometheus.DefaultSeparator,
		SanitizeOptions: &prometheus.DefaultSanitizerOpts,
	}, time.Duration(config.GetMetrics().ReportingFreqSec)*time.Second)

	if config.GetMetrics().PrometheusPort > 0 {
		// Create a mux router for metrics, which is exposed on a separate port to the API.
		router := mux.NewRouter()
		router.Handle("/", reporter.HTTPHandler()).Methods(http.MethodGet)
		CORSHeaders := handlers.AllowedHeaders([]string{"Content-Type", "User-Agent"})
		CORSOrigins := handlers.AllowedOrigins([]string{"*"})
		CORSMethods := handlers.AllowedMethods([]string{http.MethodGet, http.MethodHead})
		handlerWithCORS := handlers.CORS(CORSHeaders, CORSOrigins, CORSMethods)(router)
		m.prometheusHTTPServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", config.GetMetrics().PrometheusPort),
			ReadTimeout:  time.Millisecond * time.Duration(int64(config.GetApi().ReadTimeoutMs)),
			WriteTimeout: time.Millisecond * time.Duration(int64(config.GetApi().WriteTimeoutMs)),
			IdleTimeout:  time.Millisecond * time.Duration(int64(config.GetApi().IdleTimeoutMs)),
			Handler:      handlerWithCORS,
			BaseContext: func(_ net.Listener) context.Context {
				return ctx
			},
		}

		startupLogger.Info("Starting Prometheus server for metrics requests", zap.Int("port", config.GetMetrics().PrometheusPort))
		go func() {
			if err := m.prometheusHTTPServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				startupLogger.Fatal("Prometheus listener failed", zap.Error(err))
			}
		}()
	}

	return m
}

// NewLocalMetricsWithScope reports into an existing scope and serves no Prometheus endpoint.
func NewLocalMetricsWithScope(logger *zap.Logger, scope tally.Scope) *LocalMetrics {
	return &LocalMetrics{
		logger:   logger,
		cancelFn: func() {},
		scope:    scope,
	}
}

func (m *LocalMetrics) Stop(logger *zap.Logger) {
	if m.prometheusHTTPServer != nil {
		// Stop Prometheus server if one is running.
		if err := m.prometheusHTTPServer.Shutdown(context.Background()); err != nil {
			logger.Error("Prometheus listener shutdown failed", zap.Error(err))
		}
	}

	// Close the scope to ensure a final report is flushed.
	if m.scopeCloser != nil {
		if err := m.scopeCloser.Close(); err != nil {
			logger.Error("Error stopping metrics", zap.Error(err))
		}
	}

	m.cancelFn()
}

func (m *LocalMetrics) TransactionEvent(state TransactionState) {
	m.scope.Tagged(map[string]string{"state": state.String()}).Counter("transaction_events").Inc(1)
}

func (m *LocalMetrics) DuplicateDelivery() {
	m.scope.Counter("transaction_duplicate_deliveries").Inc(1)
}

func (m *LocalMetrics) Acknowledged() {
	m.scope.Counter("transaction_acknowledged").Inc(1)
}

func (m *LocalMetrics) VerificationLatency(elapsed time.Duration, outcome string) {
	scope := m.scope.Tagged(map[string]string{"outcome": outcome})
	scope.Counter("receipt_verifications").Inc(1)
	scope.Timer("receipt_verification_latency").Record(elapsed)
}

func (m *LocalMetrics) PurchaseOutcome(outcome string) {
	m.scope.Tagged(map[string]string{"outcome": outcome}).Counter("purchase_outcomes").Inc(1)
}

func (m *LocalMetrics) EntitlementNotified() {
	m.scope.Counter("entitlement_notifications").Inc(1)
}

func (m *LocalMetrics) CatalogLookup(elapsed time.Duration, outcome string) {
	scope := m.scope.Tagged(map[string]string{"outcome": outcome})
	scope.Counter("catalog_lookups").Inc(1)
	scope.Timer("catalog_lookup_latency").Record(elapsed)
}
