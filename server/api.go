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
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/heroiclabs/reconciler/iap"
	"go.uber.org/zap"
)

type ApiServer struct {
	logger      *zap.Logger
	config      Config
	coordinator *PurchaseCoordinator
	queue       *LocalPaymentQueue
	receipts    iap.ReceiptStore
	notifier    *LocalNotifier

	ctx         context.Context
	ctxCancelFn context.CancelFunc

	httpServer *http.Server
}

func NewApiServer(logger *zap.Logger, config Config, coordinator *PurchaseCoordinator, queue *LocalPaymentQueue, receipts iap.ReceiptStore, notifier *LocalNotifier) *ApiServer {
	ctx, ctxCancelFn := context.WithCancel(context.Background())
	return &ApiServer{
		logger:      logger,
		config:      config,
		coordinator: coordinator,
		queue:       queue,
		receipts:    receipts,
		notifier:    notifier,
		ctx:         ctx,
		ctxCancelFn: ctxCancelFn,
	}
}

func StartApiServer(logger *zap.Logger, startupLogger *zap.Logger, config Config, coordinator *PurchaseCoordinator, queue *LocalPaymentQueue, receipts iap.ReceiptStore, notifier *LocalNotifier) *ApiServer {
	s := NewApiServer(logger, config, coordinator, queue, receipts, notifier)

	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%v:%d", config.GetApi().Address, config.GetApi().Port),
		ReadTimeout:    time.Millisecond * time.Duration(int64(config.GetApi().ReadTimeoutMs)),
		WriteTimeout:   time.Millisecond * time.Duration(int64(config.GetApi().WriteTimeoutMs)),
		IdleTimeout:    time.Millisecond * time.Duration(int64(config.GetApi().IdleTimeoutMs)),
		MaxHeaderBytes: 5120,
		Handler:        s.Handler(),
		BaseContext: func(_ net.Listener) context.Context {
			return s.ctx
		},
	}

	startupLogger.Info("Starting API server for HTTP requests", zap.String("address", config.GetApi().Address), zap.Int("port", config.GetApi().Port))
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			startupLogger.Fatal("API server listener failed", zap.Error(err))
		}
	}()

	return s
}

func (s *ApiServer) Stop() {
	// Hijacked notification streams are not tracked by the HTTP server, the context ends them.
	s.ctxCancelFn()
	if s.httpServer == nil {
		return
	}
	if err := s.httpServer.Shutdown(context.Background()); err != nil {
		s.logger.Error("API server listener shutdown failed", zap.Error(err))
	}
}

func (s *ApiServer) Handler() http.Handler {
	router := mux.NewRouter()
	// Do NOT enable compression on the WebSocket route, it results in "http: response.Write on hijacked connection" errors.
	router.HandleFunc("/healthcheck", s.healthcheck).Methods(http.MethodGet)
	router.HandleFunc("/v1/notifications", s.notificationStream).Methods(http.MethodGet)

	apiRouter := router.PathPrefix("/v1").Subrouter()
	apiRouter.Use(handlers.CompressHandler, s.maxBodyMiddleware)
	apiRouter.HandleFunc("/products", s.getProducts).Methods(http.MethodGet)
	apiRouter.HandleFunc("/purchase/{product_id}", s.purchase).Methods(http.MethodPost)
	apiRouter.HandleFunc("/restore", s.restore).Methods(http.MethodPost)
	apiRouter.HandleFunc("/receipt", s.storeReceipt).Methods(http.MethodPut)
	apiRouter.HandleFunc("/queue/transactions", s.deliverTransactions).Methods(http.MethodPost)
	apiRouter.HandleFunc("/queue/transactions", s.listTransactions).Methods(http.MethodGet)
	apiRouter.HandleFunc("/queue/payments", s.listPayments).Methods(http.MethodGet)
	apiRouter.HandleFunc("/queue/restore/finished", s.finishRestore).Methods(http.MethodPost)
	apiRouter.HandleFunc("/queue/redeliver", s.redeliver).Methods(http.MethodPost)

	handlerWithRecovery := handlers.RecoveryHandler(handlers.RecoveryLogger(zap.NewStdLog(s.logger)), handlers.PrintRecoveryStack(true))(router)

	// Enable CORS on all requests.
	CORSHeaders := handlers.AllowedHeaders([]string{"Content-Type", "User-Agent"})
	CORSOrigins := handlers.AllowedOrigins([]string{"*"})
	CORSMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT"})
	return handlers.CORS(CORSHeaders, CORSOrigins, CORSMethods)(handlerWithRecovery)
}

func (s *ApiServer) maxBodyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.GetApi().MaxRequestSizeBytes)
		next.ServeHTTP(w, r)
	})
}

func (s *ApiServer) healthcheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, struct{}{})
}

func (s *ApiServer) waitDuration() time.Duration {
	return time.Duration(s.config.GetApi().WaitMs) * time.Millisecond
}

type apiError struct {
	Error string `json:"error"`
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		logger.Error("Error encoding response", zap.Error(err))
		http.Error(w, "Error encoding response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, err error) {
	writeJSON(logger, w, status, &apiError{Error: err.Error()})
}

// errorStatus maps errors that are refused before anything is enqueued.
func errorStatus(err error) int {
	var maxBytesErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxBytesErr):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrEmptyProductIDs), errors.Is(err, ErrInvalidTransactions):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownProduct):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateIntent):
		return http.StatusConflict
	case errors.Is(err, ErrPaymentsNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, ErrCoordinatorStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, ErrCatalogNetwork):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
