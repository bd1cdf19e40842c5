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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/heroiclabs/reconciler/iap"
	"github.com/heroiclabs/reconciler/server"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	version  string = "1.0.0"
	commitID string = "dev"
)

func main() {
	semver := fmt.Sprintf("%s+%s", version, commitID)
	// Always set default timeout on HTTP client.
	http.DefaultClient.Timeout = 1500 * time.Millisecond

	tmpLogger := server.NewJSONLogger(os.Stdout, zapcore.InfoLevel, server.JSONFormat)

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "--version":
			fmt.Println(semver)
			return
		}
	}

	config := server.ParseArgs(tmpLogger, os.Args)
	if err := server.ValidateConfig(config); err != nil {
		tmpLogger.Fatal("Invalid configuration", zap.Error(err))
	}
	logger, startupLogger := server.SetupLogging(tmpLogger, config)

	startupLogger.Info("Reconciler starting")
	startupLogger.Info("Node", zap.String("name", config.GetName()), zap.String("version", semver), zap.String("runtime", runtime.Version()), zap.Int("cpu", runtime.NumCPU()))
	startupLogger.Info("Data directory", zap.String("path", config.GetDataDir()))

	metrics := server.NewLocalMetrics(logger, startupLogger, config)

	receipts, redisClient := receiptStore(startupLogger, config)

	appleConfig := config.GetPurchase().Apple
	appleClient := iap.NewAppleClient(logger, &http.Client{Timeout: time.Duration(appleConfig.TimeoutMs) * time.Millisecond}, iap.AppleClientConfig{
		SharedPassword:         appleConfig.SharedPassword,
		ExcludeOldTransactions: appleConfig.ExcludeOldTransactions,
		SandboxUrl:             appleConfig.SandboxUrl,
		ProductionUrl:          appleConfig.ProductionUrl,
	})
	startupLogger.Info("Receipt verification", zap.String("environment", appleConfig.Environment), zap.String("receipt_store", config.GetPurchase().ReceiptStore))

	lookup := productLookup(startupLogger, config)
	catalog := server.NewProductCatalog(logger, metrics, lookup, time.Duration(config.GetCatalog().TimeoutMs)*time.Millisecond)

	localNotifier := server.NewLocalNotifier(logger, config.GetNotifier().SubscriberBufferSize)
	notifiers := server.MultiNotifier{localNotifier}
	var natsConn *nats.Conn
	if natsUrl := config.GetNotifier().NatsUrl; natsUrl != "" {
		var err error
		natsConn, err = nats.Connect(natsUrl, nats.Name(config.GetName()))
		if err != nil {
			startupLogger.Fatal("Error connecting to NATS", zap.String("url", natsUrl), zap.Error(err))
		}
		notifiers = append(notifiers, server.NewNatsNotifier(logger, natsConn, config.GetNotifier().Subject))
		startupLogger.Info("Publishing entitlement notifications to NATS", zap.String("url", natsUrl), zap.String("subject", config.GetNotifier().Subject))
	}

	queue := server.NewLocalPaymentQueue(logger, 128)
	ledger := server.NewTransactionLedger()
	coordinator, err := server.NewPurchaseCoordinator(logger, config, metrics, queue, receipts, appleClient, catalog, ledger, notifiers)
	if err != nil {
		startupLogger.Fatal("Failed to create purchase coordinator", zap.Error(err))
	}

	if ids := config.GetCatalog().ProductIDs; len(ids) > 0 {
		if err := coordinator.FetchProducts(context.Background(), ids, func(products []*server.ProductDescriptor, err error) {
			if err != nil {
				return
			}
			logger.Info("Products loaded", zap.Int("count", len(products)))
		}); err != nil {
			startupLogger.Error("Failed to start product lookup", zap.Error(err))
		}
	}

	apiServer := server.StartApiServer(logger, startupLogger, config, coordinator, queue, receipts, localNotifier)

	// Respect OS stop signals.
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	startupLogger.Info("Startup done")

	// Wait for a termination signal.
	<-c

	server.HandleShutdown(startupLogger, coordinator, config.GetShutdownGraceSec(), c)

	apiServer.Stop()
	queue.Stop()
	if natsConn != nil {
		if err := natsConn.Drain(); err != nil {
			startupLogger.Error("Error draining NATS connection", zap.Error(err))
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			startupLogger.Error("Error closing Redis client", zap.Error(err))
		}
	}
	metrics.Stop(logger)

	startupLogger.Info("Shutdown complete")

	os.Exit(0)
}

func receiptStore(startupLogger *zap.Logger, config server.Config) (iap.ReceiptStore, redis.UniversalClient) {
	switch config.GetPurchase().ReceiptStore {
	case server.ReceiptStoreMemory:
		return iap.NewMemoryReceiptStore(), nil
	case server.ReceiptStoreRedis:
		redisConfig := config.GetPurchase().Redis
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    []string{redisConfig.Address},
			Password: redisConfig.Password,
			DB:       redisConfig.DB,
		})
		ctx, ctxCancelFn := context.WithTimeout(context.Background(), 5*time.Second)
		defer ctxCancelFn()
		if err := client.Ping(ctx).Err(); err != nil {
			startupLogger.Fatal("Error pinging Redis", zap.String("address", redisConfig.Address), zap.Error(err))
		}
		return iap.NewRedisReceiptStore(client, redisConfig.Key), client
	default:
		return iap.NewFileReceiptStore(config.GetPurchase().ReceiptPath), nil
	}
}

func productLookup(startupLogger *zap.Logger, config server.Config) server.ProductLookup {
	catalogConfig := config.GetCatalog()
	if catalogConfig.LookupUrl != "" {
		startupLogger.Info("Remote product lookup", zap.String("url", catalogConfig.LookupUrl))
		return server.NewRemoteProductLookup(nil, catalogConfig.LookupUrl, time.Duration(catalogConfig.TimeoutMs)*time.Millisecond)
	}
	lookup, err := server.NewStaticProductLookup(catalogConfig.Products)
	if err != nil {
		startupLogger.Fatal("Invalid static product configuration", zap.Error(err))
	}
	startupLogger.Info("Static product lookup", zap.Int("products", len(catalogConfig.Products)))
	return lookup
}
