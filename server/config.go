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
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/uuid"
	"github.com/heroiclabs/reconciler/iap"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Config interface is the reconciler configuration.
type Config interface {
	GetName() string
	GetConfig() string
	GetDataDir() string
	GetShutdownGraceSec() int
	GetLogger() *LoggerConfig
	GetMetrics() *MetricsConfig
	GetApi() *ApiConfig
	GetPurchase() *PurchaseConfig
	GetCatalog() *CatalogConfig
	GetNotifier() *NotifierConfig
	GetLedger() *LedgerConfig
}

// ParseArgs loads the YAML file named by --config, if any, then applies command line overrides on top of it.
func ParseArgs(logger *zap.Logger, args []string) Config {
	config := NewConfig(logger)

	if len(args) > 1 {
		pre := pflag.NewFlagSet("reconciler", pflag.ContinueOnError)
		pre.ParseErrorsWhitelist.UnknownFlags = true
		pre.Usage = func() {}
		configPath := pre.String("config", "", "")
		_ = pre.Parse(args[1:])

		if *configPath != "" {
			data, err := os.ReadFile(*configPath)
			if err != nil {
				logger.Fatal("Could not read config file", zap.String("path", *configPath), zap.Error(err))
			}
			if err := yaml.Unmarshal(data, config); err != nil {
				logger.Fatal("Could not parse config file", zap.String("path", *configPath), zap.Error(err))
			}
			config.Config = *configPath
		}
	}

	flagSet := pflag.NewFlagSet("reconciler", pflag.ContinueOnError)
	flagSet.String("config", config.Config, "The absolute file path to configuration YAML file.")
	config.bindFlags(flagSet)
	if len(args) > 1 {
		if err := flagSet.Parse(args[1:]); err != nil {
			logger.Fatal("Could not parse command line arguments", zap.Error(err))
		}
	}

	return config
}

type config struct {
	Name             string          `yaml:"name" json:"name" usage:"Reconciler node name - must be unique."`
	Config           string          `yaml:"config" json:"config" usage:"The absolute file path to configuration YAML file."`
	Datadir          string          `yaml:"data_dir" json:"data_dir" usage:"An absolute path to a writeable folder where the reconciler will store its data."`
	ShutdownGraceSec int             `yaml:"shutdown_grace_sec" json:"shutdown_grace_sec" usage:"Maximum number of seconds to wait for outstanding verifications to complete before shutting down."`
	Logger           *LoggerConfig   `yaml:"logger" json:"logger" usage:"Logger levels and output."`
	Metrics          *MetricsConfig  `yaml:"metrics" json:"metrics" usage:"Metrics settings."`
	Api              *ApiConfig      `yaml:"api" json:"api" usage:"HTTP API settings."`
	Purchase         *PurchaseConfig `yaml:"purchase" json:"purchase" usage:"In-App Purchase verification settings."`
	Catalog          *CatalogConfig  `yaml:"catalog" json:"catalog" usage:"Product catalog settings."`
	Notifier         *NotifierConfig `yaml:"notifier" json:"notifier" usage:"Entitlement notification settings."`
	Ledger           *LedgerConfig   `yaml:"ledger" json:"ledger" usage:"Transaction bookkeeping settings."`
}

// NewConfig constructs a Config struct which represents reconciler settings, and populates it with default values.
func NewConfig(logger *zap.Logger) *config {
	cwd, err := os.Getwd()
	if err != nil {
		logger.Fatal("Error getting current working directory.", zap.Error(err))
	}
	dataDirectory := filepath.Join(cwd, "data")
	return &config{
		Name:             "reconciler-" + strings.Split(uuid.Must(uuid.NewV4()).String(), "-")[3],
		Datadir:          dataDirectory,
		ShutdownGraceSec: 5,
		Logger:           NewLoggerConfig(),
		Metrics:          NewMetricsConfig(),
		Api:              NewApiConfig(),
		Purchase:         NewPurchaseConfig(dataDirectory),
		Catalog:          NewCatalogConfig(),
		Notifier:         NewNotifierConfig(),
		Ledger:           NewLedgerConfig(),
	}
}

func (c *config) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Name, "name", c.Name, "Reconciler node name - must be unique.")
	fs.StringVar(&c.Datadir, "data_dir", c.Datadir, "An absolute path to a writeable folder where the reconciler will store its data.")
	fs.IntVar(&c.ShutdownGraceSec, "shutdown_grace_sec", c.ShutdownGraceSec, "Maximum number of seconds to wait for outstanding verifications to complete before shutting down.")

	fs.StringVar(&c.Logger.Level, "logger.level", c.Logger.Level, "Log level to set. Valid values are 'debug', 'info', 'warn', 'error'.")
	fs.StringVar(&c.Logger.Format, "logger.format", c.Logger.Format, "Set logging output format. Can either be 'JSON' or 'console'. Default is 'JSON'.")
	fs.BoolVar(&c.Logger.Stdout, "logger.stdout", c.Logger.Stdout, "Log to standard console output (as well as to a log file if set).")
	fs.StringVar(&c.Logger.File, "logger.file", c.Logger.File, "Log output to a file (as well as stdout if set). Make sure that the directory and the file is writable.")
	fs.BoolVar(&c.Logger.Rotation, "logger.rotation", c.Logger.Rotation, "Rotate log files. Default is false.")
	fs.IntVar(&c.Logger.MaxSize, "logger.max_size", c.Logger.MaxSize, "The maximum size in megabytes of the log file before it gets rotated.")
	fs.IntVar(&c.Logger.MaxAge, "logger.max_age", c.Logger.MaxAge, "The maximum number of days to retain old log files.")
	fs.IntVar(&c.Logger.MaxBackups, "logger.max_backups", c.Logger.MaxBackups, "The maximum number of old log files to retain.")
	fs.BoolVar(&c.Logger.LocalTime, "logger.local_time", c.Logger.LocalTime, "Use the computer's local time for formatting the timestamps in backup files.")
	fs.BoolVar(&c.Logger.Compress, "logger.compress", c.Logger.Compress, "Compress rotated log files using gzip.")

	fs.IntVar(&c.Metrics.ReportingFreqSec, "metrics.reporting_freq_sec", c.Metrics.ReportingFreqSec, "Frequency of metrics exports. Default is 60 seconds.")
	fs.StringVar(&c.Metrics.Namespace, "metrics.namespace", c.Metrics.Namespace, "Namespace for Prometheus metrics.")
	fs.StringVar(&c.Metrics.Prefix, "metrics.prefix", c.Metrics.Prefix, "Prefix for metric names. Default is 'reconciler'.")
	fs.IntVar(&c.Metrics.PrometheusPort, "metrics.prometheus_port", c.Metrics.PrometheusPort, "Port to expose Prometheus. If '0' Prometheus exports are disabled.")

	fs.StringVar(&c.Api.Address, "api.address", c.Api.Address, "The IP address of the interface to listen for client traffic on.")
	fs.IntVar(&c.Api.Port, "api.port", c.Api.Port, "The port for accepting HTTP connections from callers and the device bridge.")
	fs.IntVar(&c.Api.ReadTimeoutMs, "api.read_timeout_ms", c.Api.ReadTimeoutMs, "Maximum duration in milliseconds for reading the entire request.")
	fs.IntVar(&c.Api.WriteTimeoutMs, "api.write_timeout_ms", c.Api.WriteTimeoutMs, "Maximum duration in milliseconds before timing out writes of the response.")
	fs.IntVar(&c.Api.IdleTimeoutMs, "api.idle_timeout_ms", c.Api.IdleTimeoutMs, "Maximum amount of time in milliseconds to wait for the next request when keep-alives are enabled.")
	fs.IntVar(&c.Api.WaitMs, "api.wait_ms", c.Api.WaitMs, "Time in milliseconds a purchase or restore request waits for its outcome before answering 202 Accepted.")
	fs.Int64Var(&c.Api.MaxRequestSizeBytes, "api.max_request_size_bytes", c.Api.MaxRequestSizeBytes, "Maximum size in bytes of an incoming request body.")

	fs.StringVar(&c.Purchase.Apple.SharedPassword, "purchase.apple.shared_password", c.Purchase.Apple.SharedPassword, "Apple App Store shared secret, only required for auto-renewable subscriptions.")
	fs.StringVar(&c.Purchase.Apple.Environment, "purchase.apple.environment", c.Purchase.Apple.Environment, "Apple verification environment, 'sandbox' or 'production'.")
	fs.BoolVar(&c.Purchase.Apple.ExcludeOldTransactions, "purchase.apple.exclude_old_transactions", c.Purchase.Apple.ExcludeOldTransactions, "Only return the latest transaction of auto-renewable subscriptions.")
	fs.StringVar(&c.Purchase.Apple.SandboxUrl, "purchase.apple.sandbox_url", c.Purchase.Apple.SandboxUrl, "Override of the Apple sandbox verifyReceipt URL.")
	fs.StringVar(&c.Purchase.Apple.ProductionUrl, "purchase.apple.production_url", c.Purchase.Apple.ProductionUrl, "Override of the Apple production verifyReceipt URL.")
	fs.IntVar(&c.Purchase.Apple.TimeoutMs, "purchase.apple.timeout_ms", c.Purchase.Apple.TimeoutMs, "Apple connection timeout in milliseconds.")
	fs.IntVar(&c.Purchase.VerifyTimeoutMs, "purchase.verify_timeout_ms", c.Purchase.VerifyTimeoutMs, "Upper bound in milliseconds for one receipt read and verification.")
	fs.StringVar(&c.Purchase.ReceiptStore, "purchase.receipt_store", c.Purchase.ReceiptStore, "Where the latest receipt is kept, one of 'file', 'memory', 'redis'.")
	fs.StringVar(&c.Purchase.ReceiptPath, "purchase.receipt_path", c.Purchase.ReceiptPath, "Path of the receipt file when receipt_store is 'file'.")
	fs.StringVar(&c.Purchase.Redis.Address, "purchase.redis.address", c.Purchase.Redis.Address, "Redis address when receipt_store is 'redis'.")
	fs.StringVar(&c.Purchase.Redis.Password, "purchase.redis.password", c.Purchase.Redis.Password, "Redis password.")
	fs.IntVar(&c.Purchase.Redis.DB, "purchase.redis.db", c.Purchase.Redis.DB, "Redis database number.")
	fs.StringVar(&c.Purchase.Redis.Key, "purchase.redis.key", c.Purchase.Redis.Key, "Redis key holding the receipt.")

	fs.StringSliceVar(&c.Catalog.ProductIDs, "catalog.product_ids", c.Catalog.ProductIDs, "Product identifiers fetched at startup.")
	fs.StringVar(&c.Catalog.LookupUrl, "catalog.lookup_url", c.Catalog.LookupUrl, "URL of the remote product lookup service. Static products are used when empty.")
	fs.IntVar(&c.Catalog.TimeoutMs, "catalog.timeout_ms", c.Catalog.TimeoutMs, "Product lookup timeout in milliseconds.")

	fs.StringVar(&c.Notifier.NatsUrl, "notifier.nats_url", c.Notifier.NatsUrl, "NATS server URL entitlement notifications are published to. Disabled when empty.")
	fs.StringVar(&c.Notifier.Subject, "notifier.subject", c.Notifier.Subject, "NATS subject for entitlement notifications.")
	fs.IntVar(&c.Notifier.SubscriberBufferSize, "notifier.subscriber_buffer_size", c.Notifier.SubscriberBufferSize, "Notifications buffered per local subscriber before new ones are dropped.")

	fs.IntVar(&c.Ledger.AcknowledgedCacheSize, "ledger.acknowledged_cache_size", c.Ledger.AcknowledgedCacheSize, "Number of acknowledged transaction references remembered to drop duplicate deliveries.")
}

func (c *config) GetName() string {
	return c.Name
}

func (c *config) GetConfig() string {
	return c.Config
}

func (c *config) GetDataDir() string {
	return c.Datadir
}

func (c *config) GetShutdownGraceSec() int {
	return c.ShutdownGraceSec
}

func (c *config) GetLogger() *LoggerConfig {
	return c.Logger
}

func (c *config) GetMetrics() *MetricsConfig {
	return c.Metrics
}

func (c *config) GetApi() *ApiConfig {
	return c.Api
}

func (c *config) GetPurchase() *PurchaseConfig {
	return c.Purchase
}

func (c *config) GetCatalog() *CatalogConfig {
	return c.Catalog
}

func (c *config) GetNotifier() *NotifierConfig {
	return c.Notifier
}

func (c *config) GetLedger() *LedgerConfig {
	return c.Ledger
}

// ValidateConfig checks the configuration for values the reconciler cannot start with.
func ValidateConfig(config Config) error {
	var errs []error
	if config.GetName() == "" {
		errs = append(errs, errors.New("name must be set"))
	}
	switch strings.ToLower(config.GetLogger().Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, errors.New("logger.level must be one of: debug, info, warn, error"))
	}
	if config.GetApi().Port < 1 {
		errs = append(errs, errors.New("api.port must be greater than 0"))
	}
	if config.GetApi().MaxRequestSizeBytes < 1 {
		errs = append(errs, errors.New("api.max_request_size_bytes must be greater than 0"))
	}
	if _, err := iap.ParseEnvironment(config.GetPurchase().Apple.Environment); err != nil {
		errs = append(errs, fmt.Errorf("purchase.apple.environment: %w", err))
	}
	if config.GetPurchase().Apple.TimeoutMs < 1 {
		errs = append(errs, errors.New("purchase.apple.timeout_ms must be greater than 0"))
	}
	if config.GetPurchase().VerifyTimeoutMs < 1 {
		errs = append(errs, errors.New("purchase.verify_timeout_ms must be greater than 0"))
	}
	switch config.GetPurchase().ReceiptStore {
	case ReceiptStoreFile:
		if config.GetPurchase().ReceiptPath == "" {
			errs = append(errs, errors.New("purchase.receipt_path must be set when purchase.receipt_store is 'file'"))
		}
	case ReceiptStoreMemory:
	case ReceiptStoreRedis:
		if config.GetPurchase().Redis.Address == "" {
			errs = append(errs, errors.New("purchase.redis.address must be set when purchase.receipt_store is 'redis'"))
		}
	default:
		errs = append(errs, errors.New("purchase.receipt_store must be one of: file, memory, redis"))
	}
	if config.GetCatalog().TimeoutMs < 1 {
		errs = append(errs, errors.New("catalog.timeout_ms must be greater than 0"))
	}
	for i, p := range config.GetCatalog().Products {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("catalog.products[%d].id must be set", i))
		}
	}
	if config.GetNotifier().SubscriberBufferSize < 1 {
		errs = append(errs, errors.New("notifier.subscriber_buffer_size must be greater than 0"))
	}
	if config.GetLedger().AcknowledgedCacheSize < 1 {
		errs = append(errs, errors.New("ledger.acknowledged_cache_size must be greater than 0"))
	}
	return errors.Join(errs...)
}

// LoggerConfig is configuration relevant to logging levels and output.
type LoggerConfig struct {
	Level      string `yaml:"level" json:"level" usage:"Log level to set. Valid values are 'debug', 'info', 'warn', 'error'. Default 'info'."`
	Stdout     bool   `yaml:"stdout" json:"stdout" usage:"Log to standard console output (as well as to a log file if set). Default true."`
	File       string `yaml:"file" json:"file" usage:"Log output to a file (as well as stdout if set). Make sure that the directory and the file is writable."`
	Rotation   bool   `yaml:"rotation" json:"rotation" usage:"Rotate log files. Default is false."`
	MaxSize    int    `yaml:"max_size" json:"max_size" usage:"The maximum size in megabytes of the log file before it gets rotated. It defaults to 100 megabytes."`
	MaxAge     int    `yaml:"max_age" json:"max_age" usage:"The maximum number of days to retain old log files based on the timestamp encoded in their filename. The default is not to remove old log files based on age."`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" usage:"The maximum number of old log files to retain. The default is to retain all old log files (though MaxAge may still cause them to get deleted.)"`
	LocalTime  bool   `yaml:"local_time" json:"local_time" usage:"This determines if the time used for formatting the timestamps in backup files is the computer's local time. The default is to use UTC time."`
	Compress   bool   `yaml:"compress" json:"compress" usage:"This determines if the rotated log files should be compressed using gzip."`
	Format     string `yaml:"format" json:"format" usage:"Set logging output format. Can either be 'JSON' or 'console'. Default is 'JSON'."`
}

func NewLoggerConfig() *LoggerConfig {
	return &LoggerConfig{
		Level:      "info",
		Stdout:     true,
		File:       "",
		Rotation:   false,
		MaxSize:    100,
		MaxAge:     0,
		MaxBackups: 0,
		LocalTime:  false,
		Compress:   false,
		Format:     "json",
	}
}

// MetricsConfig is configuration relevant to metrics capturing and output.
type MetricsConfig struct {
	ReportingFreqSec int    `yaml:"reporting_freq_sec" json:"reporting_freq_sec" usage:"Frequency of metrics exports. Default is 60 seconds."`
	Namespace        string `yaml:"namespace" json:"namespace" usage:"Namespace for Prometheus metrics. It will always prepend node name."`
	PrometheusPort   int    `yaml:"prometheus_port" json:"prometheus_port" usage:"Port to expose Prometheus. If '0' Prometheus exports are disabled."`
	Prefix           string `yaml:"prefix" json:"prefix" usage:"Prefix for metric names. Default is 'reconciler', empty string '' disables the prefix."`
}

func NewMetricsConfig() *MetricsConfig {
	return &MetricsConfig{
		ReportingFreqSec: 60,
		Namespace:        "",
		PrometheusPort:   0,
		Prefix:           "reconciler",
	}
}

// ApiConfig is configuration relevant to the HTTP surface used by callers and the device bridge.
type ApiConfig struct {
	Address             string `yaml:"address" json:"address" usage:"The IP address of the interface to listen for client traffic on. Default listen on all available addresses/interfaces."`
	Port                int    `yaml:"port" json:"port" usage:"The port for accepting HTTP connections. Default 7450."`
	ReadTimeoutMs       int    `yaml:"read_timeout_ms" json:"read_timeout_ms" usage:"Maximum duration in milliseconds for reading the entire request."`
	WriteTimeoutMs      int    `yaml:"write_timeout_ms" json:"write_timeout_ms" usage:"Maximum duration in milliseconds before timing out writes of the response."`
	IdleTimeoutMs       int    `yaml:"idle_timeout_ms" json:"idle_timeout_ms" usage:"Maximum amount of time in milliseconds to wait for the next request when keep-alives are enabled."`
	WaitMs              int    `yaml:"wait_ms" json:"wait_ms" usage:"Time in milliseconds a purchase or restore request waits for its outcome before answering 202 Accepted."`
	MaxRequestSizeBytes int64  `yaml:"max_request_size_bytes" json:"max_request_size_bytes" usage:"Maximum size in bytes of an incoming request body."`
}

func NewApiConfig() *ApiConfig {
	return &ApiConfig{
		Address:             "",
		Port:                7450,
		ReadTimeoutMs:       10 * 1000,
		WriteTimeoutMs:      15 * 1000,
		IdleTimeoutMs:       60 * 1000,
		WaitMs:              5 * 1000,
		MaxRequestSizeBytes: 262_144,
	}
}

const (
	ReceiptStoreFile   = "file"
	ReceiptStoreMemory = "memory"
	ReceiptStoreRedis  = "redis"
)

// PurchaseConfig is configuration relevant to receipt storage and verification.
type PurchaseConfig struct {
	Apple           *ApplePurchaseProviderConfig `yaml:"apple" json:"apple" usage:"Apple In-App Purchase configuration."`
	VerifyTimeoutMs int                          `yaml:"verify_timeout_ms" json:"verify_timeout_ms" usage:"Upper bound in milliseconds for one receipt read and verification."`
	ReceiptStore    string                       `yaml:"receipt_store" json:"receipt_store" usage:"Where the latest receipt is kept, one of 'file', 'memory', 'redis'."`
	ReceiptPath     string                       `yaml:"receipt_path" json:"receipt_path" usage:"Path of the receipt file when receipt_store is 'file'."`
	Redis           *RedisConfig                 `yaml:"redis" json:"redis" usage:"Redis receipt store configuration."`
}

func NewPurchaseConfig(dataDir string) *PurchaseConfig {
	return &PurchaseConfig{
		Apple:           NewApplePurchaseProviderConfig(),
		VerifyTimeoutMs: 5000,
		ReceiptStore:    ReceiptStoreFile,
		ReceiptPath:     filepath.Join(dataDir, "receipt", "appstore.receipt"),
		Redis:           NewRedisConfig(),
	}
}

type ApplePurchaseProviderConfig struct {
	SharedPassword         string `yaml:"shared_password" json:"shared_password" usage:"Apple App Store shared secret, only required for auto-renewable subscriptions."`
	Environment            string `yaml:"environment" json:"environment" usage:"Apple verification environment, 'sandbox' or 'production'."`
	ExcludeOldTransactions bool   `yaml:"exclude_old_transactions" json:"exclude_old_transactions" usage:"Only return the latest transaction of auto-renewable subscriptions."`
	SandboxUrl             string `yaml:"sandbox_url" json:"sandbox_url" usage:"Override of the Apple sandbox verifyReceipt URL."`
	ProductionUrl          string `yaml:"production_url" json:"production_url" usage:"Override of the Apple production verifyReceipt URL."`
	TimeoutMs              int    `yaml:"timeout_ms" json:"timeout_ms" usage:"Apple connection timeout in milliseconds."`
}

func NewApplePurchaseProviderConfig() *ApplePurchaseProviderConfig {
	return &ApplePurchaseProviderConfig{
		Environment: "sandbox",
		TimeoutMs:   1500,
	}
}

type RedisConfig struct {
	Address  string `yaml:"address" json:"address" usage:"Redis address."`
	Password string `yaml:"password" json:"password" usage:"Redis password."`
	DB       int    `yaml:"db" json:"db" usage:"Redis database number."`
	Key      string `yaml:"key" json:"key" usage:"Redis key holding the receipt."`
}

func NewRedisConfig() *RedisConfig {
	return &RedisConfig{
		Key: "reconciler:receipt",
	}
}

// CatalogConfig is configuration relevant to product lookups.
type CatalogConfig struct {
	ProductIDs []string              `yaml:"product_ids" json:"product_ids" usage:"Product identifiers fetched at startup."`
	Products   []*StaticProductConfig `yaml:"products" json:"products"` // not supported as a command line override
	LookupUrl  string                `yaml:"lookup_url" json:"lookup_url" usage:"URL of the remote product lookup service. Static products are used when empty."`
	TimeoutMs  int                   `yaml:"timeout_ms" json:"timeout_ms" usage:"Product lookup timeout in milliseconds."`
}

type StaticProductConfig struct {
	ID           string `yaml:"id" json:"id"`
	Title        string `yaml:"title" json:"title"`
	Description  string `yaml:"description" json:"description"`
	Price        string `yaml:"price" json:"price"`
	Locale       string `yaml:"locale" json:"locale"`
	CurrencyCode string `yaml:"currency_code" json:"currency_code"`
}

func NewCatalogConfig() *CatalogConfig {
	return &CatalogConfig{
		ProductIDs: make([]string, 0),
		Products:   make([]*StaticProductConfig, 0),
		TimeoutMs:  5000,
	}
}

// NotifierConfig is configuration relevant to entitlement notifications.
type NotifierConfig struct {
	NatsUrl              string `yaml:"nats_url" json:"nats_url" usage:"NATS server URL entitlement notifications are published to. Disabled when empty."`
	Subject              string `yaml:"subject" json:"subject" usage:"NATS subject for entitlement notifications."`
	SubscriberBufferSize int    `yaml:"subscriber_buffer_size" json:"subscriber_buffer_size" usage:"Notifications buffered per local subscriber before new ones are dropped."`
}

func NewNotifierConfig() *NotifierConfig {
	return &NotifierConfig{
		Subject:              PurchaseCompletedNotification,
		SubscriberBufferSize: 64,
	}
}

// LedgerConfig is configuration relevant to transaction bookkeeping.
type LedgerConfig struct {
	AcknowledgedCacheSize int `yaml:"acknowledged_cache_size" json:"acknowledged_cache_size" usage:"Number of acknowledged transaction references remembered to drop duplicate deliveries."`
}

func NewLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		AcknowledgedCacheSize: 10_000,
	}
}
