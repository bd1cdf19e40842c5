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
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/text/language"
)

var (
	ErrEmptyProductIDs = errors.New("at least one product identifier is required")
	ErrCatalogNetwork  = errors.New("product lookup failed")
)

// ProductDescriptor is immutable once fetched.
type ProductDescriptor struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Locale       language.Tag    `json:"-"`
	CurrencyCode string          `json:"currency_code,omitempty"`
}

type ProductLookup interface {
	// LookupProducts resolves identifiers to descriptors. Identifiers the store does not know are returned as invalid.
	LookupProducts(ctx context.Context, ids []string) (products []*ProductDescriptor, invalidIDs []string, err error)
}

type ProductCatalogCallback func(products []*ProductDescriptor, err error)

// ProductCatalog keeps a single logical lookup outstanding. A new Fetch supersedes the previous one, whose result is
// dropped without invoking its callback.
type ProductCatalog struct {
	logger  *zap.Logger
	metrics Metrics
	lookup  ProductLookup
	timeout time.Duration

	generation *atomic.Uint64

	sync.Mutex
	cancelFn context.CancelFunc
	products []*ProductDescriptor
	index    map[string]*ProductDescriptor
}

func NewProductCatalog(logger *zap.Logger, metrics Metrics, lookup ProductLookup, timeout time.Duration) *ProductCatalog {
	return &ProductCatalog{
		logger:     logger,
		metrics:    metrics,
		lookup:     lookup,
		timeout:    timeout,
		generation: atomic.NewUint64(0),
		products:   make([]*ProductDescriptor, 0),
		index:      make(map[string]*ProductDescriptor),
	}
}

func (c *ProductCatalog) Fetch(ctx context.Context, ids []string, callback ProductCatalogCallback) error {
	ids = uniqueProductIDs(ids)
	if len(ids) == 0 {
		return ErrEmptyProductIDs
	}

	lookupCtx, cancelFn := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)

	c.Lock()
	if c.cancelFn != nil {
		c.cancelFn()
	}
	c.cancelFn = cancelFn
	generation := c.generation.Inc()
	c.Unlock()

	go c.run(lookupCtx, cancelFn, generation, ids, callback)
	return nil
}

func (c *ProductCatalog) run(ctx context.Context, cancelFn context.CancelFunc, generation uint64, ids []string, callback ProductCatalogCallback) {
	defer cancelFn()

	startedAt := time.Now()
	products, invalidIDs, err := c.lookup.LookupProducts(ctx, ids)
	elapsed := time.Since(startedAt)

	c.Lock()
	if c.generation.Load() != generation {
		c.Unlock()
		c.metrics.CatalogLookup(elapsed, "superseded")
		c.logger.Debug("Dropping superseded product lookup result", zap.Strings("product_ids", ids))
		return
	}
	c.cancelFn = nil
	if err == nil {
		if products == nil {
			products = make([]*ProductDescriptor, 0)
		}
		index := make(map[string]*ProductDescriptor, len(products))
		for _, p := range products {
			index[p.ID] = p
		}
		c.products = products
		c.index = index
	}
	c.Unlock()

	if err != nil {
		if isLookupTimeout(ctx, err) && !errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", context.DeadlineExceeded, err)
		}
		c.metrics.CatalogLookup(elapsed, "error")
		c.logger.Warn("Failed to load list of products", zap.Strings("product_ids", ids), zap.Error(err))
		callback(nil, fmt.Errorf("%w: %w", ErrCatalogNetwork, err))
		return
	}

	if len(invalidIDs) > 0 {
		c.logger.Warn("Product lookup returned invalid product identifiers", zap.Strings("invalid_product_ids", invalidIDs))
	}
	if len(products) == 0 {
		c.metrics.CatalogLookup(elapsed, "no_valid_products")
	} else {
		c.metrics.CatalogLookup(elapsed, "success")
	}
	for _, p := range products {
		c.logger.Debug("Found product", zap.String("product_id", p.ID), zap.String("title", p.Title), zap.String("price", p.Price.String()))
	}
	callback(products, nil)
}

// isLookupTimeout reports whether the lookup ran out of time, either on the catalog deadline or on a
// timeout of the lookup's own transport.
func isLookupTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// Products returns a copy of the last successfully fetched set.
func (c *ProductCatalog) Products() []*ProductDescriptor {
	c.Lock()
	defer c.Unlock()
	products := make([]*ProductDescriptor, len(c.products))
	copy(products, c.products)
	return products
}

func (c *ProductCatalog) Product(id string) (*ProductDescriptor, bool) {
	c.Lock()
	defer c.Unlock()
	p, found := c.index[id]
	return p, found
}

func uniqueProductIDs(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, found := seen[id]; found {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
