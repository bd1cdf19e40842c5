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
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally/v4"
	"go.uber.org/atomic"
	"golang.org/x/text/language"
)

type lookupResult struct {
	products   []*ProductDescriptor
	invalidIDs []string
	err        error
}

type lookupCall struct {
	ids    []string
	result chan *lookupResult
}

// gatedLookup blocks each lookup until a result is sent on the channel of its call.
type gatedLookup struct {
	calls chan *lookupCall
}

func newGatedLookup() *gatedLookup {
	return &gatedLookup{calls: make(chan *lookupCall, 4)}
}

func (l *gatedLookup) LookupProducts(ctx context.Context, ids []string) ([]*ProductDescriptor, []string, error) {
	call := &lookupCall{ids: ids, result: make(chan *lookupResult, 1)}
	l.calls <- call
	select {
	case r := <-call.result:
		return r.products, r.invalidIDs, r.err
	case <-ctx.Done():
		return nil, nil, ctx.Err()
	}
}

type catalogResult struct {
	products []*ProductDescriptor
	err      error
}

func fetchInto(t *testing.T, catalog *ProductCatalog, ids ...string) <-chan *catalogResult {
	ch := make(chan *catalogResult, 1)
	require.NoError(t, catalog.Fetch(context.Background(), ids, func(products []*ProductDescriptor, err error) {
		ch <- &catalogResult{products: products, err: err}
	}))
	return ch
}

func waitCatalog(t *testing.T, ch <-chan *catalogResult) *catalogResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for product lookup")
		return nil
	}
}

func newTestCatalog(lookup ProductLookup) (*ProductCatalog, tally.TestScope) {
	scope := tally.NewTestScope("", nil)
	return NewProductCatalog(logger, NewLocalMetricsWithScope(logger, scope), lookup, 2*time.Second), scope
}

func TestCatalogFetchStatic(t *testing.T) {
	lookup, err := NewStaticProductLookup([]*StaticProductConfig{
		{ID: "com.example.gems", Title: "Gems", Price: "0.99", Locale: "en-US", CurrencyCode: "usd"},
		{ID: "com.example.coins", Title: "Coins", Price: "4.99"},
	})
	require.NoError(t, err)
	catalog, scope := newTestCatalog(lookup)

	r := waitCatalog(t, fetchInto(t, catalog, "com.example.gems", "com.example.missing", "com.example.gems"))
	require.NoError(t, r.err)
	require.Len(t, r.products, 1)

	p := r.products[0]
	assert.Equal(t, "com.example.gems", p.ID)
	assert.True(t, decimal.RequireFromString("0.99").Equal(p.Price))
	assert.Equal(t, language.AmericanEnglish, p.Locale)
	assert.Equal(t, "USD", p.CurrencyCode)

	assert.Equal(t, r.products, catalog.Products())
	_, found := catalog.Product("com.example.coins")
	assert.False(t, found)
	assert.EqualValues(t, 1, counterValue(scope, "catalog_lookups", map[string]string{"outcome": "success"}))
}

func TestCatalogEmptyIDs(t *testing.T) {
	catalog, _ := newTestCatalog(newGatedLookup())

	err := catalog.Fetch(context.Background(), []string{"", ""}, func([]*ProductDescriptor, error) {
		t.Error("callback must not be invoked")
	})
	assert.ErrorIs(t, err, ErrEmptyProductIDs)
}

func TestCatalogNoValidProducts(t *testing.T) {
	lookup, err := NewStaticProductLookup(nil)
	require.NoError(t, err)
	catalog, scope := newTestCatalog(lookup)

	r := waitCatalog(t, fetchInto(t, catalog, "com.example.missing"))
	assert.NoError(t, r.err)
	assert.Empty(t, r.products)
	assert.NotNil(t, catalog.Products())
	assert.EqualValues(t, 1, counterValue(scope, "catalog_lookups", map[string]string{"outcome": "no_valid_products"}))
}

func TestCatalogNetworkError(t *testing.T) {
	lookup := newGatedLookup()
	catalog, _ := newTestCatalog(lookup)

	// Seed a product set that a failed lookup must not replace.
	done := fetchInto(t, catalog, "com.example.gems")
	(<-lookup.calls).result <- &lookupResult{products: []*ProductDescriptor{{ID: "com.example.gems"}}}
	require.NoError(t, waitCatalog(t, done).err)

	done = fetchInto(t, catalog, "com.example.coins")
	(<-lookup.calls).result <- &lookupResult{err: errors.New("offline")}

	r := waitCatalog(t, done)
	assert.ErrorIs(t, r.err, ErrCatalogNetwork)
	assert.ErrorContains(t, r.err, "offline")
	require.Len(t, catalog.Products(), 1)
	assert.Equal(t, "com.example.gems", catalog.Products()[0].ID)
}

func TestCatalogLookupTimeout(t *testing.T) {
	lookup := newGatedLookup()
	catalog := NewProductCatalog(logger, NewLocalMetricsWithScope(logger, tally.NewTestScope("", nil)), lookup, 20*time.Millisecond)

	done := fetchInto(t, catalog, "com.example.gems")
	<-lookup.calls

	r := waitCatalog(t, done)
	assert.ErrorIs(t, r.err, ErrCatalogNetwork)
	assert.ErrorIs(t, r.err, context.DeadlineExceeded)
	assert.Equal(t, http.StatusGatewayTimeout, errorStatus(r.err))
}

type timeoutError struct{}

func (timeoutError) Error() string { return "i/o timeout" }
func (timeoutError) Timeout() bool { return true }
func (timeoutError) Temporary() bool { return true }

func TestCatalogTransportTimeout(t *testing.T) {
	lookup := newGatedLookup()
	catalog, _ := newTestCatalog(lookup)

	done := fetchInto(t, catalog, "com.example.gems")
	(<-lookup.calls).result <- &lookupResult{err: fmt.Errorf("get products: %w", timeoutError{})}

	r := waitCatalog(t, done)
	assert.ErrorIs(t, r.err, ErrCatalogNetwork)
	assert.ErrorIs(t, r.err, context.DeadlineExceeded)
	assert.ErrorContains(t, r.err, "i/o timeout")
	assert.Equal(t, http.StatusGatewayTimeout, errorStatus(r.err))
}

func TestCatalogFetchSupersedes(t *testing.T) {
	lookup := newGatedLookup()
	catalog, scope := newTestCatalog(lookup)

	first := fetchInto(t, catalog, "com.example.gems")
	assert.Equal(t, []string{"com.example.gems"}, (<-lookup.calls).ids)

	second := fetchInto(t, catalog, "com.example.coins")
	call := <-lookup.calls
	assert.Equal(t, []string{"com.example.coins"}, call.ids)
	call.result <- &lookupResult{products: []*ProductDescriptor{{ID: "com.example.coins"}}}

	r := waitCatalog(t, second)
	require.NoError(t, r.err)
	require.Len(t, r.products, 1)
	assert.Equal(t, "com.example.coins", r.products[0].ID)

	// The first lookup was cancelled, and its callback never fires.
	assert.Eventually(t, func() bool {
		return counterValue(scope, "catalog_lookups", map[string]string{"outcome": "superseded"}) == 1
	}, 3*time.Second, 5*time.Millisecond)
	select {
	case r := <-first:
		t.Fatalf("superseded callback invoked: %+v", r)
	case <-time.After(50 * time.Millisecond):
	}
	assert.Equal(t, "com.example.coins", catalog.Products()[0].ID)
}

func TestStaticProductLookupInvalidConfig(t *testing.T) {
	_, err := NewStaticProductLookup([]*StaticProductConfig{{ID: "com.example.gems", Price: "free"}})
	assert.Error(t, err)

	_, err = NewStaticProductLookup([]*StaticProductConfig{{ID: "com.example.gems", Locale: "not a locale!"}})
	assert.Error(t, err)

	_, err = NewStaticProductLookup([]*StaticProductConfig{{Title: "Gems"}})
	assert.Error(t, err)
}

func TestRemoteProductLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, []string{"com.example.gems", "com.example.missing"}, r.URL.Query()["product_id"])
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"products":[{"id":"com.example.gems","title":"Gems","price":"1.99","locale":"fr-FR","currency_code":"eur"}],"invalid_product_ids":["com.example.missing"]}`))
	}))
	defer srv.Close()

	lookup := NewRemoteProductLookup(srv.Client(), srv.URL, time.Second)
	products, invalidIDs, err := lookup.LookupProducts(context.Background(), []string{"com.example.gems", "com.example.missing"})
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "Gems", products[0].Title)
	assert.Equal(t, "1.99", products[0].Price.StringFixed(2))
	assert.Equal(t, language.MustParse("fr-FR"), products[0].Locale)
	assert.Equal(t, "EUR", products[0].CurrencyCode)
	assert.Equal(t, []string{"com.example.missing"}, invalidIDs)
}

func TestRemoteProductLookupNon200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	catalog, _ := newTestCatalog(NewRemoteProductLookup(srv.Client(), srv.URL, time.Second))
	r := waitCatalog(t, fetchInto(t, catalog, "com.example.gems"))
	assert.ErrorIs(t, r.err, ErrCatalogNetwork)
	assert.ErrorContains(t, r.err, "502")
}

func TestCatalogProductsReturnsCopy(t *testing.T) {
	lookup, err := NewStaticProductLookup([]*StaticProductConfig{
		{ID: "com.example.gems", Title: "Gems"},
		{ID: "com.example.coins", Title: "Coins"},
	})
	require.NoError(t, err)
	catalog, _ := newTestCatalog(lookup)
	require.NoError(t, waitCatalog(t, fetchInto(t, catalog, "com.example.gems", "com.example.coins")).err)

	products := catalog.Products()
	require.Len(t, products, 2)
	products[0], products[1] = products[1], nil

	products = catalog.Products()
	require.Len(t, products, 2)
	assert.Equal(t, "com.example.gems", products[0].ID)
	assert.Equal(t, "com.example.coins", products[1].ID)
}

func TestRemoteProductLookupNullEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"products":[null]}`))
	}))
	defer srv.Close()

	lookup := NewRemoteProductLookup(srv.Client(), srv.URL, time.Second)
	var err error
	assert.NotPanics(t, func() {
		_, _, err = lookup.LookupProducts(context.Background(), []string{"com.example.gems"})
	})
	assert.ErrorContains(t, err, "null")

	catalog, _ := newTestCatalog(lookup)
	r := waitCatalog(t, fetchInto(t, catalog, "com.example.gems"))
	assert.ErrorIs(t, r.err, ErrCatalogNetwork)
}

func TestRemoteProductLookupUndecodableBody(t *testing.T) {
	for name, tc := range map[string]struct {
		contentType string
		body        string
	}{
		"html page":      {"text/html; charset=utf-8", `<html><body>Service under maintenance</body></html>`},
		"malformed json": {"application/json", `{"products":[{"id":"com.example.gems"`},
		"empty body":     {"application/json", ``},
	} {
		t.Run(name, func(t *testing.T) {
			broken := atomic.NewBool(false)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if broken.Load() {
					w.Header().Set("Content-Type", tc.contentType)
					_, _ = w.Write([]byte(tc.body))
					return
				}
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"products":[{"id":"com.example.gems","title":"Gems"}]}`))
			}))
			defer srv.Close()

			catalog, scope := newTestCatalog(NewRemoteProductLookup(srv.Client(), srv.URL, time.Second))
			require.NoError(t, waitCatalog(t, fetchInto(t, catalog, "com.example.gems")).err)
			require.Len(t, catalog.Products(), 1)

			broken.Store(true)
			r := waitCatalog(t, fetchInto(t, catalog, "com.example.gems"))
			assert.ErrorIs(t, r.err, ErrCatalogNetwork)
			assert.Nil(t, r.products)
			// The previously fetched set survives the failed lookup.
			require.Len(t, catalog.Products(), 1)
			assert.Equal(t, "com.example.gems", catalog.Products()[0].ID)
			assert.EqualValues(t, 0, counterValue(scope, "catalog_lookups", map[string]string{"outcome": "no_valid_products"}))
			assert.EqualValues(t, 1, counterValue(scope, "catalog_lookups", map[string]string{"outcome": "error"}))
		})
	}
}
