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
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
)

// StaticProductLookup serves products declared in configuration.
type StaticProductLookup struct {
	products map[string]*ProductDescriptor
}

func NewStaticProductLookup(configs []*StaticProductConfig) (*StaticProductLookup, error) {
	products := make(map[string]*ProductDescriptor, len(configs))
	for _, c := range configs {
		p, err := productFromWire(&productWire{
			ID:           c.ID,
			Title:        c.Title,
			Description:  c.Description,
			Price:        c.Price,
			Locale:       c.Locale,
			CurrencyCode: c.CurrencyCode,
		})
		if err != nil {
			return nil, err
		}
		products[p.ID] = p
	}
	return &StaticProductLookup{products: products}, nil
}

func (s *StaticProductLookup) LookupProducts(ctx context.Context, ids []string) ([]*ProductDescriptor, []string, error) {
	products := make([]*ProductDescriptor, 0, len(ids))
	invalidIDs := make([]string, 0)
	for _, id := range ids {
		if p, found := s.products[id]; found {
			products = append(products, p)
		} else {
			invalidIDs = append(invalidIDs, id)
		}
	}
	return products, invalidIDs, nil
}

type productWire struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description"`
	Price        string `json:"price"`
	Locale       string `json:"locale"`
	CurrencyCode string `json:"currency_code"`
}

type productLookupResponse struct {
	Products          []*productWire `json:"products"`
	InvalidProductIDs []string       `json:"invalid_product_ids"`
}

func productFromWire(w *productWire) (*ProductDescriptor, error) {
	if w == nil {
		return nil, fmt.Errorf("product entry is null")
	}
	if w.ID == "" {
		return nil, fmt.Errorf("product has no id")
	}
	price := decimal.Zero
	if w.Price != "" {
		var err error
		if price, err = decimal.NewFromString(w.Price); err != nil {
			return nil, fmt.Errorf("product %q has an invalid price %q: %w", w.ID, w.Price, err)
		}
	}
	locale := language.Und
	if w.Locale != "" {
		var err error
		if locale, err = language.Parse(w.Locale); err != nil {
			return nil, fmt.Errorf("product %q has an invalid locale %q: %w", w.ID, w.Locale, err)
		}
	}
	return &ProductDescriptor{
		ID:           w.ID,
		Title:        w.Title,
		Description:  w.Description,
		Price:        price,
		Locale:       locale,
		CurrencyCode: strings.ToUpper(w.CurrencyCode),
	}, nil
}

// RemoteProductLookup asks a product catalog service over HTTP:
//
//	GET <url>?product_id=a&product_id=b
//	{"products":[{"id":"a","title":"..","price":"0.99","locale":"en-US","currency_code":"USD"}],"invalid_product_ids":["b"]}
type RemoteProductLookup struct {
	client *resty.Client
	url    string
}

func NewRemoteProductLookup(httpc *http.Client, url string, timeout time.Duration) *RemoteProductLookup {
	var client *resty.Client
	if httpc != nil {
		client = resty.NewWithClient(httpc)
	} else {
		client = resty.New()
	}
	client.SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &RemoteProductLookup{
		client: client,
		url:    url,
	}
}

func (r *RemoteProductLookup) LookupProducts(ctx context.Context, ids []string) ([]*ProductDescriptor, []string, error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetQueryParamsFromValues(map[string][]string{"product_id": ids}).
		Get(r.url)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, nil, fmt.Errorf("non-200 response from product lookup service: %d", resp.StatusCode())
	}

	// Decoded here rather than through resty so a non-JSON body is an error, not an empty result.
	var out productLookupResponse
	if err := json.Unmarshal(resp.Body(), &out); err != nil {
		return nil, nil, fmt.Errorf("error decoding product lookup response (%s): %w", resp.Header().Get("Content-Type"), err)
	}

	products := make([]*ProductDescriptor, 0, len(out.Products))
	for _, w := range out.Products {
		p, err := productFromWire(w)
		if err != nil {
			return nil, nil, err
		}
		products = append(products, p)
	}
	return products, out.InvalidProductIDs, nil
}
