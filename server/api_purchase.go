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
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/heroiclabs/reconciler/iap"
	"go.uber.org/zap"
)

type productResponse struct {
	ID           string `json:"id"`
	Title        string `json:"title"`
	Description  string `json:"description,omitempty"`
	Price        string `json:"price"`
	Locale       string `json:"locale,omitempty"`
	CurrencyCode string `json:"currency_code,omitempty"`
}

type productListResponse struct {
	Products []*productResponse `json:"products"`
}

func newProductListResponse(products []*ProductDescriptor) *productListResponse {
	out := &productListResponse{Products: make([]*productResponse, 0, len(products))}
	for _, p := range products {
		locale := ""
		if !p.Locale.IsRoot() {
			locale = p.Locale.String()
		}
		out.Products = append(out.Products, &productResponse{
			ID:           p.ID,
			Title:        p.Title,
			Description:  p.Description,
			Price:        p.Price.String(),
			Locale:       locale,
			CurrencyCode: p.CurrencyCode,
		})
	}
	return out
}

type productFetch struct {
	products []*ProductDescriptor
	err      error
}

// getProducts fetches the requested identifiers, or returns the cached set when none are given.
func (s *ApiServer) getProducts(w http.ResponseWriter, r *http.Request) {
	ids := r.URL.Query()["id"]
	if len(ids) == 0 {
		writeJSON(s.logger, w, http.StatusOK, newProductListResponse(s.coordinator.Products()))
		return
	}

	resultCh := make(chan *productFetch, 1)
	err := s.coordinator.FetchProducts(r.Context(), ids, func(products []*ProductDescriptor, err error) {
		resultCh <- &productFetch{products: products, err: err}
	})
	if err != nil {
		writeError(s.logger, w, errorStatus(err), err)
		return
	}

	timer := time.NewTimer(s.waitDuration())
	defer timer.Stop()
	select {
	case result := <-resultCh:
		if result.err != nil {
			writeError(s.logger, w, errorStatus(result.err), result.err)
			return
		}
		writeJSON(s.logger, w, http.StatusOK, newProductListResponse(result.products))
	case <-timer.C:
		// Also reached when a newer fetch superseded this one.
		writeError(s.logger, w, http.StatusGatewayTimeout, errors.New("product lookup did not complete"))
	case <-r.Context().Done():
	}
}

type purchaseResponse struct {
	ProductID     string `json:"product_id,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
	Restored      bool   `json:"restored"`
	Outcome       string `json:"outcome"`
	Error         string `json:"error,omitempty"`
}

type purchaseCompletion struct {
	result *PurchaseResult
	err    error
}

func newPurchaseResponse(c *purchaseCompletion) *purchaseResponse {
	resp := &purchaseResponse{Outcome: purchaseOutcome(c.err)}
	if c.result != nil {
		resp.ProductID = c.result.ProductID
		resp.TransactionID = string(c.result.TransactionRef)
		resp.Restored = c.result.Restored
	}
	if c.err != nil {
		resp.Error = c.err.Error()
	}
	return resp
}

// awaitCompletion answers with the outcome if it arrives within the configured wait, else with 202 Accepted. The
// outcome still resolves later and is observable through the notification stream.
func (s *ApiServer) awaitCompletion(w http.ResponseWriter, r *http.Request, key string, completionCh <-chan *purchaseCompletion) {
	timer := time.NewTimer(s.waitDuration())
	defer timer.Stop()
	select {
	case c := <-completionCh:
		status := http.StatusOK
		if errors.Is(c.err, ErrCoordinatorStopped) {
			status = http.StatusServiceUnavailable
		}
		writeJSON(s.logger, w, status, newPurchaseResponse(c))
	case <-timer.C:
		resp := &purchaseResponse{Outcome: "pending"}
		if key != RestoreCorrelationKey {
			resp.ProductID = key
		}
		writeJSON(s.logger, w, http.StatusAccepted, resp)
	case <-r.Context().Done():
	}
}

func (s *ApiServer) purchase(w http.ResponseWriter, r *http.Request) {
	productID := mux.Vars(r)["product_id"]

	completionCh := make(chan *purchaseCompletion, 1)
	err := s.coordinator.Purchase(r.Context(), productID, func(result *PurchaseResult, err error) {
		completionCh <- &purchaseCompletion{result: result, err: err}
	})
	if err != nil {
		writeError(s.logger, w, errorStatus(err), err)
		return
	}

	s.awaitCompletion(w, r, productID, completionCh)
}

func (s *ApiServer) restore(w http.ResponseWriter, r *http.Request) {
	completionCh := make(chan *purchaseCompletion, 1)
	err := s.coordinator.Restore(r.Context(), func(result *PurchaseResult, err error) {
		completionCh <- &purchaseCompletion{result: result, err: err}
	})
	if err != nil {
		writeError(s.logger, w, errorStatus(err), err)
		return
	}

	s.awaitCompletion(w, r, RestoreCorrelationKey, completionCh)
}

// storeReceipt replaces the device receipt with the raw request body.
func (s *ApiServer) storeReceipt(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(s.logger, w, errorStatus(err), err)
		return
	}
	receipt := iap.ReceiptBlob{Data: data}
	if receipt.Empty() {
		writeError(s.logger, w, http.StatusBadRequest, iap.ErrNoReceiptPresent)
		return
	}

	if err := s.receipts.StoreReceipt(r.Context(), receipt); err != nil {
		s.logger.Error("Failed to store receipt", zap.Error(err))
		writeError(s.logger, w, http.StatusInternalServerError, errors.New("failed to store receipt"))
		return
	}

	s.logger.Debug("Receipt stored", zap.Int("size", len(data)))
	w.WriteHeader(http.StatusNoContent)
}
