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
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Endpoints used by the device bridge to feed platform payment queue updates in.

type transactionList struct {
	Transactions []*TransactionEvent `json:"transactions"`
}

type restoreFinishedRequest struct {
	Error *TransactionError `json:"error,omitempty"`
}

type redeliverResponse struct {
	Redelivered int `json:"redelivered"`
}

func (s *ApiServer) deliverTransactions(w http.ResponseWriter, r *http.Request) {
	var in transactionList
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(s.logger, w, http.StatusRequestEntityTooLarge, err)
			return
		}
		writeError(s.logger, w, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidTransactions, err))
		return
	}
	if err := validateTransactions(in.Transactions); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err)
		return
	}

	s.queue.Deliver(in.Transactions)
	w.WriteHeader(http.StatusAccepted)
}

func validateTransactions(events []*TransactionEvent) error {
	if len(events) == 0 {
		return fmt.Errorf("%w: no transactions", ErrInvalidTransactions)
	}
	for i, e := range events {
		switch {
		case e == nil:
			return fmt.Errorf("%w: transaction %d is empty", ErrInvalidTransactions, i)
		case e.ProductID == "":
			return fmt.Errorf("%w: transaction %d has no product_id", ErrInvalidTransactions, i)
		case e.ProductID == RestoreCorrelationKey:
			return fmt.Errorf("%w: transaction %d has reserved product_id %q", ErrInvalidTransactions, i, RestoreCorrelationKey)
		case e.Ref == "":
			return fmt.Errorf("%w: transaction %d has no transaction_id", ErrInvalidTransactions, i)
		}
	}
	return nil
}

func (s *ApiServer) listTransactions(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, &transactionList{Transactions: s.queue.Unfinished()})
}

func (s *ApiServer) listPayments(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, &transactionList{Transactions: s.queue.Payments()})
}

func (s *ApiServer) finishRestore(w http.ResponseWriter, r *http.Request) {
	var in restoreFinishedRequest
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil && !errors.Is(err, io.EOF) {
		writeError(s.logger, w, http.StatusBadRequest, err)
		return
	}

	var restoreErr error
	if in.Error != nil {
		if in.Error.Cancelled() {
			restoreErr = ErrPurchaseCancelled
		} else {
			restoreErr = errors.New(in.Error.Reason())
		}
	}

	s.queue.FinishRestore(restoreErr)
	w.WriteHeader(http.StatusAccepted)
}

func (s *ApiServer) redeliver(w http.ResponseWriter, r *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, &redeliverResponse{Redelivered: s.queue.Redeliver()})
}
