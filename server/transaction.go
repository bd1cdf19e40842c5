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
	"fmt"
	"strings"
)

type TransactionState int

const (
	TransactionPurchasing TransactionState = iota
	TransactionDeferred
	TransactionPurchased
	TransactionFailed
	TransactionRestored
)

var transactionStateNames = map[TransactionState]string{
	TransactionPurchasing: "purchasing",
	TransactionDeferred:   "deferred",
	TransactionPurchased:  "purchased",
	TransactionFailed:     "failed",
	TransactionRestored:   "restored",
}

func (s TransactionState) String() string {
	if name, ok := transactionStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", int(s))
}

// Terminal states are the ones a transaction is acknowledged in.
func (s TransactionState) Terminal() bool {
	return s == TransactionPurchased || s == TransactionFailed || s == TransactionRestored
}

func ParseTransactionState(s string) (TransactionState, error) {
	lower := strings.ToLower(s)
	for state, name := range transactionStateNames {
		if name == lower {
			return state, nil
		}
	}
	return 0, fmt.Errorf("unknown transaction state %q", s)
}

func (s TransactionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *TransactionState) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	state, err := ParseTransactionState(name)
	if err != nil {
		return err
	}
	*s = state
	return nil
}

// TransactionRef is the platform's handle for one delivered transaction.
type TransactionRef string

type TransactionErrorCode int

const (
	TransactionErrorUnknown TransactionErrorCode = iota
	TransactionErrorClientInvalid
	TransactionErrorPaymentCancelled
	TransactionErrorPaymentInvalid
	TransactionErrorPaymentNotAllowed
	TransactionErrorStoreProductNotAvailable
	TransactionErrorCloudServiceNetworkConnectionFailed
)

type TransactionError struct {
	Code    TransactionErrorCode `json:"code"`
	Message string               `json:"message,omitempty"`
}

func (e *TransactionError) Cancelled() bool {
	return e != nil && e.Code == TransactionErrorPaymentCancelled
}

func (e *TransactionError) Reason() string {
	if e == nil {
		return "unknown error"
	}
	if e.Message != "" {
		return e.Message
	}
	switch e.Code {
	case TransactionErrorClientInvalid:
		return "client is not allowed to issue the request"
	case TransactionErrorPaymentCancelled:
		return "payment cancelled"
	case TransactionErrorPaymentInvalid:
		return "purchase identifier was invalid"
	case TransactionErrorPaymentNotAllowed:
		return "device is not allowed to make the payment"
	case TransactionErrorStoreProductNotAvailable:
		return "product is not available in the current storefront"
	case TransactionErrorCloudServiceNetworkConnectionFailed:
		return "device could not connect to the network"
	default:
		return "unknown error"
	}
}

// TransactionEvent is one state change delivered by the payment queue. Events are never mutated, only acknowledged.
type TransactionEvent struct {
	ProductID string            `json:"product_id"`
	Ref       TransactionRef    `json:"transaction_id"`
	State     TransactionState  `json:"state"`
	Error     *TransactionError `json:"error,omitempty"`
}
