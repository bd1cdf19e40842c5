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
)

// RestoreCorrelationKey is the ledger key of a restore request, product identifiers key purchases.
const RestoreCorrelationKey = "restore"

var (
	ErrPurchaseCancelled   = errors.New("purchase cancelled")
	ErrVerificationFailed  = errors.New("purchase verification failed")
	ErrPurchaseFailed      = errors.New("purchase failed")
	ErrDuplicateIntent     = errors.New("a request for this product is already pending")
	ErrPaymentsNotAllowed  = errors.New("payments are not allowed on this device")
	ErrCoordinatorStopped  = errors.New("purchase coordinator stopped")
	ErrRestoreFailed       = errors.New("restore failed")
	ErrUnknownProduct      = errors.New("unknown product")
	ErrObserverRegistered  = errors.New("payment queue already has an observer")
	ErrInvalidTransactions = errors.New("invalid transaction events")
)

// PurchaseResult is the metadata handed to a completion callback. It is set for failures too when known.
type PurchaseResult struct {
	ProductID      string         `json:"product_id"`
	TransactionRef TransactionRef `json:"transaction_id,omitempty"`
	Restored       bool           `json:"restored"`
}

type PurchaseCompletionFn func(result *PurchaseResult, err error)

// VerificationFailedError carries either the Apple status of an unverified receipt or the error that prevented
// verification, such as a missing receipt or a transport failure.
type VerificationFailedError struct {
	ProductID string
	Status    int
	Err       error
}

func (e *VerificationFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("purchase verification failed for %q: %v", e.ProductID, e.Err)
	}
	return fmt.Sprintf("purchase verification failed for %q: status %d", e.ProductID, e.Status)
}

func (e *VerificationFailedError) Is(target error) bool {
	return target == ErrVerificationFailed
}

func (e *VerificationFailedError) Unwrap() error {
	return e.Err
}

type PurchaseFailedError struct {
	ProductID string
	Code      TransactionErrorCode
	Reason    string
}

func (e *PurchaseFailedError) Error() string {
	return fmt.Sprintf("purchase of %q failed: %s", e.ProductID, e.Reason)
}

func (e *PurchaseFailedError) Is(target error) bool {
	return target == ErrPurchaseFailed
}

type RestoreFailedError struct {
	Err error
}

func (e *RestoreFailedError) Error() string {
	return fmt.Sprintf("restore failed: %v", e.Err)
}

func (e *RestoreFailedError) Is(target error) bool {
	return target == ErrRestoreFailed
}

func (e *RestoreFailedError) Unwrap() error {
	return e.Err
}

// purchaseOutcome names an outcome for metrics and logs.
func purchaseOutcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrPurchaseCancelled):
		return "cancelled"
	case errors.Is(err, ErrVerificationFailed):
		return "verification_failed"
	case errors.Is(err, ErrPurchaseFailed):
		return "failed"
	case errors.Is(err, ErrRestoreFailed):
		return "restore_failed"
	case errors.Is(err, ErrCoordinatorStopped):
		return "stopped"
	default:
		return "error"
	}
}
