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
	"sync"
	"time"

	"github.com/heroiclabs/reconciler/iap"
	"go.uber.org/zap"
)

type ReceiptVerifier interface {
	Verify(ctx context.Context, receipt iap.ReceiptBlob, env iap.Environment) (*iap.VerificationResult, error)
}

type restoreBatch struct {
	pending  int
	restored int
	finished bool
	err      error
}

// PurchaseCoordinator is the sole observer of the payment queue. It drives every terminal transaction through
// verification, acknowledgement, ledger resolution and notification.
type PurchaseCoordinator struct {
	logger        *zap.Logger
	metrics       Metrics
	queue         PaymentQueue
	receipts      iap.ReceiptStore
	verifier      ReceiptVerifier
	catalog       *ProductCatalog
	ledger        *TransactionLedger
	notifier      Notifier
	env           iap.Environment
	verifyTimeout time.Duration

	ctx         context.Context
	ctxCancelFn context.CancelFunc
	wg          sync.WaitGroup

	sync.Mutex
	stopped      bool
	inFlight     map[TransactionRef]struct{}
	acknowledged *transactionRefSet
	restore      *restoreBatch
}

func NewPurchaseCoordinator(logger *zap.Logger, config Config, metrics Metrics, queue PaymentQueue, receipts iap.ReceiptStore, verifier ReceiptVerifier, catalog *ProductCatalog, ledger *TransactionLedger, notifier Notifier) (*PurchaseCoordinator, error) {
	env, err := iap.ParseEnvironment(config.GetPurchase().Apple.Environment)
	if err != nil {
		return nil, err
	}

	ctx, ctxCancelFn := context.WithCancel(context.Background())
	c := &PurchaseCoordinator{
		logger:        logger,
		metrics:       metrics,
		queue:         queue,
		receipts:      receipts,
		verifier:      verifier,
		catalog:       catalog,
		ledger:        ledger,
		notifier:      notifier,
		env:           env,
		verifyTimeout: time.Duration(config.GetPurchase().VerifyTimeoutMs) * time.Millisecond,

		ctx:         ctx,
		ctxCancelFn: ctxCancelFn,

		inFlight:     make(map[TransactionRef]struct{}),
		acknowledged: newTransactionRefSet(config.GetLedger().AcknowledgedCacheSize),
	}

	if err := queue.AddObserver(c); err != nil {
		ctxCancelFn()
		return nil, err
	}

	return c, nil
}

// Stop cancels outstanding verifications and waits for their flows. Transactions whose verification was interrupted
// stay unacknowledged, and every intent still pending resolves with ErrCoordinatorStopped.
func (c *PurchaseCoordinator) Stop() {
	c.Lock()
	c.stopped = true
	c.Unlock()

	c.ctxCancelFn()
	c.wg.Wait()

	for _, key := range c.ledger.Keys() {
		c.resolve(key, &PurchaseResult{ProductID: key, Restored: key == RestoreCorrelationKey}, ErrCoordinatorStopped)
	}
}

// Drain stops accepting terminal transactions and returns a channel closed once every flow in flight has finished.
// Transactions delivered after this are left for redelivery.
func (c *PurchaseCoordinator) Drain() <-chan struct{} {
	c.Lock()
	c.stopped = true
	c.Unlock()

	ch := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(ch)
	}()
	return ch
}

func (c *PurchaseCoordinator) isStopped() bool {
	c.Lock()
	defer c.Unlock()
	return c.stopped
}

func (c *PurchaseCoordinator) FetchProducts(ctx context.Context, ids []string, callback ProductCatalogCallback) error {
	return c.catalog.Fetch(ctx, ids, callback)
}

func (c *PurchaseCoordinator) Products() []*ProductDescriptor {
	return c.catalog.Products()
}

// Purchase enqueues a payment. The completion is invoked once the platform reports a terminal state for it.
func (c *PurchaseCoordinator) Purchase(ctx context.Context, productID string, completion PurchaseCompletionFn) error {
	if c.isStopped() {
		return ErrCoordinatorStopped
	}
	if productID == "" || productID == RestoreCorrelationKey {
		return ErrUnknownProduct
	}
	if len(c.catalog.Products()) > 0 {
		if _, found := c.catalog.Product(productID); !found {
			return ErrUnknownProduct
		}
	}
	if !c.queue.CanMakePayments() {
		return ErrPaymentsNotAllowed
	}

	if err := c.ledger.Register(&PurchaseIntent{CorrelationKey: productID, Completion: completion}); err != nil {
		c.logger.Debug("Purchase already pending", zap.String("product_id", productID))
		return err
	}

	ref, err := c.queue.AddPayment(ctx, productID)
	if err != nil {
		c.ledger.Discard(productID)
		c.logger.Warn("Failed to add payment", zap.String("product_id", productID), zap.Error(err))
		return err
	}

	c.logger.Info("Purchase started", zap.String("product_id", productID), zap.String("transaction_id", string(ref)))
	return nil
}

// Restore asks the platform to redeliver completed transactions. The completion is invoked when the platform reports
// the restore finished and every restored transaction of the batch went through verification.
func (c *PurchaseCoordinator) Restore(ctx context.Context, completion PurchaseCompletionFn) error {
	if c.isStopped() {
		return ErrCoordinatorStopped
	}
	if err := c.ledger.Register(&PurchaseIntent{CorrelationKey: RestoreCorrelationKey, Completion: completion}); err != nil {
		return err
	}

	c.Lock()
	c.restore = &restoreBatch{}
	c.Unlock()

	if err := c.queue.RestoreCompletedTransactions(ctx); err != nil {
		c.Lock()
		c.restore = nil
		c.Unlock()
		c.ledger.Discard(RestoreCorrelationKey)
		c.logger.Warn("Failed to request restore", zap.Error(err))
		return err
	}

	c.logger.Info("Restore started")
	return nil
}

func (c *PurchaseCoordinator) OnTransactionEvents(events []*TransactionEvent) {
	for _, e := range events {
		if e == nil {
			continue
		}
		c.metrics.TransactionEvent(e.State)
		logger := c.logger.With(zap.String("product_id", e.ProductID), zap.String("transaction_id", string(e.Ref)), zap.Stringer("state", e.State))

		switch e.State {
		case TransactionPurchasing, TransactionDeferred:
			logger.Debug("Transaction pending")
		case TransactionPurchased, TransactionRestored:
			batch, ok := c.claim(logger, e)
			if !ok {
				continue
			}
			go c.completeFlow(logger, e, batch)
		case TransactionFailed:
			if _, ok := c.claim(logger, e); !ok {
				continue
			}
			c.failFlow(logger, e)
		default:
			logger.Warn("Ignoring transaction in unknown state")
		}
	}
}

// claim marks a terminal transaction as in flight. It reports false for a transaction that is already in flight or
// was acknowledged, and for any transaction once the coordinator is stopping.
func (c *PurchaseCoordinator) claim(logger *zap.Logger, e *TransactionEvent) (*restoreBatch, bool) {
	c.Lock()
	defer c.Unlock()

	if c.stopped {
		logger.Debug("Coordinator stopped, transaction left for redelivery")
		return nil, false
	}
	if _, found := c.inFlight[e.Ref]; found || c.acknowledged.Contains(e.Ref) {
		c.metrics.DuplicateDelivery()
		logger.Debug("Dropping duplicate transaction delivery")
		return nil, false
	}
	c.inFlight[e.Ref] = struct{}{}

	var batch *restoreBatch
	if e.State == TransactionRestored && c.restore != nil && !c.restore.finished {
		batch = c.restore
		batch.pending++
	}
	if e.State != TransactionFailed {
		c.wg.Add(1)
	}
	return batch, true
}

func (c *PurchaseCoordinator) completeFlow(logger *zap.Logger, e *TransactionEvent, batch *restoreBatch) {
	defer c.wg.Done()

	result := &PurchaseResult{
		ProductID:      e.ProductID,
		TransactionRef: e.Ref,
		Restored:       e.State == TransactionRestored,
	}

	verifyErr := c.verify(logger, e)
	if verifyErr != nil && c.ctx.Err() != nil {
		logger.Info("Verification interrupted by shutdown, transaction left unacknowledged")
		c.Lock()
		delete(c.inFlight, e.Ref)
		c.Unlock()
		c.resolve(e.ProductID, result, ErrCoordinatorStopped)
		c.restoreFlowDone(batch, false)
		return
	}

	c.acknowledge(logger, e)

	if verifyErr != nil {
		c.resolve(e.ProductID, result, verifyErr)
		c.restoreFlowDone(batch, false)
		return
	}

	c.resolve(e.ProductID, result, nil)
	c.notify(logger, result)
	c.restoreFlowDone(batch, true)
}

// verify returns nil only for a receipt the verification service accepted.
func (c *PurchaseCoordinator) verify(logger *zap.Logger, e *TransactionEvent) error {
	ctx, ctxCancelFn := context.WithTimeout(c.ctx, c.verifyTimeout)
	defer ctxCancelFn()

	startedAt := time.Now()
	receipt, err := c.receipts.CurrentReceipt(ctx)
	if err != nil {
		c.metrics.VerificationLatency(time.Since(startedAt), "no_receipt")
		if c.ctx.Err() == nil {
			logger.Warn("Unable to read receipt for verification", zap.Error(err))
		}
		return &VerificationFailedError{ProductID: e.ProductID, Err: err}
	}

	result, err := c.verifier.Verify(ctx, receipt, c.env)
	elapsed := time.Since(startedAt)
	if err != nil {
		// The verification client logs the failure it detected.
		c.metrics.VerificationLatency(elapsed, "error")
		logger.Debug("Receipt verification failed", zap.Error(err))
		return &VerificationFailedError{ProductID: e.ProductID, Err: err}
	}
	if !result.Verified {
		c.metrics.VerificationLatency(elapsed, "not_verified")
		logger.Warn("Receipt not verified", zap.Int("status", result.Status), zap.String("reason", iap.StatusReason(result.Status)), zap.Stringer("environment", c.env))
		return &VerificationFailedError{ProductID: e.ProductID, Status: result.Status}
	}

	c.metrics.VerificationLatency(elapsed, "verified")
	logger.Debug("Receipt verified", zap.Duration("elapsed", elapsed))
	return nil
}

func (c *PurchaseCoordinator) failFlow(logger *zap.Logger, e *TransactionEvent) {
	result := &PurchaseResult{
		ProductID:      e.ProductID,
		TransactionRef: e.Ref,
	}

	if e.Error.Cancelled() {
		logger.Debug("Purchase cancelled")
		c.resolve(e.ProductID, result, ErrPurchaseCancelled)
	} else {
		reason := e.Error.Reason()
		logger.Warn("Purchase failed", zap.String("reason", reason))
		var code TransactionErrorCode
		if e.Error != nil {
			code = e.Error.Code
		}
		c.resolve(e.ProductID, result, &PurchaseFailedError{ProductID: e.ProductID, Code: code, Reason: reason})
	}

	c.acknowledge(logger, e)
}

// acknowledge finishes the transaction with the platform queue, once per transaction reference.
func (c *PurchaseCoordinator) acknowledge(logger *zap.Logger, e *TransactionEvent) {
	if err := c.queue.FinishTransaction(e); err != nil {
		logger.Error("Failed to finish transaction", zap.Error(err))
	}

	c.Lock()
	delete(c.inFlight, e.Ref)
	c.acknowledged.Add(e.Ref)
	c.Unlock()

	c.metrics.Acknowledged()
	logger.Debug("Transaction finished")
}

func (c *PurchaseCoordinator) resolve(key string, result *PurchaseResult, err error) {
	if c.ledger.Resolve(key, result, err) {
		c.metrics.PurchaseOutcome(purchaseOutcome(err))
	}
}

func (c *PurchaseCoordinator) notify(logger *zap.Logger, result *PurchaseResult) {
	c.metrics.EntitlementNotified()
	if err := c.notifier.Notify(context.Background(), NewEntitlementNotification(result)); err != nil {
		logger.Warn("Failed to deliver entitlement notification", zap.Error(err))
	}
}

func (c *PurchaseCoordinator) OnRestoreFinished(err error) {
	c.Lock()
	batch := c.restore
	if batch == nil || batch.finished {
		c.Unlock()
		c.logger.Debug("Restore finished without a pending restore")
		return
	}
	batch.finished = true
	batch.err = err
	done := batch.pending == 0
	if done {
		c.restore = nil
	}
	c.Unlock()

	if done {
		c.finishRestore(batch)
	}
}

func (c *PurchaseCoordinator) restoreFlowDone(batch *restoreBatch, restored bool) {
	if batch == nil {
		return
	}

	c.Lock()
	batch.pending--
	if restored {
		batch.restored++
	}
	done := batch.finished && batch.pending == 0
	if done && c.restore == batch {
		c.restore = nil
	}
	c.Unlock()

	if done {
		c.finishRestore(batch)
	}
}

func (c *PurchaseCoordinator) finishRestore(batch *restoreBatch) {
	result := &PurchaseResult{Restored: true}
	if batch.err != nil {
		if errors.Is(batch.err, ErrPurchaseCancelled) {
			c.logger.Debug("Restore cancelled")
			c.resolve(RestoreCorrelationKey, result, ErrPurchaseCancelled)
			return
		}
		c.logger.Warn("Restore failed", zap.Error(batch.err))
		c.resolve(RestoreCorrelationKey, result, &RestoreFailedError{Err: batch.err})
		return
	}

	c.logger.Info("Restore finished", zap.Int("restored", batch.restored))
	c.resolve(RestoreCorrelationKey, result, nil)
}

// transactionRefSet remembers the most recent acknowledged references, evicting the oldest beyond its size.
type transactionRefSet struct {
	size  int
	order []TransactionRef
	next  int
	refs  map[TransactionRef]struct{}
}

func newTransactionRefSet(size int) *transactionRefSet {
	if size < 1 {
		size = 1
	}
	return &transactionRefSet{
		size:  size,
		order: make([]TransactionRef, 0, size),
		refs:  make(map[TransactionRef]struct{}, size),
	}
}

func (s *transactionRefSet) Add(ref TransactionRef) {
	if _, found := s.refs[ref]; found {
		return
	}
	if len(s.order) < s.size {
		s.order = append(s.order, ref)
	} else {
		delete(s.refs, s.order[s.next])
		s.order[s.next] = ref
		s.next = (s.next + 1) % s.size
	}
	s.refs[ref] = struct{}{}
}

func (s *transactionRefSet) Contains(ref TransactionRef) bool {
	_, found := s.refs[ref]
	return found
}

func (s *transactionRefSet) Len() int {
	return len(s.refs)
}
