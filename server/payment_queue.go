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
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// TransactionObserver receives payment queue deliveries. Calls arrive on the queue's delivery goroutine and must not
// block on network work.
type TransactionObserver interface {
	OnTransactionEvents(events []*TransactionEvent)
	OnRestoreFinished(err error)
}

// PaymentQueue is the platform payment queue.
type PaymentQueue interface {
	AddObserver(observer TransactionObserver) error
	CanMakePayments() bool
	AddPayment(ctx context.Context, productID string) (TransactionRef, error)
	RestoreCompletedTransactions(ctx context.Context) error
	FinishTransaction(event *TransactionEvent) error
}

type queuedTransaction struct {
	event     *TransactionEvent
	updatedAt time.Time
}

// LocalPaymentQueue is the payment queue of a server-side deployment: a device bridge pushes the platform's
// transaction updates into it, and it keeps every terminal transaction until it is finished so it can be redelivered.
type LocalPaymentQueue struct {
	logger *zap.Logger

	ctx         context.Context
	ctxCancelFn context.CancelFunc
	deliveryCh  chan func(TransactionObserver)
	stopped     chan struct{}

	paymentsAllowed *atomic.Bool
	finishedCount   *atomic.Int64

	sync.Mutex
	observer         TransactionObserver
	payments         map[TransactionRef]*queuedTransaction
	unfinished       map[TransactionRef]*queuedTransaction
	restoreRequested bool
}

func NewLocalPaymentQueue(logger *zap.Logger, deliveryBufferSize int) *LocalPaymentQueue {
	ctx, ctxCancelFn := context.WithCancel(context.Background())
	q := &LocalPaymentQueue{
		logger:          logger,
		ctx:             ctx,
		ctxCancelFn:     ctxCancelFn,
		deliveryCh:      make(chan func(TransactionObserver), deliveryBufferSize),
		stopped:         make(chan struct{}),
		paymentsAllowed: atomic.NewBool(true),
		finishedCount:   atomic.NewInt64(0),
		payments:        make(map[TransactionRef]*queuedTransaction),
		unfinished:      make(map[TransactionRef]*queuedTransaction),
	}

	go q.deliveryLoop()

	return q
}

func (q *LocalPaymentQueue) deliveryLoop() {
	defer close(q.stopped)
	for {
		select {
		case <-q.ctx.Done():
			return
		case fn := <-q.deliveryCh:
			q.Lock()
			observer := q.observer
			q.Unlock()
			if observer == nil {
				q.logger.Warn("Payment queue delivery without an observer, dropping")
				continue
			}
			fn(observer)
		}
	}
}

func (q *LocalPaymentQueue) Stop() {
	q.ctxCancelFn()
	<-q.stopped
}

func (q *LocalPaymentQueue) enqueue(fn func(TransactionObserver)) {
	select {
	case <-q.ctx.Done():
	case q.deliveryCh <- fn:
	}
}

func (q *LocalPaymentQueue) AddObserver(observer TransactionObserver) error {
	q.Lock()
	defer q.Unlock()
	if q.observer != nil {
		return ErrObserverRegistered
	}
	q.observer = observer
	return nil
}

func (q *LocalPaymentQueue) SetPaymentsAllowed(allowed bool) {
	q.paymentsAllowed.Store(allowed)
}

func (q *LocalPaymentQueue) CanMakePayments() bool {
	return q.paymentsAllowed.Load()
}

// AddPayment assigns the transaction reference and delivers the initial purchasing state.
func (q *LocalPaymentQueue) AddPayment(ctx context.Context, productID string) (TransactionRef, error) {
	if !q.CanMakePayments() {
		return "", ErrPaymentsNotAllowed
	}
	ref := TransactionRef(uuid.Must(uuid.NewV4()).String())
	event := &TransactionEvent{
		ProductID: productID,
		Ref:       ref,
		State:     TransactionPurchasing,
	}
	q.Lock()
	q.payments[ref] = &queuedTransaction{event: event, updatedAt: time.Now().UTC()}
	q.Unlock()
	q.logger.Debug("Payment added to queue", zap.String("product_id", productID), zap.String("transaction_id", string(ref)))
	q.enqueue(func(o TransactionObserver) {
		o.OnTransactionEvents([]*TransactionEvent{event})
	})
	return ref, nil
}

func (q *LocalPaymentQueue) RestoreCompletedTransactions(ctx context.Context) error {
	q.Lock()
	q.restoreRequested = true
	q.Unlock()
	q.logger.Debug("Restore of completed transactions requested")
	return nil
}

func (q *LocalPaymentQueue) FinishTransaction(event *TransactionEvent) error {
	q.Lock()
	_, found := q.unfinished[event.Ref]
	delete(q.unfinished, event.Ref)
	q.Unlock()

	q.finishedCount.Inc()
	if !found {
		q.logger.Debug("Finished transaction unknown to the queue", zap.String("transaction_id", string(event.Ref)))
	}
	return nil
}

// Deliver pushes a batch of transaction updates from the device into the queue.
func (q *LocalPaymentQueue) Deliver(events []*TransactionEvent) {
	if len(events) == 0 {
		return
	}
	now := time.Now().UTC()
	q.Lock()
	for _, e := range events {
		if e.State.Terminal() {
			delete(q.payments, e.Ref)
			q.unfinished[e.Ref] = &queuedTransaction{event: e, updatedAt: now}
		}
	}
	q.Unlock()

	q.enqueue(func(o TransactionObserver) {
		o.OnTransactionEvents(events)
	})
}

// FinishRestore signals the end of a restore, err is the platform's restore failure if any.
func (q *LocalPaymentQueue) FinishRestore(err error) {
	q.Lock()
	if !q.restoreRequested {
		q.logger.Debug("Restore finished without a pending restore request")
	}
	q.restoreRequested = false
	q.Unlock()

	q.enqueue(func(o TransactionObserver) {
		o.OnRestoreFinished(err)
	})
}

// Redeliver sends every unfinished terminal transaction to the observer again, as the platform does on launch.
func (q *LocalPaymentQueue) Redeliver() int {
	events := q.Unfinished()
	if len(events) > 0 {
		q.enqueue(func(o TransactionObserver) {
			o.OnTransactionEvents(events)
		})
	}
	return len(events)
}

// Unfinished lists terminal transactions not finished yet, oldest first.
func (q *LocalPaymentQueue) Unfinished() []*TransactionEvent {
	q.Lock()
	defer q.Unlock()
	return sortedTransactions(q.unfinished)
}

// Payments lists payments added to the queue that have not reached a terminal state, for the device to perform.
func (q *LocalPaymentQueue) Payments() []*TransactionEvent {
	q.Lock()
	defer q.Unlock()
	return sortedTransactions(q.payments)
}

func sortedTransactions(transactions map[TransactionRef]*queuedTransaction) []*TransactionEvent {
	queued := make([]*queuedTransaction, 0, len(transactions))
	for _, t := range transactions {
		queued = append(queued, t)
	}
	sort.Slice(queued, func(i, j int) bool {
		if queued[i].updatedAt.Equal(queued[j].updatedAt) {
			return queued[i].event.Ref < queued[j].event.Ref
		}
		return queued[i].updatedAt.Before(queued[j].updatedAt)
	})
	events := make([]*TransactionEvent, 0, len(queued))
	for _, t := range queued {
		events = append(events, t.event)
	}
	return events
}

func (q *LocalPaymentQueue) FinishedCount() int64 {
	return q.finishedCount.Load()
}
