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
	"testing"
	"time"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelObserver struct {
	events   chan []*TransactionEvent
	restores chan error
}

func newChannelObserver() *channelObserver {
	return &channelObserver{
		events:   make(chan []*TransactionEvent, 16),
		restores: make(chan error, 4),
	}
}

func (o *channelObserver) OnTransactionEvents(events []*TransactionEvent) {
	o.events <- events
}

func (o *channelObserver) OnRestoreFinished(err error) {
	o.restores <- err
}

func (o *channelObserver) nextEvents(t *testing.T) []*TransactionEvent {
	t.Helper()
	select {
	case events := <-o.events:
		return events
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for delivery")
		return nil
	}
}

func newObservedQueue(t *testing.T) (*LocalPaymentQueue, *channelObserver) {
	queue := NewLocalPaymentQueue(logger, 8)
	t.Cleanup(queue.Stop)
	observer := newChannelObserver()
	require.NoError(t, queue.AddObserver(observer))
	return queue, observer
}

func TestPaymentQueueAddPayment(t *testing.T) {
	queue, observer := newObservedQueue(t)

	ref, err := queue.AddPayment(context.Background(), "com.example.gems")
	require.NoError(t, err)
	_, err = uuid.FromString(string(ref))
	assert.NoError(t, err)

	events := observer.nextEvents(t)
	require.Len(t, events, 1)
	assert.Equal(t, &TransactionEvent{ProductID: "com.example.gems", Ref: ref, State: TransactionPurchasing}, events[0])

	payments := queue.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, ref, payments[0].Ref)
	assert.Empty(t, queue.Unfinished())
}

func TestPaymentQueuePaymentsNotAllowed(t *testing.T) {
	queue, _ := newObservedQueue(t)
	queue.SetPaymentsAllowed(false)

	assert.False(t, queue.CanMakePayments())
	_, err := queue.AddPayment(context.Background(), "com.example.gems")
	assert.ErrorIs(t, err, ErrPaymentsNotAllowed)
	assert.Empty(t, queue.Payments())
}

func TestPaymentQueueSingleObserver(t *testing.T) {
	queue, _ := newObservedQueue(t)
	assert.ErrorIs(t, queue.AddObserver(newChannelObserver()), ErrObserverRegistered)
}

func TestPaymentQueueDeliverKeepsTerminalUntilFinished(t *testing.T) {
	queue, observer := newObservedQueue(t)

	ref, err := queue.AddPayment(context.Background(), "com.example.gems")
	require.NoError(t, err)
	observer.nextEvents(t)

	purchased := &TransactionEvent{ProductID: "com.example.gems", Ref: ref, State: TransactionPurchased}
	pending := &TransactionEvent{ProductID: "com.example.coins", Ref: "tx-2", State: TransactionDeferred}
	queue.Deliver([]*TransactionEvent{purchased, pending})

	assert.Equal(t, []*TransactionEvent{purchased, pending}, observer.nextEvents(t))
	assert.Empty(t, queue.Payments())
	assert.Equal(t, []*TransactionEvent{purchased}, queue.Unfinished())

	require.NoError(t, queue.FinishTransaction(purchased))
	assert.Empty(t, queue.Unfinished())
	assert.EqualValues(t, 1, queue.FinishedCount())
}

func TestPaymentQueueRedeliver(t *testing.T) {
	queue, observer := newObservedQueue(t)

	assert.Equal(t, 0, queue.Redeliver())

	first := &TransactionEvent{ProductID: "com.example.gems", Ref: "tx-1", State: TransactionPurchased}
	second := &TransactionEvent{ProductID: "com.example.coins", Ref: "tx-2", State: TransactionFailed}
	queue.Deliver([]*TransactionEvent{first})
	queue.Deliver([]*TransactionEvent{second})
	observer.nextEvents(t)
	observer.nextEvents(t)

	assert.Equal(t, 2, queue.Redeliver())
	assert.ElementsMatch(t, []*TransactionEvent{first, second}, observer.nextEvents(t))

	require.NoError(t, queue.FinishTransaction(first))
	assert.Equal(t, 1, queue.Redeliver())
	assert.Equal(t, []*TransactionEvent{second}, observer.nextEvents(t))
}

func TestPaymentQueueFinishRestore(t *testing.T) {
	queue, observer := newObservedQueue(t)

	require.NoError(t, queue.RestoreCompletedTransactions(context.Background()))
	queue.FinishRestore(nil)
	queue.FinishRestore(errors.New("network unavailable"))

	select {
	case err := <-observer.restores:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for restore")
	}
	select {
	case err := <-observer.restores:
		assert.EqualError(t, err, "network unavailable")
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for restore")
	}
}

func TestPaymentQueueDeliveryOrder(t *testing.T) {
	queue, observer := newObservedQueue(t)

	for _, ref := range []TransactionRef{"tx-1", "tx-2", "tx-3"} {
		queue.Deliver([]*TransactionEvent{{ProductID: "com.example.gems", Ref: ref, State: TransactionPurchased}})
	}
	for _, ref := range []TransactionRef{"tx-1", "tx-2", "tx-3"} {
		events := observer.nextEvents(t)
		require.Len(t, events, 1)
		assert.Equal(t, ref, events[0].Ref)
	}
}

func TestPaymentQueueStop(t *testing.T) {
	queue := NewLocalPaymentQueue(logger, 1)
	queue.Stop()

	// Deliveries after stopping return without blocking.
	queue.Deliver([]*TransactionEvent{{Ref: "tx-1", State: TransactionPurchased}})
	queue.Deliver([]*TransactionEvent{{Ref: "tx-2", State: TransactionPurchased}})
	assert.Len(t, queue.Unfinished(), 2)
}
