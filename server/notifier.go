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
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

// PurchaseCompletedNotification is emitted only for a verified entitlement.
const PurchaseCompletedNotification = "iap.purchase_completed"

type EntitlementNotification struct {
	Name          string    `json:"name"`
	ProductID     string    `json:"product_id"`
	TransactionID string    `json:"transaction_id"`
	Restored      bool      `json:"restored"`
	Time          time.Time `json:"time"`
}

func NewEntitlementNotification(result *PurchaseResult) *EntitlementNotification {
	return &EntitlementNotification{
		Name:          PurchaseCompletedNotification,
		ProductID:     result.ProductID,
		TransactionID: string(result.TransactionRef),
		Restored:      result.Restored,
		Time:          time.Now().UTC(),
	}
}

type Notifier interface {
	Notify(ctx context.Context, notification *EntitlementNotification) error
}

// LocalNotifier fans notifications out to in-process subscribers. A subscriber that does not keep up misses
// notifications rather than blocking the purchase flow.
type LocalNotifier struct {
	logger     *zap.Logger
	bufferSize int

	sync.RWMutex
	subscribers map[uuid.UUID]chan *EntitlementNotification
}

func NewLocalNotifier(logger *zap.Logger, bufferSize int) *LocalNotifier {
	if bufferSize < 1 {
		bufferSize = 1
	}
	return &LocalNotifier{
		logger:      logger,
		bufferSize:  bufferSize,
		subscribers: make(map[uuid.UUID]chan *EntitlementNotification),
	}
}

// Subscribe returns the notification channel and a function that removes the subscription and closes the channel.
func (n *LocalNotifier) Subscribe() (<-chan *EntitlementNotification, func()) {
	id := uuid.Must(uuid.NewV4())
	ch := make(chan *EntitlementNotification, n.bufferSize)

	n.Lock()
	n.subscribers[id] = ch
	n.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			n.Lock()
			delete(n.subscribers, id)
			n.Unlock()
			close(ch)
		})
	}
}

func (n *LocalNotifier) Notify(ctx context.Context, notification *EntitlementNotification) error {
	n.RLock()
	defer n.RUnlock()
	for id, ch := range n.subscribers {
		select {
		case ch <- notification:
		default:
			n.logger.Warn("Notification subscriber buffer full, dropping notification", zap.String("subscriber", id.String()), zap.String("product_id", notification.ProductID))
		}
	}
	return nil
}

func (n *LocalNotifier) Count() int {
	n.RLock()
	defer n.RUnlock()
	return len(n.subscribers)
}

// Publisher is satisfied by *nats.Conn.
type Publisher interface {
	Publish(subj string, data []byte) error
}

type NatsNotifier struct {
	logger    *zap.Logger
	publisher Publisher
	subject   string
}

func NewNatsNotifier(logger *zap.Logger, publisher Publisher, subject string) *NatsNotifier {
	if subject == "" {
		subject = PurchaseCompletedNotification
	}
	return &NatsNotifier{
		logger:    logger,
		publisher: publisher,
		subject:   subject,
	}
}

func (n *NatsNotifier) Notify(ctx context.Context, notification *EntitlementNotification) error {
	data, err := json.Marshal(notification)
	if err != nil {
		return err
	}
	if err := n.publisher.Publish(n.subject, data); err != nil {
		return fmt.Errorf("nats publish to %q: %w", n.subject, err)
	}
	n.logger.Debug("Published entitlement notification", zap.String("subject", n.subject), zap.String("product_id", notification.ProductID))
	return nil
}

// MultiNotifier delivers to every notifier, one failing sink does not stop the others.
type MultiNotifier []Notifier

func (m MultiNotifier) Notify(ctx context.Context, notification *EntitlementNotification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
