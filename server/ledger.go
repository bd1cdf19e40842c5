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
	"sync"
	"time"
)

type PurchaseIntent struct {
	CorrelationKey string
	Completion     PurchaseCompletionFn
	CreatedAt      time.Time
}

// TransactionLedger tracks pending purchase and restore requests by correlation key. It is not persisted, intents lost
// on restart are recovered by the platform redelivering unfinished transactions.
type TransactionLedger struct {
	sync.Mutex
	intents map[string]*PurchaseIntent
}

func NewTransactionLedger() *TransactionLedger {
	return &TransactionLedger{
		intents: make(map[string]*PurchaseIntent),
	}
}

func (l *TransactionLedger) Register(intent *PurchaseIntent) error {
	l.Lock()
	defer l.Unlock()
	if _, found := l.intents[intent.CorrelationKey]; found {
		return ErrDuplicateIntent
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = time.Now().UTC()
	}
	l.intents[intent.CorrelationKey] = intent
	return nil
}

// Resolve removes the intent and invokes its completion. It reports false when no intent was pending for the key.
func (l *TransactionLedger) Resolve(key string, result *PurchaseResult, err error) bool {
	l.Lock()
	intent, found := l.intents[key]
	if found {
		delete(l.intents, key)
	}
	l.Unlock()

	if !found {
		return false
	}
	if intent.Completion != nil {
		intent.Completion(result, err)
	}
	return true
}

// Discard removes the intent without invoking its completion.
func (l *TransactionLedger) Discard(key string) {
	l.Lock()
	delete(l.intents, key)
	l.Unlock()
}

func (l *TransactionLedger) Pending(key string) bool {
	l.Lock()
	_, found := l.intents[key]
	l.Unlock()
	return found
}

func (l *TransactionLedger) Len() int {
	l.Lock()
	defer l.Unlock()
	return len(l.intents)
}

// Keys returns the correlation keys of all pending intents.
func (l *TransactionLedger) Keys() []string {
	l.Lock()
	defer l.Unlock()
	keys := make([]string, 0, len(l.intents))
	for key := range l.intents {
		keys = append(keys, key)
	}
	return keys
}
