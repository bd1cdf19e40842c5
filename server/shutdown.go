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
	"os"
	"time"

	"go.uber.org/zap"
)

// HandleShutdown lets in-flight verifications finish within the grace period, then stops the coordinator. Flows still
// running when the period expires or a second signal arrives are cancelled and their transactions stay unacknowledged.
func HandleShutdown(logger *zap.Logger, coordinator *PurchaseCoordinator, graceSeconds int, c chan os.Signal) {
	// If a shutdown grace period is allowed, prepare a timer.
	var timer *time.Timer
	timerCh := make(<-chan time.Time, 1)

	if graceSeconds != 0 {
		timer = time.NewTimer(time.Duration(graceSeconds) * time.Second)
		timerCh = timer.C
		logger.Info("Shutdown started - use CTRL^C to force stop server", zap.Int("grace_period_sec", graceSeconds))
	} else {
		// No grace period.
		logger.Info("Shutdown started")
	}

	drained := coordinator.Drain()
	if graceSeconds != 0 {
		select {
		case <-drained:
			logger.Info("All in-flight transactions completed")
		case <-timerCh:
			logger.Info("Shutdown grace period expired")
		case <-c:
			// A second interrupt has been received.
			logger.Info("Skipping graceful shutdown")
		}
	}

	coordinator.Stop()

	if timer != nil {
		timer.Stop()
	}
}
