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
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	notificationStreamPingPeriod   = 15 * time.Second
	notificationStreamPongWait     = 2 * notificationStreamPingPeriod
	notificationStreamMaxReadBytes = 512
)

var notificationStreamUpgrader = &websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// notificationStream pushes every entitlement notification to the connected WebSocket client as a JSON text frame.
func (s *ApiServer) notificationStream(w http.ResponseWriter, r *http.Request) {
	conn, err := notificationStreamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		// http.Error is invoked automatically from within the Upgrade function.
		s.logger.Warn("Could not upgrade to WebSocket", zap.Error(err))
		return
	}
	defer conn.Close()

	notifications, unsubscribe := s.notifier.Subscribe()
	defer unsubscribe()

	logger := s.logger.With(zap.String("remote_addr", r.RemoteAddr))
	logger.Debug("Notification stream opened")

	// Clients send nothing but control frames, reading is only needed to process them and notice a close.
	closedCh := make(chan struct{})
	conn.SetReadLimit(notificationStreamMaxReadBytes)
	_ = conn.SetReadDeadline(time.Now().Add(notificationStreamPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(notificationStreamPongWait))
	})
	go func() {
		defer close(closedCh)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	writeWait := time.Duration(s.config.GetApi().WriteTimeoutMs) * time.Millisecond
	ticker := time.NewTicker(notificationStreamPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closedCh:
			logger.Debug("Notification stream closed by client")
			return
		case <-s.ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), time.Now().Add(writeWait))
			return
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, []byte{}); err != nil {
				logger.Debug("Could not send ping", zap.Error(err))
				return
			}
		case n, ok := <-notifications:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(n); err != nil {
				logger.Debug("Could not write notification", zap.Error(err))
				return
			}
		}
	}
}
