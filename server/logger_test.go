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
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestJSONLoggerFormat(t *testing.T) {
	buf := &bytes.Buffer{}
	l := NewJSONLogger(buf, zapcore.InfoLevel, JSONFormat)

	l.Debug("hidden")
	l.Info("Transaction finished", zap.String("transaction_id", "tx-1"))

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "info", entry["level"])
	assert.Equal(t, "Transaction finished", entry["msg"])
	assert.Equal(t, "tx-1", entry["transaction_id"])
	assert.Contains(t, entry, "ts")
}

func TestMultiLogger(t *testing.T) {
	first := &bytes.Buffer{}
	second := &bytes.Buffer{}
	l := NewMultiLogger(NewJSONLogger(first, zapcore.InfoLevel, JSONFormat), NewJSONLogger(second, zapcore.WarnLevel, ConsoleFormat))

	l.Info("Restore started")
	l.Warn("Restore failed")

	assert.Contains(t, first.String(), "Restore started")
	assert.Contains(t, first.String(), "Restore failed")
	assert.NotContains(t, second.String(), "Restore started")
	assert.Contains(t, second.String(), "Restore failed")
}

func TestJSONFileLogger(t *testing.T) {
	assert.Nil(t, NewJSONFileLogger(logger, "", zapcore.InfoLevel, JSONFormat))

	path := filepath.Join(t.TempDir(), "reconciler.log")
	l := NewJSONFileLogger(logger, path, zapcore.InfoLevel, JSONFormat)
	require.NotNil(t, l)
	l.Info("Startup done")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Startup done")
}

func TestRotatingJSONFileLogger(t *testing.T) {
	cfg := NewConfig(logger)
	cfg.Logger.File = filepath.Join(t.TempDir(), "logs", "reconciler.log")
	cfg.Logger.Rotation = true

	l := NewRotatingJSONFileLogger(logger, cfg, zapcore.InfoLevel, JSONFormat)
	require.NotNil(t, l)
	l.Info("Startup done")

	data, err := os.ReadFile(cfg.Logger.File)
	require.NoError(t, err)
	assert.Contains(t, string(data), "Startup done")
}
