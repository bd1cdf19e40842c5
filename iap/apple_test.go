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

package iap

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testReceipt = ReceiptBlob{Data: []byte("test-receipt-bytes")}

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (fn roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return fn(req)
}

func setupAppleClient(statusCode int, body string, config AppleClientConfig) (*AppleClient, *[]*http.Request) {
	requests := make([]*http.Request, 0, 1)
	httpc := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		requests = append(requests, req)
		return &http.Response{
			StatusCode: statusCode,
			Body:       io.NopCloser(bytes.NewReader([]byte(body))),
		}, nil
	})}
	return NewAppleClient(zap.NewNop(), httpc, config), &requests
}

func TestAppleClientVerifyValidReceipt(t *testing.T) {
	ac, requests := setupAppleClient(200, `{"status":0,"environment":"Sandbox"}`, AppleClientConfig{})

	result, err := ac.Verify(context.Background(), testReceipt, EnvironmentSandbox)
	require.NoError(t, err)

	assert.True(t, result.Verified)
	assert.Equal(t, AppleReceiptIsValid, result.Status)
	assert.Equal(t, AppleSandboxEnvironment, result.Environment)
	require.Len(t, *requests, 1)

	req := (*requests)[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, AppleReceiptValidationUrlSandbox, req.URL.String())
	assert.Equal(t, "application/json; charset=utf-8", req.Header.Get("Content-Type"))

	body, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, base64.StdEncoding.EncodeToString(testReceipt.Data), payload["receipt-data"])
	_, hasPassword := payload["password"]
	assert.False(t, hasPassword, "shared secret must be omitted when not configured")
}

func TestAppleClientVerifySharedPassword(t *testing.T) {
	ac, requests := setupAppleClient(200, `{"status":0}`, AppleClientConfig{SharedPassword: "secret", ExcludeOldTransactions: true})

	_, err := ac.Verify(context.Background(), testReceipt, EnvironmentProduction)
	require.NoError(t, err)

	req := (*requests)[0]
	assert.Equal(t, AppleReceiptValidationUrlProduction, req.URL.String())
	body, _ := io.ReadAll(req.Body)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &payload))
	assert.Equal(t, "secret", payload["password"])
	assert.Equal(t, true, payload["exclude-old-transactions"])
}

func TestAppleClientVerifyNonZeroStatus(t *testing.T) {
	ac, _ := setupAppleClient(200, `{"status":21007}`, AppleClientConfig{})

	result, err := ac.Verify(context.Background(), testReceipt, EnvironmentProduction)
	require.NoError(t, err)

	assert.False(t, result.Verified)
	assert.Equal(t, AppleReceiptIsFromTestSandbox, result.Status)
}

func TestAppleClientVerifyErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		body       string
		err        error
	}{
		{"non-200", 503, `{"status":0}`, ErrNon200ServiceApple},
		{"invalid json", 200, "invalid json response from Apple", ErrMalformedResponse},
		{"missing status", 200, `{"environment":"Sandbox"}`, ErrMalformedResponse},
		{"string status", 200, `{"status":"0"}`, ErrMalformedResponse},
		{"not an object", 200, `[0]`, ErrMalformedResponse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ac, _ := setupAppleClient(tt.statusCode, tt.body, AppleClientConfig{})

			result, err := ac.Verify(context.Background(), testReceipt, EnvironmentSandbox)
			assert.Nil(t, result)
			assert.ErrorIs(t, err, tt.err)

			var vErr *ValidationError
			require.True(t, errors.As(err, &vErr))
			assert.Equal(t, tt.statusCode, vErr.StatusCode)
		})
	}
}

func TestAppleClientVerifyTransportError(t *testing.T) {
	dialErr := errors.New("connection refused")
	httpc := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return nil, dialErr
	})}
	ac := NewAppleClient(zap.NewNop(), httpc, AppleClientConfig{})

	_, err := ac.Verify(context.Background(), testReceipt, EnvironmentSandbox)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, dialErr)
}

func TestAppleClientVerifyTimeoutIsTransportError(t *testing.T) {
	httpc := &http.Client{Transport: roundTripperFunc(func(req *http.Request) (*http.Response, error) {
		<-req.Context().Done()
		return nil, req.Context().Err()
	})}
	ac := NewAppleClient(zap.NewNop(), httpc, AppleClientConfig{})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := ac.Verify(ctx, testReceipt, EnvironmentSandbox)
	assert.ErrorIs(t, err, ErrTransport)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAppleClientVerifyMalformedUrlIsTransportError(t *testing.T) {
	ac, requests := setupAppleClient(200, `{"status":0}`, AppleClientConfig{SandboxUrl: "://sandbox.itunes.apple.com/verifyReceipt"})

	result, err := ac.Verify(context.Background(), testReceipt, EnvironmentSandbox)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, ErrTransport)
	var vErr *ValidationError
	require.True(t, errors.As(err, &vErr))
	assert.Zero(t, vErr.StatusCode)
	assert.Len(t, *requests, 0)
}

func TestAppleClientVerifyEmptyReceipt(t *testing.T) {
	ac, requests := setupAppleClient(200, `{"status":0}`, AppleClientConfig{})

	_, err := ac.Verify(context.Background(), ReceiptBlob{}, EnvironmentSandbox)
	assert.ErrorIs(t, err, ErrNoReceiptPresent)
	assert.Len(t, *requests, 0)
}

func TestParseEnvironment(t *testing.T) {
	env, err := ParseEnvironment("Production")
	assert.NoError(t, err)
	assert.Equal(t, EnvironmentProduction, env)

	env, err = ParseEnvironment(" sandbox ")
	assert.NoError(t, err)
	assert.Equal(t, EnvironmentSandbox, env)

	_, err = ParseEnvironment("staging")
	assert.Error(t, err)
}

func TestStatusReason(t *testing.T) {
	assert.Equal(t, "This receipt is a sandbox receipt, but it was sent to the production service for verification.", StatusReason(AppleReceiptIsFromTestSandbox))
	assert.Equal(t, "Apple internal data access error.", StatusReason(21150))
	assert.Equal(t, "An unknown error occurred.", StatusReason(1))
}
