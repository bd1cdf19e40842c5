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

	"go.uber.org/zap"
)

type AppleClientConfig struct {
	// Optional, only required for apps with auto-renewable subscriptions.
	SharedPassword         string
	ExcludeOldTransactions bool
	SandboxUrl             string
	ProductionUrl          string
}

// AppleClient sends receipts to Apple's verifyReceipt endpoint. It holds no state besides its endpoint configuration.
type AppleClient struct {
	logger *zap.Logger
	httpc  *http.Client
	config AppleClientConfig
}

func NewAppleClient(logger *zap.Logger, httpc *http.Client, config AppleClientConfig) *AppleClient {
	if httpc == nil {
		httpc = http.DefaultClient
	}
	if config.SandboxUrl == "" {
		config.SandboxUrl = AppleReceiptValidationUrlSandbox
	}
	if config.ProductionUrl == "" {
		config.ProductionUrl = AppleReceiptValidationUrlProduction
	}
	return &AppleClient{
		logger: logger,
		httpc:  httpc,
		config: config,
	}
}

type appleRequest struct {
	ReceiptData            string `json:"receipt-data"`
	Password               string `json:"password,omitempty"`
	ExcludeOldTransactions bool   `json:"exclude-old-transactions,omitempty"`
}

type appleResponse struct {
	Status      *int   `json:"status"`
	Environment string `json:"environment"`
	IsRetryable bool   `json:"is-retryable"`
}

func (ac *AppleClient) url(env Environment) string {
	if env == EnvironmentProduction {
		return ac.config.ProductionUrl
	}
	return ac.config.SandboxUrl
}

// Verify sends the receipt to the endpoint of the given environment. A non-zero Apple status is not an error, it
// yields an unverified result and the caller decides whether to retry against the other environment.
func (ac *AppleClient) Verify(ctx context.Context, receipt ReceiptBlob, env Environment) (*VerificationResult, error) {
	if receipt.Empty() {
		return nil, ErrNoReceiptPresent
	}

	payload, err := json.Marshal(&appleRequest{
		ReceiptData:            base64.StdEncoding.EncodeToString(receipt.Data),
		Password:               ac.config.SharedPassword,
		ExcludeOldTransactions: ac.config.ExcludeOldTransactions,
	})
	if err != nil {
		return nil, &ValidationError{Err: ErrTransport, cause: err}
	}

	url := ac.url(env)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		ac.logger.Warn("Error building Apple verification request", zap.String("url", url), zap.Error(err))
		return nil, &ValidationError{Err: ErrTransport, cause: err}
	}
	req.Header.Set("Content-Type", contentTypeApplicationJsonUtf8)

	resp, err := ac.httpc.Do(req)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			ac.logger.Warn("Could not connect to Apple verification service.", zap.String("url", url), zap.Error(err))
		}
		return nil, &ValidationError{Err: ErrTransport, cause: err}
	}
	defer resp.Body.Close()

	buf, err := io.ReadAll(resp.Body)
	if err != nil {
		ac.logger.Warn("Could not read response from Apple verification service.", zap.String("url", url), zap.Error(err))
		return nil, &ValidationError{Err: ErrTransport, StatusCode: resp.StatusCode, cause: err}
	}

	if resp.StatusCode != http.StatusOK {
		ac.logger.Warn("Non-200 response from Apple verification service.", zap.String("url", url), zap.Int("status_code", resp.StatusCode))
		return nil, &ValidationError{Err: ErrNon200ServiceApple, StatusCode: resp.StatusCode, Payload: truncatePayload(buf)}
	}

	var out appleResponse
	if err := json.Unmarshal(buf, &out); err != nil {
		ac.logger.Warn("Could not parse response from Apple verification service.", zap.String("url", url), zap.Error(err))
		return nil, &ValidationError{Err: ErrMalformedResponse, StatusCode: resp.StatusCode, Payload: truncatePayload(buf), cause: err}
	}
	if out.Status == nil {
		ac.logger.Warn("Apple verification response has no status.", zap.String("url", url))
		return nil, &ValidationError{Err: ErrMalformedResponse, StatusCode: resp.StatusCode, Payload: truncatePayload(buf)}
	}

	return &VerificationResult{
		Verified:    *out.Status == AppleReceiptIsValid,
		Status:      *out.Status,
		Environment: out.Environment,
		IsRetryable: out.IsRetryable,
		Raw:         buf,
	}, nil
}
