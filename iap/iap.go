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
	"errors"
	"fmt"
	"strings"
)

const (
	AppleReceiptValidationUrlSandbox    = "https://sandbox.itunes.apple.com/verifyReceipt"
	AppleReceiptValidationUrlProduction = "https://buy.itunes.apple.com/verifyReceipt"
)

const (
	AppleReceiptIsValid              = 0
	AppleReceiptUnreadableJson       = 21000
	AppleReceiptMalformedData        = 21002
	AppleReceiptAuthenticationError  = 21003
	AppleReceiptUnmatchedSecret      = 21004
	AppleReceiptServerUnavailable    = 21005
	AppleReceiptSubscriptionExpired  = 21006
	AppleReceiptIsFromTestSandbox    = 21007 // Receipt from test env was sent to prod. Should retry against the sandbox env.
	AppleReceiptIsFromProduction     = 21008 // Receipt from prod env was sent to sandbox.
	AppleReceiptInternalDataAccess   = 21009
	AppleReceiptAccountNotFound      = 21010
	AppleSandboxEnvironment          = "Sandbox"
	AppleProductionEnvironment       = "Production"
	contentTypeApplicationJsonUtf8   = "application/json; charset=utf-8"
	maxValidationResponsePayloadSize = 512
)

var (
	ErrNoReceiptPresent   = errors.New("no receipt present")
	ErrTransport          = errors.New("could not connect to Apple verification service")
	ErrMalformedResponse  = errors.New("could not parse response from Apple verification service")
	ErrNon200ServiceApple = errors.New("non-200 response from Apple service")
)

// Environment selects which Apple verification endpoint a receipt is sent to.
type Environment int

const (
	EnvironmentSandbox Environment = iota
	EnvironmentProduction
)

func (e Environment) String() string {
	switch e {
	case EnvironmentSandbox:
		return "sandbox"
	case EnvironmentProduction:
		return "production"
	default:
		return fmt.Sprintf("environment(%d)", int(e))
	}
}

// URL returns the default Apple endpoint for the environment.
func (e Environment) URL() string {
	if e == EnvironmentProduction {
		return AppleReceiptValidationUrlProduction
	}
	return AppleReceiptValidationUrlSandbox
}

// ParseEnvironment accepts "sandbox" or "production", case insensitive.
func ParseEnvironment(s string) (Environment, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sandbox":
		return EnvironmentSandbox, nil
	case "production":
		return EnvironmentProduction, nil
	default:
		return EnvironmentSandbox, fmt.Errorf("unknown Apple environment %q, must be one of: sandbox, production", s)
	}
}

// ReceiptBlob is the opaque platform receipt, exactly as read from the device.
type ReceiptBlob struct {
	Data []byte
}

func (r ReceiptBlob) Empty() bool {
	return len(r.Data) == 0
}

type VerificationResult struct {
	Verified    bool
	Status      int
	Environment string
	IsRetryable bool
	Raw         []byte
}

// ValidationError is returned for every failure of a verification request that did not yield a status.
type ValidationError struct {
	Err        error
	StatusCode int
	Payload    string
	cause      error
}

func (e *ValidationError) Error() string {
	var b strings.Builder
	b.WriteString(e.Err.Error())
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status_code: %d)", e.StatusCode)
	}
	if e.cause != nil {
		b.WriteString(": ")
		b.WriteString(e.cause.Error())
	}
	return b.String()
}

func (e *ValidationError) Unwrap() []error {
	if e.cause == nil {
		return []error{e.Err}
	}
	return []error{e.Err, e.cause}
}

// StatusReason describes an Apple verifyReceipt status code.
func StatusReason(status int) string {
	switch status {
	case AppleReceiptIsValid:
		return "The receipt is valid."
	case AppleReceiptUnreadableJson:
		return "Apple could not read the receipt."
	case AppleReceiptMalformedData:
		return "Receipt was malformed."
	case AppleReceiptAuthenticationError:
		return "The receipt could not be authenticated."
	case AppleReceiptUnmatchedSecret:
		return "Apple Purchase shared secret is invalid."
	case AppleReceiptServerUnavailable:
		return "Apple purchase verification servers are not currently available."
	case AppleReceiptSubscriptionExpired:
		return "This receipt is valid but the subscription has expired."
	case AppleReceiptIsFromTestSandbox:
		return "This receipt is a sandbox receipt, but it was sent to the production service for verification."
	case AppleReceiptIsFromProduction:
		return "This receipt is a production receipt, but it was sent to the sandbox service for verification."
	case AppleReceiptInternalDataAccess:
		return "Apple internal data access error."
	case AppleReceiptAccountNotFound:
		return "The user account cannot be found or has been deleted."
	default:
		if status >= 21100 && status <= 21199 {
			return "Apple internal data access error."
		}
		return "An unknown error occurred."
	}
}

func truncatePayload(buf []byte) string {
	if len(buf) > maxValidationResponsePayloadSize {
		return string(buf[:maxValidationResponsePayloadSize])
	}
	return string(buf)
}
