// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	// ErrTypeTransport: the server could not be reached (refused, DNS, reset).
	ErrTypeTransport
	// ErrTypeTimeout: connect, idle-read or overall deadline exceeded.
	ErrTypeTimeout
	// ErrTypeUpstream: Ollama answered with an error message.
	ErrTypeUpstream
	// ErrTypeHTTP: non-2xx status without an error message.
	ErrTypeHTTP
	// ErrTypeInvalidResponse: a non-streaming body could not be decoded.
	ErrTypeInvalidResponse
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeTransport:
		return "transport"
	case ErrTypeTimeout:
		return "timeout"
	case ErrTypeUpstream:
		return "upstream"
	case ErrTypeHTTP:
		return "http"
	case ErrTypeInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type ErrorType
	// Message is user-facing and already includes any guidance.
	Message string
	// Endpoint is the URL that failed, when known.
	Endpoint string
	// StatusCode is set for HTTP-level failures.
	StatusCode int
	Cause      error
}

func (e *ClientError) Error() string {
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// =============================================================================
// CONSTRUCTORS
// =============================================================================

func transportError(baseURL, endpoint string, cause error) *ClientError {
	return &ClientError{
		Type: ErrTypeTransport,
		Message: fmt.Sprintf("Failed to connect to Ollama at %s. Please ensure Ollama is running.\n\n"+
			"To start Ollama, run: ollama serve", baseURL),
		Endpoint: endpoint,
		Cause:    cause,
	}
}

func streamTimeoutError(endpoint string, cause error) *ClientError {
	return &ClientError{
		Type: ErrTypeTimeout,
		Message: "Ollama request timed out. The model may be taking too long to respond. Try:\n" +
			"- Using a smaller/faster model\n" +
			"- Reducing the context length\n" +
			"- Checking if Ollama is running properly",
		Endpoint: endpoint,
		Cause:    cause,
	}
}

func requestTimeoutError(endpoint string, after fmt.Stringer, cause error) *ClientError {
	return &ClientError{
		Type: ErrTypeTimeout,
		Message: fmt.Sprintf("Ollama request timed out after %s. The model may be too slow for your system. "+
			"Try using a smaller model.", after),
		Endpoint: endpoint,
		Cause:    cause,
	}
}

func upstreamError(endpoint, msg string) *ClientError {
	return &ClientError{
		Type:     ErrTypeUpstream,
		Message:  "Ollama error: " + msg + clarify(msg),
		Endpoint: endpoint,
	}
}

// clarify adds guidance for upstream messages users commonly misread.
func clarify(msg string) string {
	if isModelMissing(msg) {
		return "\n\nThe model is not installed or the name is wrong. Check the name and install it first " +
			"(for example: ollama pull llama3.2:1b)."
	}
	return ""
}

func isModelMissing(msg string) bool {
	lower := strings.ToLower(msg)
	return strings.Contains(lower, "manifest") ||
		strings.Contains(lower, "file does not exist") ||
		(strings.Contains(lower, "model") && strings.Contains(lower, "not found"))
}

// PullErrorMessage rewrites a pull failure into guidance naming the model.
func PullErrorMessage(modelName string, err error) string {
	msg := err.Error()
	var ce *ClientError
	if errors.As(err, &ce) {
		switch ce.Type {
		case ErrTypeTransport, ErrTypeTimeout:
			return "Failed to connect to Ollama service. Please ensure:\n1. Ollama is running\n" +
				"2. Ollama is accessible at " + endpointBase(ce.Endpoint) + "\n" +
				"3. Your firewall is not blocking the connection"
		}
	}
	if isModelMissing(msg) {
		return fmt.Sprintf("Model '%s' not found in Ollama registry. Please check:\n"+
			"1. The model name is correct (e.g., 'llama3:8b', 'mistral:7b')\n"+
			"2. Your internet connection is working\n"+
			"3. Ollama can access the model registry", modelName)
	}
	return msg
}

func endpointBase(endpoint string) string {
	if i := strings.Index(endpoint, "/api/"); i >= 0 {
		return endpoint[:i]
	}
	return endpoint
}

// classifyDoErr maps an http.Client.Do or body read failure. Caller
// cancellation is returned unchanged so errors.Is(err, context.Canceled)
// holds.
func classifyDoErr(ctx context.Context, baseURL, endpoint string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if isTimeout(err) {
		return streamTimeoutError(endpoint, err)
	}
	return transportError(baseURL, endpoint, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, errIdleTimeout) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// =============================================================================
// PREDICATES
// =============================================================================

func hasType(err error, t ErrorType) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == t
}

// IsTransport reports whether err means Ollama could not be reached.
func IsTransport(err error) bool { return hasType(err, ErrTypeTransport) }

// IsTimeout checks if an error is a timeout error.
func IsTimeout(err error) bool { return hasType(err, ErrTypeTimeout) }

// IsUpstream reports whether Ollama itself returned the error.
func IsUpstream(err error) bool {
	return hasType(err, ErrTypeUpstream) || hasType(err, ErrTypeHTTP) || hasType(err, ErrTypeInvalidResponse)
}

// IsModelNotFound checks if an error is a model not found error.
func IsModelNotFound(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrTypeUpstream && isModelMissing(clientErr.Message)
}
