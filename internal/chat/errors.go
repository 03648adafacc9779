// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeranaias/rigchat/internal/ollama"
	"github.com/jeranaias/rigchat/internal/storage"
)

// ErrorKind classifies a turn failure for clients.
type ErrorKind string

const (
	KindValidation ErrorKind = "validation"
	KindNotFound   ErrorKind = "not_found"
	KindTransport  ErrorKind = "transport"
	KindTimeout    ErrorKind = "timeout"
	KindUpstream   ErrorKind = "upstream"
	KindStorage    ErrorKind = "storage"
	KindCanceled   ErrorKind = "canceled"
	KindInternal   ErrorKind = "internal"
)

// ValidationError is returned for malformed requests.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// Kind maps err onto an ErrorKind. A nil error has no kind.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return KindValidation
	case storage.IsNotFound(err):
		return KindNotFound
	case errors.Is(err, context.Canceled):
		return KindCanceled
	case ollama.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case ollama.IsTransport(err):
		return KindTransport
	case ollama.IsUpstream(err):
		return KindUpstream
	case storage.IsStorageError(err):
		return KindStorage
	default:
		return KindInternal
	}
}
