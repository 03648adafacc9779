// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// =============================================================================
// IDLE TIMEOUT READER
// =============================================================================

// idleReader aborts the request when a single Read blocks longer than
// timeout. The timer restarts on every Read, so steady output never expires.
type idleReader struct {
	r       io.Reader
	timeout time.Duration
	timer   *time.Timer
	expired atomic.Bool
}

func newIdleReader(r io.Reader, timeout time.Duration, abort context.CancelFunc) *idleReader {
	ir := &idleReader{r: r, timeout: timeout}
	ir.timer = time.AfterFunc(timeout, func() {
		ir.expired.Store(true)
		abort()
	})
	ir.timer.Stop()
	return ir
}

func (ir *idleReader) Read(p []byte) (int, error) {
	ir.timer.Reset(ir.timeout)
	n, err := ir.r.Read(p)
	ir.timer.Stop()
	if ir.expired.Load() {
		return n, errIdleTimeout
	}
	return n, err
}

func (ir *idleReader) stop() {
	ir.timer.Stop()
}

// =============================================================================
// LINE READER
// =============================================================================

// lineReader yields trimmed, non-empty NDJSON lines.
type lineReader struct {
	br      *bufio.Reader
	pending error
}

func newLineReader(r io.Reader) *lineReader {
	return &lineReader{br: bufio.NewReaderSize(r, 8192)}
}

// next returns the next non-blank line. A final line without a trailing
// newline is returned before the read error that ended it.
func (lr *lineReader) next() ([]byte, error) {
	for {
		if lr.pending != nil {
			return nil, lr.pending
		}
		line, err := lr.br.ReadBytes('\n')
		if err != nil {
			lr.pending = err
		}
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return line, nil
		}
	}
}

// =============================================================================
// CHAT STREAM
// =============================================================================

// ChatStream is a pull-based iterator over the fragments of a streaming chat
// response. It is not safe for concurrent use except for Close.
type ChatStream struct {
	ctx      context.Context
	body     io.ReadCloser
	cancel   context.CancelFunc
	idle     *idleReader
	lines    *lineReader
	baseURL  string
	endpoint string

	err   error // sticky terminal error, io.EOF after completion
	stats StreamStats

	closeOnce sync.Once
}

func newChatStream(ctx context.Context, body io.ReadCloser, cancel context.CancelFunc,
	idleTimeout time.Duration, baseURL, endpoint string) *ChatStream {
	idle := newIdleReader(body, idleTimeout, cancel)
	return &ChatStream{
		ctx:      ctx,
		body:     body,
		cancel:   cancel,
		idle:     idle,
		lines:    newLineReader(idle),
		baseURL:  baseURL,
		endpoint: endpoint,
	}
}

// Next returns the next non-empty fragment. It returns io.EOF once the
// server reports completion or the body ends cleanly, the caller's context
// error on cancellation, and a *ClientError otherwise. Malformed lines are
// skipped. Once Next returns an error every later call returns the same one.
func (s *ChatStream) Next() (string, error) {
	for {
		if s.err != nil {
			return "", s.err
		}

		line, err := s.lines.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return "", s.finish(io.EOF)
			}
			return "", s.finish(s.readErr(err))
		}

		var chunk chatChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			continue
		}
		if chunk.Error != "" {
			return "", s.finish(upstreamError(s.endpoint, chunk.Error))
		}
		if chunk.Done {
			s.stats = statsFromChunk(chunk)
			s.finish(io.EOF)
			if chunk.Message.Content != "" {
				return chunk.Message.Content, nil
			}
			return "", io.EOF
		}
		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
	}
}

func (s *ChatStream) readErr(err error) error {
	if s.ctx.Err() != nil {
		return s.ctx.Err()
	}
	if errors.Is(err, errIdleTimeout) {
		return streamTimeoutError(s.endpoint, err)
	}
	return classifyDoErr(s.ctx, s.baseURL, s.endpoint, err)
}

// finish records the terminal state and releases the connection.
func (s *ChatStream) finish(err error) error {
	s.err = err
	s.Close()
	return err
}

// Stats returns the final statistics. Zero until the done chunk arrives.
func (s *ChatStream) Stats() StreamStats {
	return s.stats
}

// Close releases the connection. It is idempotent and may be called from
// another goroutine to abort a blocked Next.
func (s *ChatStream) Close() error {
	s.closeOnce.Do(func() {
		s.idle.stop()
		s.cancel()
		s.body.Close()
	})
	return nil
}

// =============================================================================
// PULL STREAM
// =============================================================================

// PullStream is a pull-based iterator over /api/pull progress objects.
type PullStream struct {
	ctx      context.Context
	body     io.ReadCloser
	cancel   context.CancelFunc
	lines    *lineReader
	baseURL  string
	endpoint string

	err       error
	closeOnce sync.Once
}

func newPullStream(ctx context.Context, body io.ReadCloser, cancel context.CancelFunc, baseURL, endpoint string) *PullStream {
	return &PullStream{
		ctx:      ctx,
		body:     body,
		cancel:   cancel,
		lines:    newLineReader(body),
		baseURL:  baseURL,
		endpoint: endpoint,
	}
}

// Next returns the next progress object, io.EOF when the download stream
// ends, or a terminal error. A progress object carrying an error, or with
// status "error", is terminal.
func (p *PullStream) Next() (PullProgress, error) {
	for {
		if p.err != nil {
			return PullProgress{}, p.err
		}
		line, err := p.lines.next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return PullProgress{}, p.finish(io.EOF)
			}
			return PullProgress{}, p.finish(classifyDoErr(p.ctx, p.baseURL, p.endpoint, err))
		}

		var prog PullProgress
		if err := json.Unmarshal(line, &prog); err != nil {
			continue
		}
		if prog.Error != "" {
			return PullProgress{}, p.finish(upstreamError(p.endpoint, prog.Error))
		}
		if prog.Status == "error" {
			return PullProgress{}, p.finish(upstreamError(p.endpoint, "Unknown error occurred during model installation"))
		}
		return prog, nil
	}
}

func (p *PullStream) finish(err error) error {
	p.err = err
	p.Close()
	return err
}

// Close releases the connection. It is idempotent.
func (p *PullStream) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		p.body.Close()
	})
	return nil
}
