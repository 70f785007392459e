// Copyright 2025 Consent DocGen Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package streaming

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultSinkBuffer is the default capacity of the sink channel
	DefaultSinkBuffer = 64
	// DefaultSendTimeout bounds how long a producer waits on a full sink
	DefaultSendTimeout = 5 * time.Second
)

// Sink is a multi-producer/single-consumer event channel. Producers must
// never be able to hang or panic because the consumer went away: Send
// checks the closed flag before every write and gives up after a bounded
// wait when the buffer is full.
type Sink struct {
	ch      chan Event
	timeout time.Duration
	logger  *zap.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewSink creates a sink with the given buffer size and send timeout.
// Zero values fall back to the package defaults.
func NewSink(buffer int, timeout time.Duration, logger *zap.Logger) *Sink {
	if buffer <= 0 {
		buffer = DefaultSinkBuffer
	}
	if timeout <= 0 {
		timeout = DefaultSendTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sink{
		ch:      make(chan Event, buffer),
		timeout: timeout,
		logger:  logger,
	}
}

// Events returns the consumer side of the sink. Only one consumer may
// range over it; the channel closes after Close once in-flight sends drain.
func (s *Sink) Events() <-chan Event {
	return s.ch
}

// Send delivers an event to the consumer. It returns false without error
// when the sink is already closed, the context is cancelled, or the
// consumer fails to drain the buffer within the send timeout. Shutdown
// races are expected during cancellation and must not propagate as
// failures to the producing worker.
func (s *Sink) Send(ctx context.Context, event Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug("Dropping event on closed sink",
			zap.String("event_type", string(event.Type)),
			zap.String("section", event.Section))
		return false
	}
	// Registering under the lock keeps Close from closing the channel
	// while this send is in flight.
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case s.ch <- event:
		return true
	case <-ctx.Done():
		s.logger.Debug("Dropping event, context cancelled",
			zap.String("event_type", string(event.Type)),
			zap.String("section", event.Section))
		return false
	case <-timer.C:
		s.logger.Warn("Dropping event, sink send timed out",
			zap.String("event_type", string(event.Type)),
			zap.String("section", event.Section),
			zap.Duration("timeout", s.timeout))
		return false
	}
}

// Close marks the sink closed for writing and closes the channel once all
// in-flight sends have finished. Buffered events stay readable; the
// consumer's range loop ends after draining them. In-flight sends blocked
// on a full buffer give up within their send timeout, so Close cannot
// block forever on a vanished consumer. Safe to call more than once.
func (s *Sink) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	close(s.ch)
}

// Closed reports whether Close has been called
func (s *Sink) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
