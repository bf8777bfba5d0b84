// Copyright 2025 UMH Systems GmbH
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

package backoff

import (
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// TemporaryBackoffError and PermanentFailureError are the sentinel
// message prefixes GetBackoffError wraps its errors with, so callers
// that only have an error string (e.g. across a log line) can still
// classify it with IsTemporaryBackoffError/IsPermanentFailureError.
const (
	TemporaryBackoffError = "temporary backoff"
	PermanentFailureError = "permanent failure"
)

// Config controls a BackoffManager's retry policy.
type Config struct {
	// ID names the entity this manager backs off for, used only in
	// log lines.
	ID string

	// MaxRetries is the number of CategoryTransient errors tolerated
	// before SetError escalates to permanent.
	MaxRetries int

	// InitialInterval, MaxInterval and Multiplier parametrize the
	// underlying exponential backoff.
	InitialInterval time.Duration
	MaxInterval     time.Duration
	Multiplier      float64

	Logger *zap.SugaredLogger
}

// DefaultConfig returns a Config with sane defaults for id, logging
// through log.
func DefaultConfig(id string, log *zap.SugaredLogger) Config {
	return Config{
		ID:              id,
		MaxRetries:      10,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		Logger:          log,
	}
}

// BackoffManager tracks the categorized error history of a single
// entity (a subsystem, a watchdog target) across repeated ticks and
// decides when transient errors have repeated often enough to be
// treated as permanent. It wraps a cenkalti/backoff/v4 exponential
// backoff to compute the delay an entity should wait before retrying.
type BackoffManager struct {
	mu sync.Mutex

	cfg Config
	exp *backoff.ExponentialBackOff

	lastError   error
	retries     int
	permanent   bool
	lastTick    uint64
	nextRetryAt uint64 // tick at/after which ShouldSkipOperation returns false
}

// NewBackoffManager builds a BackoffManager from cfg.
func NewBackoffManager(cfg Config) *BackoffManager {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = cfg.InitialInterval
	exp.MaxInterval = cfg.MaxInterval
	exp.Multiplier = cfg.Multiplier
	exp.MaxElapsedTime = 0 // never expire on its own; MaxRetries governs escalation

	return &BackoffManager{cfg: cfg, exp: exp}
}

// GetLastError returns the most recent error passed to SetError, or
// nil if none has been recorded (or Reset was called since).
func (m *BackoffManager) GetLastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.lastError
}

// SetError records err, observed at tick, and returns whether the
// entity should now be considered permanently failed. A
// CategoryIgnored error is recorded but never counts toward
// escalation. A CategoryPermanent error escalates immediately. A
// CategoryTransient error escalates once it has recurred more than
// cfg.MaxRetries times since the last Reset.
func (m *BackoffManager) SetError(err error, tick uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastError = err
	m.lastTick = tick

	categorized := CategorizeError(err)

	switch {
	case IsIgnoredError(categorized):
		return m.permanent
	case IsPermanentError(categorized):
		m.permanent = true
	default:
		m.retries++
		if m.retries > m.cfg.MaxRetries {
			m.permanent = true
		}
	}

	if !m.permanent {
		delay := m.exp.NextBackOff()
		m.nextRetryAt = tick + ticksFor(delay)

		if m.cfg.Logger != nil {
			m.cfg.Logger.Debugf("%s: backing off for %s after error: %v", m.cfg.ID, delay, err)
		}
	}

	return m.permanent
}

// ticksFor converts a duration into an approximate tick count,
// treating one tick as one second.
func ticksFor(d time.Duration) uint64 {
	if d <= 0 {
		return 0
	}

	return uint64(d / time.Second)
}

// ShouldSkipOperation reports whether the entity is still within its
// backoff window at tick and the caller should skip its operation
// this round.
func (m *BackoffManager) ShouldSkipOperation(tick uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.permanent {
		return true
	}

	return tick < m.nextRetryAt
}

// Reset clears all recorded error state, as if the entity had never
// failed.
func (m *BackoffManager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastError = nil
	m.retries = 0
	m.permanent = false
	m.nextRetryAt = 0
	m.exp.Reset()
}

// IsPermanentlyFailed reports whether escalation to permanent has
// occurred.
func (m *BackoffManager) IsPermanentlyFailed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.permanent
}

// GetBackoffError returns a wrapped, classifiable error describing the
// entity's current backoff state at tick, or nil if it is healthy.
func (m *BackoffManager) GetBackoffError(tick uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.permanent:
		return fmt.Errorf("%s: %s: %w", PermanentFailureError, m.cfg.ID, m.lastError)
	case tick < m.nextRetryAt:
		return fmt.Errorf("%s: %s: %w", TemporaryBackoffError, m.cfg.ID, m.lastError)
	default:
		return nil
	}
}
