// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth implements the admin elevation window behind /request admin.
//
// Privileged tools (network and host inspection commands) require an active
// elevation. Elevation is granted by validating a TOTP code against the
// secret from the config file and expires after a bounded window; there is
// no process relaunch and no persistent privilege.
package auth

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pquerna/otp/totp"
)

var (
	// ErrNotConfigured indicates no TOTP secret is configured.
	ErrNotConfigured = errors.New("admin elevation not configured")

	// ErrInvalidCode indicates the supplied TOTP code did not validate.
	ErrInvalidCode = errors.New("invalid authentication code")

	// ErrNotElevated indicates a privileged operation without an active elevation.
	ErrNotElevated = errors.New("admin elevation required")
)

// Elevator tracks the admin elevation window.
type Elevator struct {
	mu sync.Mutex

	secret string
	window time.Duration
	until  time.Time

	// now is swappable for tests.
	now func() time.Time
}

// NewElevator creates an elevator with the given TOTP secret and window.
// An empty secret means elevation is unavailable.
func NewElevator(secret string, window time.Duration) *Elevator {
	return &Elevator{
		secret: strings.TrimSpace(secret),
		window: window,
		now:    time.Now,
	}
}

// Configured reports whether a TOTP secret is set.
func (e *Elevator) Configured() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.secret != ""
}

// Elevate validates a TOTP code and, on success, opens the elevation window.
func (e *Elevator) Elevate(code string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.secret == "" {
		return ErrNotConfigured
	}
	if !totp.Validate(strings.TrimSpace(code), e.secret) {
		return ErrInvalidCode
	}

	e.until = e.now().Add(e.window)
	return nil
}

// IsElevated reports whether an elevation window is currently open.
func (e *Elevator) IsElevated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return !e.until.IsZero() && e.now().Before(e.until)
}

// Remaining returns how long the current elevation lasts, or zero.
func (e *Elevator) Remaining() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.until.IsZero() {
		return 0
	}
	remaining := e.until.Sub(e.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Drop closes the elevation window immediately.
func (e *Elevator) Drop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.until = time.Time{}
}

// Require returns nil when elevated, otherwise an error naming the
// operation that was denied.
func (e *Elevator) Require(operation string) error {
	if e.IsElevated() {
		return nil
	}
	return fmt.Errorf("%w for %s (use /request admin)", ErrNotElevated, operation)
}
