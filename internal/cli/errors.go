// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling and exit codes for grokcli.
//
// STANDARDIZED PATTERN:
//   - ALWAYS return errors (never just print and return nil)
//   - Let the caller decide how to display errors
//   - Only startup failures are fatal; everything inside the loop is
//     displayed and recovered
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/morganforge/grokcli/internal/auth"
	"github.com/morganforge/grokcli/internal/grok"
	"github.com/morganforge/grokcli/internal/model"
)

// =============================================================================
// EXIT CODES - Specific codes for different error categories
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or arguments
	ExitUsageError = 2
	// ExitConfigError indicates configuration file or settings error
	ExitConfigError = 3
	// ExitAuthError indicates authentication or authorization failure
	ExitAuthError = 4
	// ExitNetworkError indicates network or connectivity error
	ExitNetworkError = 5
	// ExitNotFoundError indicates a resource was not found
	ExitNotFoundError = 7
	// ExitTimeoutError indicates an operation timed out
	ExitTimeoutError = 8
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ConfigError represents a fatal startup configuration problem. It is the
// only error class that terminates the process; everything raised after the
// loop starts is displayed and recovered.
type ConfigError struct {
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a fatal startup configuration error.
func NewConfigError(reason string, err error) error {
	return &ConfigError{Reason: reason, Err: err}
}

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// GetExitCode determines the appropriate exit code for an error.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return ExitConfigError
	}

	switch {
	case errors.Is(err, grok.ErrNotConfigured),
		errors.Is(err, grok.ErrAuthFailed),
		errors.Is(err, auth.ErrNotElevated),
		errors.Is(err, auth.ErrInvalidCode):
		return ExitAuthError

	case errors.Is(err, grok.ErrRateLimited):
		return ExitNetworkError

	case errors.Is(err, model.ErrUnknownModel),
		errors.Is(err, grok.ErrModelNotFound):
		return ExitNotFoundError

	case errors.Is(err, context.DeadlineExceeded):
		return ExitTimeoutError
	}

	// Message-based fallback for wrapped errors without sentinels.
	errMsg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errMsg, "config"):
		return ExitConfigError
	case strings.Contains(errMsg, "usage:"):
		return ExitUsageError
	case strings.Contains(errMsg, "connection"), strings.Contains(errMsg, "network"):
		return ExitNetworkError
	}

	return ExitGeneralError
}

// =============================================================================
// ERROR DISPLAY
// =============================================================================

// DisplayError displays an error in a consistent format on stderr.
func DisplayError(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s %v\n", errorStyle.Render("[Error]"), err)
}

// HandleErrorAndExit displays an error and exits with its mapped code.
// Use this only for fatal startup errors.
func HandleErrorAndExit(err error) {
	if err == nil {
		return
	}
	DisplayError(err)
	os.Exit(GetExitCode(err))
}
