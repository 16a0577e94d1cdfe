// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tools

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/morganforge/grokcli/internal/auth"
)

// =============================================================================
// CONSTANTS
// =============================================================================

const (
	// DefaultExecTimeout is the maximum runtime for one command.
	DefaultExecTimeout = 30 * time.Second

	// DefaultMaxOutputBytes caps captured stdout+stderr.
	DefaultMaxOutputBytes = 100_000
)

// allowedCommands is the closed set of runnable programs. Matching is exact
// on the first token after normalization; no prefix or substring matching.
var allowedCommands = map[string]bool{
	"ping":       true,
	"traceroute": true,
	"tracert":    true,
	"netstat":    true,
	"ifconfig":   true,
	"ipconfig":   true,
	"hostname":   true,
	"whoami":     true,
	"uname":      true,
	"date":       true,
	"uptime":     true,
	"ls":         true,
	"dir":        true,
	"cat":        true,
	"type":       true,
	"echo":       true,
	"systeminfo": true,
	"ver":        true,
}

// privilegedCommands additionally require admin elevation.
var privilegedCommands = map[string]bool{
	"netstat":    true,
	"ifconfig":   true,
	"ipconfig":   true,
	"systeminfo": true,
}

// shellMetacharacters anywhere in the command line cause rejection before
// anything is spawned. Commands run without a shell, but these characters
// have no legitimate use in the allowed set and signal injection attempts.
const shellMetacharacters = ";|&$`<>(){}[]*?!#~^\\\"'\n\r"

// Rejection sentinels, all surfaced before any process is spawned.
var (
	ErrCommandNotAllowed = errors.New("command not in allow-list")
	ErrCommandRejected   = errors.New("command contains forbidden characters")
	ErrEmptyCommand      = errors.New("empty command")
)

// =============================================================================
// VALIDATION
// =============================================================================

// normalizeCommand applies NFKC normalization so visually-identical Unicode
// variants (fullwidth forms, compatibility characters) cannot slip past the
// allow-list.
func normalizeCommand(command string) string {
	return norm.NFKC.String(command)
}

// ValidateCommand checks a raw command line against the allow-list without
// running anything. Returns the normalized argv on success.
func ValidateCommand(command string) ([]string, error) {
	normalized := strings.TrimSpace(normalizeCommand(command))
	if normalized == "" {
		return nil, ErrEmptyCommand
	}

	if i := strings.IndexAny(normalized, shellMetacharacters); i >= 0 {
		return nil, fmt.Errorf("%w: %q", ErrCommandRejected, normalized[i:i+1])
	}
	for _, r := range normalized {
		if unicode.IsControl(r) && r != '\t' {
			return nil, fmt.Errorf("%w: control character", ErrCommandRejected)
		}
	}

	argv := strings.Fields(normalized)
	name := strings.ToLower(argv[0])
	if !allowedCommands[name] {
		return nil, fmt.Errorf("%w: %s", ErrCommandNotAllowed, name)
	}
	argv[0] = name
	return argv, nil
}

// RequiresAdmin reports whether a command name needs elevation.
func RequiresAdmin(name string) bool {
	return privilegedCommands[strings.ToLower(name)]
}

// AllowedCommandNames returns the sorted-by-nothing allow-list for display.
func AllowedCommandNames() []string {
	names := make([]string, 0, len(allowedCommands))
	for name := range allowedCommands {
		names = append(names, name)
	}
	return names
}

// =============================================================================
// EXECUTOR
// =============================================================================

// SystemCommandExecutor runs allow-listed diagnostic commands.
type SystemCommandExecutor struct {
	// Timeout is the maximum runtime before the process is killed
	Timeout time.Duration

	// MaxOutputBytes caps captured output
	MaxOutputBytes int

	// Elevator gates privileged commands; nil means none are runnable
	Elevator *auth.Elevator

	// runCommand is swappable for tests; defaults to real process spawning
	runCommand func(ctx context.Context, argv []string) (string, error)
}

// NewSystemCommandExecutor creates an executor with the given limits.
func NewSystemCommandExecutor(timeout time.Duration, maxOutput int, elevator *auth.Elevator) *SystemCommandExecutor {
	if timeout <= 0 {
		timeout = DefaultExecTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutputBytes
	}
	e := &SystemCommandExecutor{
		Timeout:        timeout,
		MaxOutputBytes: maxOutput,
		Elevator:       elevator,
	}
	e.runCommand = e.spawn
	return e
}

// Execute validates and runs the command in params["command"].
//
// Validation happens entirely before spawning: a rejected command line never
// creates a process.
func (e *SystemCommandExecutor) Execute(ctx context.Context, params map[string]interface{}) (Result, error) {
	command := getStringParam(params, "command", "")
	if strings.TrimSpace(command) == "" {
		return Result{}, fmt.Errorf("%w: command is required", ErrInvalidArgument)
	}

	argv, err := ValidateCommand(command)
	if err != nil {
		return Result{}, err
	}

	if RequiresAdmin(argv[0]) {
		if e.Elevator == nil {
			return Result{}, auth.ErrNotElevated
		}
		if err := e.Elevator.Require(argv[0]); err != nil {
			return Result{}, err
		}
	}

	start := time.Now()
	output, err := e.runCommand(ctx, argv)
	duration := time.Since(start)

	truncated := false
	if len(output) > e.MaxOutputBytes {
		output = output[:e.MaxOutputBytes] + "\n... (output truncated)"
		truncated = true
	}

	if err != nil {
		return Result{
			Success:   false,
			Output:    output,
			Error:     err.Error(),
			Duration:  duration,
			Truncated: truncated,
		}, nil
	}
	return Result{
		Success:   true,
		Output:    output,
		Duration:  duration,
		Truncated: truncated,
	}, nil
}

// spawn runs argv directly, never through a shell.
func (e *SystemCommandExecutor) spawn(ctx context.Context, argv []string) (string, error) {
	cmdCtx, cancel := context.WithTimeout(ctx, e.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cmdCtx, argv[0], argv[1:]...)
	configureProcessGroup(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		if output != "" {
			output += "\n"
		}
		output += stderr.String()
	}

	if cmdCtx.Err() == context.DeadlineExceeded {
		return output, fmt.Errorf("command timed out after %s", e.Timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return output, fmt.Errorf("command exited with code %d", exitErr.ExitCode())
		}
		return output, fmt.Errorf("failed to run command: %w", err)
	}
	return output, nil
}
