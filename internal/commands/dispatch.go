// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"strings"
)

// Dispatcher routes slash command input to handlers.
type Dispatcher struct {
	registry *Registry
	parser   *Parser
	ctx      *Context
}

// NewDispatcher creates a dispatcher over the built-in command set.
func NewDispatcher(ctx *Context) *Dispatcher {
	registry := NewRegistry()
	return &Dispatcher{
		registry: registry,
		parser:   NewParser(registry),
		ctx:      ctx,
	}
}

// Registry exposes the underlying command registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Dispatch parses and executes one slash command line.
//
// Every command line is recorded in the session's command history, including
// unknown ones. A failed command returns its error with the session left as
// it was; no handler mutates state before its validation passes.
func (d *Dispatcher) Dispatch(input string) (string, error) {
	result := d.parser.Parse(input)
	if !result.IsCommand {
		return "", fmt.Errorf("not a command: %q", input)
	}

	if d.ctx.Session != nil {
		d.ctx.Session.RecordCommand(result.RawInput)
	}

	if result.Command == nil {
		msg := fmt.Sprintf("unknown command: %s", result.CommandName)
		if suggestion := d.registry.Suggest(result.CommandName); suggestion != "" {
			msg += fmt.Sprintf(" (did you mean %s?)", suggestion)
		}
		return "", fmt.Errorf("%s\nType /help for available commands", msg)
	}

	if err := ValidateArgs(result.Command, result.Args); err != nil {
		return "", err
	}

	output, err := result.Command.Handler(d.ctx, result.Args)
	if err != nil {
		return "", err
	}
	return strings.TrimRight(output, "\n"), nil
}
