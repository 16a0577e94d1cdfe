// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash command system for grokcli.
package commands

import (
	"context"
	"errors"

	"github.com/morganforge/grokcli/internal/auth"
	"github.com/morganforge/grokcli/internal/config"
	"github.com/morganforge/grokcli/internal/grok"
	"github.com/morganforge/grokcli/internal/pricing"
	"github.com/morganforge/grokcli/internal/session"
	"github.com/morganforge/grokcli/internal/storage"
	"github.com/morganforge/grokcli/internal/tools"
)

// ErrExitRequested signals that the user asked to leave the program.
// It is not a failure; the loop treats it as a clean shutdown request.
var ErrExitRequested = errors.New("exit requested")

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// Command represents a slash command that can be executed.
type Command struct {
	// Name is the primary command name (e.g., "/help")
	Name string

	// Aliases are alternative names (e.g., "/h", "/?")
	Aliases []string

	// Description is shown in help
	Description string

	// Usage shows argument syntax (e.g., "/model <name>")
	Usage string

	// Args defines the expected arguments
	Args []ArgDef

	// Handler executes the command and returns display output
	Handler func(ctx *Context, args []string) (string, error)

	// Hidden commands don't appear in help
	Hidden bool

	// Category for grouping in help display
	Category string
}

// ArgDef defines an argument for a command.
type ArgDef struct {
	// Name of the argument
	Name string

	// Required indicates if the argument must be provided
	Required bool

	// Type determines validation behavior
	Type ArgType

	// Description explains the argument
	Description string

	// Values for enum types
	Values []string
}

// ArgType indicates what kind of value an argument takes.
type ArgType int

const (
	ArgTypeString ArgType = iota // Free-form string
	ArgTypeModel                 // Model name or alias
	ArgTypeEnum                  // One of predefined values
	ArgTypeConfig                // Config key
)

// =============================================================================
// COMMAND REGISTRY
// =============================================================================

// Registry holds all registered commands.
type Registry struct {
	commands map[string]*Command
	aliases  map[string]*Command
}

// NewRegistry creates a new command registry with all built-in commands.
func NewRegistry() *Registry {
	r := &Registry{
		commands: make(map[string]*Command),
		aliases:  make(map[string]*Command),
	}
	r.registerBuiltins()
	return r
}

// Register adds a command to the registry.
func (r *Registry) Register(cmd *Command) {
	r.commands[cmd.Name] = cmd
	for _, alias := range cmd.Aliases {
		r.aliases[alias] = cmd
	}
}

// Get retrieves a command by name or alias.
func (r *Registry) Get(name string) *Command {
	if cmd, ok := r.commands[name]; ok {
		return cmd
	}
	if cmd, ok := r.aliases[name]; ok {
		return cmd
	}
	return nil
}

// All returns all registered commands.
func (r *Registry) All() []*Command {
	cmds := make([]*Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		cmds = append(cmds, cmd)
	}
	return cmds
}

// Names returns primary names and aliases of all registered commands.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.commands)+len(r.aliases))
	for name := range r.commands {
		names = append(names, name)
	}
	for alias := range r.aliases {
		names = append(names, alias)
	}
	return names
}

// ByCategory returns visible commands grouped by category.
func (r *Registry) ByCategory() map[string][]*Command {
	result := make(map[string][]*Command)
	for _, cmd := range r.commands {
		if cmd.Hidden {
			continue
		}
		category := cmd.Category
		if category == "" {
			category = "General"
		}
		result[category] = append(result[category], cmd)
	}
	return result
}

// =============================================================================
// BUILT-IN COMMANDS
// =============================================================================

func (r *Registry) registerBuiltins() {
	// Session commands
	r.Register(&Command{
		Name:        "/model",
		Aliases:     []string{"/m"},
		Description: "Switch the active model",
		Usage:       "/model <name>",
		Args: []ArgDef{
			{Name: "name", Required: true, Type: ArgTypeModel, Description: "Model to switch to"},
		},
		Category: "Session",
		Handler:  HandleModel,
	})

	r.Register(&Command{
		Name:        "/models",
		Description: "List available models and pricing",
		Usage:       "/models [remote]",
		Args: []ArgDef{
			{Name: "source", Required: false, Type: ArgTypeEnum, Values: []string{"remote"}, Description: "Query the API instead of the local table"},
		},
		Category: "Session",
		Handler:  HandleModels,
	})

	r.Register(&Command{
		Name:        "/info",
		Aliases:     []string{"/status"},
		Description: "Show session status",
		Category:    "Session",
		Handler:     HandleInfo,
	})

	r.Register(&Command{
		Name:        "/usage",
		Description: "Show cumulative token usage and cost",
		Category:    "Session",
		Handler:     HandleUsage,
	})

	r.Register(&Command{
		Name:        "/history",
		Description: "Show command history",
		Category:    "Session",
		Handler:     HandleHistory,
	})

	r.Register(&Command{
		Name:        "/clear",
		Description: "Clear conversation, or command history",
		Usage:       "/clear [history]",
		Args: []ArgDef{
			{Name: "target", Required: false, Type: ArgTypeEnum, Values: []string{"history"}, Description: "What to clear"},
		},
		Category: "Session",
		Handler:  HandleClear,
	})

	// API commands
	r.Register(&Command{
		Name:        "/key",
		Description: "Show API key information",
		Category:    "API",
		Handler:     HandleKey,
	})

	r.Register(&Command{
		Name:        "/tokens",
		Description: "Estimate token count and cost for text",
		Usage:       "/tokens [remote] <text>",
		Args: []ArgDef{
			{Name: "text", Required: true, Type: ArgTypeString, Description: "Text to estimate"},
		},
		Category: "API",
		Handler:  HandleTokens,
	})

	// Tool commands
	r.Register(&Command{
		Name:        "/exec",
		Description: "Run an allow-listed system command",
		Usage:       "/exec <command>",
		Args: []ArgDef{
			{Name: "command", Required: true, Type: ArgTypeString, Description: "Command line to run"},
		},
		Category: "Tools",
		Handler:  HandleExec,
	})

	r.Register(&Command{
		Name:        "/request",
		Description: "Request elevated privileges",
		Usage:       "/request admin",
		Args: []ArgDef{
			{Name: "scope", Required: true, Type: ArgTypeEnum, Values: []string{"admin"}, Description: "Privilege scope"},
		},
		Category: "Tools",
		Handler:  HandleRequest,
	})

	// Settings commands
	r.Register(&Command{
		Name:        "/config",
		Description: "Show or edit configuration",
		Usage:       "/config [key] [value]",
		Args: []ArgDef{
			{Name: "key", Required: false, Type: ArgTypeConfig, Description: "Config key to show/set"},
			{Name: "value", Required: false, Type: ArgTypeString, Description: "New value"},
		},
		Category: "Settings",
		Handler:  HandleConfig,
	})

	// Navigation commands
	r.Register(&Command{
		Name:        "/help",
		Aliases:     []string{"/h", "/?"},
		Description: "Show help and available commands",
		Category:    "Navigation",
		Handler:     HandleHelp,
	})

	r.Register(&Command{
		Name:        "/exit",
		Aliases:     []string{"/quit", "/q"},
		Description: "Exit grokcli",
		Category:    "Navigation",
		Handler:     HandleExit,
	})
}

// =============================================================================
// CONTEXT TYPE
// =============================================================================

// Context provides access to application state for command handlers.
// It follows the dependency injection pattern, allowing handlers to access
// services without direct coupling to the application structure.
//
// Fields other than Session may be nil; handlers check before use.
type Context struct {
	// Ctx carries cancellation for API calls made by handlers
	Ctx context.Context

	// Config provides access to application configuration
	Config *config.Config

	// Session holds the conversation state
	Session *session.Session

	// Grok is the xAI API client
	Grok *grok.Client

	// Estimator prices token estimates
	Estimator *pricing.Estimator

	// Tools is the tool registry
	Tools *tools.Registry

	// Elevator gates privileged operations
	Elevator *auth.Elevator

	// Snapshots persists session state between runs
	Snapshots *storage.SnapshotStore

	// ReadSecret prompts for sensitive input (TOTP codes) without echo
	ReadSecret func(prompt string) (string, error)
}

// NewContext creates a command context with the given dependencies.
func NewContext(cfg *config.Config, sess *session.Session, client *grok.Client, estimator *pricing.Estimator) *Context {
	return &Context{
		Ctx:       context.Background(),
		Config:    cfg,
		Session:   sess,
		Grok:      client,
		Estimator: estimator,
	}
}
