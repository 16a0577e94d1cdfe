// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package tools provides the tool layer for grokcli: allow-listed system
// command execution, weather lookup, and web search.
//
// Every tool is invoked through the registry, which enforces the closed tool
// set and argument validation before any executor runs.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"
)

var (
	// ErrUnknownTool indicates a tool name outside the registry.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidArgument indicates missing or malformed tool arguments.
	ErrInvalidArgument = errors.New("invalid argument")
)

// ExecutionError wraps a failure from a tool's underlying execution.
type ExecutionError struct {
	Tool   string
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("tool %s failed: %s: %v", e.Tool, e.Reason, e.Err)
	}
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Reason)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// =============================================================================
// RISK LEVELS
// =============================================================================

// RiskLevel indicates how dangerous a tool operation is.
type RiskLevel int

const (
	// RiskLow - Read-only operations, no side effects
	RiskLow RiskLevel = iota

	// RiskMedium - Network requests to external services
	RiskMedium

	// RiskCritical - System commands
	RiskCritical
)

// String returns the string representation of a risk level.
func (r RiskLevel) String() string {
	switch r {
	case RiskLow:
		return "Low"
	case RiskMedium:
		return "Medium"
	case RiskCritical:
		return "Critical"
	default:
		return "Unknown"
	}
}

// =============================================================================
// TOOL DEFINITION
// =============================================================================

// Executor runs a tool invocation.
type Executor interface {
	Execute(ctx context.Context, params map[string]interface{}) (Result, error)
}

// Tool represents an invocable tool.
type Tool struct {
	// Name is the tool identifier (e.g., "exec", "weather", "web_search")
	Name string

	// Description explains what the tool does
	Description string

	// Risk categorizes how dangerous the tool is
	Risk RiskLevel

	// Required lists parameter names that must be present and non-empty
	Required []string

	// Parameters is the JSON-schema parameter object declared to the
	// model. A nil schema keeps the tool user-only.
	Parameters map[string]interface{}

	// Executor performs the actual work
	Executor Executor
}

// Result is the outcome of one tool execution.
type Result struct {
	// Success indicates if the tool executed successfully
	Success bool

	// Output is the tool's output (for successful execution)
	Output string

	// Error is the error message (for failed execution)
	Error string

	// Duration is how long execution took
	Duration time.Duration

	// Truncated indicates output was truncated
	Truncated bool
}

// =============================================================================
// REGISTRY
// =============================================================================

// Registry holds the closed set of invocable tools.
type Registry struct {
	tools map[string]*Tool
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool to the registry.
func (r *Registry) Register(tool *Tool) {
	r.tools[tool.Name] = tool
}

// Get retrieves a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// Names returns the registered tool names.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Spec is a transport-neutral declaration of a callable tool.
type Spec struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
}

// Specs returns the declarations offered to the model, sorted by name.
// Critical-risk tools and tools without a parameter schema stay user-only
// and are never declared.
func (r *Registry) Specs() []Spec {
	specs := make([]Spec, 0, len(r.tools))
	for _, tool := range r.tools {
		if tool.Risk >= RiskCritical || tool.Parameters == nil {
			continue
		}
		specs = append(specs, Spec{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  tool.Parameters,
		})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Invoke validates the invocation and runs the named tool.
//
// Failure taxonomy: ErrUnknownTool for a name outside the registry,
// ErrInvalidArgument for missing/malformed arguments, and *ExecutionError
// wrapping any underlying execution failure.
func (r *Registry) Invoke(ctx context.Context, name string, params map[string]interface{}) (string, error) {
	tool := r.Get(name)
	if tool == nil {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	for _, required := range tool.Required {
		value, ok := params[required]
		if !ok {
			return "", fmt.Errorf("%w: %s requires %q", ErrInvalidArgument, name, required)
		}
		if s, isString := value.(string); isString && s == "" {
			return "", fmt.Errorf("%w: %s requires non-empty %q", ErrInvalidArgument, name, required)
		}
	}

	result, err := tool.Executor.Execute(ctx, params)
	if err != nil {
		// Argument-shaped failures and pre-spawn rejections pass through
		// untouched: nothing executed, so they are not execution failures.
		if errors.Is(err, ErrInvalidArgument) ||
			errors.Is(err, ErrCommandNotAllowed) ||
			errors.Is(err, ErrCommandRejected) ||
			errors.Is(err, ErrEmptyCommand) {
			return "", err
		}
		return "", &ExecutionError{Tool: name, Reason: "execution failed", Err: err}
	}
	if !result.Success {
		return result.Output, &ExecutionError{Tool: name, Reason: result.Error}
	}
	return result.Output, nil
}

// NewDefaultRegistry builds the standard tool set.
func NewDefaultRegistry(exec *SystemCommandExecutor) *Registry {
	r := NewRegistry()
	r.Register(&Tool{
		Name:        "exec",
		Description: "Run an allow-listed diagnostic command on the local system",
		Risk:        RiskCritical,
		Required:    []string{"command"},
		Executor:    exec,
	})
	r.Register(&Tool{
		Name:        "weather",
		Description: "Fetch current weather conditions for a location",
		Risk:        RiskMedium,
		Required:    []string{"location"},
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"location": map[string]interface{}{
					"type":        "string",
					"description": "City or place name, e.g. Oslo",
				},
			},
			"required": []string{"location"},
		},
		Executor: NewWeatherExecutor(),
	})
	r.Register(&Tool{
		Name:        "web_search",
		Description: "Search the web using DuckDuckGo",
		Risk:        RiskMedium,
		Required:    []string{"query"},
		Parameters: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Search terms",
				},
				"max_results": map[string]interface{}{
					"type":        "integer",
					"description": "Number of results, 1-10",
				},
			},
			"required": []string{"query"},
		},
		Executor: &DuckDuckGoSearchExecutor{},
	})
	return r
}

// =============================================================================
// PARAMETER HELPERS
// =============================================================================

// getStringParam extracts a string parameter with a default.
func getStringParam(params map[string]interface{}, key, defaultValue string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return defaultValue
}

// getIntParam extracts an int parameter with a default.
// JSON numbers decode as float64, so both forms are accepted.
func getIntParam(params map[string]interface{}, key string, defaultValue int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return defaultValue
	}
}
