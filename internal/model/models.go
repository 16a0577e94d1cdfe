// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model holds the static registry of known Grok models.
package model

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrUnknownModel indicates a model id that is not present in the registry.
// Callers must surface this distinctly from a valid zero-cost model.
var ErrUnknownModel = errors.New("unknown model")

// =============================================================================
// MODEL INFO TYPE
// =============================================================================

// ModelInfo contains detailed information about a model.
// This is used for model selection, pricing, and display.
type ModelInfo struct {
	// ID is the model identifier used in API calls
	ID string `json:"id"`

	// Name is the human-readable display name
	Name string `json:"name"`

	// Tier categorizes the model's capability level
	Tier string `json:"tier"`

	// ContextWindow is the maximum context size in tokens
	ContextWindow int `json:"context_window"`

	// PromptCostPer1K is the prompt cost per 1000 tokens in dollars
	PromptCostPer1K float64 `json:"prompt_cost_per_1k"`

	// CompletionCostPer1K is the completion cost per 1000 tokens in dollars
	CompletionCostPer1K float64 `json:"completion_cost_per_1k"`

	// Aliases are alternative names accepted for this model
	Aliases []string `json:"aliases,omitempty"`

	// Description is a brief explanation of the model's strengths
	Description string `json:"description"`
}

// =============================================================================
// MODEL REGISTRY
// =============================================================================

// DefaultModel is the model used when no configuration overrides it.
const DefaultModel = "grok-2-latest"

// Models is the registry of known xAI models with their metadata.
// Pricing is per 1K tokens in dollars.
var Models = map[string]ModelInfo{
	"grok-2-latest": {
		ID:                  "grok-2-latest",
		Name:                "Grok 2",
		Tier:                "Balanced",
		ContextWindow:       131072,
		PromptCostPer1K:     0.002,
		CompletionCostPer1K: 0.010,
		Aliases:             []string{"grok-2", "grok"},
		Description:         "Latest Grok 2 snapshot, best general-purpose choice",
	},
	"grok-2-vision-latest": {
		ID:                  "grok-2-vision-latest",
		Name:                "Grok 2 Vision",
		Tier:                "Balanced",
		ContextWindow:       32768,
		PromptCostPer1K:     0.002,
		CompletionCostPer1K: 0.010,
		Aliases:             []string{"grok-2-vision"},
		Description:         "Grok 2 with image understanding",
	},
	"grok-3-latest": {
		ID:                  "grok-3-latest",
		Name:                "Grok 3",
		Tier:                "Powerful",
		ContextWindow:       131072,
		PromptCostPer1K:     0.003,
		CompletionCostPer1K: 0.015,
		Aliases:             []string{"grok-3"},
		Description:         "Most capable model for complex reasoning",
	},
	"grok-3-mini-latest": {
		ID:                  "grok-3-mini-latest",
		Name:                "Grok 3 Mini",
		Tier:                "Fast",
		ContextWindow:       131072,
		PromptCostPer1K:     0.0003,
		CompletionCostPer1K: 0.0005,
		Aliases:             []string{"grok-3-mini"},
		Description:         "Fast and inexpensive for simple tasks",
	},
	"grok-beta": {
		ID:                  "grok-beta",
		Name:                "Grok Beta",
		Tier:                "Balanced",
		ContextWindow:       131072,
		PromptCostPer1K:     0.005,
		CompletionCostPer1K: 0.015,
		Description:         "Legacy beta model, kept for compatibility",
	},
	"grok-vision-beta": {
		ID:                  "grok-vision-beta",
		Name:                "Grok Vision Beta",
		Tier:                "Fast",
		ContextWindow:       8192,
		PromptCostPer1K:     0.005,
		CompletionCostPer1K: 0.015,
		Description:         "Legacy vision beta model",
	},
}

// =============================================================================
// MODEL LOOKUP
// =============================================================================

// Resolve looks up a model by exact id or alias.
// Matching is exact (case-insensitive); switching models must never succeed
// on a partial match, so no fuzzy lookup happens here.
func Resolve(nameOrAlias string) (ModelInfo, error) {
	key := strings.ToLower(strings.TrimSpace(nameOrAlias))
	if key == "" {
		return ModelInfo{}, fmt.Errorf("%w: empty model id", ErrUnknownModel)
	}

	if info, ok := Models[key]; ok {
		return info, nil
	}

	for _, info := range Models {
		for _, alias := range info.Aliases {
			if alias == key {
				return info, nil
			}
		}
	}

	return ModelInfo{}, fmt.Errorf("%w: %s", ErrUnknownModel, nameOrAlias)
}

// IsKnown reports whether the given id resolves to a registry entry.
func IsKnown(nameOrAlias string) bool {
	_, err := Resolve(nameOrAlias)
	return err == nil
}

// IDs returns all canonical model ids in sorted order.
func IDs() []string {
	ids := make([]string, 0, len(Models))
	for id := range Models {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// All returns all registry entries sorted by id.
func All() []ModelInfo {
	infos := make([]ModelInfo, 0, len(Models))
	for _, id := range IDs() {
		infos = append(infos, Models[id])
	}
	return infos
}

// =============================================================================
// MODEL INFO METHODS
// =============================================================================

// CostString returns a formatted pricing string for display.
func (m ModelInfo) CostString() string {
	return fmt.Sprintf("$%.4f/1K in, $%.4f/1K out", m.PromptCostPer1K, m.CompletionCostPer1K)
}

// ContextString returns a formatted context window string.
func (m ModelInfo) ContextString() string {
	if m.ContextWindow >= 1000 {
		return fmt.Sprintf("%dK tokens", m.ContextWindow/1024)
	}
	return fmt.Sprintf("%d tokens", m.ContextWindow)
}

// TierIcon returns an icon character for the model tier.
func (m ModelInfo) TierIcon() string {
	switch m.Tier {
	case "Fast":
		return "z"
	case "Balanced":
		return "~"
	case "Powerful":
		return "&"
	default:
		return "?"
	}
}
