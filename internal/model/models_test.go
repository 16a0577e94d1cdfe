// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"testing"
)

func TestResolveCanonicalIDs(t *testing.T) {
	for id := range Models {
		info, err := Resolve(id)
		if err != nil {
			t.Errorf("Resolve(%q) returned error: %v", id, err)
		}
		if info.ID != id {
			t.Errorf("Resolve(%q) = %q, want %q", id, info.ID, id)
		}
	}
}

func TestResolveAliases(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"grok", "grok-2-latest"},
		{"grok-2", "grok-2-latest"},
		{"grok-3", "grok-3-latest"},
		{"grok-3-mini", "grok-3-mini-latest"},
		{"GROK-2-LATEST", "grok-2-latest"}, // case-insensitive
		{"  grok-beta  ", "grok-beta"},     // surrounding whitespace
	}

	for _, tt := range tests {
		info, err := Resolve(tt.input)
		if err != nil {
			t.Errorf("Resolve(%q) returned error: %v", tt.input, err)
			continue
		}
		if info.ID != tt.want {
			t.Errorf("Resolve(%q) = %q, want %q", tt.input, info.ID, tt.want)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	tests := []string{
		"",
		"unknown-model-xyz",
		"grok-2-latest-extra",
		"gro", // partial ids must not match
	}

	for _, input := range tests {
		_, err := Resolve(input)
		if !errors.Is(err, ErrUnknownModel) {
			t.Errorf("Resolve(%q) = %v, want ErrUnknownModel", input, err)
		}
	}
}

func TestDefaultModelIsRegistered(t *testing.T) {
	if !IsKnown(DefaultModel) {
		t.Fatalf("default model %q is not in the registry", DefaultModel)
	}
}

func TestIDsSorted(t *testing.T) {
	ids := IDs()
	if len(ids) != len(Models) {
		t.Fatalf("IDs() returned %d entries, want %d", len(ids), len(Models))
	}
	for i := 1; i < len(ids); i++ {
		if ids[i-1] >= ids[i] {
			t.Errorf("IDs() not sorted: %q >= %q", ids[i-1], ids[i])
		}
	}
}

func TestPricingPositive(t *testing.T) {
	for id, info := range Models {
		if info.PromptCostPer1K <= 0 || info.CompletionCostPer1K <= 0 {
			t.Errorf("model %q has non-positive pricing", id)
		}
		if info.ContextWindow <= 0 {
			t.Errorf("model %q has non-positive context window", id)
		}
	}
}
