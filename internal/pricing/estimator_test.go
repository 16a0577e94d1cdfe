// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package pricing

import (
	"errors"
	"testing"

	"github.com/morganforge/grokcli/internal/model"
)

func TestEstimateTokens(t *testing.T) {
	tests := []struct {
		text string
		want int
	}{
		{"", 0},
		{"hello world", 2},
		{"hi", 1},
		{"one two three four", 4},
		{"   ", 0},
	}

	for _, tt := range tests {
		got := EstimateTokens(tt.text)
		if got != tt.want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", tt.text, got, tt.want)
		}
	}
}

func TestEstimateDeterministic(t *testing.T) {
	e := NewEstimator()
	t1, c1, err1 := e.Estimate("the quick brown fox jumps over the lazy dog", model.DefaultModel)
	t2, c2, err2 := e.Estimate("the quick brown fox jumps over the lazy dog", model.DefaultModel)

	if err1 != nil || err2 != nil {
		t.Fatalf("Estimate returned errors: %v, %v", err1, err2)
	}
	if t1 != t2 || c1 != c2 {
		t.Errorf("Estimate not deterministic: (%d, %f) vs (%d, %f)", t1, c1, t2, c2)
	}
	if t1 < 0 || c1 < 0 {
		t.Errorf("Estimate returned negative values: (%d, %f)", t1, c1)
	}
}

func TestEstimateWithCustomTable(t *testing.T) {
	// $0.0001 per token prompt pricing.
	e := NewEstimatorWithPrices(map[string]Price{
		"fast-1": {PromptPer1K: 0.1, CompletionPer1K: 0.2},
	})

	tokens, cost, err := e.Estimate("hello world", "fast-1")
	if err != nil {
		t.Fatalf("Estimate returned error: %v", err)
	}
	if tokens != 2 {
		t.Errorf("Estimate tokens = %d, want 2", tokens)
	}
	if got := FormatCost(cost); got != "$0.0002" {
		t.Errorf("FormatCost(%f) = %q, want %q", cost, got, "$0.0002")
	}
}

func TestEstimateUnknownModel(t *testing.T) {
	e := NewEstimator()
	_, _, err := e.Estimate("hello", "no-such-model")
	if !errors.Is(err, model.ErrUnknownModel) {
		t.Errorf("Estimate error = %v, want ErrUnknownModel", err)
	}
}

func TestEstimatorAliasPricing(t *testing.T) {
	e := NewEstimator()
	tCanon, cCanon, err := e.Estimate("some text here", "grok-2-latest")
	if err != nil {
		t.Fatalf("canonical estimate failed: %v", err)
	}
	tAlias, cAlias, err := e.Estimate("some text here", "grok")
	if err != nil {
		t.Fatalf("alias estimate failed: %v", err)
	}
	if tCanon != tAlias || cCanon != cAlias {
		t.Errorf("alias pricing differs: (%d, %f) vs (%d, %f)", tCanon, cCanon, tAlias, cAlias)
	}
}

func TestCompletionCost(t *testing.T) {
	e := NewEstimatorWithPrices(map[string]Price{
		"fast-1": {PromptPer1K: 0.1, CompletionPer1K: 0.2},
	})

	cost, err := e.CompletionCost(1000, "fast-1")
	if err != nil {
		t.Fatalf("CompletionCost returned error: %v", err)
	}
	if cost != 0.2 {
		t.Errorf("CompletionCost(1000) = %f, want 0.2", cost)
	}

	if _, err := e.CompletionCost(10, "missing"); !errors.Is(err, model.ErrUnknownModel) {
		t.Errorf("CompletionCost error = %v, want ErrUnknownModel", err)
	}
}
