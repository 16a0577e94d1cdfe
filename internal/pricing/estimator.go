// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package pricing provides local token counting and cost estimation.
package pricing

import (
	"fmt"
	"strings"

	"github.com/morganforge/grokcli/internal/model"
)

// ============================================================================
// TOKEN ESTIMATION
// ============================================================================

// EstimateTokens approximates the token count for a piece of text.
// GPT-style tokenizers average ~4 chars per token; a blend of word and
// character estimates tracks that better than either alone. Deterministic
// for a given input.
func EstimateTokens(text string) int {
	words := len(strings.Fields(text))
	chars := len(text)

	return (words + chars/4) / 2
}

// ============================================================================
// COST ESTIMATION
// ============================================================================

// Price holds prompt and completion pricing per 1K tokens in dollars.
type Price struct {
	PromptPer1K     float64
	CompletionPer1K float64
}

// Estimator estimates token counts and prompt-side cost against a price table.
// The zero value is unusable; construct with NewEstimator.
type Estimator struct {
	prices map[string]Price
}

// NewEstimator returns an estimator seeded from the model registry.
func NewEstimator() *Estimator {
	prices := make(map[string]Price, len(model.Models))
	for id, info := range model.Models {
		prices[id] = Price{
			PromptPer1K:     info.PromptCostPer1K,
			CompletionPer1K: info.CompletionCostPer1K,
		}
		for _, alias := range info.Aliases {
			prices[alias] = prices[id]
		}
	}
	return &Estimator{prices: prices}
}

// NewEstimatorWithPrices returns an estimator over a caller-supplied table.
func NewEstimatorWithPrices(prices map[string]Price) *Estimator {
	table := make(map[string]Price, len(prices))
	for id, p := range prices {
		table[id] = p
	}
	return &Estimator{prices: table}
}

// Estimate returns the approximate token count of text and its prompt cost
// under modelID's pricing. Unknown pricing fails with ErrUnknownModel rather
// than silently returning zero cost.
func (e *Estimator) Estimate(text, modelID string) (int, float64, error) {
	price, ok := e.prices[strings.ToLower(strings.TrimSpace(modelID))]
	if !ok {
		return 0, 0, fmt.Errorf("%w: %s", model.ErrUnknownModel, modelID)
	}

	tokens := EstimateTokens(text)
	cost := float64(tokens) * price.PromptPer1K / 1000.0
	return tokens, cost, nil
}

// CompletionCost returns the completion-side cost for a token count under
// modelID's pricing.
func (e *Estimator) CompletionCost(tokens int, modelID string) (float64, error) {
	price, ok := e.prices[strings.ToLower(strings.TrimSpace(modelID))]
	if !ok {
		return 0, fmt.Errorf("%w: %s", model.ErrUnknownModel, modelID)
	}
	return float64(tokens) * price.CompletionPer1K / 1000.0, nil
}

// FormatCost renders a dollar amount the way stats lines display it.
func FormatCost(cost float64) string {
	return fmt.Sprintf("$%.4f", cost)
}
