// Copyright 2026 BrightClass
// SPDX-License-Identifier: Apache-2.0

package usage

import (
	"fmt"

	"brightclass/platform/llm"
)

// LLM model pricing as of August 2026.
// Prices stored in hundredths of a cent per 1K tokens to avoid floating
// point issues. All prices are USD.

// ModelPricing contains pricing for a specific model.
type ModelPricing struct {
	InputCostPer1K  int // hundredths of a cent per 1K input tokens
	OutputCostPer1K int // hundredths of a cent per 1K output tokens
}

// modelPricing maps model names to pricing.
var modelPricing = map[string]ModelPricing{
	// Anthropic
	"claude-3-5-sonnet-20241022": {300, 1500},  // $0.003/$0.015 per 1K tokens
	"claude-3-5-haiku-20241022":  {80, 400},    // $0.0008/$0.004 per 1K tokens
	"claude-3-opus-20240229":     {1500, 7500}, // $0.015/$0.075 per 1K tokens

	// OpenAI
	"gpt-4o":      {250, 1000}, // $0.0025/$0.01 per 1K tokens
	"gpt-4o-mini": {15, 60},    // $0.00015/$0.0006 per 1K tokens

	// Bedrock-hosted Anthropic
	"anthropic.claude-3-5-sonnet-20240620-v1:0": {300, 1500},

	// Conservative fallback for unknown models
	"default": {1000, 3000}, // $0.01/$0.03 per 1K tokens
}

// CalculateCost calculates the cost of a request in hundredths of a cent.
func CalculateCost(model string, inputTokens, outputTokens int) int {
	pricing, ok := modelPricing[model]
	if !ok {
		pricing = modelPricing["default"]
	}

	inputCost := (inputTokens * pricing.InputCostPer1K) / 1000
	outputCost := (outputTokens * pricing.OutputCostPer1K) / 1000
	return inputCost + outputCost
}

// GetModelPricing returns the pricing for a model, reporting whether the
// model has an explicit entry.
func GetModelPricing(model string) (ModelPricing, bool) {
	pricing, ok := modelPricing[model]
	return pricing, ok
}

// DefaultCostTable returns the pricing table in the shape backend configs
// consume, for configs that specify no cost_table of their own.
func DefaultCostTable() map[string]llm.ModelCost {
	out := make(map[string]llm.ModelCost, len(modelPricing))
	for model, p := range modelPricing {
		if model == "default" {
			continue
		}
		out[model] = llm.ModelCost{
			InputPer1K:  float64(p.InputCostPer1K) / 10000.0,
			OutputPer1K: float64(p.OutputCostPer1K) / 10000.0,
		}
	}
	return out
}

// ToUSD converts hundredths of a cent to dollars.
func ToUSD(hundredthsOfCent int) float64 {
	return float64(hundredthsOfCent) / 10000.0
}

// FormatCost formats hundredths of a cent as a dollar string
// (e.g. 13500 -> "$1.35").
func FormatCost(hundredthsOfCent int) string {
	return fmt.Sprintf("$%.4f", ToUSD(hundredthsOfCent))
}
