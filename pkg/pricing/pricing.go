// Package pricing estimates monetary cost from token counts using a
// static per-model price table.
package pricing

import "github.com/arclight-ai/arclight/pkg/models"

const mtok = 1_000_000

// builtin holds USD prices per million tokens for commonly routed models.
var builtin = []models.ModelPricing{
	{Model: "gpt-4o", PromptPerMTok: 2.50, CompletePerMTok: 10.00},
	{Model: "gpt-4o-mini", PromptPerMTok: 0.15, CompletePerMTok: 0.60},
	{Model: "gpt-4.1", PromptPerMTok: 2.00, CompletePerMTok: 8.00},
	{Model: "gpt-4.1-mini", PromptPerMTok: 0.40, CompletePerMTok: 1.60},
	{Model: "o3-mini", PromptPerMTok: 1.10, CompletePerMTok: 4.40},
	{Model: "claude-sonnet-4-20250514", PromptPerMTok: 3.00, CompletePerMTok: 15.00},
	{Model: "claude-haiku-3-5-20241022", PromptPerMTok: 0.80, CompletePerMTok: 4.00},
}

// Table maps model names to prices. Models absent from the table fall
// back to the default rates; with zero defaults the estimate is zero,
// which accounting can distinguish from a priced call.
type Table struct {
	rates           map[string]models.ModelPricing
	defaultPrompt   float64
	defaultComplete float64
}

// New builds a Table from the built-in rates merged with overrides.
// Overrides win on conflict.
func New(overrides []models.ModelPricing, defaultPrompt, defaultComplete float64) *Table {
	rates := make(map[string]models.ModelPricing, len(builtin)+len(overrides))
	for _, p := range builtin {
		rates[p.Model] = p
	}
	for _, p := range overrides {
		rates[p.Model] = p
	}
	return &Table{
		rates:           rates,
		defaultPrompt:   defaultPrompt,
		defaultComplete: defaultComplete,
	}
}

// Estimate returns the estimated USD cost for a call. The result is
// always >= 0.
func (t *Table) Estimate(model string, promptTokens, completionTokens int) float64 {
	promptRate, completeRate := t.defaultPrompt, t.defaultComplete
	if p, ok := t.rates[model]; ok {
		promptRate, completeRate = p.PromptPerMTok, p.CompletePerMTok
	}
	if promptTokens < 0 {
		promptTokens = 0
	}
	if completionTokens < 0 {
		completionTokens = 0
	}
	return float64(promptTokens)/mtok*promptRate + float64(completionTokens)/mtok*completeRate
}

// Known reports whether a model has an explicit table entry.
func (t *Table) Known(model string) bool {
	_, ok := t.rates[model]
	return ok
}
