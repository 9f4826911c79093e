package agent

import "automaton/internal/clients"

// modelPrice is one entry of priceTable, the fixed per-model price
// table: cost in cents per 1000 tokens, split prompt/completion. An
// unrecognized model falls back to the "default" entry.
type modelPrice struct {
	promptPerK     float64
	completionPerK float64
}

var priceTable = map[string]modelPrice{
	"gemini-2.5-pro":   {promptPerK: 0.125, completionPerK: 0.5},
	"gemini-2.5-flash": {promptPerK: 0.03, completionPerK: 0.12},
	"default":          {promptPerK: 0.1, completionPerK: 0.3},
}

// costMarkup is applied on top of the raw model price to cover the
// runtime's own operating margin.
const costMarkup = 1.3

// estimateCostCents multiplies usage by the fixed per-model price table
// with the standard markup, rounding up to the nearest whole cent.
func estimateCostCents(model string, usage clients.Usage) int64 {
	price, ok := priceTable[model]
	if !ok {
		price = priceTable["default"]
	}

	raw := (float64(usage.PromptTokens)/1000.0)*price.promptPerK +
		(float64(usage.CompletionTokens)/1000.0)*price.completionPerK
	marked := raw * costMarkup

	cents := int64(marked)
	if marked > float64(cents) {
		cents++
	}
	return cents
}
