package provider

import (
	"errors"
	"strings"
)

// PricingUnit is the number of tokens one price covers. Descriptor pricing is
// conventionally per-1K tokens; the built-in default table is per-1M. The unit
// travels with the table so the two are never mixed up.
type PricingUnit int64

const (
	PerThousandTokens PricingUnit = 1_000
	PerMillionTokens  PricingUnit = 1_000_000
)

// Pricing holds input/output prices in dollars per Unit tokens.
type Pricing struct {
	Input  float64
	Output float64
	Unit   PricingUnit
}

func (p *Pricing) validate() error {
	if p.Input < 0 || p.Output < 0 {
		return errors.New("prices must not be negative")
	}
	switch p.Unit {
	case PerThousandTokens, PerMillionTokens:
		return nil
	default:
		return errors.New("unit must be per-1K or per-1M tokens")
	}
}

// Cost computes the monetary cost of a call. Returns nil when either usage or
// pricing is absent; a nil cost means "unknown", not "free".
func Cost(usage *TokenUsage, pricing *Pricing) *float64 {
	if usage == nil || pricing == nil || pricing.Unit == 0 {
		return nil
	}
	cost := (float64(usage.Input)*pricing.Input + float64(usage.Output)*pricing.Output) / float64(pricing.Unit)
	return &cost
}

// EstimateUsage splits an aggregate token estimate 50/50 between input and
// output. Local tools report no usage breakdown, so cost estimation falls
// back to this convention.
func EstimateUsage(totalTokens int64) *TokenUsage {
	if totalTokens <= 0 {
		return nil
	}
	half := totalTokens / 2
	return &TokenUsage{Input: half, Output: totalTokens - half}
}

// defaultPricing is the built-in fallback table, in dollars per 1M tokens,
// used when a remoteApi descriptor carries no pricing of its own.
var defaultPricing = map[string]Pricing{
	"gpt-4o":           {Input: 2.50, Output: 10.00, Unit: PerMillionTokens},
	"gpt-4o-mini":      {Input: 0.15, Output: 0.60, Unit: PerMillionTokens},
	"gpt-4-turbo":      {Input: 10.00, Output: 30.00, Unit: PerMillionTokens},
	"claude-opus-4":    {Input: 15.00, Output: 75.00, Unit: PerMillionTokens},
	"claude-sonnet-4":  {Input: 3.00, Output: 15.00, Unit: PerMillionTokens},
	"claude-3-5-haiku": {Input: 0.80, Output: 4.00, Unit: PerMillionTokens},
	"gemini-2.5-pro":   {Input: 1.25, Output: 10.00, Unit: PerMillionTokens},
	"gemini-2.5-flash": {Input: 0.30, Output: 2.50, Unit: PerMillionTokens},
	"deepseek-chat":    {Input: 0.27, Output: 1.10, Unit: PerMillionTokens},
	"glm-4.6":          {Input: 0.60, Output: 2.20, Unit: PerMillionTokens},
	"grok-2-latest":    {Input: 2.00, Output: 10.00, Unit: PerMillionTokens},
	"llama-3.1-70b":    {Input: 0.60, Output: 0.80, Unit: PerMillionTokens},
	"qwen-2.5-coder":   {Input: 0.30, Output: 0.90, Unit: PerMillionTokens},
	"mistral-large":    {Input: 2.00, Output: 6.00, Unit: PerMillionTokens},
	"codestral-latest": {Input: 0.30, Output: 0.90, Unit: PerMillionTokens},
	"o1-mini":          {Input: 1.10, Output: 4.40, Unit: PerMillionTokens},
}

// DefaultPricing looks up built-in pricing for a model. Model IDs often carry
// version or date suffixes, so an exact match is tried first and then the
// longest table key the model name starts with.
func DefaultPricing(model string) *Pricing {
	if model == "" {
		return nil
	}

	if p, ok := defaultPricing[model]; ok {
		return &p
	}

	var best string
	for key := range defaultPricing {
		if strings.HasPrefix(model, key) && len(key) > len(best) {
			best = key
		}
	}
	if best == "" {
		return nil
	}
	p := defaultPricing[best]
	return &p
}
