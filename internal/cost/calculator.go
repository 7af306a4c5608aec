package cost

import "github.com/sells-group/outreach-research/internal/model"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
	Reader    ReaderRate           `yaml:"reader" mapstructure:"reader"`
	Profile   ProfileRate          `yaml:"profile" mapstructure:"profile"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// ReaderRate holds content-reader pricing.
type ReaderRate struct {
	PerMTok float64 `yaml:"per_mtok" mapstructure:"per_mtok"`
}

// ProfileRate holds profile-lookup pricing.
type ProfileRate struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude prices a classification call and returns the filled usage totals.
func (c *Calculator) Claude(modelID string, promptTokens, completionTokens int) model.UsageTotals {
	u := model.UsageTotals{
		PromptUnits:     promptTokens,
		CompletionUnits: completionTokens,
		TotalUnits:      promptTokens + completionTokens,
	}
	rate, ok := c.rates.Anthropic[modelID]
	if !ok {
		return u
	}
	u.CostUSD = (float64(promptTokens)/1e6)*rate.Input + (float64(completionTokens)/1e6)*rate.Output
	return u
}

// Reader prices content-reader token usage.
func (c *Calculator) Reader(tokens int) model.UsageTotals {
	return model.UsageTotals{
		TotalUnits: tokens,
		CostUSD:    (float64(tokens) / 1e6) * c.rates.Reader.PerMTok,
	}
}

// ProfileQuery returns the flat cost of one profile lookup.
func (c *Calculator) ProfileQuery() model.UsageTotals {
	return model.UsageTotals{CostUSD: c.rates.Profile.PerQuery}
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
			"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
		},
		Reader:  ReaderRate{PerMTok: 0.02},
		Profile: ProfileRate{PerQuery: 0.005},
	}
}
