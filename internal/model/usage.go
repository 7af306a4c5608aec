package model

// UsageTotals tracks accumulated resource usage for a report.
type UsageTotals struct {
	PromptUnits     int     `json:"prompt_units"`
	CompletionUnits int     `json:"completion_units"`
	TotalUnits      int     `json:"total_units"`
	CostUSD         float64 `json:"cost_usd"`
}

// Add merges usage from another instance component-wise.
func (u *UsageTotals) Add(other UsageTotals) {
	u.PromptUnits += other.PromptUnits
	u.CompletionUnits += other.CompletionUnits
	u.TotalUnits += other.TotalUnits
	u.CostUSD += other.CostUSD
}

// IsZero reports whether no usage has been recorded.
func (u UsageTotals) IsZero() bool {
	return u.PromptUnits == 0 && u.CompletionUnits == 0 && u.TotalUnits == 0 && u.CostUSD == 0
}
