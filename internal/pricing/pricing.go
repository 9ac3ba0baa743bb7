package pricing

import (
	"strings"

	"github.com/zhaobenny/ccwatch/internal/model"
)

const tokensPerMillion = 1_000_000

// Rates are USD prices per million tokens, one per token category
type Rates struct {
	Input         float64 `yaml:"input" json:"input"`
	Output        float64 `yaml:"output" json:"output"`
	CacheCreation float64 `yaml:"cache_creation" json:"cache_creation"`
	CacheRead     float64 `yaml:"cache_read" json:"cache_read"`
}

// DefaultRates is Sonnet pricing, used for the snapshot-wide estimate
var DefaultRates = Rates{
	Input:         3.00,
	Output:        15.00,
	CacheCreation: 3.75,
	CacheRead:     0.30,
}

var (
	opus4   = Rates{Input: 15.00, Output: 75.00, CacheCreation: 18.75, CacheRead: 1.50}
	opus45  = Rates{Input: 5.00, Output: 25.00, CacheCreation: 6.25, CacheRead: 0.50}
	sonnet  = DefaultRates
	haiku45 = Rates{Input: 1.00, Output: 5.00, CacheCreation: 1.25, CacheRead: 0.10}
	haiku35 = Rates{Input: 0.80, Output: 4.00, CacheCreation: 1.00, CacheRead: 0.08}
	haiku3  = Rates{Input: 0.25, Output: 1.25, CacheCreation: 0.30, CacheRead: 0.03}
)

// embedded maps known model identifiers to their rates
var embedded = map[string]Rates{
	"claude-opus-4-5-20251101":   opus45,
	"claude-opus-4-5":            opus45,
	"claude-opus-4-1-20250805":   opus4,
	"claude-opus-4-1":            opus4,
	"claude-opus-4-20250514":     opus4,
	"claude-4-opus-20250514":     opus4,
	"claude-3-opus-20240229":     opus4,
	"claude-sonnet-4-5-20250929": sonnet,
	"claude-sonnet-4-5":          sonnet,
	"claude-sonnet-4-20250514":   sonnet,
	"claude-4-sonnet-20250514":   sonnet,
	"claude-3-7-sonnet-20250219": sonnet,
	"claude-3-5-sonnet-20241022": sonnet,
	"claude-3-5-sonnet-20240620": sonnet,
	"claude-haiku-4-5-20251001":  haiku45,
	"claude-haiku-4-5":           haiku45,
	"claude-3-5-haiku-20241022":  haiku35,
	"claude-3-haiku-20240307":    haiku3,
}

// families is checked in order when no exact or normalized match exists
var families = []struct {
	name  string
	rates Rates
}{
	{"opus", opus4},
	{"haiku", haiku45},
	{"sonnet", sonnet},
}

// Estimate computes the cost of usage at the given rates
func Estimate(usage model.TokenUsage, r Rates) model.CostEstimate {
	c := model.CostEstimate{
		Input:         categoryCost(usage.InputTokens, r.Input),
		Output:        categoryCost(usage.OutputTokens, r.Output),
		CacheCreation: categoryCost(usage.CacheCreationInputTokens, r.CacheCreation),
		CacheRead:     categoryCost(usage.CacheReadInputTokens, r.CacheRead),
	}
	c.Total = c.Input + c.Output + c.CacheCreation + c.CacheRead
	return c
}

func categoryCost(tokens uint64, perMillion float64) float64 {
	return float64(tokens) / tokensPerMillion * perMillion
}

// ForModel returns rates for a model, trying an exact match, then a normalized
// match, then the model family. Unknown models fall back to fallback.
func ForModel(modelName string, fallback Rates) Rates {
	if r, ok := embedded[modelName]; ok {
		return r
	}

	normalized := normalizeModelName(modelName)
	for name, r := range embedded {
		if normalizeModelName(name) == normalized {
			return r
		}
	}

	lower := strings.ToLower(modelName)
	for _, f := range families {
		if strings.Contains(lower, f.name) {
			return f.rates
		}
	}

	return fallback
}

// EstimateByModel prices each model's usage with its own rates and sums the result
func EstimateByModel(byModel map[string]model.ModelUsage, fallback Rates) model.CostEstimate {
	var total model.CostEstimate
	for name, mu := range byModel {
		c := Estimate(mu.Usage, ForModel(name, fallback))
		total.Input += c.Input
		total.Output += c.Output
		total.CacheCreation += c.CacheCreation
		total.CacheRead += c.CacheRead
		total.Total += c.Total
	}
	return total
}

// normalizeModelName normalizes model names for matching
func normalizeModelName(name string) string {
	name = strings.ToLower(name)
	name = strings.TrimPrefix(name, "anthropic/")
	name = strings.ReplaceAll(name, "-", "")
	name = strings.ReplaceAll(name, "_", "")
	name = strings.ReplaceAll(name, ".", "")
	return name
}
