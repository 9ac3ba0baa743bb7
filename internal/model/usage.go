package model

// LogRecord is one usage event extracted from a single log line
type LogRecord struct {
	Model string // empty when the line carries no model
	Usage TokenUsage
}

// TokenUsage contains token counts from a Claude API response
type TokenUsage struct {
	InputTokens              uint64
	OutputTokens             uint64
	CacheCreationInputTokens uint64
	CacheReadInputTokens     uint64
}

// Add returns the element-wise sum of u and o
func (u TokenUsage) Add(o TokenUsage) TokenUsage {
	return TokenUsage{
		InputTokens:              u.InputTokens + o.InputTokens,
		OutputTokens:             u.OutputTokens + o.OutputTokens,
		CacheCreationInputTokens: u.CacheCreationInputTokens + o.CacheCreationInputTokens,
		CacheReadInputTokens:     u.CacheReadInputTokens + o.CacheReadInputTokens,
	}
}

// Total returns the sum of all four counters
func (u TokenUsage) Total() uint64 {
	return u.InputTokens + u.OutputTokens + u.CacheCreationInputTokens + u.CacheReadInputTokens
}

// ModelUsage is the usage attributed to a single model within a scan
type ModelUsage struct {
	Usage    TokenUsage
	Messages uint64
}

// Snapshot is the aggregated result of one full scan. It is a total, never a delta.
type Snapshot struct {
	TotalInput         uint64
	TotalOutput        uint64
	TotalCacheCreation uint64
	TotalCacheRead     uint64

	MessageCount uint64 // successfully parsed records
	FileCount    uint64 // files scanned, including unreadable ones
	SkippedLines uint64 // non-empty lines that failed to parse

	UnreadableFiles uint64
	UnreadableDirs  uint64

	// ByModel is keyed by model identifier; records without one land under "".
	ByModel map[string]ModelUsage
}

// Usage returns the snapshot totals as a TokenUsage
func (s Snapshot) Usage() TokenUsage {
	return TokenUsage{
		InputTokens:              s.TotalInput,
		OutputTokens:             s.TotalOutput,
		CacheCreationInputTokens: s.TotalCacheCreation,
		CacheReadInputTokens:     s.TotalCacheRead,
	}
}

// CostEstimate holds per-category and total cost in USD
type CostEstimate struct {
	Input         float64
	Output        float64
	CacheCreation float64
	CacheRead     float64
	Total         float64
}
