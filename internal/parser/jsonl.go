package parser

import (
	"bytes"
	"encoding/json"

	"github.com/zhaobenny/ccwatch/internal/model"
)

// Outcome tags the result of parsing one line
type Outcome int

const (
	// Empty lines are skipped without being counted
	Empty Outcome = iota
	// Parsed lines carry a Record
	Parsed
	// Unparsable lines are counted as skipped
	Unparsable
)

func (o Outcome) String() string {
	switch o {
	case Empty:
		return "empty"
	case Parsed:
		return "parsed"
	case Unparsable:
		return "unparsable"
	}
	return "unknown"
}

// LineResult is the outcome of ParseLine. Record is only meaningful when Outcome is Parsed.
type LineResult struct {
	Outcome Outcome
	Record  model.LogRecord
}

// rawMessage represents the subset of a Claude Code JSONL entry we read.
// Counters are unsigned so negative, fractional and string values fail to decode.
type rawMessage struct {
	Message *struct {
		Model *string   `json:"model"`
		Usage *rawUsage `json:"usage"`
	} `json:"message"`
}

type rawUsage struct {
	InputTokens              uint64 `json:"input_tokens"`
	OutputTokens             uint64 `json:"output_tokens"`
	CacheCreationInputTokens uint64 `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     uint64 `json:"cache_read_input_tokens"`
}

// ParseLine converts one raw line into a LogRecord. It never panics or returns an
// error: malformed input is reported as Unparsable.
func ParseLine(line []byte) LineResult {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return LineResult{Outcome: Empty}
	}

	var raw rawMessage
	if err := json.Unmarshal(line, &raw); err != nil {
		return LineResult{Outcome: Unparsable}
	}
	if raw.Message == nil || raw.Message.Usage == nil {
		return LineResult{Outcome: Unparsable}
	}

	rec := model.LogRecord{
		Usage: model.TokenUsage{
			InputTokens:              raw.Message.Usage.InputTokens,
			OutputTokens:             raw.Message.Usage.OutputTokens,
			CacheCreationInputTokens: raw.Message.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     raw.Message.Usage.CacheReadInputTokens,
		},
	}
	if raw.Message.Model != nil {
		rec.Model = *raw.Message.Model
	}

	return LineResult{Outcome: Parsed, Record: rec}
}
