package output

import (
	"encoding/json"
	"io"
	"time"

	"github.com/zhaobenny/ccwatch/internal/monitor"
	"github.com/zhaobenny/ccwatch/internal/pricing"
)

// JSONOutput is one frame in machine-readable form
type JSONOutput struct {
	Root      string       `json:"root"`
	Cycle     uint64       `json:"cycle"`
	ScannedAt time.Time    `json:"scanned_at"`
	ElapsedMS int64        `json:"elapsed_ms"`
	Total     JSONResult   `json:"total"`
	Models    []JSONResult `json:"models,omitempty"`

	MessageCount    uint64 `json:"message_count"`
	FileCount       uint64 `json:"file_count"`
	SkippedLines    uint64 `json:"skipped_lines"`
	UnreadableFiles uint64 `json:"unreadable_files"`
	UnreadableDirs  uint64 `json:"unreadable_dirs"`
}

// JSONResult is the token totals and cost for one key
type JSONResult struct {
	Key                      string  `json:"key"`
	Messages                 uint64  `json:"messages,omitempty"`
	InputTokens              uint64  `json:"input_tokens"`
	OutputTokens             uint64  `json:"output_tokens"`
	CacheCreationInputTokens uint64  `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     uint64  `json:"cache_read_input_tokens"`
	Cost                     float64 `json:"cost"`
}

// JSONRenderer writes one JSON object per frame
type JSONRenderer struct {
	enc *json.Encoder
}

// NewJSONRenderer creates a renderer writing newline-delimited JSON to w
func NewJSONRenderer(w io.Writer) *JSONRenderer {
	return &JSONRenderer{enc: json.NewEncoder(w)}
}

// Render implements monitor.Renderer
func (r *JSONRenderer) Render(f monitor.Frame) error {
	return r.enc.Encode(NewJSONOutput(f))
}

// NewJSONOutput converts a frame to its JSON shape
func NewJSONOutput(f monitor.Frame) JSONOutput {
	s := f.Snapshot
	out := JSONOutput{
		Root:      f.Root,
		Cycle:     f.Cycle,
		ScannedAt: f.ScannedAt,
		ElapsedMS: f.Elapsed.Milliseconds(),
		Total: JSONResult{
			Key:                      "total",
			Messages:                 s.MessageCount,
			InputTokens:              s.TotalInput,
			OutputTokens:             s.TotalOutput,
			CacheCreationInputTokens: s.TotalCacheCreation,
			CacheReadInputTokens:     s.TotalCacheRead,
			Cost:                     f.Cost.Total,
		},
		MessageCount:    s.MessageCount,
		FileCount:       s.FileCount,
		SkippedLines:    s.SkippedLines,
		UnreadableFiles: s.UnreadableFiles,
		UnreadableDirs:  s.UnreadableDirs,
	}

	for _, name := range sortedModels(s.ByModel) {
		mu := s.ByModel[name]
		c := pricing.Estimate(mu.Usage, pricing.ForModel(name, f.Rates))
		out.Models = append(out.Models, JSONResult{
			Key:                      name,
			Messages:                 mu.Messages,
			InputTokens:              mu.Usage.InputTokens,
			OutputTokens:             mu.Usage.OutputTokens,
			CacheCreationInputTokens: mu.Usage.CacheCreationInputTokens,
			CacheReadInputTokens:     mu.Usage.CacheReadInputTokens,
			Cost:                     c.Total,
		})
	}
	return out
}
