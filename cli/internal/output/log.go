package output

import (
	"log/slog"

	"github.com/zhaobenny/ccwatch/internal/monitor"
)

// LogRenderer reports each frame as a structured log record, for headless runs
type LogRenderer struct {
	Logger *slog.Logger
}

// Render implements monitor.Renderer
func (r LogRenderer) Render(f monitor.Frame) error {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := f.Snapshot
	logger.Info("usage snapshot",
		"root", f.Root,
		"cycle", f.Cycle,
		"input_tokens", s.TotalInput,
		"output_tokens", s.TotalOutput,
		"cache_creation_tokens", s.TotalCacheCreation,
		"cache_read_tokens", s.TotalCacheRead,
		"messages", s.MessageCount,
		"files", s.FileCount,
		"skipped_lines", s.SkippedLines,
		"unreadable_files", s.UnreadableFiles,
		"unreadable_dirs", s.UnreadableDirs,
		"cost", FormatCost(f.Cost.Total),
		"elapsed", f.Elapsed,
	)
	return nil
}
