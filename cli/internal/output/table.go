package output

import (
	"fmt"
	"io"
	"math/big"
	"regexp"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/zhaobenny/ccwatch/internal/model"
	"github.com/zhaobenny/ccwatch/internal/monitor"
	"github.com/zhaobenny/ccwatch/internal/pricing"
)

const (
	compactThreshold = 80 // Terminal width below which compact mode kicks in
	defaultWidth     = 120

	// Move the cursor home and clear the screen
	clearScreen = "\x1b[H\x1b[2J"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#B4BEFE"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#89B4FA"))
	totalStyle  = lipgloss.NewStyle().Bold(true)
	costStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#585B70"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F9E2AF"))
)

// TableOptions controls table display behavior
type TableOptions struct {
	ForceCompact bool
	Breakdown    bool // per-model table under the totals
	Clear        bool // redraw in place on every frame
}

// TerminalRenderer draws each frame as a table
type TerminalRenderer struct {
	w     io.Writer
	opts  TableOptions
	width func() int
}

// NewTerminalRenderer creates a renderer writing to w
func NewTerminalRenderer(w io.Writer, opts TableOptions) *TerminalRenderer {
	return &TerminalRenderer{
		w:     w,
		opts:  opts,
		width: func() int { return terminalWidth(w) },
	}
}

// Render implements monitor.Renderer
func (r *TerminalRenderer) Render(f monitor.Frame) error {
	var b strings.Builder
	if r.opts.Clear && isTerminal(r.w) {
		b.WriteString(clearScreen)
	}

	compact := r.opts.ForceCompact || r.width() < compactThreshold
	writeHeader(&b, f)
	writeTotals(&b, f, compact)
	if r.opts.Breakdown {
		writeBreakdown(&b, f, compact)
	}
	writeFooter(&b, f.Snapshot)

	_, err := io.WriteString(r.w, b.String())
	return err
}

// FormatNumber formats a token count with thousand separators
func FormatNumber(n uint64) string {
	return humanize.BigComma(new(big.Int).SetUint64(n))
}

// FormatCost formats a cost value as currency
func FormatCost(cost float64) string {
	return fmt.Sprintf("$%.2f", cost)
}

func writeHeader(b *strings.Builder, f monitor.Frame) {
	b.WriteString(titleStyle.Render("ccwatch"))
	fmt.Fprintf(b, " %s\n", dimStyle.Render(fmt.Sprintf("%s · updated %s · cycle %d · %s",
		f.Root, f.ScannedAt.Format("15:04:05"), f.Cycle, f.Elapsed.Round(1e6))))
	b.WriteString("\n")
}

func writeTotals(b *strings.Builder, f monitor.Frame, compact bool) {
	type row struct {
		name   string
		tokens uint64
		rate   float64
		cost   float64
	}
	rows := []row{
		{"Input", f.Snapshot.TotalInput, f.Rates.Input, f.Cost.Input},
		{"Output", f.Snapshot.TotalOutput, f.Rates.Output, f.Cost.Output},
		{"Cache Create", f.Snapshot.TotalCacheCreation, f.Rates.CacheCreation, f.Cost.CacheCreation},
		{"Cache Read", f.Snapshot.TotalCacheRead, f.Rates.CacheRead, f.Cost.CacheRead},
	}

	if compact {
		b.WriteString(headerStyle.Render(fmt.Sprintf("%-12s  %15s  %10s", "Category", "Tokens", "Cost")))
		b.WriteString("\n")
		rule := strings.Repeat("─", 12+2+15+2+10)
		b.WriteString(rule + "\n")
		for _, r := range rows {
			fmt.Fprintf(b, "%-12s  %15s  %s\n", r.name, FormatNumber(r.tokens),
				costStyle.Render(fmt.Sprintf("%10s", FormatCost(r.cost))))
		}
		b.WriteString(rule + "\n")
		b.WriteString(totalStyle.Render(fmt.Sprintf("%-12s  %15s  %10s", "Total",
			FormatNumber(f.Snapshot.Usage().Total()), FormatCost(f.Cost.Total))))
		b.WriteString("\n\n")
		return
	}

	b.WriteString(headerStyle.Render(fmt.Sprintf("%-12s  %15s  %12s  %10s", "Category", "Tokens", "$/MTok", "Cost")))
	b.WriteString("\n")
	rule := strings.Repeat("─", 12+2+15+2+12+2+10)
	b.WriteString(rule + "\n")
	for _, r := range rows {
		fmt.Fprintf(b, "%-12s  %15s  %12s  %s\n", r.name, FormatNumber(r.tokens),
			FormatCost(r.rate), costStyle.Render(fmt.Sprintf("%10s", FormatCost(r.cost))))
	}
	b.WriteString(rule + "\n")
	b.WriteString(totalStyle.Render(fmt.Sprintf("%-12s  %15s  %12s  %10s", "Total",
		FormatNumber(f.Snapshot.Usage().Total()), "", FormatCost(f.Cost.Total))))
	b.WriteString("\n\n")
}

func writeBreakdown(b *strings.Builder, f monitor.Frame, compact bool) {
	if len(f.Snapshot.ByModel) == 0 {
		return
	}

	names := sortedModels(f.Snapshot.ByModel)
	keyWidth := len("Model")
	for _, name := range names {
		keyWidth = max(keyWidth, len(displayModelName(name)))
	}

	if compact {
		b.WriteString(headerStyle.Render(fmt.Sprintf("%-*s  %15s  %10s", keyWidth, "Model", "Tokens", "Cost")))
		b.WriteString("\n")
		for _, name := range names {
			mu := f.Snapshot.ByModel[name]
			c := pricing.Estimate(mu.Usage, pricing.ForModel(name, f.Rates))
			fmt.Fprintf(b, "%-*s  %15s  %s\n", keyWidth, displayModelName(name),
				FormatNumber(mu.Usage.Total()), costStyle.Render(fmt.Sprintf("%10s", FormatCost(c.Total))))
		}
	} else {
		b.WriteString(headerStyle.Render(fmt.Sprintf("%-*s  %9s  %13s  %13s  %14s  %14s  %10s",
			keyWidth, "Model", "Messages", "Input", "Output", "Cache Create", "Cache Read", "Cost")))
		b.WriteString("\n")
		for _, name := range names {
			mu := f.Snapshot.ByModel[name]
			c := pricing.Estimate(mu.Usage, pricing.ForModel(name, f.Rates))
			fmt.Fprintf(b, "%-*s  %9s  %13s  %13s  %14s  %14s  %s\n", keyWidth, displayModelName(name),
				FormatNumber(mu.Messages),
				FormatNumber(mu.Usage.InputTokens),
				FormatNumber(mu.Usage.OutputTokens),
				FormatNumber(mu.Usage.CacheCreationInputTokens),
				FormatNumber(mu.Usage.CacheReadInputTokens),
				costStyle.Render(fmt.Sprintf("%10s", FormatCost(c.Total))))
		}
	}

	byModel := pricing.EstimateByModel(f.Snapshot.ByModel, f.Rates)
	b.WriteString(dimStyle.Render(fmt.Sprintf("Model-priced total: %s", FormatCost(byModel.Total))))
	b.WriteString("\n\n")
}

func writeFooter(b *strings.Builder, s model.Snapshot) {
	line := fmt.Sprintf("%s messages · %s files · %s skipped lines",
		FormatNumber(s.MessageCount), FormatNumber(s.FileCount), FormatNumber(s.SkippedLines))
	b.WriteString(dimStyle.Render(line))
	if s.UnreadableFiles > 0 || s.UnreadableDirs > 0 {
		b.WriteString(" ")
		b.WriteString(warnStyle.Render(fmt.Sprintf("· %d unreadable files · %d unreadable dirs",
			s.UnreadableFiles, s.UnreadableDirs)))
	}
	b.WriteString("\n")
}

func sortedModels(byModel map[string]model.ModelUsage) []string {
	names := lo.Keys(byModel)
	sort.Strings(names)
	return names
}

var (
	datedModelRe    = regexp.MustCompile(`^claude-(\w+)-([\d-]+)-(\d{8})$`)
	plainModelRe    = regexp.MustCompile(`^claude-(\w+)-([\d-]+)$`)
	prefixedModelRe = regexp.MustCompile(`^anthropic/claude-(\w+)-([\d.]+)$`)
)

// shortenModelName converts full model names to short form
// claude-sonnet-4-5-20250929 -> sonnet-4-5
// claude-opus-4-20250514 -> opus-4
func shortenModelName(name string) string {
	for _, re := range []*regexp.Regexp{datedModelRe, plainModelRe, prefixedModelRe} {
		if matches := re.FindStringSubmatch(name); matches != nil {
			return fmt.Sprintf("%s-%s", matches[1], matches[2])
		}
	}
	return name
}

func displayModelName(name string) string {
	if name == "" {
		return "unknown"
	}
	return shortenModelName(name)
}
