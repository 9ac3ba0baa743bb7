package aggregator

import (
	"bufio"
	"io"
	"log/slog"
	"maps"
	"os"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/zhaobenny/ccwatch/internal/model"
	"github.com/zhaobenny/ccwatch/internal/parser"
)

// Tally is a running fold of parsed lines. The zero value is an empty tally.
// Merge is commutative and associative, so files may be folded in any order.
type Tally struct {
	s model.Snapshot
}

// Add folds one record into the tally
func (t *Tally) Add(rec model.LogRecord) {
	t.s.TotalInput += rec.Usage.InputTokens
	t.s.TotalOutput += rec.Usage.OutputTokens
	t.s.TotalCacheCreation += rec.Usage.CacheCreationInputTokens
	t.s.TotalCacheRead += rec.Usage.CacheReadInputTokens
	t.s.MessageCount++

	if t.s.ByModel == nil {
		t.s.ByModel = make(map[string]model.ModelUsage)
	}
	mu := t.s.ByModel[rec.Model]
	mu.Usage = mu.Usage.Add(rec.Usage)
	mu.Messages++
	t.s.ByModel[rec.Model] = mu
}

// AddLine parses a raw line and folds the outcome
func (t *Tally) AddLine(line []byte) {
	res := parser.ParseLine(line)
	switch res.Outcome {
	case parser.Parsed:
		t.Add(res.Record)
	case parser.Unparsable:
		t.s.SkippedLines++
	}
}

// Merge folds another tally into t
func (t *Tally) Merge(o Tally) {
	t.s.TotalInput += o.s.TotalInput
	t.s.TotalOutput += o.s.TotalOutput
	t.s.TotalCacheCreation += o.s.TotalCacheCreation
	t.s.TotalCacheRead += o.s.TotalCacheRead
	t.s.MessageCount += o.s.MessageCount
	t.s.FileCount += o.s.FileCount
	t.s.SkippedLines += o.s.SkippedLines
	t.s.UnreadableFiles += o.s.UnreadableFiles
	t.s.UnreadableDirs += o.s.UnreadableDirs

	if len(o.s.ByModel) > 0 && t.s.ByModel == nil {
		t.s.ByModel = make(map[string]model.ModelUsage, len(o.s.ByModel))
	}
	for name, mu := range o.s.ByModel {
		cur := t.s.ByModel[name]
		cur.Usage = cur.Usage.Add(mu.Usage)
		cur.Messages += mu.Messages
		t.s.ByModel[name] = cur
	}
}

// Snapshot returns the tally as an independent Snapshot
func (t *Tally) Snapshot() model.Snapshot {
	s := t.s
	s.ByModel = maps.Clone(t.s.ByModel)
	if s.ByModel == nil {
		s.ByModel = make(map[string]model.ModelUsage)
	}
	return s
}

// Scanner turns a usage root into a Snapshot
type Scanner struct {
	Suffix  string // defaults to parser.DefaultSuffix
	Workers int    // files read concurrently, defaults to GOMAXPROCS
	Logger  *slog.Logger

	open func(name string) (io.ReadCloser, error)
}

// Scan discovers and folds every usage file under root. Only a root that is not a
// directory returns an error; unreadable files and malformed lines are counted.
func (s *Scanner) Scan(root string) (model.Snapshot, error) {
	d, err := parser.Discover(root, s.suffix())
	if err != nil {
		return model.Snapshot{}, err
	}

	// Each file gets its own slot, so workers share no mutable state.
	tallies := make([]Tally, len(d.Files))
	var g errgroup.Group
	g.SetLimit(s.workers())
	for i, path := range d.Files {
		g.Go(func() error {
			tallies[i] = s.readFile(path)
			return nil
		})
	}
	_ = g.Wait()

	var total Tally
	for _, t := range tallies {
		total.Merge(t)
	}
	total.s.UnreadableDirs += uint64(d.UnreadableDirs)
	total.s.FileCount += uint64(d.Irregular)
	total.s.UnreadableFiles += uint64(d.Irregular)

	snap := total.Snapshot()
	s.logger().Debug("scan complete",
		"root", root,
		"files", snap.FileCount,
		"messages", snap.MessageCount,
		"skipped_lines", snap.SkippedLines,
		"unreadable_files", snap.UnreadableFiles,
		"unreadable_dirs", snap.UnreadableDirs,
	)
	return snap, nil
}

// readFile folds one file in line order. Open and read failures mark the file
// unreadable but keep whatever was folded before the failure.
func (s *Scanner) readFile(path string) Tally {
	var t Tally
	t.s.FileCount = 1

	f, err := s.opener()(path)
	if err != nil {
		t.s.UnreadableFiles = 1
		s.logger().Debug("skipping unreadable usage file", "path", path, "err", err)
		return t
	}
	defer f.Close()

	// ReadBytes has no line length limit, unlike bufio.Scanner
	r := bufio.NewReaderSize(f, 64*1024)
	for {
		line, err := r.ReadBytes('\n')
		if len(line) > 0 {
			t.AddLine(line)
		}
		if err != nil {
			if err != io.EOF {
				t.s.UnreadableFiles = 1
				s.logger().Debug("usage file read failed", "path", path, "err", err)
			}
			break
		}
	}
	return t
}

func (s *Scanner) suffix() string {
	if s.Suffix == "" {
		return parser.DefaultSuffix
	}
	return s.Suffix
}

func (s *Scanner) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.GOMAXPROCS(0)
}

func (s *Scanner) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return s.Logger
}

func (s *Scanner) opener() func(string) (io.ReadCloser, error) {
	if s.open != nil {
		return s.open
	}
	return func(name string) (io.ReadCloser, error) {
		return os.Open(name)
	}
}
