package monitor

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhaobenny/ccwatch/internal/parser"
	"github.com/zhaobenny/ccwatch/internal/pricing"
)

type recorder struct {
	mu       sync.Mutex
	frames   []Frame
	onRender func(Frame)
}

func (r *recorder) Render(f Frame) error {
	r.mu.Lock()
	r.frames = append(r.frames, f)
	cb := r.onRender
	r.mu.Unlock()
	if cb != nil {
		cb(f)
	}
	return nil
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

type chanTrigger chan struct{}

func (c chanTrigger) C() <-chan struct{} { return c }

func writeUsage(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func TestNew_Validation(t *testing.T) {
	r := &recorder{}
	_, err := New(Config{Root: "x"}, r)
	require.ErrorIs(t, err, ErrInvalidInterval)

	_, err = New(Config{Root: "x", Interval: -time.Second}, r)
	require.ErrorIs(t, err, ErrInvalidInterval)

	_, err = New(Config{Interval: time.Second}, r)
	require.ErrorIs(t, err, ErrNoRoot)

	_, err = New(Config{Root: "x", Interval: time.Second}, nil)
	require.ErrorIs(t, err, ErrNoRenderer)

	l, err := New(Config{Root: "x", Interval: time.Second}, r)
	require.NoError(t, err)
	require.Equal(t, Idle, l.State())
}

func TestRun_CancelledBeforeStartRendersAtMostOnce(t *testing.T) {
	r := &recorder{}
	l, err := New(Config{Root: t.TempDir(), Interval: time.Millisecond, Rates: pricing.DefaultRates}, r)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.NoError(t, l.Run(ctx))
	require.LessOrEqual(t, r.count(), 1)
	require.Equal(t, Cancelled, l.State())
}

func TestRun_RootIsFileCancelsWithError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "projects")
	writeUsage(t, path, "")

	r := &recorder{}
	l, err := New(Config{Root: path, Interval: time.Millisecond}, r)
	require.NoError(t, err)

	err = l.Run(context.Background())
	require.ErrorIs(t, err, parser.ErrNotDirectory)
	require.Zero(t, r.count())
	require.Equal(t, Cancelled, l.State())
}

func TestRun_RepeatsUntilCancelled(t *testing.T) {
	root := t.TempDir()
	writeUsage(t, filepath.Join(root, "p", "s.jsonl"),
		`{"message":{"usage":{"input_tokens":1000000,"output_tokens":1000000}}}`+"\n")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &recorder{}
	r.onRender = func(f Frame) {
		if f.Cycle == 3 {
			cancel()
		}
	}
	l, err := New(Config{Root: root, Interval: time.Millisecond, Rates: pricing.DefaultRates}, r)
	require.NoError(t, err)

	require.NoError(t, l.Run(ctx))
	require.Equal(t, 3, r.count())

	for i, f := range r.frames {
		require.Equal(t, uint64(i+1), f.Cycle)
		require.Equal(t, uint64(1_000_000), f.Snapshot.TotalInput)
		require.Equal(t, uint64(1), f.Snapshot.FileCount)
		require.InDelta(t, 18.0, f.Cost.Total, 1e-9)
		require.Equal(t, pricing.DefaultRates, f.Rates)
	}
}

func TestRun_PicksUpNewFilesEachCycle(t *testing.T) {
	root := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &recorder{}
	r.onRender = func(f Frame) {
		switch f.Cycle {
		case 1:
			writeUsage(t, filepath.Join(root, "new.jsonl"), `{"message":{"usage":{"output_tokens":9}}}`)
		case 2:
			cancel()
		}
	}
	l, err := New(Config{Root: root, Interval: time.Millisecond}, r)
	require.NoError(t, err)
	require.NoError(t, l.Run(ctx))

	require.Zero(t, r.frames[0].Snapshot.FileCount)
	require.Equal(t, uint64(9), r.frames[1].Snapshot.TotalOutput)
}

func TestRun_RenderErrorDoesNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := 0
	r := RendererFunc(func(f Frame) error {
		calls++
		if f.Cycle == 2 {
			cancel()
		}
		return errors.New("terminal gone")
	})
	l, err := New(Config{Root: t.TempDir(), Interval: time.Millisecond}, r)
	require.NoError(t, err)
	require.NoError(t, l.Run(ctx))
	require.Equal(t, 2, calls)
}

func TestRun_StateDuringRender(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var l *Loop
	var seen State
	r := RendererFunc(func(Frame) error {
		seen = l.State()
		cancel()
		return nil
	})
	l, err := New(Config{Root: t.TempDir(), Interval: time.Hour}, r)
	require.NoError(t, err)
	require.NoError(t, l.Run(ctx))
	require.Equal(t, Rendered, seen)
	require.Equal(t, Cancelled, l.State())
}

func TestRun_CancelDuringWait(t *testing.T) {
	r := &recorder{}
	l, err := New(Config{Root: t.TempDir(), Interval: time.Hour}, r)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return l.State() == Rendered }, 2*time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not exit after cancellation")
	}
	require.Equal(t, 1, r.count())
}

func TestRun_TriggerWakesEarly(t *testing.T) {
	trig := make(chanTrigger, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	r := &recorder{}
	r.onRender = func(f Frame) {
		if f.Cycle == 2 {
			cancel()
			return
		}
		trig <- struct{}{}
	}
	l, err := New(Config{Root: t.TempDir(), Interval: time.Hour, MinRefresh: time.Millisecond}, r, WithTrigger(trig))
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("trigger did not wake the loop")
	}
	require.Equal(t, 2, r.count())
}

func TestRun_TriggerIsRateLimited(t *testing.T) {
	trig := make(chanTrigger, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gap := 50 * time.Millisecond
	r := &recorder{}
	r.onRender = func(f Frame) {
		if f.Cycle == 3 {
			cancel()
			return
		}
		trig <- struct{}{}
	}
	l, err := New(Config{Root: t.TempDir(), Interval: time.Hour, MinRefresh: gap}, r, WithTrigger(trig))
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, l.Run(ctx))
	require.Equal(t, 3, r.count())
	// Two triggered scans after the first need at least two gaps.
	require.GreaterOrEqual(t, time.Since(start), 2*gap-10*time.Millisecond)
}

func TestScan_FrameMetadata(t *testing.T) {
	root := t.TempDir()
	writeUsage(t, filepath.Join(root, "s.jsonl"), `{"message":{"usage":{"cache_read_input_tokens":1000000}}}`)

	l, err := New(Config{Root: root, Interval: time.Second, Rates: pricing.DefaultRates}, &recorder{})
	require.NoError(t, err)

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	ticks := []time.Time{base, base.Add(250 * time.Millisecond)}
	l.now = func() time.Time {
		next := ticks[0]
		ticks = ticks[1:]
		return next
	}

	f, err := l.Scan()
	require.NoError(t, err)
	require.Equal(t, uint64(1), f.Cycle)
	require.Equal(t, base, f.ScannedAt)
	require.Equal(t, 250*time.Millisecond, f.Elapsed)
	require.InDelta(t, 0.30, f.Cost.CacheRead, 1e-9)
	require.InDelta(t, 0.30, f.Cost.Total, 1e-9)
}

func TestScan_ConcurrentCallsGetDistinctCycles(t *testing.T) {
	root := t.TempDir()
	writeUsage(t, filepath.Join(root, "s.jsonl"), `{"message":{"usage":{"input_tokens":1}}}`)

	l, err := New(Config{Root: root, Interval: time.Second, Rates: pricing.DefaultRates}, &recorder{})
	require.NoError(t, err)

	const n = 8
	cycles := make([]uint64, n)
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f, err := l.Scan()
			if err == nil {
				cycles[i] = f.Cycle
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool)
	for _, c := range cycles {
		require.NotZero(t, c)
		require.False(t, seen[c], "cycle %d reused", c)
		seen[c] = true
	}
}

func TestState_String(t *testing.T) {
	require.Equal(t, "idle", Idle.String())
	require.Equal(t, "scanning", Scanning.String())
	require.Equal(t, "rendered", Rendered.String())
	require.Equal(t, "cancelled", Cancelled.String())
	require.Equal(t, "unknown", State(9).String())
}
