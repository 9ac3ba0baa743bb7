// Package monitor drives the periodic scan, price and render cycle.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/zhaobenny/ccwatch/internal/aggregator"
	"github.com/zhaobenny/ccwatch/internal/model"
	"github.com/zhaobenny/ccwatch/internal/pricing"
)

var (
	ErrInvalidInterval = errors.New("refresh interval must be positive")
	ErrNoRoot          = errors.New("usage root is required")
	ErrNoRenderer      = errors.New("renderer is required")
)

// State is the position of a Loop in its cycle
type State int32

const (
	Idle State = iota
	Scanning
	Rendered
	Cancelled
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Scanning:
		return "scanning"
	case Rendered:
		return "rendered"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Frame is what a Renderer receives once per cycle
type Frame struct {
	Root      string
	Snapshot  model.Snapshot
	Cost      model.CostEstimate
	Rates     pricing.Rates
	Cycle     uint64
	ScannedAt time.Time
	Elapsed   time.Duration
}

// Renderer displays one frame
type Renderer interface {
	Render(Frame) error
}

// RendererFunc adapts a function to Renderer
type RendererFunc func(Frame) error

func (f RendererFunc) Render(fr Frame) error { return f(fr) }

// Trigger wakes the loop before its interval elapses
type Trigger interface {
	C() <-chan struct{}
}

// Config is everything the loop needs from the caller
type Config struct {
	Root     string
	Interval time.Duration
	Suffix   string
	Workers  int
	Rates    pricing.Rates

	// MinRefresh bounds how often a Trigger can cause a scan. Zero means Interval.
	MinRefresh time.Duration
}

// Option configures a Loop
type Option func(*Loop)

// WithLogger sets the loop's logger
func WithLogger(l *slog.Logger) Option {
	return func(lp *Loop) { lp.logger = l }
}

// WithTrigger lets t wake the loop early, rate limited by Config.MinRefresh
func WithTrigger(t Trigger) Option {
	return func(lp *Loop) { lp.trigger = t }
}

// Loop repeatedly scans, prices and renders until its context is cancelled.
// Only one scan is ever in flight and a render always completes before the next scan.
type Loop struct {
	cfg      Config
	renderer Renderer
	logger   *slog.Logger
	trigger  Trigger
	limiter  *rate.Limiter
	scanner  *aggregator.Scanner
	state    atomic.Int32
	cycle    atomic.Uint64
	now      func() time.Time
}

// New validates cfg and builds a Loop in the Idle state
func New(cfg Config, r Renderer, opts ...Option) (*Loop, error) {
	if cfg.Interval <= 0 {
		return nil, ErrInvalidInterval
	}
	if cfg.Root == "" {
		return nil, ErrNoRoot
	}
	if r == nil {
		return nil, ErrNoRenderer
	}

	l := &Loop{
		cfg:      cfg,
		renderer: r,
		logger:   slog.New(slog.DiscardHandler),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	l.scanner = &aggregator.Scanner{
		Suffix:  cfg.Suffix,
		Workers: cfg.Workers,
		Logger:  l.logger,
	}

	if l.trigger != nil {
		gap := cfg.MinRefresh
		if gap <= 0 {
			gap = cfg.Interval
		}
		l.limiter = rate.NewLimiter(rate.Every(gap), 1)
	}

	return l, nil
}

// State reports the current state. Safe for concurrent use.
func (l *Loop) State() State {
	return State(l.state.Load())
}

func (l *Loop) setState(s State) {
	l.state.Store(int32(s))
}

// Scan runs one scan and prices it without rendering. It is for one-shot use;
// calling it while Run is active puts a second scan in flight.
func (l *Loop) Scan() (Frame, error) {
	start := l.now()
	snap, err := l.scanner.Scan(l.cfg.Root)
	if err != nil {
		return Frame{}, err
	}
	cycle := l.cycle.Add(1)
	return Frame{
		Root:      l.cfg.Root,
		Snapshot:  snap,
		Cost:      pricing.Estimate(snap.Usage(), l.cfg.Rates),
		Rates:     l.cfg.Rates,
		Cycle:     cycle,
		ScannedAt: start,
		Elapsed:   l.now().Sub(start),
	}, nil
}

// Run cycles until ctx is cancelled, returning nil. A root that is not a directory
// stops the loop and is returned. Cancellation is only observed between cycles.
func (l *Loop) Run(ctx context.Context) error {
	if l.limiter != nil {
		// The first scan uses the burst token.
		l.limiter.Allow()
	}

	for {
		l.setState(Scanning)
		frame, err := l.Scan()
		if err != nil {
			l.setState(Cancelled)
			l.logger.Error("scan aborted", "root", l.cfg.Root, "err", err)
			return err
		}

		l.setState(Rendered)
		if err := l.renderer.Render(frame); err != nil {
			l.logger.Warn("render failed", "cycle", frame.Cycle, "err", err)
		}

		if !l.wait(ctx) {
			l.setState(Cancelled)
			return nil
		}
	}
}

// wait suspends until the interval elapses or the trigger fires. It returns
// false once ctx is done.
func (l *Loop) wait(ctx context.Context) bool {
	if ctx.Err() != nil {
		return false
	}

	timer := time.NewTimer(l.cfg.Interval)
	defer timer.Stop()

	var wake <-chan struct{}
	if l.trigger != nil {
		wake = l.trigger.C()
	}

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		if l.limiter != nil {
			l.limiter.Allow()
		}
		return true
	case <-wake:
		if err := l.limiter.Wait(ctx); err != nil {
			return false
		}
		l.logger.Debug("refresh triggered by file change")
		return true
	}
}
