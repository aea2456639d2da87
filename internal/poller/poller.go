// Package poller periodically fetches the engine's status and results as a
// coupled pair and hands fresh snapshots to a handler.
//
// Every dispatched fetch carries a sequence number. Stop (and Start, which
// stops first) raises a floor to the latest sequence, so fetches still in
// flight at that moment are discarded when they land. A response older than
// the last applied one is discarded too.
package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/crawl-console/internal/clock/system"
	"github.com/JakeFAU/crawl-console/internal/crawler"
)

// DefaultFetchTimeout bounds one coupled fetch.
const DefaultFetchTimeout = 10 * time.Second

// Source is the subset of the engine the poller reads.
type Source interface {
	Status(ctx context.Context) (crawler.Status, error)
	Results(ctx context.Context) ([]crawler.CrawlResult, error)
}

// Snapshot is one successful coupled fetch.
type Snapshot struct {
	Seq       uint64
	Status    crawler.Status
	Results   []crawler.CrawlResult
	FetchedAt time.Time
}

// Handler receives poll outcomes. Both methods run with the poller's lock
// held and must not call back into the poller.
type Handler interface {
	// HandleSnapshot applies a fresh snapshot. Returning false stops polling.
	HandleSnapshot(snap Snapshot) bool
	// HandlePollError reports a failed cycle; the previous snapshot stands.
	HandlePollError(err *crawler.PollCycleError)
}

// Option configures a Poller.
type Option func(*Poller)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Poller) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock sets the clock used to stamp snapshots.
func WithClock(clock crawler.Clock) Option {
	return func(p *Poller) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// WithFetchTimeout bounds each coupled fetch.
func WithFetchTimeout(timeout time.Duration) Option {
	return func(p *Poller) {
		if timeout > 0 {
			p.fetchTimeout = timeout
		}
	}
}

// Poller owns at most one polling schedule at a time.
type Poller struct {
	source       Source
	handler      Handler
	logger       *zap.Logger
	clock        crawler.Clock
	fetchTimeout time.Duration

	wg sync.WaitGroup

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	started     bool
	seq         uint64
	floor       uint64
	lastApplied uint64
}

// New creates an idle poller.
func New(source Source, handler Handler, opts ...Option) *Poller {
	p := &Poller{
		source:       source,
		handler:      handler,
		logger:       zap.NewNop(),
		clock:        system.New(),
		fetchTimeout: DefaultFetchTimeout,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("poller")
	return p
}

// Start cancels any prior schedule, dispatches one immediate fetch and, when
// interval > 0, fetches again every interval.
func (p *Poller) Start(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.stopLocked()
	ctx := p.generationLocked()
	p.started = true
	p.dispatchLocked(ctx)
	if interval > 0 {
		p.wg.Add(1)
		go p.loop(ctx, interval)
	}
	p.logger.Debug("polling started", zap.Duration("interval", interval), zap.Uint64("seq", p.seq))
}

// Stop cancels scheduled and pending fetches. Fetches already in flight may
// finish but their responses are discarded. Once Stop returns the handler
// sees no further snapshots from earlier dispatches.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopLocked()
}

// PollAfter dispatches a single fetch after delay unless the poller is
// stopped first. It does not start periodic polling.
func (p *Poller) PollAfter(delay time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ctx := p.generationLocked()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		p.dispatchLocked(ctx)
	}()
}

// Active reports whether a periodic schedule is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started
}

// Close stops polling and waits for background goroutines to exit.
func (p *Poller) Close() {
	p.Stop()
	p.wg.Wait()
}

func (p *Poller) loop(ctx context.Context, interval time.Duration) {
	defer p.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.mu.Lock()
			if ctx.Err() == nil {
				p.dispatchLocked(ctx)
			}
			p.mu.Unlock()
		}
	}
}

// generationLocked returns the current cancellation scope, opening one if
// the poller is stopped.
func (p *Poller) generationLocked() context.Context {
	if p.cancel == nil {
		p.ctx, p.cancel = context.WithCancel(context.Background())
	}
	return p.ctx
}

func (p *Poller) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.ctx, p.cancel = nil, nil
	}
	p.floor = p.seq
	p.started = false
}

func (p *Poller) dispatchLocked(ctx context.Context) {
	p.seq++
	seq := p.seq
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.fetch(ctx, seq)
	}()
}

func (p *Poller) fetch(ctx context.Context, seq uint64) {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	var (
		status  crawler.Status
		results []crawler.CrawlResult
	)
	g, gctx := errgroup.WithContext(fetchCtx)
	g.Go(func() error {
		s, err := p.source.Status(gctx)
		if err != nil {
			return fmt.Errorf("fetch status: %w", err)
		}
		status = s
		return nil
	})
	g.Go(func() error {
		r, err := p.source.Results(gctx)
		if err != nil {
			return fmt.Errorf("fetch results: %w", err)
		}
		results = r
		return nil
	})
	err := g.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if seq <= p.floor || seq <= p.lastApplied {
		p.logger.Debug("discarding stale poll response",
			zap.Uint64("seq", seq),
			zap.Uint64("floor", p.floor),
			zap.Uint64("last_applied", p.lastApplied),
		)
		return
	}
	if err != nil {
		cycleErr := &crawler.PollCycleError{Seq: seq, Err: err}
		p.logger.Warn("poll cycle failed", zap.Uint64("seq", seq), zap.Error(err))
		p.handler.HandlePollError(cycleErr)
		return
	}
	p.lastApplied = seq
	snap := Snapshot{Seq: seq, Status: status, Results: results, FetchedAt: p.clock.Now()}
	if !p.handler.HandleSnapshot(snap) {
		p.logger.Debug("handler stopped polling", zap.Uint64("seq", seq))
		p.stopLocked()
	}
}
