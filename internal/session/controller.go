// Package session implements the crawl session lifecycle: it turns user
// commands into engine calls, drives the status poller and feeds polled
// snapshots into the results pipeline.
//
// Commands are serialized through a busy gate; a command arriving while
// another is unresolved fails with crawler.ErrCommandInFlight. The poller
// calls back into the controller with its own lock held, so commands never
// hold the controller lock while calling the poller.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-console/internal/clock/system"
	"github.com/JakeFAU/crawl-console/internal/crawler"
	uuidgen "github.com/JakeFAU/crawl-console/internal/id/uuid"
	"github.com/JakeFAU/crawl-console/internal/pipeline"
	"github.com/JakeFAU/crawl-console/internal/poller"
	"github.com/JakeFAU/crawl-console/internal/progress"
	"github.com/JakeFAU/crawl-console/internal/settings"
	"github.com/JakeFAU/crawl-console/internal/stats"
)

// Defaults for the controller's timing knobs.
const (
	DefaultConfirmDelay = 100 * time.Millisecond
	DefaultResetTimeout = 5 * time.Second
)

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithClock sets the clock.
func WithClock(clock crawler.Clock) Option {
	return func(c *Controller) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithIDGenerator sets the session ID generator.
func WithIDGenerator(ids crawler.IDGenerator) Option {
	return func(c *Controller) {
		if ids != nil {
			c.ids = ids
		}
	}
}

// WithEmitter sets where progress events go.
func WithEmitter(emitter progress.Emitter) Option {
	return func(c *Controller) {
		if emitter != nil {
			c.emitter = emitter
		}
	}
}

// WithSettingsStore sets the persisted settings store.
func WithSettingsStore(store settings.Store) Option {
	return func(c *Controller) {
		if store != nil {
			c.settingsStore = store
		}
	}
}

// WithConfirmDelay sets the delay of the confirmation poll after a pause.
func WithConfirmDelay(d time.Duration) Option {
	return func(c *Controller) {
		if d >= 0 {
			c.confirmDelay = d
		}
	}
}

// WithResetTimeout bounds the background terminate issued by Reset.
func WithResetTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.resetTimeout = d
		}
	}
}

// WithFetchTimeout bounds each poll cycle.
func WithFetchTimeout(d time.Duration) Option {
	return func(c *Controller) {
		c.fetchTimeout = d
	}
}

// Controller owns the session state.
type Controller struct {
	engine        crawler.Engine
	pipeline      *pipeline.Pipeline
	poller        *poller.Poller
	settingsStore settings.Store
	emitter       progress.Emitter
	logger        *zap.Logger
	clock         crawler.Clock
	ids           crawler.IDGenerator
	confirmDelay  time.Duration
	resetTimeout  time.Duration
	fetchTimeout  time.Duration

	busy atomic.Bool
	bg   sync.WaitGroup

	mu           sync.Mutex
	state        State
	sessionID    string
	config       crawler.CrawlConfig
	prefs        settings.Settings
	startedAt    time.Time
	lastDuration time.Duration
	status       *crawler.Status
	lastPollAt   time.Time
	lastPollErr  error
	stopping     bool
	done         chan struct{}
}

// New builds an idle controller for engine.
func New(engine crawler.Engine, opts ...Option) *Controller {
	c := &Controller{
		engine:        engine,
		settingsStore: settings.NewMemoryStore(),
		emitter:       progress.NopEmitter{},
		logger:        zap.NewNop(),
		clock:         system.New(),
		ids:           uuidgen.NewUUIDGenerator(),
		confirmDelay:  DefaultConfirmDelay,
		resetTimeout:  DefaultResetTimeout,
		state:         StateIdle,
		config:        crawler.DefaultCrawlConfig(),
		prefs:         settings.Defaults(),
		done:          closedChan(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.Named("session")
	c.pipeline = pipeline.New(c.prefs.ResultsPerPage)
	c.poller = poller.New(engine, c,
		poller.WithLogger(c.logger),
		poller.WithClock(c.clock),
		poller.WithFetchTimeout(c.fetchTimeout),
	)
	return c
}

// Pipeline exposes the results pipeline for views.
func (c *Controller) Pipeline() *pipeline.Pipeline {
	return c.pipeline
}

// Busy reports whether a command round trip is unresolved.
func (c *Controller) Busy() bool {
	return c.busy.Load()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Snapshot returns a read-only view of the controller.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		State:          c.state,
		Busy:           c.busy.Load(),
		SessionID:      c.sessionID,
		Config:         c.config,
		LastDurationMs: c.lastDuration.Milliseconds(),
	}
	if !c.startedAt.IsZero() {
		started := c.startedAt
		snap.StartedAt = &started
	}
	if c.status != nil {
		status := *c.status
		snap.ServerStatus = &status
		snap.ProgressPercent = status.ProgressPercent()
	}
	if !c.lastPollAt.IsZero() {
		at := c.lastPollAt
		snap.LastPollAt = &at
	}
	if c.lastPollErr != nil {
		snap.LastPollError = c.lastPollErr.Error()
	}
	return snap
}

// Settings returns the settings in effect.
func (c *Controller) Settings() settings.Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.prefs
}

// Start validates cfg and starts a fresh session, or resumes a paused one.
// A fresh start clears accumulated results first.
func (c *Controller) Start(ctx context.Context, cfg crawler.CrawlConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if !c.acquire() {
		return crawler.ErrCommandInFlight
	}
	defer c.release()

	c.mu.Lock()
	from := c.state
	if from == StateRunning {
		c.mu.Unlock()
		return &crawler.TransitionError{From: string(from), Command: "start"}
	}
	resume := from == StatePaused
	interval := time.Duration(c.prefs.AutoRefreshSeconds) * time.Second
	sessionID := c.sessionID
	if !resume {
		c.startedAt = c.clock.Now()
		c.lastDuration = 0
		c.status = nil
		c.lastPollErr = nil
	}
	c.mu.Unlock()

	if !resume {
		id, err := c.ids.NewID()
		if err != nil {
			return fmt.Errorf("new session id: %w", err)
		}
		sessionID = id
		c.pipeline.Ingest(nil)
	}

	if err := c.engine.Start(ctx, cfg); err != nil {
		c.logger.Warn("start command failed", zap.Bool("resume", resume), zap.Error(err))
		return fmt.Errorf("start crawl: %w", err)
	}

	c.mu.Lock()
	c.state = StateRunning
	c.sessionID = sessionID
	c.config = cfg
	stage := progress.StageSessionResume
	if !resume {
		stage = progress.StageSessionStart
		c.done = make(chan struct{})
	}
	c.emitLocked(stage, func(evt *progress.Event) {
		evt.SeedURL = cfg.SeedURL
	})
	c.mu.Unlock()

	c.poller.Start(interval)
	c.logger.Info("session running",
		zap.String("session_id", sessionID),
		zap.String("seed_url", cfg.SeedURL),
		zap.Bool("resume", resume),
		zap.Duration("interval", interval),
	)
	return nil
}

// Pause stops a running crawl and schedules one confirmation poll.
func (c *Controller) Pause(ctx context.Context) error {
	if !c.acquire() {
		return crawler.ErrCommandInFlight
	}
	defer c.release()

	if err := c.beginStop("pause", StateRunning); err != nil {
		return err
	}
	defer c.endStop()
	if err := c.engine.Stop(ctx); err != nil {
		c.logger.Warn("pause command failed", zap.Error(err))
		return fmt.Errorf("pause crawl: %w", err)
	}

	c.mu.Lock()
	c.state = StatePaused
	c.emitLocked(progress.StageSessionPause, nil)
	c.mu.Unlock()

	c.poller.Stop()
	c.poller.PollAfter(c.confirmDelay)
	c.logger.Info("session paused")
	return nil
}

// Terminate discards the crawl on the engine and stops polling.
func (c *Controller) Terminate(ctx context.Context) error {
	if !c.acquire() {
		return crawler.ErrCommandInFlight
	}
	defer c.release()

	if err := c.beginStop("terminate", StateRunning, StatePaused); err != nil {
		return err
	}
	defer c.endStop()
	if err := c.engine.Terminate(ctx); err != nil {
		c.logger.Warn("terminate command failed", zap.Error(err))
		return fmt.Errorf("terminate crawl: %w", err)
	}

	c.poller.Stop()

	c.mu.Lock()
	c.state = StateTerminated
	c.lastDuration = c.elapsedLocked()
	c.emitLocked(progress.StageSessionTerminate, nil)
	c.closeDoneLocked()
	sessionID := c.sessionID
	c.mu.Unlock()

	c.logger.Info("session terminated", zap.String("session_id", sessionID))
	return nil
}

// Reset returns the controller to Idle with default configuration. A
// terminate is fired in the background; its failure is only logged.
func (c *Controller) Reset(context.Context) error {
	if !c.acquire() {
		return crawler.ErrCommandInFlight
	}
	defer c.release()
	c.reset()
	return nil
}

// ClearDatabase wipes the engine's persisted results, then resets.
func (c *Controller) ClearDatabase(ctx context.Context) error {
	if !c.acquire() {
		return crawler.ErrCommandInFlight
	}
	defer c.release()

	if err := c.engine.ClearDB(ctx); err != nil {
		c.logger.Warn("clear-db command failed", zap.Error(err))
		return fmt.Errorf("clear database: %w", err)
	}
	c.reset()
	return nil
}

// LoadPersisted ingests the engine's persisted results. It is rejected while
// a session is running because the next poll would replace them.
func (c *Controller) LoadPersisted(ctx context.Context) (int, error) {
	if !c.acquire() {
		return 0, crawler.ErrCommandInFlight
	}
	defer c.release()

	if from := c.State(); from == StateRunning {
		return 0, &crawler.TransitionError{From: string(from), Command: "load persisted results for"}
	}
	results, err := c.engine.DBResults(ctx)
	if err != nil {
		return 0, fmt.Errorf("load persisted results: %w", err)
	}
	c.pipeline.Ingest(results)
	c.logger.Info("persisted results loaded", zap.Int("results", len(results)))
	return len(results), nil
}

// LoadSettings reads the persisted settings and applies them.
func (c *Controller) LoadSettings(ctx context.Context) (settings.Settings, error) {
	s, err := c.settingsStore.Load(ctx)
	if err != nil {
		return settings.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	c.applySettings(s)
	return s, nil
}

// SaveSettings persists s and applies the page size right away. The refresh
// interval takes effect on the next start or resume.
func (c *Controller) SaveSettings(ctx context.Context, s settings.Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	if err := c.settingsStore.Save(ctx, s); err != nil {
		return fmt.Errorf("save settings: %w", err)
	}
	c.applySettings(s)
	return nil
}

func (c *Controller) applySettings(s settings.Settings) {
	if s.ResultsPerPage > 0 {
		// Validated above or by Decode; a failure here is impossible.
		_ = c.pipeline.SetPageSize(s.ResultsPerPage)
	}
	c.mu.Lock()
	c.prefs = s
	c.mu.Unlock()
}

// WaitFinished blocks until the current session completes, is terminated or
// is reset. It returns immediately when no session is active.
func (c *Controller) WaitFinished(ctx context.Context) (State, error) {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	select {
	case <-done:
		return c.State(), nil
	case <-ctx.Done():
		return c.State(), ctx.Err()
	}
}

// Close stops polling and waits for background work to finish.
func (c *Controller) Close() {
	c.poller.Close()
	c.bg.Wait()
}

// HandleSnapshot implements poller.Handler.
func (c *Controller) HandleSnapshot(snap poller.Snapshot) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateRunning && c.state != StatePaused {
		return false
	}
	c.pipeline.Ingest(snap.Results)
	status := snap.Status
	c.status = &status
	c.lastPollAt = snap.FetchedAt
	c.lastPollErr = nil

	summary := stats.Compute(snap.Results)
	c.emitLocked(progress.StagePollOK, func(evt *progress.Event) {
		evt.Results = summary.Count
		evt.Success = summary.SuccessCount
		evt.Errors = summary.ErrorCount
		evt.Bytes = summary.TotalSize
	})

	// A pause or terminate in flight owns the next transition.
	if c.state != StateRunning || status.Active() || c.stopping {
		return true
	}
	c.state = StateCompleted
	c.lastDuration = c.elapsedLocked()
	c.emitLocked(progress.StageSessionComplete, func(evt *progress.Event) {
		evt.Results = summary.Count
		evt.Success = summary.SuccessCount
		evt.Errors = summary.ErrorCount
		evt.Bytes = summary.TotalSize
	})
	c.closeDoneLocked()
	c.logger.Info("session completed",
		zap.String("session_id", c.sessionID),
		zap.Int("results", summary.Count),
		zap.Duration("elapsed", c.lastDuration),
	)
	return false
}

// HandlePollError implements poller.Handler.
func (c *Controller) HandlePollError(err *crawler.PollCycleError) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPollErr = err
	c.emitLocked(progress.StagePollError, func(evt *progress.Event) {
		evt.Note = err.Error()
	})
}

func (c *Controller) reset() {
	c.poller.Stop()

	c.mu.Lock()
	prev, sessionID := c.state, c.sessionID
	if prev == StateRunning || prev == StatePaused {
		c.emitLocked(progress.StageSessionReset, nil)
	}
	c.state = StateIdle
	c.sessionID = ""
	c.config = crawler.DefaultCrawlConfig()
	c.startedAt = time.Time{}
	c.lastDuration = 0
	c.status = nil
	c.lastPollAt = time.Time{}
	c.lastPollErr = nil
	c.closeDoneLocked()
	c.mu.Unlock()

	c.pipeline.Clear()

	c.bg.Add(1)
	go func() {
		defer c.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), c.resetTimeout)
		defer cancel()
		if err := c.engine.Terminate(ctx); err != nil {
			c.logger.Warn("background terminate on reset failed", zap.Error(err))
		}
	}()
	c.logger.Info("session reset", zap.String("previous_state", string(prev)), zap.String("session_id", sessionID))
}

// beginStop checks the state for a pause or terminate and marks it in flight.
func (c *Controller) beginStop(command string, allowed ...State) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range allowed {
		if c.state == s {
			c.stopping = true
			return nil
		}
	}
	return &crawler.TransitionError{From: string(c.state), Command: command}
}

func (c *Controller) endStop() {
	c.mu.Lock()
	c.stopping = false
	c.mu.Unlock()
}

func (c *Controller) acquire() bool {
	return c.busy.CompareAndSwap(false, true)
}

func (c *Controller) release() {
	c.busy.Store(false)
}

func (c *Controller) elapsedLocked() time.Duration {
	if c.startedAt.IsZero() {
		return 0
	}
	return c.clock.Now().Sub(c.startedAt)
}

// emitLocked sends an event stamped with the current session; mutate fills
// stage-specific fields. Nothing is emitted outside a session.
func (c *Controller) emitLocked(stage progress.Stage, mutate func(*progress.Event)) {
	if c.sessionID == "" {
		return
	}
	evt := progress.Event{
		SessionID: c.sessionID,
		TS:        c.clock.Now(),
		Stage:     stage,
	}
	if c.status != nil {
		evt.CompletedTasks = c.status.CompletedTasks
		evt.TotalTasks = c.status.TotalTasks
		evt.Dur = c.status.Duration()
	}
	if mutate != nil {
		mutate(&evt)
	}
	c.emitter.Emit(evt)
}

func (c *Controller) closeDoneLocked() {
	select {
	case <-c.done:
	default:
		close(c.done)
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
