package exporter

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"xscraper/pkg/checkpoint"
	"xscraper/pkg/config"
	errs "xscraper/pkg/errors"
	"xscraper/pkg/logger"
	"xscraper/pkg/merge"
	"xscraper/pkg/ratelimit"
	"xscraper/pkg/session"
	"xscraper/pkg/storage"
	"xscraper/pkg/timeline"
)

const (
	// minStepDelay floors the pacing delay between scroll steps.
	minStepDelay = 3 * time.Second
	// idlePoll is how often the loop rechecks its flags while parked on a
	// prompt, a pause, or a cooldown. It bounds cancellation latency.
	idlePoll = time.Second
	// maxDriverFailures is how many consecutive scroll failures the loop
	// tolerates before declaring the browser gone.
	maxDriverFailures = 5
)

// Summary is the result of one export session.
type Summary struct {
	SessionID   string        `json:"session_id"`
	Username    string        `json:"username"`
	Captured    int           `json:"captured"`
	Rows        int           `json:"rows"`
	Duplicates  int           `json:"duplicates"`
	ScrollCount int           `json:"scroll_count"`
	Status      string        `json:"status"`
	Elapsed     time.Duration `json:"elapsed"`
}

// Deps bundles the collaborators an Engine drives. Driver and Feed are
// required; everything else falls back to a working default. A nil Cache
// disables resume, a nil Sink disables ExportNow.
type Deps struct {
	Driver     PageDriver
	Feed       Feed
	Presenter  Presenter
	Sink       Sink
	Clock      Clock
	Controller *ratelimit.Controller
	Cache      *checkpoint.Cache
	// ExpectedURL anchors the route watch. Empty selects the user's
	// profile timeline.
	ExpectedURL string
}

// Engine owns one export session: it drives the page, drains the capture
// feed, paces against the observed quota, and persists progress. A single
// goroutine runs the loop; other goroutines interact through the control
// methods only.
type Engine struct {
	cfg        *config.Config
	driver     PageDriver
	feed       Feed
	presenter  Presenter
	sink       Sink
	clock      Clock
	controller *ratelimit.Controller
	cache      *checkpoint.Cache
	logger     logger.Logger

	username    string
	expectedURL string

	maxScrolls     int
	stableLimit    int
	idleThreshold  time.Duration
	errorRetryWait time.Duration

	// mu guards the session state shared with SaveProgress and ExportNow.
	mu          sync.Mutex
	fsm         session.Snapshot
	sessionID   string
	startedAt   time.Time
	scrollCount int
	captured    int
	rows        []timeline.Item
	previous    []timeline.Item
	cursor      string
	lastExtent  int64
	stableStrk  int

	cancelled      atomic.Bool
	skipCooldown   atomic.Bool
	pendingConfirm atomic.Bool
	routeNotified  atomic.Bool
	discard        atomic.Bool

	// Cooldown bookkeeping, touched by the loop goroutine only.
	cooldownPlan    ratelimit.Plan
	cooldownStarted time.Time
}

// New creates an export engine for one user. The driver must already be
// parked on that user's timeline.
func New(cfg *config.Config, username string, deps Deps) (*Engine, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if deps.Driver == nil {
		return nil, errs.New(errs.ErrorTypeConfig, "exporter requires a page driver")
	}
	if deps.Feed == nil {
		return nil, errs.New(errs.ErrorTypeConfig, "exporter requires a capture feed")
	}
	normalized := timeline.NormalizeUsername(username)
	if normalized == "" {
		return nil, errs.New(errs.ErrorTypeConfig, "exporter requires a username")
	}

	presenter := deps.Presenter
	if presenter == nil {
		presenter = NopPresenter{}
	}
	clock := deps.Clock
	if clock == nil {
		clock = systemClock{}
	}
	controller := deps.Controller
	if controller == nil {
		controller = ratelimit.NewController(controllerConfig(cfg.RateLimit))
	}
	expected := deps.ExpectedURL
	if expected == "" {
		expected = timeline.ProfileURL(normalized)
	}

	def := config.DefaultConfig()
	maxScrolls := cfg.Session.MaxScrolls
	if maxScrolls <= 0 {
		maxScrolls = def.Session.MaxScrolls
	}
	stableLimit := cfg.Session.StableExtentLimit
	if stableLimit <= 0 {
		stableLimit = def.Session.StableExtentLimit
	}
	idleThreshold := cfg.Session.IdleThreshold
	if idleThreshold <= 0 {
		idleThreshold = def.Session.IdleThreshold
	}
	errorRetryWait := cfg.Session.ErrorRetryWait
	if errorRetryWait <= 0 {
		errorRetryWait = def.Session.ErrorRetryWait
	}

	return &Engine{
		cfg:            cfg,
		driver:         deps.Driver,
		feed:           deps.Feed,
		presenter:      presenter,
		sink:           deps.Sink,
		clock:          clock,
		controller:     controller,
		cache:          deps.Cache,
		logger:         logger.GetLogger(),
		username:       normalized,
		expectedURL:    expected,
		maxScrolls:     maxScrolls,
		stableLimit:    stableLimit,
		idleThreshold:  idleThreshold,
		errorRetryWait: errorRetryWait,
		fsm:            session.NewSnapshot(clock.Now()),
	}, nil
}

// controllerConfig maps the user-facing rate limit settings onto the
// controller's pacing constants.
func controllerConfig(rl config.RateLimitConfig) ratelimit.Config {
	return ratelimit.Config{
		BatchSize:                  rl.BatchSize,
		LowRemainingThreshold:      rl.LowRemainingThreshold,
		ElevatedRemainingThreshold: rl.ElevatedRemainingThreshold,
		BaseDelay:                  rl.BaseDelay,
		ElevatedDelay:              rl.ElevatedDelay,
		MaxDelay:                   rl.MaxDelay,
		CooldownDuration:           rl.CooldownDuration,
		ResetBuffer:                rl.ResetBuffer,
	}
}

// Run drives the export session until the timeline is exhausted, the
// operator stops it, or the browser becomes unresponsive. It always returns
// a summary; the error is non-nil only for the unresponsive-browser case.
//
// Run restores saved progress when resume is enabled, saves progress on the
// way out unless DiscardProgress was requested, and leaves artifact writing
// to ExportNow.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	now := e.clock.Now()
	e.mu.Lock()
	e.sessionID = uuid.New().String()
	e.startedAt = now
	e.rows = nil
	e.previous = nil
	e.cursor = ""
	e.scrollCount = 0
	e.captured = 0
	e.lastExtent = 0
	e.stableStrk = 0
	sessionID := e.sessionID
	e.mu.Unlock()

	e.cancelled.Store(false)
	e.skipCooldown.Store(false)
	e.pendingConfirm.Store(false)
	e.routeNotified.Store(false)
	e.discard.Store(false)

	e.controller.ResetForRun()
	e.applyAction(session.ActionStart)
	e.restoreProgress(ctx)

	e.presenter.SessionStarted(sessionID, e.username)
	e.logger.InfoWithFields("Export session started", map[string]interface{}{
		"session_id":  sessionID,
		"username":    e.username,
		"max_scrolls": e.maxScrolls,
	})

	loopErr := e.loop(ctx)

	// The final save must land even when the run context was cancelled,
	// otherwise a timed-out scheduled run would lose its progress.
	exitCtx := context.WithoutCancel(ctx)
	if e.discard.Load() {
		if e.cache != nil {
			e.cache.Clear(exitCtx)
		}
		e.logger.InfoWithFields("Progress discarded on request", map[string]interface{}{
			"username": e.username,
		})
	} else {
		e.saveProgress(exitCtx)
	}

	summary := e.buildSummary()
	e.presenter.SessionSummary(summary)
	e.logger.InfoWithFields("Export session finished", map[string]interface{}{
		"session_id":   summary.SessionID,
		"username":     summary.Username,
		"status":       summary.Status,
		"captured":     summary.Captured,
		"rows":         summary.Rows,
		"duplicates":   summary.Duplicates,
		"scroll_count": summary.ScrollCount,
		"elapsed":      summary.Elapsed.String(),
	})
	return summary, loopErr
}

// restoreProgress loads the saved snapshot for this user, if resume is on
// and one exists, and seeds the session with its rows and cursor.
func (e *Engine) restoreProgress(ctx context.Context) {
	if e.cache == nil || !e.cfg.Resume.Enabled {
		return
	}
	snap := e.cache.Restore(ctx, e.username, e.cfg.Resume.MaxAge)
	if snap == nil {
		return
	}
	e.mu.Lock()
	e.previous = snap.Tweets
	if snap.Meta != nil {
		e.cursor = snap.Meta.Cursor
	}
	e.mu.Unlock()
	e.logger.InfoWithFields("Continuing from saved progress", map[string]interface{}{
		"username": e.username,
		"rows":     len(snap.Tweets),
	})
}

// loop is the single driving loop. Each pass settles the operator-facing
// states first (cancel, prompt, route, pause, cooldown) and only then takes
// a capture step.
func (e *Engine) loop(ctx context.Context) error {
	driverFailures := 0
	for {
		if e.checkCancelled(ctx) {
			return nil
		}
		if e.currentFSM().Terminal() {
			return nil
		}

		if e.pendingConfirm.Load() {
			e.clock.Sleep(ctx, idlePoll)
			continue
		}

		if e.watchRoute(ctx) {
			continue
		}

		switch e.controller.Mode() {
		case ratelimit.ModePaused:
			e.clock.Sleep(ctx, idlePoll)
			continue
		case ratelimit.ModeCooldown:
			e.waitOutCooldown(ctx)
			continue
		}

		done, err := e.captureStep(ctx)
		if err != nil {
			driverFailures++
			if driverFailures >= maxDriverFailures {
				e.logger.ErrorWithFields("Page driver unresponsive, stopping session", map[string]interface{}{
					"username": e.username,
					"failures": driverFailures,
				})
				e.applyAction(session.ActionCancel)
				return errs.NewNavigation("page driver unresponsive", err)
			}
			e.clock.Sleep(ctx, idlePoll)
			continue
		}
		driverFailures = 0
		if done {
			return nil
		}
	}
}

// checkCancelled folds an operator cancel or a dead context into the
// lifecycle exactly once.
func (e *Engine) checkCancelled(ctx context.Context) bool {
	if !e.cancelled.Load() && ctx.Err() == nil {
		return false
	}
	if e.currentFSM().Status != session.StatusCancelled {
		e.applyAction(session.ActionCancel)
		e.logger.InfoWithFields("Session cancelled", map[string]interface{}{
			"username": e.username,
		})
	}
	return true
}

// watchRoute pauses capture when the page has left the timeline. The
// operator is told once and the loop parks until they navigate back and
// acknowledge.
func (e *Engine) watchRoute(ctx context.Context) bool {
	current, err := e.driver.CurrentURL(ctx)
	if err != nil || current == "" {
		return false
	}
	if e.onExpectedRoute(current) {
		return false
	}
	if e.routeNotified.CompareAndSwap(false, true) {
		e.pendingConfirm.Store(true)
		e.presenter.RouteChanged(current)
		e.logger.WarnWithFields("Page left the timeline, pausing capture", map[string]interface{}{
			"username":    e.username,
			"current_url": current,
		})
	}
	e.clock.Sleep(ctx, idlePoll)
	return true
}

// onExpectedRoute reports whether current is still on the watched timeline.
// The with-replies tab and query strings count; a longer handle that merely
// shares a prefix does not.
func (e *Engine) onExpectedRoute(current string) bool {
	if !strings.HasPrefix(current, e.expectedURL) {
		return false
	}
	rest := current[len(e.expectedURL):]
	return rest == "" || rest[0] == '/' || rest[0] == '?'
}

// waitOutCooldown sleeps through the active cooldown in one second slices
// so cancellation and skips stay responsive.
func (e *Engine) waitOutCooldown(ctx context.Context) {
	plan := e.cooldownPlan
	for {
		if e.cancelled.Load() || ctx.Err() != nil {
			return
		}
		if e.skipCooldown.Load() {
			e.logger.InfoWithFields("Cooldown skipped by operator", map[string]interface{}{
				"username": e.username,
			})
			break
		}
		if e.clock.Now().Sub(e.cooldownStarted) >= plan.Duration {
			break
		}
		e.clock.Sleep(ctx, idlePoll)
	}
	e.skipCooldown.Store(false)
	e.controller.EndCooldown()
	e.applyAction(session.ActionExitCooldown)
	e.resetStability()
	e.presenter.CooldownEnded()
	e.logger.InfoWithFields("Cooldown finished, resuming capture", map[string]interface{}{
		"username": e.username,
	})
}

// captureStep performs one scroll-wait-drain pass. It reports whether the
// session reached its natural end. A non-nil error means the scroll itself
// failed and the caller should count it against the driver.
func (e *Engine) captureStep(ctx context.Context) (bool, error) {
	if err := e.driver.TriggerScrollStep(ctx); err != nil {
		e.logger.WithError(err).WithField("username", e.username).Warn("Scroll step failed")
		return false, err
	}
	e.mu.Lock()
	e.scrollCount++
	scrolls := e.scrollCount
	e.mu.Unlock()

	delay := e.controller.Delay()
	if delay < minStepDelay {
		delay = minStepDelay
	}
	e.clock.Sleep(ctx, delay)

	if visible, err := e.driver.ErrorStateVisible(ctx); err == nil && visible {
		e.recoverFromErrorCard(ctx)
		return false, nil
	}
	e.controller.ClearRetries()

	if paused := e.drainFeed(); paused {
		return false, nil
	}

	e.observeExtent(ctx)

	e.mu.Lock()
	captured := e.captured
	rowCount := len(e.rows)
	streak := e.stableStrk
	e.mu.Unlock()

	e.presenter.Progress(scrolls, captured, rowCount)

	params := session.DoneParams{
		ResponsesCaptured: captured,
		ScrollCount:       scrolls,
		HeightStable:      streak > 0,
		IdleThreshold:     e.idleThreshold,
	}
	if session.ShouldPromptLooksDone(e.currentFSM(), params, e.clock.Now()) {
		e.pendingConfirm.Store(true)
		e.applyAction(session.ActionMarkPendingDone)
		e.presenter.LooksDonePrompt(rowCount)
		e.logger.InfoWithFields("Timeline looks finished, asking the operator", map[string]interface{}{
			"username":     e.username,
			"rows":         rowCount,
			"scroll_count": scrolls,
		})
		return false, nil
	}

	if streak > e.stableLimit || scrolls >= e.maxScrolls {
		e.applyAction(session.ActionComplete)
		e.logger.InfoWithFields("Timeline exhausted, completing session", map[string]interface{}{
			"username":      e.username,
			"scroll_count":  scrolls,
			"stable_streak": streak,
		})
		return true, nil
	}
	return false, nil
}

// recoverFromErrorCard clicks the provider's retry card and gives the page
// a moment to reload the feed. Recovery is automatic, the operator is never
// involved.
func (e *Engine) recoverFromErrorCard(ctx context.Context) {
	attempt := e.controller.RecordRetry()
	e.logger.WarnWithFields("Provider error card detected, clicking retry", map[string]interface{}{
		"username": e.username,
		"attempt":  attempt,
	})
	if err := e.driver.ClickRetry(ctx); err != nil {
		e.logger.WithError(err).WithField("username", e.username).Warn("Retry click failed")
	}
	e.clock.Sleep(ctx, e.errorRetryWait)
	e.resetStability()
}

// drainFeed processes every response waiting in the capture buffer, in
// arrival order. It reports whether a hard rate limit paused the session,
// in which case the rest of the batch is dropped.
func (e *Engine) drainFeed() bool {
	responses := e.feed.Drain()
	for i := range responses {
		resp := &responses[i]

		e.mu.Lock()
		e.captured++
		e.mu.Unlock()

		if resp.RateLimited() {
			e.applyAction(session.ActionPauseRateLimit)
			e.controller.Pause()
			e.presenter.RateLimitPaused()
			e.logger.WarnWithFields("Hard rate limit hit, session paused until manual resume", map[string]interface{}{
				"username": e.username,
				"url":      resp.URL,
			})
			return true
		}

		page, err := timeline.Decode(resp.Body, timeline.BuildItem)
		if err != nil {
			e.logger.WithError(err).WithFields(map[string]interface{}{
				"username": e.username,
				"url":      resp.URL,
			}).Warn("Skipping undecodable timeline response")
			continue
		}

		e.mu.Lock()
		e.rows = append(e.rows, page.Items...)
		if page.NextCursor != "" {
			e.cursor = page.NextCursor
		}
		e.mu.Unlock()

		// Data arrival is what counts as activity; scroll gestures alone
		// leave the idle window running.
		e.applyAction(session.ActionActivity)

		update := e.controller.ApplyUpdate(&resp.Quota, e.clock.Now())
		if update.BatchCooldown || update.LowRemainingCooldown {
			e.beginCooldown()
		}
	}
	return false
}

// beginCooldown plans and enters one cooldown. A second trigger inside the
// same batch is a no-op, the first plan stands.
func (e *Engine) beginCooldown() {
	if e.controller.Mode() == ratelimit.ModeCooldown {
		return
	}
	now := e.clock.Now()
	plan := e.controller.CooldownPlan(now)
	e.cooldownPlan = plan
	e.cooldownStarted = now
	e.applyAction(session.ActionEnterCooldown)
	e.controller.BeginCooldown()
	e.presenter.CooldownStarted(plan.Reason, plan.Duration)
	e.logger.InfoWithFields("Entering cooldown", map[string]interface{}{
		"username": e.username,
		"reason":   plan.Reason,
		"duration": plan.Duration.String(),
	})
}

// observeExtent polls the page height and tracks how long it has been
// static. A changed or unreadable height resets the streak.
func (e *Engine) observeExtent(ctx context.Context) {
	extent, err := e.driver.CurrentExtent(ctx)
	if err != nil {
		e.logger.WithError(err).WithField("username", e.username).Debug("Extent poll failed")
		return
	}
	e.mu.Lock()
	if extent > 0 && extent == e.lastExtent {
		e.stableStrk++
	} else {
		e.stableStrk = 0
	}
	e.lastExtent = extent
	e.mu.Unlock()
}

func (e *Engine) resetStability() {
	e.mu.Lock()
	e.stableStrk = 0
	e.lastExtent = 0
	e.mu.Unlock()
}

func (e *Engine) applyAction(a session.Action) {
	now := e.clock.Now()
	e.mu.Lock()
	e.fsm = session.Reduce(e.fsm, a, now)
	e.mu.Unlock()
}

func (e *Engine) currentFSM() session.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fsm
}

// Cancel requests a cooperative stop. The loop notices within about a
// second, finishes its in-flight step, saves progress, and exits.
func (e *Engine) Cancel() {
	e.cancelled.Store(true)
}

// SkipCooldown ends the active cooldown early. Issued outside a cooldown it
// applies to the next one.
func (e *Engine) SkipCooldown() {
	e.skipCooldown.Store(true)
}

// ResumeManual restarts capture after a hard rate limit pause. Outside a
// pause it does nothing.
func (e *Engine) ResumeManual() {
	if e.controller.Mode() != ratelimit.ModePaused {
		return
	}
	e.controller.Resume()
	e.applyAction(session.ActionResumeManual)
	e.logger.InfoWithFields("Manual resume after rate limit pause", map[string]interface{}{
		"username": e.username,
	})
}

// ConfirmDone accepts the looks-done prompt. The session completes and the
// loop exits on its next poll.
func (e *Engine) ConfirmDone() {
	e.applyAction(session.ActionComplete)
	e.pendingConfirm.Store(false)
}

// KeepScrolling declines the looks-done prompt. Stability counters restart
// so the natural-end check begins over.
func (e *Engine) KeepScrolling() {
	e.resetStability()
	e.applyAction(session.ActionResumeManual)
	e.pendingConfirm.Store(false)
}

// AcknowledgeRoute reports that the operator navigated back to the timeline
// after a route change notice. Capture resumes on the next pass.
func (e *Engine) AcknowledgeRoute() {
	e.applyAction(session.ActionActivity)
	e.routeNotified.Store(false)
	e.pendingConfirm.Store(false)
}

// DiscardProgress marks saved progress for removal: the final save is
// skipped and any stored snapshot is cleared when the run ends. Meant to
// pair with Cancel.
func (e *Engine) DiscardProgress() {
	e.discard.Store(true)
}

// SaveProgress persists current progress on demand without stopping the
// session. It reports whether a storage tier accepted the write.
func (e *Engine) SaveProgress(ctx context.Context) bool {
	return e.saveProgress(ctx)
}

func (e *Engine) saveProgress(ctx context.Context) bool {
	if e.cache == nil || !e.cfg.Resume.Enabled {
		return false
	}

	e.mu.Lock()
	rows := append([]timeline.Item(nil), e.rows...)
	previous := e.previous
	meta := &checkpoint.Meta{
		SessionID:         e.sessionID,
		Cursor:            e.cursor,
		ScrollCount:       e.scrollCount,
		CapturedResponses: e.captured,
	}
	e.mu.Unlock()

	merged, _ := merge.Merge(rows, previous)
	if len(merged) == 0 {
		return false
	}

	saved := e.cache.Save(ctx, &checkpoint.Snapshot{
		Username: e.username,
		Meta:     meta,
		Tweets:   merged,
	})
	if saved {
		e.logger.InfoWithFields("Progress saved", map[string]interface{}{
			"username": e.username,
			"rows":     len(merged),
		})
	}
	return saved
}

// ExportNow merges and writes the rows collected so far without waiting for
// the session to finish. It returns the artifact path.
func (e *Engine) ExportNow() (string, error) {
	if e.sink == nil {
		return "", errs.New(errs.ErrorTypeConfig, "no export sink configured")
	}

	e.mu.Lock()
	rows := append([]timeline.Item(nil), e.rows...)
	previous := e.previous
	e.mu.Unlock()

	merged, _ := merge.Merge(rows, previous)

	format := e.cfg.Output.Format
	data, mime, err := storage.RenderRows(merged, format)
	if err != nil {
		return "", err
	}
	name := storage.FileName(e.cfg.Output.FileNamePattern, e.username, format, e.clock.Now())
	path, err := e.sink.Write(name, data, mime)
	if err != nil {
		return "", err
	}
	e.logger.InfoWithFields("Export artifact produced", map[string]interface{}{
		"username": e.username,
		"path":     path,
		"rows":     len(merged),
	})
	return path, nil
}

func (e *Engine) buildSummary() *Summary {
	now := e.clock.Now()

	e.mu.Lock()
	rows := append([]timeline.Item(nil), e.rows...)
	previous := e.previous
	fsm := e.fsm
	sessionID := e.sessionID
	startedAt := e.startedAt
	captured := e.captured
	scrolls := e.scrollCount
	e.mu.Unlock()

	merged, info := merge.Merge(rows, previous)
	duplicates := 0
	if info != nil {
		duplicates = info.DuplicatesRemoved
	}

	return &Summary{
		SessionID:   sessionID,
		Username:    e.username,
		Captured:    captured,
		Rows:        len(merged),
		Duplicates:  duplicates,
		ScrollCount: scrolls,
		Status:      string(fsm.Status),
		Elapsed:     now.Sub(startedAt),
	}
}
