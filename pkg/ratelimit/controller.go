package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Mode is the controller's pacing mode.
type Mode string

const (
	// ModeNormal paces scrolling with the dynamic delay only.
	ModeNormal Mode = "normal"
	// ModeCooldown waits out a soft pacing pause; the session resumes on
	// its own.
	ModeCooldown Mode = "cooldown"
	// ModePaused is a hard provider rate limit; only a manual resume
	// clears it.
	ModePaused Mode = "paused"
)

// Quota is one quota observation taken from a captured response's rate
// limit headers. Values are the raw header strings and may be empty or
// garbage; parsing is the controller's problem.
type Quota struct {
	Limit     string
	Remaining string
	Reset     string
}

// Update reports the cooldown triggers raised by one observation. The
// caller decides whether to act on them.
type Update struct {
	BatchCooldown        bool
	LowRemainingCooldown bool
}

// Plan describes one cooldown the caller is about to enter.
type Plan struct {
	Duration time.Duration
	Reason   string
}

// Config holds the pacing constants. Defaults mirror the provider's
// observed behaviour.
type Config struct {
	BatchSize                  int
	LowRemainingThreshold      int
	ElevatedRemainingThreshold int
	BaseDelay                  time.Duration
	ElevatedDelay              time.Duration
	MaxDelay                   time.Duration
	CooldownDuration           time.Duration
	ResetBuffer                time.Duration
}

// DefaultConfig returns the standard pacing constants.
func DefaultConfig() Config {
	return Config{
		BatchSize:                  20,
		LowRemainingThreshold:      10,
		ElevatedRemainingThreshold: 20,
		BaseDelay:                  3 * time.Second,
		ElevatedDelay:              5 * time.Second,
		MaxDelay:                   8 * time.Second,
		CooldownDuration:           3 * time.Minute,
		ResetBuffer:                10 * time.Second,
	}
}

// unknown marks a counter never observed in any response.
const unknown = -1

// Controller tracks observed API quota and derives pacing decisions. It
// never sleeps and never drives the session lifecycle; the orchestrator
// reads its decisions and acts on them.
//
// All methods are safe for concurrent use.
type Controller struct {
	mu sync.Mutex

	cfg Config

	mode          Mode
	requestCount  int
	retryCount    int
	limit         int
	remaining     int
	resetAt       time.Time
	lastRequestAt time.Time
	delay         time.Duration
}

// State is a copy of the controller's current state.
type State struct {
	Mode          Mode
	RequestCount  int
	RetryCount    int
	Limit         int
	Remaining     int
	ResetAt       time.Time
	LastRequestAt time.Time
	Delay         time.Duration
}

// NewController creates a controller with the given pacing constants.
// Zero-valued config fields fall back to their defaults.
func NewController(cfg Config) *Controller {
	def := DefaultConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = def.BatchSize
	}
	if cfg.LowRemainingThreshold <= 0 {
		cfg.LowRemainingThreshold = def.LowRemainingThreshold
	}
	if cfg.ElevatedRemainingThreshold <= 0 {
		cfg.ElevatedRemainingThreshold = def.ElevatedRemainingThreshold
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = def.BaseDelay
	}
	if cfg.ElevatedDelay <= 0 {
		cfg.ElevatedDelay = def.ElevatedDelay
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = def.MaxDelay
	}
	if cfg.CooldownDuration <= 0 {
		cfg.CooldownDuration = def.CooldownDuration
	}
	if cfg.ResetBuffer <= 0 {
		cfg.ResetBuffer = def.ResetBuffer
	}

	return &Controller{
		cfg:       cfg,
		mode:      ModeNormal,
		limit:     unknown,
		remaining: unknown,
		delay:     cfg.BaseDelay,
	}
}

// ApplyUpdate folds one quota observation into the controller state and
// reports which cooldown triggers it raised.
//
// A nil observation is a no-op. An absent or unparsable header value
// keeps the prior state for that field. Even an
// all-garbage observation still counts the request and restamps the
// dynamic delay.
func (c *Controller) ApplyUpdate(q *Quota, now time.Time) Update {
	if q == nil {
		return Update{}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.requestCount++
	c.lastRequestAt = now

	if v, ok := parseCount(q.Limit); ok {
		c.limit = v
	}
	if v, ok := parseCount(q.Remaining); ok {
		c.remaining = v
	}
	if v, ok := parseEpoch(q.Reset); ok {
		c.resetAt = v
	}

	c.delay = c.delayLocked()

	return Update{
		BatchCooldown:        c.requestCount%c.cfg.BatchSize == 0,
		LowRemainingCooldown: c.remaining != unknown && c.remaining < c.cfg.LowRemainingThreshold,
	}
}

// delayLocked selects the pacing delay tier for the current remaining
// quota. c.mu must be held.
func (c *Controller) delayLocked() time.Duration {
	switch {
	case c.remaining != unknown && c.remaining < c.cfg.LowRemainingThreshold:
		return c.cfg.MaxDelay
	case c.remaining != unknown && c.remaining < c.cfg.ElevatedRemainingThreshold:
		return c.cfg.ElevatedDelay
	default:
		return c.cfg.BaseDelay
	}
}

// CooldownPlan computes the duration and reason for the cooldown the
// caller is about to enter.
//
// The default plan is the fixed batch-pacing pause. When the remaining
// quota is low and the provider's reset time is known and still ahead,
// the plan instead waits out the reset window plus a safety buffer.
func (c *Controller) CooldownPlan(now time.Time) Plan {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.remaining != unknown && c.remaining < c.cfg.LowRemainingThreshold && !c.resetAt.IsZero() {
		if wait := c.resetAt.Sub(now); wait > 0 {
			return Plan{
				Duration: wait + c.cfg.ResetBuffer,
				Reason: fmt.Sprintf("rate limit low (%d remaining), waiting for reset at %s",
					c.remaining, c.resetAt.Format("15:04:05")),
			}
		}
	}

	return Plan{
		Duration: c.cfg.CooldownDuration,
		Reason:   fmt.Sprintf("batch pacing (%d requests)", c.requestCount),
	}
}

// BeginCooldown switches the controller into cooldown mode.
func (c *Controller) BeginCooldown() {
	c.setMode(ModeCooldown)
}

// EndCooldown returns the controller to normal pacing.
func (c *Controller) EndCooldown() {
	c.setMode(ModeNormal)
}

// Pause marks a hard provider rate limit.
func (c *Controller) Pause() {
	c.setMode(ModePaused)
}

// Resume clears a hard pause. Meant to be driven by an explicit operator
// action, never by a timer.
func (c *Controller) Resume() {
	c.setMode(ModeNormal)
}

func (c *Controller) setMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = m
}

// Mode returns the current pacing mode.
func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Delay returns the current dynamic pacing delay.
func (c *Controller) Delay() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delay
}

// RecordRetry counts one error-recovery attempt and returns the new count.
func (c *Controller) RecordRetry() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryCount++
	return c.retryCount
}

// ClearRetries resets the error-recovery counter after a clean step.
func (c *Controller) ClearRetries() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.retryCount = 0
}

// ResetForRun prepares the controller for a fresh session. Per-run
// counters return to their defaults while the observed limit, reset time
// and last request time survive: quota knowledge outlives a session.
func (c *Controller) ResetForRun() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mode = ModeNormal
	c.requestCount = 0
	c.retryCount = 0
	c.remaining = unknown
	c.delay = c.cfg.BaseDelay
}

// Snapshot returns a copy of the controller state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()

	return State{
		Mode:          c.mode,
		RequestCount:  c.requestCount,
		RetryCount:    c.retryCount,
		Limit:         c.limit,
		Remaining:     c.remaining,
		ResetAt:       c.resetAt,
		LastRequestAt: c.lastRequestAt,
		Delay:         c.delay,
	}
}

// parseCount reads a non-negative integer header value.
func parseCount(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}

// parseEpoch reads an epoch-seconds header value.
func parseEpoch(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return time.Time{}, false
	}
	return time.Unix(v, 0), true
}
