package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"testing"
	"time"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func quota(limit, remaining, reset string) *Quota {
	return &Quota{Limit: limit, Remaining: remaining, Reset: reset}
}

func TestNewControllerDefaults(t *testing.T) {
	c := NewController(Config{})
	s := c.Snapshot()

	if s.Mode != ModeNormal {
		t.Errorf("expected normal mode, got %s", s.Mode)
	}
	if s.Limit != unknown || s.Remaining != unknown {
		t.Errorf("expected unknown quota, got limit=%d remaining=%d", s.Limit, s.Remaining)
	}
	if s.Delay != 3*time.Second {
		t.Errorf("expected base delay 3s, got %v", s.Delay)
	}
}

func TestApplyUpdateNilIsNoOp(t *testing.T) {
	c := NewController(Config{})

	u := c.ApplyUpdate(nil, now)
	if u.BatchCooldown || u.LowRemainingCooldown {
		t.Errorf("nil observation raised triggers: %+v", u)
	}
	if s := c.Snapshot(); s.RequestCount != 0 {
		t.Errorf("nil observation counted a request: %d", s.RequestCount)
	}
}

func TestApplyUpdateCountsAndStamps(t *testing.T) {
	c := NewController(Config{})

	c.ApplyUpdate(quota("150", "120", ""), now)
	s := c.Snapshot()

	if s.RequestCount != 1 {
		t.Errorf("expected 1 request, got %d", s.RequestCount)
	}
	if !s.LastRequestAt.Equal(now) {
		t.Errorf("last request time not stamped: %v", s.LastRequestAt)
	}
	if s.Limit != 150 || s.Remaining != 120 {
		t.Errorf("quota not recorded: limit=%d remaining=%d", s.Limit, s.Remaining)
	}
}

func TestDelayTiers(t *testing.T) {
	tests := []struct {
		remaining string
		want      time.Duration
	}{
		{"9", 8 * time.Second},
		{"0", 8 * time.Second},
		{"10", 5 * time.Second},
		{"19", 5 * time.Second},
		{"20", 3 * time.Second},
		{"150", 3 * time.Second},
	}

	for _, tt := range tests {
		t.Run("remaining_"+tt.remaining, func(t *testing.T) {
			c := NewController(Config{})
			c.ApplyUpdate(quota("150", tt.remaining, ""), now)

			if got := c.Delay(); got != tt.want {
				t.Errorf("remaining %s: delay = %v, want %v", tt.remaining, got, tt.want)
			}
		})
	}
}

func TestDelayWithUnknownRemaining(t *testing.T) {
	c := NewController(Config{})
	// Headers present but unparsable: remaining stays unknown.
	c.ApplyUpdate(quota("garbage", "also garbage", "nope"), now)

	if got := c.Delay(); got != 3*time.Second {
		t.Errorf("unknown remaining must use the base delay, got %v", got)
	}
}

func TestBatchCooldownTrigger(t *testing.T) {
	c := NewController(Config{})

	for i := 1; i <= 40; i++ {
		u := c.ApplyUpdate(quota("150", "100", ""), now)
		wantBatch := i == 20 || i == 40
		if u.BatchCooldown != wantBatch {
			t.Errorf("request %d: batch trigger = %v, want %v", i, u.BatchCooldown, wantBatch)
		}
	}
}

func TestLowRemainingCooldownTrigger(t *testing.T) {
	tests := []struct {
		remaining string
		want      bool
	}{
		{"9", true},
		{"0", true},
		{"10", false},
		{"100", false},
		{"not-a-number", false}, // stays unknown, never low
	}

	for _, tt := range tests {
		t.Run("remaining_"+tt.remaining, func(t *testing.T) {
			c := NewController(Config{})
			u := c.ApplyUpdate(quota("150", tt.remaining, ""), now)
			if u.LowRemainingCooldown != tt.want {
				t.Errorf("remaining %s: low trigger = %v, want %v", tt.remaining, u.LowRemainingCooldown, tt.want)
			}
		})
	}
}

func TestApplyUpdateGarbageKeepsPriorValues(t *testing.T) {
	c := NewController(Config{})

	c.ApplyUpdate(quota("150", "15", strconv.FormatInt(now.Add(10*time.Minute).Unix(), 10)), now)
	c.ApplyUpdate(quota("", "bogus", "-5"), now.Add(time.Second))

	s := c.Snapshot()
	if s.RequestCount != 2 {
		t.Errorf("garbage observation not counted: %d", s.RequestCount)
	}
	if s.Limit != 150 || s.Remaining != 15 {
		t.Errorf("garbage poisoned prior values: limit=%d remaining=%d", s.Limit, s.Remaining)
	}
	if s.ResetAt.IsZero() {
		t.Error("garbage erased the reset time")
	}
	if s.Delay != 5*time.Second {
		t.Errorf("delay must derive from retained remaining, got %v", s.Delay)
	}
}

func TestNegativeCountsIgnored(t *testing.T) {
	c := NewController(Config{})
	c.ApplyUpdate(quota("-1", "-3", ""), now)

	s := c.Snapshot()
	if s.Limit != unknown || s.Remaining != unknown {
		t.Errorf("negative header values must be ignored: limit=%d remaining=%d", s.Limit, s.Remaining)
	}
}

func TestCooldownPlanDefault(t *testing.T) {
	c := NewController(Config{})
	for i := 0; i < 20; i++ {
		c.ApplyUpdate(quota("150", "100", ""), now)
	}

	plan := c.CooldownPlan(now)
	if plan.Duration != 3*time.Minute {
		t.Errorf("expected 3m default cooldown, got %v", plan.Duration)
	}
	if plan.Reason != "batch pacing (20 requests)" {
		t.Errorf("unexpected reason: %q", plan.Reason)
	}
}

func TestCooldownPlanLowRemainingOverride(t *testing.T) {
	c := NewController(Config{})
	reset := now.Add(5 * time.Minute)
	c.ApplyUpdate(quota("150", "4", strconv.FormatInt(reset.Unix(), 10)), now)

	plan := c.CooldownPlan(now)
	want := 5*time.Minute + 10*time.Second
	if plan.Duration != want {
		t.Errorf("expected reset wait plus buffer %v, got %v", want, plan.Duration)
	}
	if !strings.Contains(plan.Reason, "4 remaining") {
		t.Errorf("reason must name the remaining count: %q", plan.Reason)
	}
	if !strings.Contains(plan.Reason, reset.Format("15:04:05")) {
		t.Errorf("reason must name the reset time: %q", plan.Reason)
	}
}

func TestCooldownPlanIgnoresPastReset(t *testing.T) {
	c := NewController(Config{})
	past := now.Add(-time.Minute)
	c.ApplyUpdate(quota("150", "4", strconv.FormatInt(past.Unix(), 10)), now)

	plan := c.CooldownPlan(now)
	if plan.Duration != 3*time.Minute {
		t.Errorf("past reset must fall back to the default plan, got %v", plan.Duration)
	}
	if !strings.HasPrefix(plan.Reason, "batch pacing") {
		t.Errorf("unexpected reason: %q", plan.Reason)
	}
}

func TestCooldownPlanIgnoresUnknownReset(t *testing.T) {
	c := NewController(Config{})
	c.ApplyUpdate(quota("150", "4", ""), now)

	plan := c.CooldownPlan(now)
	if plan.Duration != 3*time.Minute {
		t.Errorf("unknown reset must fall back to the default plan, got %v", plan.Duration)
	}
}

func TestModeTransitions(t *testing.T) {
	c := NewController(Config{})

	c.BeginCooldown()
	if c.Mode() != ModeCooldown {
		t.Errorf("expected cooldown, got %s", c.Mode())
	}
	c.EndCooldown()
	if c.Mode() != ModeNormal {
		t.Errorf("expected normal, got %s", c.Mode())
	}
	c.Pause()
	if c.Mode() != ModePaused {
		t.Errorf("expected paused, got %s", c.Mode())
	}
	c.Resume()
	if c.Mode() != ModeNormal {
		t.Errorf("expected normal after resume, got %s", c.Mode())
	}
}

func TestRetryCounter(t *testing.T) {
	c := NewController(Config{})

	if n := c.RecordRetry(); n != 1 {
		t.Errorf("expected 1 retry, got %d", n)
	}
	if n := c.RecordRetry(); n != 2 {
		t.Errorf("expected 2 retries, got %d", n)
	}
	c.ClearRetries()
	if s := c.Snapshot(); s.RetryCount != 0 {
		t.Errorf("retries not cleared: %d", s.RetryCount)
	}
}

func TestResetForRunPreservesQuotaKnowledge(t *testing.T) {
	c := NewController(Config{})
	reset := now.Add(10 * time.Minute)
	c.ApplyUpdate(quota("150", "5", strconv.FormatInt(reset.Unix(), 10)), now)
	c.RecordRetry()
	c.Pause()

	c.ResetForRun()
	s := c.Snapshot()

	// Per-run state returns to defaults.
	if s.Mode != ModeNormal {
		t.Errorf("mode not reset: %s", s.Mode)
	}
	if s.RequestCount != 0 || s.RetryCount != 0 {
		t.Errorf("counters not reset: requests=%d retries=%d", s.RequestCount, s.RetryCount)
	}
	if s.Remaining != unknown {
		t.Errorf("remaining not reset: %d", s.Remaining)
	}
	if s.Delay != 3*time.Second {
		t.Errorf("delay not reset: %v", s.Delay)
	}

	// Cross-session knowledge survives.
	if s.Limit != 150 {
		t.Errorf("limit lost on reset: %d", s.Limit)
	}
	if !s.ResetAt.Equal(time.Unix(reset.Unix(), 0)) {
		t.Errorf("reset time lost on reset: %v", s.ResetAt)
	}
	if !s.LastRequestAt.Equal(now) {
		t.Errorf("last request time lost on reset: %v", s.LastRequestAt)
	}
}

func TestConfigOverrides(t *testing.T) {
	c := NewController(Config{
		BatchSize:        5,
		CooldownDuration: time.Minute,
	})

	var batches int
	for i := 1; i <= 10; i++ {
		if u := c.ApplyUpdate(quota("150", "100", ""), now); u.BatchCooldown {
			batches++
		}
	}
	if batches != 2 {
		t.Errorf("expected a batch trigger every 5 requests, got %d triggers", batches)
	}

	if plan := c.CooldownPlan(now); plan.Duration != time.Minute {
		t.Errorf("configured cooldown not applied: %v", plan.Duration)
	}
}

func BenchmarkApplyUpdate(b *testing.B) {
	c := NewController(Config{})
	q := quota("150", "75", fmt.Sprintf("%d", now.Add(15*time.Minute).Unix()))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.ApplyUpdate(q, now)
	}
}
