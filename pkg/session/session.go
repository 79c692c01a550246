package session

import "time"

// Status is the lifecycle state of an export session.
type Status string

const (
	StatusIdle            Status = "idle"
	StatusRunning         Status = "running"
	StatusCooldown        Status = "cooldown"
	StatusPausedRateLimit Status = "paused_rate_limit"
	StatusPendingDone     Status = "pending_done"
	StatusCancelled       Status = "cancelled"
	StatusCompleted       Status = "completed"
)

// Action is a lifecycle transition request.
type Action string

const (
	ActionStart           Action = "start"
	ActionActivity        Action = "activity"
	ActionEnterCooldown   Action = "enter_cooldown"
	ActionExitCooldown    Action = "exit_cooldown"
	ActionPauseRateLimit  Action = "pause_rate_limit"
	ActionResumeManual    Action = "resume_manual"
	ActionMarkPendingDone Action = "mark_pending_done"
	ActionCancel          Action = "cancel"
	ActionComplete        Action = "complete"
)

// Snapshot is an immutable view of the session lifecycle. Callers never
// mutate fields directly; every change goes through Reduce.
type Snapshot struct {
	Status         Status
	LastActivityAt time.Time
}

// NewSnapshot returns the initial lifecycle state.
func NewSnapshot(now time.Time) Snapshot {
	return Snapshot{Status: StatusIdle, LastActivityAt: now}
}

// Reduce applies one action to a snapshot and returns the next snapshot.
//
// The reducer is pure: no clocks, no I/O, no rejection. Any action applies
// from any state and the last writer wins; an unknown action returns the
// snapshot unchanged.
func Reduce(s Snapshot, a Action, now time.Time) Snapshot {
	switch a {
	case ActionStart, ActionExitCooldown, ActionResumeManual:
		return Snapshot{Status: StatusRunning, LastActivityAt: now}
	case ActionActivity:
		return Snapshot{Status: s.Status, LastActivityAt: now}
	case ActionEnterCooldown:
		return Snapshot{Status: StatusCooldown, LastActivityAt: s.LastActivityAt}
	case ActionPauseRateLimit:
		return Snapshot{Status: StatusPausedRateLimit, LastActivityAt: s.LastActivityAt}
	case ActionMarkPendingDone:
		return Snapshot{Status: StatusPendingDone, LastActivityAt: s.LastActivityAt}
	case ActionCancel:
		return Snapshot{Status: StatusCancelled, LastActivityAt: s.LastActivityAt}
	case ActionComplete:
		return Snapshot{Status: StatusCompleted, LastActivityAt: s.LastActivityAt}
	default:
		return s
	}
}

// Terminal reports whether the session has reached an end state.
func (s Snapshot) Terminal() bool {
	return s.Status == StatusCancelled || s.Status == StatusCompleted
}

// DoneParams carries the observed session counters the looks-done check
// evaluates.
type DoneParams struct {
	ResponsesCaptured int
	ScrollCount       int
	HeightStable      bool
	IdleThreshold     time.Duration
}

// ShouldPromptLooksDone reports whether the session looks finished enough
// to ask the operator for confirmation.
//
// All guards must hold: the session is running, at least one response was
// captured, more than ten scrolls happened, the page extent has stopped
// growing, and no activity was recorded for longer than the idle
// threshold.
func ShouldPromptLooksDone(s Snapshot, p DoneParams, now time.Time) bool {
	if s.Status != StatusRunning {
		return false
	}
	if p.ResponsesCaptured <= 0 {
		return false
	}
	if p.ScrollCount <= 10 {
		return false
	}
	if !p.HeightStable {
		return false
	}
	return now.Sub(s.LastActivityAt) > p.IdleThreshold
}
