package session

import (
	"testing"
	"time"
)

var (
	t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 = t0.Add(90 * time.Second)
)

func TestNewSnapshot(t *testing.T) {
	snap := NewSnapshot(t0)
	if snap.Status != StatusIdle {
		t.Errorf("expected idle, got %s", snap.Status)
	}
	if !snap.LastActivityAt.Equal(t0) {
		t.Errorf("expected activity at %v, got %v", t0, snap.LastActivityAt)
	}
}

func TestReduceRunningActions(t *testing.T) {
	// start, exit_cooldown and resume_manual all land in running and
	// stamp the activity time.
	actions := []Action{ActionStart, ActionExitCooldown, ActionResumeManual}

	for _, action := range actions {
		t.Run(string(action), func(t *testing.T) {
			snap := Snapshot{Status: StatusCooldown, LastActivityAt: t0}
			next := Reduce(snap, action, t1)

			if next.Status != StatusRunning {
				t.Errorf("expected running, got %s", next.Status)
			}
			if !next.LastActivityAt.Equal(t1) {
				t.Errorf("expected activity stamped to %v, got %v", t1, next.LastActivityAt)
			}
		})
	}
}

func TestReduceActivityKeepsStatus(t *testing.T) {
	statuses := []Status{
		StatusIdle, StatusRunning, StatusCooldown, StatusPausedRateLimit,
		StatusPendingDone, StatusCancelled, StatusCompleted,
	}

	for _, status := range statuses {
		t.Run(string(status), func(t *testing.T) {
			snap := Snapshot{Status: status, LastActivityAt: t0}
			next := Reduce(snap, ActionActivity, t1)

			if next.Status != status {
				t.Errorf("activity changed status from %s to %s", status, next.Status)
			}
			if !next.LastActivityAt.Equal(t1) {
				t.Errorf("activity did not stamp time: %v", next.LastActivityAt)
			}
		})
	}
}

func TestReduceStatusOnlyActions(t *testing.T) {
	tests := []struct {
		action Action
		want   Status
	}{
		{ActionEnterCooldown, StatusCooldown},
		{ActionPauseRateLimit, StatusPausedRateLimit},
		{ActionMarkPendingDone, StatusPendingDone},
		{ActionCancel, StatusCancelled},
		{ActionComplete, StatusCompleted},
	}

	for _, tt := range tests {
		t.Run(string(tt.action), func(t *testing.T) {
			snap := Snapshot{Status: StatusRunning, LastActivityAt: t0}
			next := Reduce(snap, tt.action, t1)

			if next.Status != tt.want {
				t.Errorf("expected %s, got %s", tt.want, next.Status)
			}
			// These transitions must not touch the activity time.
			if !next.LastActivityAt.Equal(t0) {
				t.Errorf("activity time changed: %v", next.LastActivityAt)
			}
		})
	}
}

func TestReduceNeverRejects(t *testing.T) {
	// Last-writer-wins: every action applies from every state.
	statuses := []Status{
		StatusIdle, StatusRunning, StatusCooldown, StatusPausedRateLimit,
		StatusPendingDone, StatusCancelled, StatusCompleted,
	}
	actions := []Action{
		ActionStart, ActionActivity, ActionEnterCooldown, ActionExitCooldown,
		ActionPauseRateLimit, ActionResumeManual, ActionMarkPendingDone,
		ActionCancel, ActionComplete,
	}

	for _, status := range statuses {
		for _, action := range actions {
			snap := Snapshot{Status: status, LastActivityAt: t0}
			next := Reduce(snap, action, t1)
			if next.Status == "" {
				t.Errorf("reduce(%s, %s) produced empty status", status, action)
			}
		}
	}

	// A cancel after completion still wins.
	snap := Snapshot{Status: StatusCompleted, LastActivityAt: t0}
	if next := Reduce(snap, ActionCancel, t1); next.Status != StatusCancelled {
		t.Errorf("cancel after complete: got %s", next.Status)
	}
}

func TestReduceUnknownAction(t *testing.T) {
	snap := Snapshot{Status: StatusRunning, LastActivityAt: t0}
	next := Reduce(snap, Action("definitely_not_an_action"), t1)

	if next != snap {
		t.Errorf("unknown action changed the snapshot: %+v", next)
	}
}

func TestReduceIsDeterministic(t *testing.T) {
	snap := Snapshot{Status: StatusRunning, LastActivityAt: t0}

	once := Reduce(snap, ActionEnterCooldown, t1)
	twice := Reduce(Reduce(snap, ActionEnterCooldown, t1), ActionEnterCooldown, t1)

	if once != twice {
		t.Errorf("reducing twice with a fixed now diverged: %+v vs %+v", once, twice)
	}
}

func TestTerminal(t *testing.T) {
	if (Snapshot{Status: StatusRunning}).Terminal() {
		t.Error("running must not be terminal")
	}
	if !(Snapshot{Status: StatusCancelled}).Terminal() {
		t.Error("cancelled must be terminal")
	}
	if !(Snapshot{Status: StatusCompleted}).Terminal() {
		t.Error("completed must be terminal")
	}
}

func TestShouldPromptLooksDone(t *testing.T) {
	base := DoneParams{
		ResponsesCaptured: 5,
		ScrollCount:       11,
		HeightStable:      true,
		IdleThreshold:     30 * time.Second,
	}
	running := Snapshot{Status: StatusRunning, LastActivityAt: t0}
	now := t0.Add(31 * time.Second)

	t.Run("all guards hold", func(t *testing.T) {
		if !ShouldPromptLooksDone(running, base, now) {
			t.Error("expected prompt")
		}
	})

	t.Run("not running", func(t *testing.T) {
		snap := Snapshot{Status: StatusCooldown, LastActivityAt: t0}
		if ShouldPromptLooksDone(snap, base, now) {
			t.Error("prompt while not running")
		}
	})

	t.Run("nothing captured", func(t *testing.T) {
		p := base
		p.ResponsesCaptured = 0
		if ShouldPromptLooksDone(running, p, now) {
			t.Error("prompt with zero captures")
		}
	})

	t.Run("scroll count at boundary", func(t *testing.T) {
		p := base
		p.ScrollCount = 10
		if ShouldPromptLooksDone(running, p, now) {
			t.Error("prompt requires strictly more than 10 scrolls")
		}
	})

	t.Run("height still growing", func(t *testing.T) {
		p := base
		p.HeightStable = false
		if ShouldPromptLooksDone(running, p, now) {
			t.Error("prompt with growing extent")
		}
	})

	t.Run("idle at threshold", func(t *testing.T) {
		at := t0.Add(30 * time.Second)
		if ShouldPromptLooksDone(running, base, at) {
			t.Error("prompt requires idle strictly beyond the threshold")
		}
	})

	t.Run("recent activity", func(t *testing.T) {
		snap := Snapshot{Status: StatusRunning, LastActivityAt: now.Add(-time.Second)}
		if ShouldPromptLooksDone(snap, base, now) {
			t.Error("prompt right after activity")
		}
	})
}
