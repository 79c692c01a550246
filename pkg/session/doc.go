// Package session implements the export session lifecycle as a pure state
// machine.
//
// A session moves between seven statuses (idle, running, cooldown,
// paused_rate_limit, pending_done, cancelled, completed) in response to
// nine actions. All transitions go through Reduce, which is a pure
// function of the current snapshot, the action, and the caller's clock
// reading; the package itself performs no I/O and reads no clocks, which
// keeps every transition trivially testable.
//
// Usage:
//
//	snap := session.NewSnapshot(time.Now())
//	snap = session.Reduce(snap, session.ActionStart, time.Now())
//
//	// Later, when quota pacing kicks in:
//	snap = session.Reduce(snap, session.ActionEnterCooldown, time.Now())
//
// The package also hosts ShouldPromptLooksDone, the guard deciding when a
// running session has likely reached the end of the timeline and the
// operator should be asked whether to finish.
package session
