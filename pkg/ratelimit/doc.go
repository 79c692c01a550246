// Package ratelimit paces the export session against the provider's
// observed API quota.
//
// The site's own requests carry x-rate-limit-limit, x-rate-limit-remaining
// and x-rate-limit-reset headers. The capture layer hands those raw values
// to the Controller once per observed response; the controller folds them
// into its state and answers three questions for the orchestrator:
//
//   - how long to wait between scroll steps (Delay, tiered by remaining
//     quota),
//   - whether the step just observed should start a soft cooldown
//     (ApplyUpdate's batch and low-remaining triggers),
//   - how long that cooldown should last and why (CooldownPlan, which
//     prefers waiting out the provider's reset window when it is known).
//
// The controller deliberately owns no timers and never drives the session
// lifecycle. It mutates its own state under a mutex and reports decisions;
// acting on them is the orchestrator's job. A hard provider limit (HTTP
// 429) is modelled as ModePaused, which only an explicit operator resume
// clears, while soft cooldowns end on their own.
//
// ResetForRun starts a fresh session without forgetting cross-session
// quota knowledge: the observed limit and reset time survive, only the
// per-run counters reset.
package ratelimit
