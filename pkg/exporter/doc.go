// Package exporter drives a resumable timeline export session.
//
// The exporter package owns the single loop at the heart of the tool: it
// scrolls the user's timeline through a PageDriver, drains the responses a
// browser interceptor collected into the capture Feed, decodes them into
// rows, and paces itself against the provider's observed quota.
//
// Architecture:
//
// The Engine struct is the main component that:
//   - Drives page scrolling and watches for the provider's error card
//   - Decodes captured GraphQL responses into export rows
//   - Enters pacing cooldowns and honors hard rate limit pauses
//   - Detects when the timeline looks finished and asks the operator
//   - Persists progress so a later session can continue where this one
//     stopped
//
// Usage:
//
//	feed := capture.NewBuffer()
//	driver := browser.NewDriver(cfg.Browser, feed)
//	if err := driver.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer driver.Close()
//	// authenticate and open the timeline, then:
//	sink, _ := storage.NewManager(cfg.Output.BaseDirectory)
//
//	engine, err := exporter.New(cfg, "some_user", exporter.Deps{
//	    Driver: driver,
//	    Feed:   feed,
//	    Sink:   sink,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	summary, err := engine.Run(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	path, _ := engine.ExportNow()
//
// Control:
//
// Run blocks for the whole session. Everything the operator can do while it
// runs goes through the control methods, which are safe to call from other
// goroutines: Cancel, SkipCooldown, ResumeManual, ConfirmDone,
// KeepScrolling, AcknowledgeRoute, SaveProgress, ExportNow, and
// DiscardProgress. A Presenter implementation receives the matching
// notifications.
//
// Rate limiting:
//
// Soft pacing comes from the ratelimit controller: a cooldown every request
// batch and earlier when the observed quota runs low. A hard 429 from the
// provider pauses the session until ResumeManual; nothing retries it.
package exporter
