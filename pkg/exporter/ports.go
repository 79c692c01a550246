package exporter

import (
	"context"
	"time"

	"xscraper/pkg/capture"
	"xscraper/pkg/retry"
)

// PageDriver is the browser surface the engine drives. Implementations wrap
// a live browser tab parked on the user's timeline; tests substitute
// scripted fakes.
type PageDriver interface {
	// TriggerScrollStep advances the timeline by roughly one viewport.
	TriggerScrollStep(ctx context.Context) error
	// CurrentExtent reports the page's scrollable height.
	CurrentExtent(ctx context.Context) (int64, error)
	// ErrorStateVisible reports whether the provider's inline error card
	// is showing.
	ErrorStateVisible(ctx context.Context) (bool, error)
	// ClickRetry activates the error card's retry control.
	ClickRetry(ctx context.Context) error
	// CurrentURL reports the page's current location.
	CurrentURL(ctx context.Context) (string, error)
}

// Feed hands intercepted timeline responses to the engine. The capture
// buffer implements it; the engine only ever drains, appends happen on the
// interceptor side.
type Feed interface {
	Drain() []capture.Response
	Len() int
}

// Sink receives rendered export artifacts and returns where each one
// landed.
type Sink interface {
	Write(filename string, data []byte, mime string) (string, error)
}

// Presenter receives session lifecycle notifications. Calls arrive from the
// export loop goroutine and from control methods; implementations must not
// block.
type Presenter interface {
	SessionStarted(sessionID, username string)
	Progress(scrolls, captured, rows int)
	CooldownStarted(reason string, duration time.Duration)
	CooldownEnded()
	RateLimitPaused()
	LooksDonePrompt(rows int)
	RouteChanged(currentURL string)
	SessionSummary(summary *Summary)
}

// NopPresenter discards every notification.
type NopPresenter struct{}

func (NopPresenter) SessionStarted(sessionID, username string)             {}
func (NopPresenter) Progress(scrolls, captured, rows int)                  {}
func (NopPresenter) CooldownStarted(reason string, duration time.Duration) {}
func (NopPresenter) CooldownEnded()                                        {}
func (NopPresenter) RateLimitPaused()                                      {}
func (NopPresenter) LooksDonePrompt(rows int)                              {}
func (NopPresenter) RouteChanged(currentURL string)                        {}
func (NopPresenter) SessionSummary(summary *Summary)                       {}

// Clock abstracts time so tests can drive the loop without real sleeps.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	return retry.Wait(ctx, d)
}
