package ui

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"xscraper/pkg/exporter"
)

// PromptKind identifies an interaction the export session is waiting on.
type PromptKind int

const (
	PromptLooksDone PromptKind = iota
	PromptRatePaused
	PromptRouteChanged
)

// Prompt is one pending question from the export session.
type Prompt struct {
	Kind PromptKind
	Rows int
	URL  string
}

// SessionControls is the slice of the export engine the console drives when
// a prompt is answered. The engine's control methods satisfy it.
type SessionControls interface {
	ConfirmDone()
	KeepScrolling()
	ResumeManual()
	AcknowledgeRoute()
	SkipCooldown()
	Cancel()
}

// ConsoleOptions configures a Console.
type ConsoleOptions struct {
	// AutoConfirm answers prompts without asking: "finish" completes the
	// session when it looks done, "continue" keeps scrolling. Empty means
	// ask on stdin through RunInteraction.
	AutoConfirm string

	// Notifier mirrors session events to the desktop. Nil disables it.
	Notifier *Notifier

	// MaxScrolls bounds the progress bar.
	MaxScrolls int

	// In is the answer stream for interactive prompts. Defaults to stdin.
	In io.Reader
}

// Console renders export session events on the terminal and answers the
// engine's prompts, either interactively or via the auto-confirm policy.
// Bind must be called before the session runs.
type Console struct {
	controls SessionControls
	notifier *Notifier
	tracker  *StatusTracker
	in       io.Reader
	prompts  chan Prompt

	mu       sync.Mutex
	auto     string
	lineOpen bool
}

var _ exporter.Presenter = (*Console)(nil)

// NewConsole creates a console presenter.
func NewConsole(opts ConsoleOptions) *Console {
	in := opts.In
	if in == nil {
		in = os.Stdin
	}
	return &Console{
		notifier: opts.Notifier,
		tracker:  NewStatusTracker(opts.MaxScrolls),
		in:       in,
		prompts:  make(chan Prompt, 4),
		auto:     strings.ToLower(opts.AutoConfirm),
	}
}

// Bind attaches the engine's control surface. Must happen before the
// session starts.
func (c *Console) Bind(controls SessionControls) {
	c.controls = controls
}

// SessionStarted implements exporter.Presenter.
func (c *Console) SessionStarted(sessionID, username string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.breakLine()
	PrintHighlight(fmt.Sprintf("[SESSION STARTED] @%s", username))
	PrintInfo("Session ID", sessionID)
}

// Progress implements exporter.Presenter.
func (c *Console) Progress(scrolls, captured, rows int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tracker.Update(scrolls, captured, rows)
	if quietMode {
		return
	}
	fmt.Printf("\r%s\r%s", strings.Repeat(" ", 110), c.tracker.StatusLine())
	c.lineOpen = true
}

// CooldownStarted implements exporter.Presenter.
func (c *Console) CooldownStarted(reason string, duration time.Duration) {
	c.mu.Lock()
	interactive := c.auto == ""
	c.breakLine()
	c.mu.Unlock()

	PrintWarning("[COOLDOWN] " + reason)
	PrintInfo("Resuming in", duration.Round(time.Second).String())
	if interactive && !quietMode && !progressOnly {
		fmt.Println(Dim("  (press s + Enter to skip the wait)"))
	}
	if c.notifier != nil {
		c.notifier.SendNotification("Cooldown started", reason)
	}
}

// CooldownEnded implements exporter.Presenter.
func (c *Console) CooldownEnded() {
	c.mu.Lock()
	c.breakLine()
	c.mu.Unlock()
	PrintSuccess("[COOLDOWN] over, scrolling resumes")
}

// RateLimitPaused implements exporter.Presenter.
func (c *Console) RateLimitPaused() {
	c.mu.Lock()
	auto := c.auto
	c.breakLine()
	c.mu.Unlock()

	PrintError("[RATE LIMIT] the provider returned 429, session paused")
	if c.notifier != nil {
		c.notifier.SendError("Rate limited", "Export paused until you resume it")
	}
	if auto != "" {
		// Nobody is watching. End the run; saved progress carries the
		// session into the next scheduled attempt.
		PrintWarning("Unattended session, saving progress and stopping")
		c.cancel()
		return
	}
	c.enqueue(Prompt{Kind: PromptRatePaused})
}

// LooksDonePrompt implements exporter.Presenter.
func (c *Console) LooksDonePrompt(rows int) {
	c.mu.Lock()
	auto := c.auto
	c.breakLine()
	c.mu.Unlock()

	if c.notifier != nil {
		c.notifier.SendNotification("Timeline looks finished",
			fmt.Sprintf("%d tweets collected", rows))
	}
	switch auto {
	case "finish":
		PrintInfo("Timeline looks finished", fmt.Sprintf("%d tweets, completing", rows))
		if c.controls != nil {
			c.controls.ConfirmDone()
		}
	case "continue":
		PrintInfo("Timeline looks finished", fmt.Sprintf("%d tweets, scrolling on", rows))
		if c.controls != nil {
			c.controls.KeepScrolling()
		}
	default:
		c.enqueue(Prompt{Kind: PromptLooksDone, Rows: rows})
	}
}

// RouteChanged implements exporter.Presenter.
func (c *Console) RouteChanged(currentURL string) {
	c.mu.Lock()
	auto := c.auto
	c.breakLine()
	c.mu.Unlock()

	PrintWarning("[NAVIGATION] the browser left the timeline", currentURL)
	if auto != "" {
		PrintWarning("Unattended session, saving progress and stopping")
		c.cancel()
		return
	}
	c.enqueue(Prompt{Kind: PromptRouteChanged, URL: currentURL})
}

// SessionSummary implements exporter.Presenter.
func (c *Console) SessionSummary(summary *exporter.Summary) {
	c.mu.Lock()
	c.breakLine()
	c.mu.Unlock()

	PrintHighlight("[SESSION " + strings.ToUpper(summary.Status) + "]")
	PrintInfo("Tweets collected", fmt.Sprintf("%d (%d duplicates removed)", summary.Rows, summary.Duplicates))
	PrintInfo("Responses captured", fmt.Sprintf("%d", summary.Captured))
	PrintInfo("Scroll steps", fmt.Sprintf("%d", summary.ScrollCount))
	PrintInfo("Elapsed", summary.Elapsed.Round(time.Second).String())

	if c.notifier == nil {
		return
	}
	message := fmt.Sprintf("@%s: %d tweets in %s", summary.Username, summary.Rows,
		summary.Elapsed.Round(time.Second))
	if summary.Status == "completed" {
		c.notifier.SendSuccess("Export complete", message)
	} else {
		c.notifier.SendNotification("Export "+summary.Status, message)
	}
}

// RunInteraction answers prompts from the answer stream. It blocks until
// the context is cancelled or the stream ends, so run it on its own
// goroutine alongside the session.
func (c *Console) RunInteraction(ctx context.Context) {
	lines := make(chan string)
	go c.readLines(ctx, lines)

	for {
		select {
		case <-ctx.Done():
			return
		case p := <-c.prompts:
			if !c.answer(ctx, p, lines) {
				return
			}
		case line, ok := <-lines:
			if !ok {
				c.fallBackToAuto()
				return
			}
			c.handleIdleLine(line)
		}
	}
}

// Prompts exposes the pending prompt stream for presenters layered on top
// of the console.
func (c *Console) Prompts() <-chan Prompt {
	return c.prompts
}

func (c *Console) readLines(ctx context.Context, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(c.in)
	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return
		case lines <- strings.TrimSpace(scanner.Text()):
		}
	}
}

// answer asks one question and dispatches the reply. Returns false when
// the answer stream is gone and interaction should stop.
func (c *Console) answer(ctx context.Context, p Prompt, lines <-chan string) bool {
	switch p.Kind {
	case PromptLooksDone:
		fmt.Printf("%s ", Yellow(fmt.Sprintf("Timeline looks finished (%d tweets). Finish now? [Y/n]", p.Rows)))
	case PromptRatePaused:
		fmt.Printf("%s ", Yellow("Press Enter to resume once the limit clears (Ctrl-C saves and exits)"))
	case PromptRouteChanged:
		fmt.Printf("%s ", Yellow("Return to the timeline tab, then press Enter to continue"))
	}

	var line string
	var ok bool
	select {
	case <-ctx.Done():
		return false
	case line, ok = <-lines:
		if !ok {
			c.fallBackToAuto()
			c.applyDefault(p)
			return false
		}
	}

	if c.controls == nil {
		return true
	}
	switch p.Kind {
	case PromptLooksDone:
		answer := strings.ToLower(line)
		if answer == "n" || answer == "no" {
			c.controls.KeepScrolling()
		} else {
			c.controls.ConfirmDone()
		}
	case PromptRatePaused:
		c.controls.ResumeManual()
	case PromptRouteChanged:
		c.controls.AcknowledgeRoute()
	}
	return true
}

// handleIdleLine reacts to input typed outside a prompt. "s" skips a
// pending cooldown; anything else is ignored.
func (c *Console) handleIdleLine(line string) {
	if strings.ToLower(line) != "s" || c.controls == nil {
		return
	}
	PrintInfo("Cooldown", "skip requested")
	c.controls.SkipCooldown()
}

// applyDefault resolves a prompt the way an unattended session would.
func (c *Console) applyDefault(p Prompt) {
	if c.controls == nil {
		return
	}
	switch p.Kind {
	case PromptLooksDone:
		c.controls.ConfirmDone()
	case PromptRatePaused, PromptRouteChanged:
		c.controls.Cancel()
	}
}

// fallBackToAuto switches to self-answering prompts after the answer
// stream closes, so a piped session cannot park forever.
func (c *Console) fallBackToAuto() {
	c.mu.Lock()
	if c.auto == "" {
		c.auto = "finish"
	}
	c.mu.Unlock()
}

func (c *Console) cancel() {
	if c.controls != nil {
		c.controls.Cancel()
	}
}

func (c *Console) enqueue(p Prompt) {
	select {
	case c.prompts <- p:
	default:
		// No interaction loop is draining the channel. Fall back to the
		// unattended answer rather than wedging the session.
		c.applyDefault(p)
	}
}

// breakLine closes an open \r progress line. Callers hold c.mu.
func (c *Console) breakLine() {
	if !c.lineOpen {
		return
	}
	fmt.Println()
	c.lineOpen = false
}
