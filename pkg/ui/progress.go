package ui

import (
	"fmt"
	"strings"
	"time"
)

const (
	ProgressBar   = "█"
	ProgressEmpty = "░"
)

// StatusTracker keeps track of export session progress
type StatusTracker struct {
	Scrolls    int
	Captured   int
	Rows       int
	MaxScrolls int
	StartTime  time.Time
}

// NewStatusTracker creates a new status tracker. maxScrolls bounds the
// scroll budget shown in the progress bar.
func NewStatusTracker(maxScrolls int) *StatusTracker {
	return &StatusTracker{
		MaxScrolls: maxScrolls,
		StartTime:  time.Now(),
	}
}

// Update replaces the session counters with the latest engine snapshot
func (st *StatusTracker) Update(scrolls, captured, rows int) {
	st.Scrolls = scrolls
	st.Captured = captured
	st.Rows = rows
}

// GetScrollProgress returns a formatted progress bar for the scroll budget
func (st *StatusTracker) GetScrollProgress() string {
	const width = 20
	max := st.MaxScrolls
	if max <= 0 {
		max = 1
	}
	progress := float64(st.Scrolls) / float64(max)
	if progress > 1 {
		progress = 1
	}
	filled := int(progress * float64(width))

	bar := strings.Repeat(ProgressBar, filled) +
		strings.Repeat(ProgressEmpty, width-filled)

	return fmt.Sprintf("[%s] %d/%d", bar, st.Scrolls, st.MaxScrolls)
}

// GetElapsedTime returns the elapsed time since tracking started
func (st *StatusTracker) GetElapsedTime() time.Duration {
	return time.Since(st.StartTime)
}

// GetRowRate returns the average collection rate (tweets per minute)
func (st *StatusTracker) GetRowRate() float64 {
	elapsed := st.GetElapsedTime().Minutes()
	if elapsed == 0 {
		return 0
	}
	return float64(st.Rows) / elapsed
}

// StatusLine renders the single-line progress summary
func (st *StatusTracker) StatusLine() string {
	return fmt.Sprintf("%s %s | %d tweets | %d responses | %.1f/min",
		Green("[SCROLLING]"),
		st.GetScrollProgress(),
		st.Rows,
		st.Captured,
		st.GetRowRate())
}
