package capture

import (
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestBufferAppendAndDrain(t *testing.T) {
	b := NewBuffer()

	b.Append(Response{URL: "first", Status: 200})
	b.Append(Response{URL: "second", Status: 200})

	if b.Len() != 2 {
		t.Fatalf("expected 2 buffered responses, got %d", b.Len())
	}

	drained := b.Drain()
	if len(drained) != 2 {
		t.Fatalf("expected 2 drained responses, got %d", len(drained))
	}
	if drained[0].URL != "first" || drained[1].URL != "second" {
		t.Errorf("arrival order not preserved: %s, %s", drained[0].URL, drained[1].URL)
	}

	if b.Len() != 0 {
		t.Errorf("buffer not empty after drain: %d", b.Len())
	}
	if again := b.Drain(); len(again) != 0 {
		t.Errorf("second drain returned %d responses", len(again))
	}
}

func TestBufferTotalSurvivesDrain(t *testing.T) {
	b := NewBuffer()

	b.Append(Response{URL: "one"})
	b.Drain()
	b.Append(Response{URL: "two"})

	if b.Total() != 2 {
		t.Errorf("expected total 2, got %d", b.Total())
	}
	if b.Len() != 1 {
		t.Errorf("expected 1 undrained, got %d", b.Len())
	}
}

func TestBufferReset(t *testing.T) {
	b := NewBuffer()
	b.Append(Response{URL: "one"})
	b.Append(Response{URL: "two"})

	b.Reset()

	if b.Len() != 0 || b.Total() != 0 {
		t.Errorf("reset left len=%d total=%d", b.Len(), b.Total())
	}
}

func TestBufferConcurrentAppends(t *testing.T) {
	b := NewBuffer()

	const writers = 8
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				b.Append(Response{
					URL:        fmt.Sprintf("writer-%d-response-%d", w, i),
					ReceivedAt: time.Now(),
				})
			}
		}(w)
	}
	wg.Wait()

	if b.Total() != writers*perWriter {
		t.Errorf("expected %d responses, got %d", writers*perWriter, b.Total())
	}
	if got := len(b.Drain()); got != writers*perWriter {
		t.Errorf("drain returned %d responses", got)
	}
}

func TestResponseRateLimited(t *testing.T) {
	if (&Response{Status: 200}).RateLimited() {
		t.Error("200 flagged as rate limited")
	}
	if !(&Response{Status: 429}).RateLimited() {
		t.Error("429 not flagged as rate limited")
	}
}
