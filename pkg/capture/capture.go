// Package capture buffers intercepted API responses between the browser
// event handlers and the export loop.
package capture

import (
	"sync"
	"time"

	"xscraper/pkg/ratelimit"
)

// Response is one intercepted timeline API response.
type Response struct {
	// URL is the request URL that produced the response.
	URL string
	// Status is the HTTP status code. 429 marks a hard rate limit.
	Status int
	// Body is the raw response body.
	Body []byte
	// Quota carries the rate-limit headers as received, unparsed.
	Quota ratelimit.Quota
	// ReceivedAt is when the interceptor saw the response.
	ReceivedAt time.Time
}

// RateLimited reports whether the provider rejected the request outright.
func (r *Response) RateLimited() bool {
	return r.Status == 429
}

// Buffer is the capture sink shared between browser callback goroutines
// and the export loop. Appends interleave with the loop's drains, so every
// operation takes the lock.
type Buffer struct {
	mu        sync.Mutex
	responses []Response
	total     int
}

// NewBuffer returns an empty capture buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Append adds one intercepted response.
func (b *Buffer) Append(r Response) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses = append(b.responses, r)
	b.total++
}

// Drain returns all buffered responses in arrival order and empties the
// buffer. Responses appended during the drain are picked up next time.
func (b *Buffer) Drain() []Response {
	b.mu.Lock()
	defer b.mu.Unlock()
	drained := b.responses
	b.responses = nil
	return drained
}

// Len reports the number of responses waiting to be drained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.responses)
}

// Total reports every response appended since construction or the last
// Reset, drained or not.
func (b *Buffer) Total() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// Reset drops any buffered responses and zeroes the total.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.responses = nil
	b.total = 0
}
