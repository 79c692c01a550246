package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"xscraper/pkg/capture"
	"xscraper/pkg/ratelimit"
	"xscraper/pkg/timeline"
)

// Rate limit headers X attaches to GraphQL responses.
const (
	headerLimit     = "x-rate-limit-limit"
	headerRemaining = "x-rate-limit-remaining"
	headerReset     = "x-rate-limit-reset"
)

// pendingBody is a matched timeline response whose body has not finished
// loading yet.
type pendingBody struct {
	url    string
	status int
	quota  ratelimit.Quota
}

// installInterceptor subscribes to the devtools event stream and routes
// timeline GraphQL responses into the capture feed. Bodies arrive after the
// response headers, so matched responses are held until their load
// finishes.
func (d *Driver) installInterceptor(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch ev := ev.(type) {
		case *network.EventResponseReceived:
			d.onResponseReceived(ev)
		case *network.EventLoadingFinished:
			d.onLoadingFinished(ctx, ev)
		case *network.EventLoadingFailed:
			d.onLoadingFailed(ev)
		}
	})
}

// onResponseReceived filters the event stream down to timeline GraphQL
// calls. Non-200 responses are fed through immediately with no body; the
// status and quota headers are all the session needs from them.
func (d *Driver) onResponseReceived(ev *network.EventResponseReceived) {
	if ev.Type != network.ResourceTypeXHR && ev.Type != network.ResourceTypeFetch {
		return
	}
	if ev.Response == nil || !timeline.MatchesTimelineURL(ev.Response.URL) {
		return
	}

	status := int(ev.Response.Status)
	quota := quotaFromHeaders(ev.Response.Headers)

	if status != http.StatusOK {
		d.feed.Append(capture.Response{
			URL:        ev.Response.URL,
			Status:     status,
			Quota:      quota,
			ReceivedAt: time.Now(),
		})
		d.logger.WarnWithFields("Timeline request failed", map[string]interface{}{
			"url":    ev.Response.URL,
			"status": status,
		})
		return
	}

	d.pendMu.Lock()
	d.pending[ev.RequestID] = pendingBody{
		url:    ev.Response.URL,
		status: status,
		quota:  quota,
	}
	d.pendMu.Unlock()
}

func (d *Driver) onLoadingFinished(ctx context.Context, ev *network.EventLoadingFinished) {
	d.pendMu.Lock()
	pend, ok := d.pending[ev.RequestID]
	if ok {
		delete(d.pending, ev.RequestID)
	}
	d.pendMu.Unlock()
	if !ok {
		return
	}
	go d.fetchBody(ctx, ev.RequestID, pend)
}

// onLoadingFailed drops the bookkeeping for requests the page aborted.
func (d *Driver) onLoadingFailed(ev *network.EventLoadingFailed) {
	d.pendMu.Lock()
	delete(d.pending, ev.RequestID)
	d.pendMu.Unlock()
}

// fetchBody pulls one response body over the devtools connection and
// appends the completed capture. The semaphore bounds how many fetches run
// at once so a burst of responses cannot flood the connection.
func (d *Driver) fetchBody(ctx context.Context, id network.RequestID, pend pendingBody) {
	if err := d.sem.Acquire(ctx, 1); err != nil {
		return
	}
	defer d.sem.Release(1)

	c := chromedp.FromContext(ctx)
	if c == nil || c.Target == nil {
		return
	}
	body, err := network.GetResponseBody(id).Do(cdp.WithExecutor(ctx, c.Target))
	if err != nil {
		d.logger.WithError(err).WithField("url", pend.url).Debug("Response body fetch failed, capture dropped")
		return
	}

	d.feed.Append(capture.Response{
		URL:        pend.url,
		Status:     pend.status,
		Body:       body,
		Quota:      pend.quota,
		ReceivedAt: time.Now(),
	})
	d.logger.DebugWithFields("Timeline response captured", map[string]interface{}{
		"url":   pend.url,
		"bytes": len(body),
	})
}

// quotaFromHeaders lifts the rate limit headers out of a devtools header
// map, unparsed. Absent headers come back empty; the controller treats
// those as unknown.
func quotaFromHeaders(headers network.Headers) ratelimit.Quota {
	return ratelimit.Quota{
		Limit:     headerValue(headers, headerLimit),
		Remaining: headerValue(headers, headerRemaining),
		Reset:     headerValue(headers, headerReset),
	}
}

// headerValue looks a header up by name, case insensitively. Devtools
// reports headers with whatever casing the server used.
func headerValue(headers network.Headers, name string) string {
	for k, v := range headers {
		if !strings.EqualFold(k, name) {
			continue
		}
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}
