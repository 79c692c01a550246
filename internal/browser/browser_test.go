package browser

import (
	"context"
	"testing"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"xscraper/pkg/auth"
	"xscraper/pkg/capture"
	"xscraper/pkg/config"
	errs "xscraper/pkg/errors"
)

const userTweetsURL = "https://x.com/i/api/graphql/AbC123xyz/UserTweets?variables=%7B%7D"

func newTestDriver() (*Driver, *capture.Buffer) {
	feed := capture.NewBuffer()
	return NewDriver(config.BrowserConfig{}, feed), feed
}

func xhrEvent(url string, status int64, headers network.Headers) *network.EventResponseReceived {
	return &network.EventResponseReceived{
		RequestID: network.RequestID("req-1"),
		Type:      network.ResourceTypeXHR,
		Response: &network.Response{
			URL:     url,
			Status:  status,
			Headers: headers,
		},
	}
}

func TestHeaderValue(t *testing.T) {
	headers := network.Headers{
		"X-Rate-Limit-Limit": "150",
		"x-rate-limit-reset": "1717243200",
		"retry-after":        float64(30),
	}

	assert.Equal(t, "150", headerValue(headers, "x-rate-limit-limit"))
	assert.Equal(t, "1717243200", headerValue(headers, "X-RATE-LIMIT-RESET"))
	assert.Equal(t, "30", headerValue(headers, "retry-after"))
	assert.Equal(t, "", headerValue(headers, "x-rate-limit-remaining"))
}

func TestQuotaFromHeaders(t *testing.T) {
	quota := quotaFromHeaders(network.Headers{
		"X-Rate-Limit-Limit":     "150",
		"X-Rate-Limit-Remaining": "37",
		"X-Rate-Limit-Reset":     "1717243200",
		"Content-Type":           "application/json",
	})

	assert.Equal(t, "150", quota.Limit)
	assert.Equal(t, "37", quota.Remaining)
	assert.Equal(t, "1717243200", quota.Reset)
}

func TestOnResponseReceivedFilters(t *testing.T) {
	t.Run("ignores non-xhr traffic", func(t *testing.T) {
		d, feed := newTestDriver()
		ev := xhrEvent(userTweetsURL, 200, nil)
		ev.Type = network.ResourceTypeImage

		d.onResponseReceived(ev)

		assert.Equal(t, 0, feed.Len())
		assert.Empty(t, d.pending)
	})

	t.Run("ignores non-timeline urls", func(t *testing.T) {
		d, feed := newTestDriver()
		d.onResponseReceived(xhrEvent("https://x.com/i/api/graphql/AbC/HomeTimeline", 200, nil))

		assert.Equal(t, 0, feed.Len())
		assert.Empty(t, d.pending)
	})

	t.Run("holds ok responses for their body", func(t *testing.T) {
		d, feed := newTestDriver()
		d.onResponseReceived(xhrEvent(userTweetsURL, 200, network.Headers{
			"x-rate-limit-remaining": "42",
		}))

		assert.Equal(t, 0, feed.Len())
		require.Len(t, d.pending, 1)
		pend := d.pending[network.RequestID("req-1")]
		assert.Equal(t, userTweetsURL, pend.url)
		assert.Equal(t, "42", pend.quota.Remaining)
	})

	t.Run("feeds rate limited responses immediately", func(t *testing.T) {
		d, feed := newTestDriver()
		d.onResponseReceived(xhrEvent(userTweetsURL, 429, network.Headers{
			"x-rate-limit-remaining": "0",
			"x-rate-limit-reset":     "1717243200",
		}))

		assert.Empty(t, d.pending)
		responses := feed.Drain()
		require.Len(t, responses, 1)
		assert.True(t, responses[0].RateLimited())
		assert.Nil(t, responses[0].Body)
		assert.Equal(t, "0", responses[0].Quota.Remaining)
		assert.False(t, responses[0].ReceivedAt.IsZero())
	})
}

func TestLoadingLifecycleCleansPending(t *testing.T) {
	d, feed := newTestDriver()
	d.onResponseReceived(xhrEvent(userTweetsURL, 200, nil))
	require.Len(t, d.pending, 1)

	t.Run("aborted request drops its entry", func(t *testing.T) {
		d.onLoadingFailed(&network.EventLoadingFailed{RequestID: network.RequestID("req-1")})
		assert.Empty(t, d.pending)
		assert.Equal(t, 0, feed.Len())
	})

	t.Run("finish without a matched response is a no-op", func(t *testing.T) {
		d.onLoadingFinished(context.Background(), &network.EventLoadingFinished{
			RequestID: network.RequestID("unseen"),
		})
		assert.Empty(t, d.pending)
		assert.Equal(t, 0, feed.Len())
	})
}

func TestDriverRequiresStart(t *testing.T) {
	d, _ := newTestDriver()

	err := d.TriggerScrollStep(context.Background())
	require.Error(t, err)
	assert.True(t, errs.IsType(err, errs.ErrorTypeNavigation))

	_, err = d.CurrentExtent(context.Background())
	require.Error(t, err)

	// Close before Start must not panic.
	d.Close()
}

func TestAuthenticateRequiresTokens(t *testing.T) {
	d, _ := newTestDriver()

	assert.ErrorIs(t, d.Authenticate(context.Background(), nil), errs.ErrNoCredentials)
	assert.ErrorIs(t, d.Authenticate(context.Background(), &auth.Account{
		Username:  "kepler",
		AuthToken: "tok",
	}), errs.ErrNoCredentials)
}

func TestAllocatorOptions(t *testing.T) {
	base := allocatorOptions(config.BrowserConfig{Headless: false})
	headless := allocatorOptions(config.BrowserConfig{Headless: true})
	withPath := allocatorOptions(config.BrowserConfig{ExecPath: "/usr/bin/chromium"})

	assert.Greater(t, len(base), len(chromedp.DefaultExecAllocatorOptions[:]))
	assert.Len(t, headless, len(base)+1)
	assert.Len(t, withPath, len(base)+1)
}
