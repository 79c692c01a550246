package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"xscraper/pkg/auth"
	"xscraper/pkg/capture"
	"xscraper/pkg/config"
	errs "xscraper/pkg/errors"
	"xscraper/pkg/logger"
	"xscraper/pkg/retry"
	"xscraper/pkg/timeline"
)

const (
	// opTimeout bounds the short page operations: scrolls, probes, clicks.
	opTimeout = 10 * time.Second
	// cookieLifetime is how far in the future injected session cookies
	// expire. X rotates them server side long before this.
	cookieLifetime = 30 * 24 * time.Hour
	// cookieDomain scopes injected cookies to every X host.
	cookieDomain = ".x.com"
	// loginProbeInterval paces the login state poll after opening home.
	loginProbeInterval = 500 * time.Millisecond
	// navigationAttempts is how often a timeline navigation is retried
	// before giving up.
	navigationAttempts = 3
)

// Driver owns one Chrome instance and exposes the page operations the
// export engine needs. Captured timeline responses flow into the feed as a
// side effect of normal page traffic; the engine never talks to the
// network itself.
type Driver struct {
	cfg    config.BrowserConfig
	feed   *capture.Buffer
	logger logger.Logger

	// sem bounds concurrent response body fetches.
	sem *semaphore.Weighted

	mu          sync.Mutex
	started     bool
	ctx         context.Context
	cancelCtx   context.CancelFunc
	cancelAlloc context.CancelFunc

	pendMu  sync.Mutex
	pending map[network.RequestID]pendingBody
}

// NewDriver prepares a driver wired to the given capture feed. Nothing
// launches until Start.
func NewDriver(cfg config.BrowserConfig, feed *capture.Buffer) *Driver {
	concurrency := cfg.BodyFetchConcurrency
	if concurrency <= 0 {
		concurrency = config.DefaultConfig().Browser.BodyFetchConcurrency
	}
	return &Driver{
		cfg:     cfg,
		feed:    feed,
		logger:  logger.GetLogger(),
		sem:     semaphore.NewWeighted(int64(concurrency)),
		pending: make(map[network.RequestID]pendingBody),
	}
}

// Start launches Chrome, enables network tracking, and installs the
// response interceptor. The driver keeps running until Close even if ctx
// is later cancelled; ctx only scopes the launch itself.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errs.New(errs.ErrorTypeNavigation, "browser already started")
	}
	d.mu.Unlock()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, allocatorOptions(d.cfg)...)
	browserCtx, cancelCtx := chromedp.NewContext(allocCtx, chromedp.WithLogf(d.chromedpLogf))

	d.installInterceptor(browserCtx)

	if err := chromedp.Run(browserCtx, network.Enable()); err != nil {
		cancelCtx()
		cancelAlloc()
		return errs.Wrap(errs.ErrorTypeNavigation, "failed to launch browser", err)
	}

	d.mu.Lock()
	d.started = true
	d.ctx = browserCtx
	d.cancelCtx = cancelCtx
	d.cancelAlloc = cancelAlloc
	d.mu.Unlock()

	d.logger.InfoWithFields("Browser started", map[string]interface{}{
		"headless": d.cfg.Headless,
	})
	return nil
}

// Close shuts the browser down. Safe to call more than once.
func (d *Driver) Close() {
	d.mu.Lock()
	cancelCtx := d.cancelCtx
	cancelAlloc := d.cancelAlloc
	wasStarted := d.started
	d.started = false
	d.ctx = nil
	d.cancelCtx = nil
	d.cancelAlloc = nil
	d.mu.Unlock()

	if cancelCtx != nil {
		cancelCtx()
	}
	if cancelAlloc != nil {
		cancelAlloc()
	}
	if wasStarted {
		d.logger.Info("Browser closed")
	}
}

// Authenticate installs the account's session cookies so the page loads
// as a logged-in user. X needs both the auth_token and the ct0 CSRF
// cookie; ct0 stays readable from page scripts because the site mirrors
// it into a request header.
func (d *Driver) Authenticate(ctx context.Context, account *auth.Account) error {
	if account == nil || account.AuthToken == "" || account.CSRFToken == "" {
		return errs.ErrNoCredentials
	}

	expires := cdp.TimeSinceEpoch(time.Now().Add(cookieLifetime))
	err := d.run(ctx, d.navTimeout(), chromedp.ActionFunc(func(ctx context.Context) error {
		cookies := []struct {
			name     string
			value    string
			httpOnly bool
		}{
			{"auth_token", account.AuthToken, true},
			{"ct0", account.CSRFToken, false},
		}
		for _, c := range cookies {
			err := network.SetCookie(c.name, c.value).
				WithDomain(cookieDomain).
				WithPath("/").
				WithSecure(true).
				WithHTTPOnly(c.httpOnly).
				WithExpires(&expires).
				Do(ctx)
			if err != nil {
				return err
			}
		}
		if account.UserAgent != "" {
			return emulation.SetUserAgentOverride(account.UserAgent).Do(ctx)
		}
		return nil
	}))
	if err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, "failed to install session cookies", err)
	}

	d.logger.InfoWithFields("Session cookies installed", map[string]interface{}{
		"username": account.Username,
	})
	return nil
}

// LoggedIn opens the home page and reports whether the session cookies
// still hold. The page needs a moment to settle on either the composer
// button or the login form, so the probe polls.
func (d *Driver) LoggedIn(ctx context.Context) (bool, error) {
	if err := d.run(ctx, d.navTimeout(), chromedp.Navigate(timeline.BaseURL+"/home")); err != nil {
		return false, errs.NewNavigation("home page failed to load", err)
	}

	deadline := time.Now().Add(d.navTimeout())
	for time.Now().Before(deadline) {
		var state []bool
		if err := d.run(ctx, opTimeout, chromedp.Evaluate(loginProbeJS, &state)); err != nil {
			return false, errs.NewNavigation("login probe failed", err)
		}
		if len(state) == 2 {
			if state[0] {
				return true, nil
			}
			if state[1] {
				return false, nil
			}
		}
		if err := retry.Wait(ctx, loginProbeInterval); err != nil {
			return false, err
		}
	}
	return false, errs.New(errs.ErrorTypeNavigation, "could not determine login state")
}

// OpenTimeline navigates to the user's profile timeline and waits for the
// feed column to render. Flaky loads are retried with backoff.
func (d *Driver) OpenTimeline(ctx context.Context, username string) error {
	return d.OpenPage(ctx, timeline.ProfileURL(username))
}

// OpenPage navigates to any timeline page (profile, with-replies, search)
// and waits for the feed column to render. Flaky loads are retried with
// backoff.
func (d *Driver) OpenPage(ctx context.Context, url string) error {
	retrier := retry.NewNavigationRetrier(navigationAttempts, d.logger)

	err := retrier.DoWithErrorType(func() error {
		if err := d.run(ctx, d.navTimeout(),
			chromedp.Navigate(url),
			chromedp.WaitVisible(FeedColumn, chromedp.ByQuery),
		); err != nil {
			return errs.NewNavigation("timeline failed to load", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.logger.InfoWithFields("Timeline opened", map[string]interface{}{"url": url})
	return nil
}

// TriggerScrollStep advances the timeline by one viewport height.
func (d *Driver) TriggerScrollStep(ctx context.Context) error {
	if err := d.run(ctx, opTimeout, chromedp.Evaluate(scrollStepJS, nil)); err != nil {
		return errs.NewNavigation("scroll step failed", err)
	}
	return nil
}

// CurrentExtent reads the page's full scroll height. The engine uses an
// unchanged extent across polls as its end-of-timeline signal.
func (d *Driver) CurrentExtent(ctx context.Context) (int64, error) {
	var extent int64
	if err := d.run(ctx, opTimeout, chromedp.Evaluate(pageExtentJS, &extent)); err != nil {
		return 0, errs.NewNavigation("extent poll failed", err)
	}
	return extent, nil
}

// ErrorStateVisible reports whether the provider's error card is on
// screen.
func (d *Driver) ErrorStateVisible(ctx context.Context) (bool, error) {
	var visible bool
	if err := d.run(ctx, opTimeout, chromedp.Evaluate(errorCardProbeJS, &visible)); err != nil {
		return false, errs.NewNavigation("error card probe failed", err)
	}
	return visible, nil
}

// ClickRetry clicks the error card's retry button.
func (d *Driver) ClickRetry(ctx context.Context) error {
	if err := d.run(ctx, opTimeout, chromedp.Click(RetryButton, chromedp.ByQuery)); err != nil {
		return errs.NewNavigation("retry click failed", err)
	}
	return nil
}

// CurrentURL reports where the page currently is.
func (d *Driver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, opTimeout, chromedp.Location(&url)); err != nil {
		return "", errs.NewNavigation("location poll failed", err)
	}
	return url, nil
}

// run executes chromedp actions against the live browser context with a
// timeout. The caller's ctx gates entry only; a started action runs on the
// browser's own context.
func (d *Driver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	d.mu.Lock()
	browserCtx := d.ctx
	started := d.started
	d.mu.Unlock()

	if !started || browserCtx == nil {
		return errs.New(errs.ErrorTypeNavigation, "browser not started")
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tctx, cancel := context.WithTimeout(browserCtx, timeout)
	defer cancel()
	return chromedp.Run(tctx, actions...)
}

func (d *Driver) navTimeout() time.Duration {
	if d.cfg.NavigationTimeout > 0 {
		return d.cfg.NavigationTimeout
	}
	return config.DefaultConfig().Browser.NavigationTimeout
}

func (d *Driver) chromedpLogf(format string, args ...interface{}) {
	d.logger.WithField("source", "chromedp").Debug(fmt.Sprintf(format, args...))
}
