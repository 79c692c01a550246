package browser

import (
	"github.com/chromedp/chromedp"

	"xscraper/pkg/config"
)

// DefaultUserAgent is a realistic Chrome user agent. X serves a degraded
// page, or none at all, to clients that look automated.
const DefaultUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// allocatorOptions builds the chromedp allocator options. The automation
// fingerprint flags matter: X checks navigator.webdriver and refuses to
// serve the timeline to browsers that report it.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	width := cfg.WindowWidth
	if width <= 0 {
		width = 1280
	}
	height := cfg.WindowHeight
	if height <= 0 {
		height = 1600
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),

		// Prevent navigator.webdriver = true detection.
		chromedp.Flag("disable-blink-features", "AutomationControlled"),

		chromedp.UserAgent(DefaultUserAgent),
		chromedp.WindowSize(width, height),

		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-default-apps", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)

	if cfg.Headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}

	return opts
}
