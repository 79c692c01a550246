package browser

// X DOM selectors and probe scripts.
// These are isolated here because X changes their DOM frequently.
// Update these when driving breaks.

const (
	// Timeline selectors
	FeedColumn   = `[data-testid="primaryColumn"]`
	TweetArticle = `article[data-testid="tweet"]`

	// Provider error card shown when a timeline request fails; its retry
	// button reloads the feed in place.
	ErrorCard   = `[data-testid="error-detail"]`
	RetryButton = `[data-testid="error-detail"] button[role="button"]`

	// Login state indicators
	HomeIndicator = `[data-testid="SideNav_NewTweet_Button"]`
	LoginForm     = `[data-testid="loginButton"]`
)

// Probe scripts evaluated in the page.
const (
	// scrollStepJS advances the timeline by one viewport.
	scrollStepJS = `window.scrollBy(0, window.innerHeight)`

	// pageExtentJS reads the full document height.
	pageExtentJS = `document.documentElement.scrollHeight`

	// errorCardProbeJS reports whether the provider error card is shown.
	errorCardProbeJS = `!!document.querySelector('[data-testid="error-detail"]')`

	// loginProbeJS reports [loggedIn, loggedOut]; both false while the
	// page is still deciding.
	loginProbeJS = `[!!document.querySelector('[data-testid="SideNav_NewTweet_Button"]'), !!document.querySelector('[data-testid="loginButton"]')]`
)
