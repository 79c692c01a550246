// Package browser drives a real Chrome instance over the devtools
// protocol and captures the timeline GraphQL traffic the page generates.
//
// The Driver plays two roles at once. As a page driver it scrolls the
// timeline, probes the page extent, watches for the provider's error
// card, and reports the current URL. As an interceptor it subscribes to
// the devtools network events, filters them down to timeline GraphQL
// responses, fetches their bodies off the event loop, and appends the
// results to a capture buffer for the export engine to drain.
//
// The browser is launched with an automation-hostile fingerprint
// profile; X refuses to serve the timeline to clients that report
// navigator.webdriver.
package browser
