// Package retry provides exponential backoff and retry logic for handling
// transient failures in browser navigation and network operations.
//
// Features:
//   - Multiple backoff strategies (exponential, linear, constant)
//   - Jitter to avoid thundering herd problems
//   - Context support for cancellation
//   - Error-type specific backoff strategies
//   - Configurable retry predicates
//   - Integration with the exporter error taxonomy
//
// Basic usage:
//
//	// Simple retry with defaults
//	err := retry.Do(func() error {
//		return driver.Navigate(ctx, url)
//	}, nil)
//
//	// Custom configuration
//	cfg := &retry.Config{
//		MaxAttempts: 5,
//		Backoff: &retry.ExponentialBackoff{
//			BaseDelay:    2 * time.Second,
//			MaxDelay:     30 * time.Second,
//			Multiplier:   2.0,
//			JitterFactor: 0.1,
//		},
//		RetryIf: retry.DefaultRetryIf,
//		Logger:  logger.GetLogger(),
//	}
//	err := retry.Do(operation, cfg)
//
//	// Navigation-specific retrier with error-type backoff
//	retrier := retry.NewNavigationRetrier(3, logger.GetLogger())
//	err := retrier.DoWithErrorType(func() error {
//		return driver.TriggerScrollStep(ctx)
//	})
//
// Error Type Handling:
//
// The package provides different backoff strategies for different error types:
//   - Network errors: Quick retries with exponential backoff
//   - Navigation errors: Moderate delays with exponential backoff
//   - Rate limit errors: No retry (the session pauses instead)
//   - Auth/NotFound errors: No retry (non-retryable)
package retry
