package retrystrategy

import "net/http"

// Classify maps a completed HTTP exchange (or its transport error) onto
// an ErrorClass, per spec §7.
func Classify(statusCode int, transportErr error) ErrorClass {
	if transportErr != nil {
		return ClassTransport
	}
	switch {
	case statusCode >= 200 && statusCode < 300:
		return ClassNone
	case statusCode == http.StatusServiceUnavailable:
		// S3 uses 503 both for generic transient failures and for the
		// "SlowDown" throttling response; both retry, but throttling
		// backs off on a slower curve.
		return ClassThrottling
	case statusCode == http.StatusTooManyRequests:
		return ClassThrottling
	case statusCode == http.StatusNotImplemented:
		// 501 Not Implemented is a permanent server response, not a
		// transient one, even though it is >= 500.
		return ClassServerPermanent
	case statusCode >= 500:
		return ClassServerTransient
	case statusCode == http.StatusRequestTimeout:
		return ClassServerTransient
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return ClassAuth
	case statusCode >= 400:
		return ClassServerPermanent
	default:
		return ClassNone
	}
}
