package scan

import "fmt"

// ConfigError reports construction-time misconfiguration. It is returned
// synchronously by New and never deferred to the first scan call.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("trustfence config: %s: %s", e.Field, e.Reason)
}

// ScanError reports a scan infrastructure failure (timeout, transport
// error, or non-2xx response) under fail-closed mode. Under fail-open mode
// these failures are converted to safe verdicts instead and ScanError is
// never returned.
type ScanError struct {
	// StatusCode is the HTTP status of the scan response, or 0 when the
	// failure happened below HTTP (timeout, DNS, connection refused).
	StatusCode int
	Err        error
}

func (e *ScanError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("scan request failed: status %d", e.StatusCode)
	}
	return fmt.Sprintf("scan request failed: %v", e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// BlockedError is returned by an interception wrapper when the scan verdict
// is unsafe. The wrapped provider is never invoked. It carries enough
// structure for callers to build their own UX, but no detection internals.
type BlockedError struct {
	Reason     string
	ThreatType ThreatType
	Confidence Confidence
	Violations []map[string]any
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("request blocked: %s (threat=%s, confidence=%s)", e.Reason, e.ThreatType, e.Confidence)
}
