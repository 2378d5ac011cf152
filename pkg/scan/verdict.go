// Package scan provides the TrustFence scanning client. It submits
// user-authored content to the TrustFence scan API before that content
// reaches an LLM provider, and normalizes the backend's raw verdict into
// a small, stable public contract.
package scan

// ThreatType classifies a detected issue. The set is closed: raw backend
// labels are collapsed onto these values during sanitization, and anything
// unrecognized becomes ThreatUnknown.
type ThreatType string

const (
	ThreatPromptInjection ThreatType = "prompt_injection"
	ThreatJailbreak       ThreatType = "jailbreak"
	ThreatSQLInjection    ThreatType = "sql_injection"
	ThreatPIIExposure     ThreatType = "pii_exposure"
	ThreatSecretsExposure ThreatType = "secrets_exposure"
	ThreatPathTraversal   ThreatType = "path_traversal"
	ThreatSizeLimit       ThreatType = "size_limit_exceeded"
	ThreatUnknown         ThreatType = "unknown"
)

// Severity labels how serious a detected threat is.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityHigh     Severity = "high"
	SeverityMedium   Severity = "medium"
	SeverityLow      Severity = "low"
)

// Confidence is a coarse bucket replacing the backend's raw numeric score.
// The raw score never reaches callers.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// ContentType selects the analyzer for ScanSpecialized.
type ContentType string

const (
	ContentSQL         ContentType = "sql"
	ContentFilePath    ContentType = "file_path"
	ContentFileContent ContentType = "file_content"
)

// Verdict is the normalized safety determination returned by a scan.
//
// A safe verdict carries only Safe and Reason; every other field is empty.
// An unsafe verdict always carries a ThreatType from the closed enumeration
// and a derived Severity.
type Verdict struct {
	Safe       bool             `json:"safe"`
	Reason     string           `json:"reason"`
	ThreatType ThreatType       `json:"threat_type,omitempty"`
	Severity   Severity         `json:"severity,omitempty"`
	Confidence Confidence       `json:"confidence,omitempty"`
	Guidance   string           `json:"guidance,omitempty"`
	Violations []map[string]any `json:"violations,omitempty"`
}
