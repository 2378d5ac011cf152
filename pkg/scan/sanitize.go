package scan

import (
	"errors"
	"strings"
)

// errMissingSafe marks a backend payload that omits the safe field. The
// caller routes it through the failure policy like any other contract
// violation rather than assuming the content is safe.
var errMissingSafe = errors.New("scan response missing safe field")

// rawVerdict is the backend's wire shape. Unmarshalling into this struct is
// the IP-protection boundary: fields naming detection stages, matched
// patterns, or policy internals are dropped here and never reach callers.
type rawVerdict struct {
	Safe       *bool            `json:"safe"`
	Reason     string           `json:"reason"`
	ThreatType string           `json:"threat_type"`
	Confidence *float64         `json:"confidence"`
	Severity   string           `json:"severity"`
	Violations []map[string]any `json:"violations"`
}

// threatSynonyms collapses backend-internal detection labels onto the public
// ThreatType enumeration. Lookup is case-insensitive with hyphens folded to
// underscores; see normalizeThreat.
var threatSynonyms = map[string]ThreatType{
	"prompt_injection":       ThreatPromptInjection,
	"injection":              ThreatPromptInjection,
	"instruction_override":   ThreatPromptInjection,
	"instruction_injection":  ThreatPromptInjection,
	"system_prompt_override": ThreatPromptInjection,
	"system_prompt_leak":     ThreatPromptInjection,
	"indirect_injection":     ThreatPromptInjection,
	"context_manipulation":   ThreatPromptInjection,
	"delimiter_attack":       ThreatPromptInjection,

	"jailbreak":           ThreatJailbreak,
	"do_anything_now":     ThreatJailbreak,
	"persona_hijack":      ThreatJailbreak,
	"role_play_exploit":   ThreatJailbreak,
	"guardrail_bypass":    ThreatJailbreak,
	"refusal_suppression": ThreatJailbreak,

	"sql_injection":   ThreatSQLInjection,
	"sqli":            ThreatSQLInjection,
	"tautology_or":    ThreatSQLInjection,
	"tautology_and":   ThreatSQLInjection,
	"union_injection": ThreatSQLInjection,
	"union_select":    ThreatSQLInjection,
	"stacked_query":   ThreatSQLInjection,
	"stacked_queries": ThreatSQLInjection,
	"blind_sqli":      ThreatSQLInjection,
	"time_based_sqli": ThreatSQLInjection,
	"comment_evasion": ThreatSQLInjection,

	"pii_exposure":  ThreatPIIExposure,
	"pii":           ThreatPIIExposure,
	"pii_leak":      ThreatPIIExposure,
	"personal_data": ThreatPIIExposure,
	"ssn_detected":  ThreatPIIExposure,
	"credit_card":   ThreatPIIExposure,
	"email_harvest": ThreatPIIExposure,

	"secrets_exposure": ThreatSecretsExposure,
	"secret_leak":      ThreatSecretsExposure,
	"api_key_detected": ThreatSecretsExposure,
	"credential_leak":  ThreatSecretsExposure,
	"private_key":      ThreatSecretsExposure,
	"token_leak":       ThreatSecretsExposure,

	"path_traversal":      ThreatPathTraversal,
	"directory_traversal": ThreatPathTraversal,
	"dot_dot_slash":       ThreatPathTraversal,
	"file_disclosure":     ThreatPathTraversal,
	"lfi":                 ThreatPathTraversal,
	"rfi":                 ThreatPathTraversal,

	"size_limit_exceeded": ThreatSizeLimit,
}

// defaultSeverity is used when the backend does not supply one of the four
// canonical severity strings.
var defaultSeverity = map[ThreatType]Severity{
	ThreatPromptInjection: SeverityHigh,
	ThreatJailbreak:       SeverityHigh,
	ThreatSQLInjection:    SeverityCritical,
	ThreatPIIExposure:     SeverityHigh,
	ThreatSecretsExposure: SeverityCritical,
	ThreatPathTraversal:   SeverityHigh,
	ThreatSizeLimit:       SeverityLow,
	ThreatUnknown:         SeverityMedium,
}

// guidance is the fixed remediation text attached to unsafe verdicts.
var guidance = map[ThreatType]string{
	ThreatPromptInjection: "Remove instructions that attempt to override the system prompt or redirect the model.",
	ThreatJailbreak:       "Remove content that attempts to bypass the model's safety guidelines.",
	ThreatSQLInjection:    "Use parameterized queries; never interpolate user input into SQL statements.",
	ThreatPIIExposure:     "Redact personal data such as names, emails, and government identifiers before sending.",
	ThreatSecretsExposure: "Remove credentials, API keys, and private keys from the prompt; rotate any exposed secret.",
	ThreatPathTraversal:   "Reject paths containing traversal sequences; resolve and validate paths against an allow-list.",
	ThreatSizeLimit:       "Reduce the input below the 100 KiB scan limit or split it into smaller requests.",
	ThreatUnknown:         "Review the flagged content and remove anything that could be interpreted as an attack.",
}

// normalizeThreat maps a raw backend label onto the closed enumeration.
// Idempotent: public ThreatType values map to themselves.
func normalizeThreat(raw string) ThreatType {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "-", "_")
	if t, ok := threatSynonyms[key]; ok {
		return t
	}
	return ThreatUnknown
}

// bucketConfidence converts the backend's 0.0–1.0 score into a coarse
// bucket. An absent score defaults to medium.
func bucketConfidence(score *float64) Confidence {
	switch {
	case score == nil:
		return ConfidenceMedium
	case *score >= 0.90:
		return ConfidenceHigh
	case *score >= 0.70:
		return ConfidenceMedium
	default:
		return ConfidenceLow
	}
}

// normalizeSeverity keeps a backend-supplied severity only when it is one of
// the four canonical values; otherwise the per-threat default applies.
func normalizeSeverity(raw string, threat ThreatType) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(raw))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityMedium:
		return SeverityMedium
	case SeverityLow:
		return SeverityLow
	}
	return defaultSeverity[threat]
}

// sanitize converts a raw backend verdict into the public contract. Pure
// function, no I/O. A payload without a safe field is rejected with
// errMissingSafe so the transport can apply the failure policy.
func sanitize(raw rawVerdict) (*Verdict, error) {
	if raw.Safe == nil {
		return nil, errMissingSafe
	}

	if *raw.Safe {
		// Nothing but the reason crosses the boundary for safe verdicts.
		return &Verdict{Safe: true, Reason: raw.Reason}, nil
	}

	threat := normalizeThreat(raw.ThreatType)
	text := guidance[threat]
	reason := raw.Reason
	if reason == "" {
		reason = text
	}

	return &Verdict{
		Safe:       false,
		Reason:     reason,
		ThreatType: threat,
		Severity:   normalizeSeverity(raw.Severity, threat),
		Confidence: bucketConfidence(raw.Confidence),
		Guidance:   text,
		Violations: raw.Violations,
	}, nil
}
