// Package guard wraps LLM provider clients with pre-flight TrustFence
// scanning. Each wrapper intercepts a provider-shaped generation call,
// extracts the user-authored text, scans it, and either blocks the call
// with *scan.BlockedError or forwards the original request unmodified.
// Provider output is never scanned.
package guard

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/trustfence/trustfence-go/pkg/scan"
)

// Scanner is the scanning capability a guard depends on. *scan.Client
// satisfies it; tests substitute fakes.
type Scanner interface {
	Scan(ctx context.Context, prompt string, opts ...scan.RequestOption) (*scan.Verdict, error)
}

// Option configures any of the three guards.
type Option func(*gate)

// WithLogger attaches a zap logger to the guard. The default discards
// everything.
func WithLogger(l *zap.Logger) Option {
	return func(g *gate) {
		if l != nil {
			g.logger = l
		}
	}
}

// gate runs the shared pre-flight decision for every guarded entry point.
// State machine per call: extract → scan (skipped when there is no user
// content) → block or forward. The gate holds only immutable configuration,
// so concurrent calls need no coordination.
type gate struct {
	scanner Scanner
	logger  *zap.Logger
}

func newGate(scanner Scanner, opts []Option) *gate {
	g := &gate{scanner: scanner, logger: zap.NewNop()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// check scans text and returns nil to forward, *scan.BlockedError on an
// unsafe verdict, or the scanner's own error (fail-closed infrastructure
// failures). Empty or whitespace-only text forwards without a network call.
func (g *gate) check(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	v, err := g.scanner.Scan(ctx, text)
	if err != nil {
		return err
	}
	if v.Safe {
		g.logger.Debug("scan passed", zap.String("reason", v.Reason))
		return nil
	}

	g.logger.Warn("request blocked",
		zap.String("threat_type", string(v.ThreatType)),
		zap.String("confidence", string(v.Confidence)),
		zap.String("reason", v.Reason),
	)
	return &scan.BlockedError{
		Reason:     v.Reason,
		ThreatType: v.ThreatType,
		Confidence: v.Confidence,
		Violations: v.Violations,
	}
}
