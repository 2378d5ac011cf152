package guard

import (
	"context"

	"github.com/trustfence/trustfence-go/pkg/scan"
)

// ── Nested-parts provider shape ──────────────────────────────────────────

// Part is one piece of content; either text or inline media.
type Part struct {
	Text       string `json:"text,omitempty"`
	InlineData *Blob  `json:"inline_data,omitempty"`
}

// Blob is inline binary content attached to a part.
type Blob struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// TextPart builds a plain text part.
func TextPart(text string) Part { return Part{Text: text} }

// Content is a role-tagged list of parts. An empty role counts as user
// content, matching providers that accept bare content objects.
type Content struct {
	Role  string `json:"role,omitempty"`
	Parts []Part `json:"parts"`
}

// GenerateRequest is the provider-native generation request.
type GenerateRequest struct {
	Model    string    `json:"model"`
	Contents []Content `json:"contents"`
}

// Candidate is one generated answer.
type Candidate struct {
	Content      Content `json:"content"`
	FinishReason string  `json:"finish_reason"`
	Index        int     `json:"index"`
}

// GenerateResponse is the provider-native response, returned untouched.
type GenerateResponse struct {
	Candidates []Candidate `json:"candidates"`
}

// ContentStream yields streamed response fragments unchanged.
type ContentStream interface {
	Recv() (*GenerateResponse, error)
	Close() error
}

// ContentGenerator is the injected provider capability for the
// nested-parts shape.
type ContentGenerator interface {
	GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error)
	GenerateContentStream(ctx context.Context, req *GenerateRequest) (ContentStream, error)
}

// ── Guard ────────────────────────────────────────────────────────────────

// ContentGuard intercepts generation calls for nested-parts shaped
// providers. Same control flow as the other guards.
type ContentGuard struct {
	provider ContentGenerator
	gate     *gate
}

// NewContentGuard wraps provider with pre-flight scanning through scanner.
func NewContentGuard(provider ContentGenerator, scanner Scanner, opts ...Option) (*ContentGuard, error) {
	if provider == nil {
		return nil, &scan.ConfigError{Field: "provider", Reason: "must not be nil"}
	}
	if scanner == nil {
		return nil, &scan.ConfigError{Field: "scanner", Reason: "must not be nil"}
	}
	return &ContentGuard{provider: provider, gate: newGate(scanner, opts)}, nil
}

// GenerateContent scans the user-authored parts, then forwards the
// original request unchanged.
func (g *ContentGuard) GenerateContent(ctx context.Context, req *GenerateRequest) (*GenerateResponse, error) {
	if err := g.gate.check(ctx, ExtractContentText(req.Contents)); err != nil {
		return nil, err
	}
	return g.provider.GenerateContent(ctx, req)
}

// GenerateContentStream is GenerateContent for streaming calls.
func (g *ContentGuard) GenerateContentStream(ctx context.Context, req *GenerateRequest) (ContentStream, error) {
	if err := g.gate.check(ctx, ExtractContentText(req.Contents)); err != nil {
		return nil, err
	}
	return g.provider.GenerateContentStream(ctx, req)
}

// ── Multi-turn chat ──────────────────────────────────────────────────────

// ContentSession is a guarded multi-turn conversation in the nested-parts
// shape. Not safe for concurrent use.
type ContentSession struct {
	guard   *ContentGuard
	model   string
	history []Content
}

// StartChat begins a conversation against model, optionally seeded with
// prior history.
func (g *ContentGuard) StartChat(model string, history ...Content) *ContentSession {
	return &ContentSession{guard: g, model: model, history: history}
}

// History returns a copy of the conversation so far.
func (s *ContentSession) History() []Content {
	out := make([]Content, len(s.history))
	copy(out, s.history)
	return out
}

// SendMessage scans the text of the supplied parts, appends them as a user
// turn, and generates over the full history. The model's reply is recorded
// in the session.
func (s *ContentSession) SendMessage(ctx context.Context, parts ...Part) (*GenerateResponse, error) {
	if err := s.guard.gate.check(ctx, partsText(parts)); err != nil {
		return nil, err
	}

	s.history = append(s.history, Content{Role: roleUser, Parts: parts})
	resp, err := s.guard.provider.GenerateContent(ctx, &GenerateRequest{
		Model:    s.model,
		Contents: s.history,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Candidates) > 0 {
		s.history = append(s.history, resp.Candidates[0].Content)
	}
	return resp, nil
}

// SendMessageStream is SendMessage for streaming replies; the reply is not
// recorded.
func (s *ContentSession) SendMessageStream(ctx context.Context, parts ...Part) (ContentStream, error) {
	if err := s.guard.gate.check(ctx, partsText(parts)); err != nil {
		return nil, err
	}

	s.history = append(s.history, Content{Role: roleUser, Parts: parts})
	return s.guard.provider.GenerateContentStream(ctx, &GenerateRequest{
		Model:    s.model,
		Contents: s.history,
	})
}
