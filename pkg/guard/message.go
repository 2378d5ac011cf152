package guard

import (
	"context"

	"github.com/trustfence/trustfence-go/pkg/scan"
)

// ── Content-block provider shape ─────────────────────────────────────────

// ContentBlock is one typed block within a message. Only blocks with
// Type "text" carry scannable content; media blocks reference Source.
type ContentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *MediaSource `json:"source,omitempty"`
}

// MediaSource points at non-text block content (images, documents).
type MediaSource struct {
	MediaType string `json:"media_type"`
	Data      string `json:"data,omitempty"`
	URL       string `json:"url,omitempty"`
}

// MessageParam is one conversation entry in the content-block shape.
type MessageParam struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

// TextMessage is a convenience constructor for a single-text-block entry.
func TextMessage(role, text string) MessageParam {
	return MessageParam{Role: role, Content: []ContentBlock{{Type: "text", Text: text}}}
}

// MessageRequest is the provider-native request shape.
type MessageRequest struct {
	Model     string         `json:"model"`
	MaxTokens int            `json:"max_tokens"`
	System    string         `json:"system,omitempty"`
	Messages  []MessageParam `json:"messages"`
}

// MessageUsage reports token accounting.
type MessageUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// MessageResponse is the provider-native response, returned untouched.
type MessageResponse struct {
	ID         string         `json:"id"`
	Model      string         `json:"model"`
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      MessageUsage   `json:"usage"`
}

// MessageEvent is one streamed message event.
type MessageEvent struct {
	Type  string        `json:"type"`
	Delta *ContentBlock `json:"delta,omitempty"`
}

// MessageStream yields streamed message events, passed through unchanged.
type MessageStream interface {
	Recv() (*MessageEvent, error)
	Close() error
}

// MessageCreator is the injected provider capability for the content-block
// shape.
type MessageCreator interface {
	CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error)
	CreateMessageStream(ctx context.Context, req *MessageRequest) (MessageStream, error)
}

// ── Guard ────────────────────────────────────────────────────────────────

// MessageGuard intercepts message-creation calls for content-block shaped
// providers. Control flow is identical to ChatGuard; only the extraction
// differs.
type MessageGuard struct {
	provider MessageCreator
	gate     *gate
}

// NewMessageGuard wraps provider with pre-flight scanning through scanner.
func NewMessageGuard(provider MessageCreator, scanner Scanner, opts ...Option) (*MessageGuard, error) {
	if provider == nil {
		return nil, &scan.ConfigError{Field: "provider", Reason: "must not be nil"}
	}
	if scanner == nil {
		return nil, &scan.ConfigError{Field: "scanner", Reason: "must not be nil"}
	}
	return &MessageGuard{provider: provider, gate: newGate(scanner, opts)}, nil
}

// CreateMessage scans the user-authored text blocks, then forwards the
// original request unchanged.
func (g *MessageGuard) CreateMessage(ctx context.Context, req *MessageRequest) (*MessageResponse, error) {
	if err := g.gate.check(ctx, ExtractMessageText(req.Messages)); err != nil {
		return nil, err
	}
	return g.provider.CreateMessage(ctx, req)
}

// CreateMessageStream is CreateMessage for streaming calls.
func (g *MessageGuard) CreateMessageStream(ctx context.Context, req *MessageRequest) (MessageStream, error) {
	if err := g.gate.check(ctx, ExtractMessageText(req.Messages)); err != nil {
		return nil, err
	}
	return g.provider.CreateMessageStream(ctx, req)
}

// ── Multi-turn session ───────────────────────────────────────────────────

// MessageSession is a guarded multi-turn conversation in the content-block
// shape. Not safe for concurrent use.
type MessageSession struct {
	guard     *MessageGuard
	model     string
	maxTokens int
	system    string
	history   []MessageParam
}

// NewSession starts a conversation. maxTokens applies to every turn.
func (g *MessageGuard) NewSession(model string, maxTokens int, history ...MessageParam) *MessageSession {
	return &MessageSession{guard: g, model: model, maxTokens: maxTokens, history: history}
}

// WithSystem sets the system prompt for subsequent turns.
func (s *MessageSession) WithSystem(system string) *MessageSession {
	s.system = system
	return s
}

// History returns a copy of the conversation so far.
func (s *MessageSession) History() []MessageParam {
	out := make([]MessageParam, len(s.history))
	copy(out, s.history)
	return out
}

// Send scans content, appends it as a user turn, and requests the next
// message over the full history.
func (s *MessageSession) Send(ctx context.Context, content string) (*MessageResponse, error) {
	if err := s.guard.gate.check(ctx, content); err != nil {
		return nil, err
	}

	s.history = append(s.history, TextMessage(roleUser, content))
	resp, err := s.guard.provider.CreateMessage(ctx, s.request())
	if err != nil {
		return nil, err
	}
	s.history = append(s.history, MessageParam{Role: resp.Role, Content: resp.Content})
	return resp, nil
}

// SendStream is Send for streaming replies; the reply is not recorded.
func (s *MessageSession) SendStream(ctx context.Context, content string) (MessageStream, error) {
	if err := s.guard.gate.check(ctx, content); err != nil {
		return nil, err
	}

	s.history = append(s.history, TextMessage(roleUser, content))
	return s.guard.provider.CreateMessageStream(ctx, s.request())
}

func (s *MessageSession) request() *MessageRequest {
	return &MessageRequest{
		Model:     s.model,
		MaxTokens: s.maxTokens,
		System:    s.system,
		Messages:  s.history,
	}
}
