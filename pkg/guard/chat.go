package guard

import (
	"context"

	"github.com/trustfence/trustfence-go/pkg/scan"
)

// ── Chat-style provider shape (message list) ─────────────────────────────

// ChatMessage is one entry in a chat-style conversation. Content is either
// a flat string or a []ChatPart; decoded-JSON equivalents are accepted too.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ChatPart is a typed content part within a chat message.
type ChatPart struct {
	Type     string `json:"type"`
	Text     string `json:"text,omitempty"`
	ImageURL string `json:"image_url,omitempty"`
}

// ChatRequest is the provider-native request for a chat completion.
type ChatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

// ChatChoice is one completion returned by the provider.
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

// ChatUsage reports token accounting for a completion.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatResponse is the provider-native completion response. The guard
// returns it untouched.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChunk is one streamed completion delta.
type ChatChunk struct {
	ID      string       `json:"id"`
	Choices []ChatChoice `json:"choices"`
}

// ChatStream yields completion chunks. The guard passes the provider's
// stream through unchanged; output is never scanned.
type ChatStream interface {
	Recv() (*ChatChunk, error)
	Close() error
}

// ChatCompleter is the injected provider capability. Callers construct
// their provider client themselves and hand it to NewChatGuard; the guard
// never loads provider SDKs dynamically.
type ChatCompleter interface {
	CreateChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	CreateChatCompletionStream(ctx context.Context, req *ChatRequest) (ChatStream, error)
}

// ── Guard ────────────────────────────────────────────────────────────────

// ChatGuard intercepts chat-completion calls, scanning the user-authored
// message text before the provider is invoked.
type ChatGuard struct {
	provider ChatCompleter
	gate     *gate
}

// NewChatGuard wraps provider with pre-flight scanning through scanner.
func NewChatGuard(provider ChatCompleter, scanner Scanner, opts ...Option) (*ChatGuard, error) {
	if provider == nil {
		return nil, &scan.ConfigError{Field: "provider", Reason: "must not be nil"}
	}
	if scanner == nil {
		return nil, &scan.ConfigError{Field: "scanner", Reason: "must not be nil"}
	}
	return &ChatGuard{provider: provider, gate: newGate(scanner, opts)}, nil
}

// CreateChatCompletion scans the request's user messages, then forwards the
// original request to the provider. An unsafe verdict returns
// *scan.BlockedError and the provider is never invoked.
func (g *ChatGuard) CreateChatCompletion(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if err := g.gate.check(ctx, ExtractChatText(req.Messages)); err != nil {
		return nil, err
	}
	return g.provider.CreateChatCompletion(ctx, req)
}

// CreateChatCompletionStream is CreateChatCompletion for streaming calls.
// Only the input is scanned; the stream is returned unchanged.
func (g *ChatGuard) CreateChatCompletionStream(ctx context.Context, req *ChatRequest) (ChatStream, error) {
	if err := g.gate.check(ctx, ExtractChatText(req.Messages)); err != nil {
		return nil, err
	}
	return g.provider.CreateChatCompletionStream(ctx, req)
}

// ── Multi-turn session ───────────────────────────────────────────────────

// ChatSession is a guarded multi-turn conversation. Each Send scans only
// the newly supplied user content, not the accumulated history. A session
// is not safe for concurrent use; start one session per conversation.
type ChatSession struct {
	guard   *ChatGuard
	model   string
	history []ChatMessage
}

// NewSession starts a conversation against model, optionally seeded with
// prior history.
func (g *ChatGuard) NewSession(model string, history ...ChatMessage) *ChatSession {
	return &ChatSession{guard: g, model: model, history: history}
}

// History returns a copy of the conversation so far.
func (s *ChatSession) History() []ChatMessage {
	out := make([]ChatMessage, len(s.history))
	copy(out, s.history)
	return out
}

// Send scans content, appends it as a user message, and requests a
// completion over the full history. The assistant reply is recorded in the
// session before being returned.
func (s *ChatSession) Send(ctx context.Context, content string) (*ChatResponse, error) {
	if err := s.guard.gate.check(ctx, content); err != nil {
		return nil, err
	}

	s.history = append(s.history, ChatMessage{Role: roleUser, Content: content})
	resp, err := s.guard.provider.CreateChatCompletion(ctx, &ChatRequest{
		Model:    s.model,
		Messages: s.history,
	})
	if err != nil {
		return nil, err
	}
	if len(resp.Choices) > 0 {
		s.history = append(s.history, resp.Choices[0].Message)
	}
	return resp, nil
}

// SendStream is Send for streaming replies. The reply is not recorded in
// the session history; callers append it once the stream is drained.
func (s *ChatSession) SendStream(ctx context.Context, content string) (ChatStream, error) {
	if err := s.guard.gate.check(ctx, content); err != nil {
		return nil, err
	}

	s.history = append(s.history, ChatMessage{Role: roleUser, Content: content})
	return s.guard.provider.CreateChatCompletionStream(ctx, &ChatRequest{
		Model:    s.model,
		Messages: s.history,
	})
}
