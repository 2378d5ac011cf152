package guard

import "testing"

func TestExtractChatText_userMessagesOnly(t *testing.T) {
	msgs := []ChatMessage{
		{Role: "user", Content: "A"},
		{Role: "assistant", Content: "B"},
		{Role: "user", Content: "C"},
	}
	if got := ExtractChatText(msgs); got != "A\nC" {
		t.Errorf("ExtractChatText = %q, want %q", got, "A\nC")
	}
}

func TestExtractChatText_typedParts(t *testing.T) {
	msgs := []ChatMessage{
		{Role: "user", Content: []ChatPart{
			{Type: "text", Text: "describe this"},
			{Type: "image_url", ImageURL: "https://img.example/cat.png"},
			{Type: "text", Text: "in detail"},
		}},
	}
	if got := ExtractChatText(msgs); got != "describe this\nin detail" {
		t.Errorf("ExtractChatText = %q", got)
	}
}

func TestExtractChatText_decodedJSONShapes(t *testing.T) {
	// Shapes as they arrive from encoding/json with Content declared any.
	msgs := []ChatMessage{
		{Role: "user", Content: []any{
			map[string]any{"type": "text", "text": "hello"},
			map[string]any{"type": "image_url", "image_url": "x"},
		}},
		{Role: "user", Content: map[string]any{"parts": []any{
			map[string]any{"text": "nested"},
		}}},
	}
	if got := ExtractChatText(msgs); got != "hello\nnested" {
		t.Errorf("ExtractChatText = %q", got)
	}
}

func TestExtractChatText_nothingMatches(t *testing.T) {
	msgs := []ChatMessage{
		{Role: "system", Content: "be nice"},
		{Role: "user", Content: []ChatPart{{Type: "image_url", ImageURL: "x"}}},
		{Role: "user", Content: 42},
	}
	if got := ExtractChatText(msgs); got != "" {
		t.Errorf("ExtractChatText = %q, want empty", got)
	}
}

func TestAnyText_bareString(t *testing.T) {
	if got := AnyText("just a prompt"); got != "just a prompt" {
		t.Errorf("AnyText = %q", got)
	}
}

func TestAnyText_nestedTextField(t *testing.T) {
	if got := AnyText(map[string]any{"text": "direct"}); got != "direct" {
		t.Errorf("AnyText = %q", got)
	}
}

func TestExtractMessageText_textBlocksOnly(t *testing.T) {
	msgs := []MessageParam{
		{Role: "user", Content: []ContentBlock{
			{Type: "text", Text: "first"},
			{Type: "image", Source: &MediaSource{MediaType: "image/png"}},
		}},
		{Role: "assistant", Content: []ContentBlock{{Type: "text", Text: "reply"}}},
		{Role: "user", Content: []ContentBlock{{Type: "text", Text: "second"}}},
	}
	if got := ExtractMessageText(msgs); got != "first\nsecond" {
		t.Errorf("ExtractMessageText = %q", got)
	}
}

func TestExtractContentText_rolesAndBareContent(t *testing.T) {
	contents := []Content{
		{Role: "user", Parts: []Part{{Text: "one"}, {InlineData: &Blob{MIMEType: "image/png"}}}},
		{Role: "model", Parts: []Part{{Text: "ignored"}}},
		{Parts: []Part{{Text: "bare"}}},
	}
	if got := ExtractContentText(contents); got != "one\nbare" {
		t.Errorf("ExtractContentText = %q", got)
	}
}

func TestExtract_emptyInputs(t *testing.T) {
	if got := ExtractChatText(nil); got != "" {
		t.Errorf("ExtractChatText(nil) = %q", got)
	}
	if got := ExtractMessageText(nil); got != "" {
		t.Errorf("ExtractMessageText(nil) = %q", got)
	}
	if got := ExtractContentText(nil); got != "" {
		t.Errorf("ExtractContentText(nil) = %q", got)
	}
}
