package guard

import "strings"

// roleUser marks user-authored conversation entries across all three
// provider shapes.
const roleUser = "user"

// ExtractChatText returns the newline-joined text of every user-role entry
// in a chat-style message list, in original order. Message content may be a
// flat string or an ordered list of typed parts; non-text parts are skipped
// silently. Returns "" when nothing matches.
func ExtractChatText(messages []ChatMessage) string {
	var spans []string
	for _, m := range messages {
		if m.Role != roleUser {
			continue
		}
		if s := AnyText(m.Content); s != "" {
			spans = append(spans, s)
		}
	}
	return strings.Join(spans, "\n")
}

// ExtractMessageText returns the user-authored text of a content-block
// message list. Only blocks typed "text" contribute; images and other media
// are ignored.
func ExtractMessageText(messages []MessageParam) string {
	var spans []string
	for _, m := range messages {
		if m.Role != roleUser {
			continue
		}
		var blocks []string
		for _, b := range m.Content {
			if b.Type == "text" && b.Text != "" {
				blocks = append(blocks, b.Text)
			}
		}
		if len(blocks) > 0 {
			spans = append(spans, strings.Join(blocks, "\n"))
		}
	}
	return strings.Join(spans, "\n")
}

// ExtractContentText returns the user-authored text of a nested-parts
// content list. Entries without a role are treated as user content, since
// the parts shape allows bare content objects.
func ExtractContentText(contents []Content) string {
	var spans []string
	for _, c := range contents {
		if c.Role != "" && c.Role != roleUser {
			continue
		}
		if s := partsText(c.Parts); s != "" {
			spans = append(spans, s)
		}
	}
	return strings.Join(spans, "\n")
}

func partsText(parts []Part) string {
	var spans []string
	for _, p := range parts {
		if p.Text != "" {
			spans = append(spans, p.Text)
		}
	}
	return strings.Join(spans, "\n")
}

// AnyText extracts user text from a loosely typed content value:
//
//   - a bare string is the entire user content
//   - a list of typed parts contributes only its text parts
//   - a nested object uses its "text" field, else recurses into "parts"
//   - decoded-JSON equivalents ([]any, map[string]any) follow the same rules
//
// Anything unrecognized yields "".
func AnyText(content any) string {
	switch v := content.(type) {
	case nil:
		return ""
	case string:
		return v
	case []ChatPart:
		var spans []string
		for _, p := range v {
			if p.Type == "text" && p.Text != "" {
				spans = append(spans, p.Text)
			}
		}
		return strings.Join(spans, "\n")
	case []any:
		var spans []string
		for _, item := range v {
			if s := AnyText(item); s != "" {
				spans = append(spans, s)
			}
		}
		return strings.Join(spans, "\n")
	case map[string]any:
		// Typed part maps contribute only when marked as text.
		if typ, ok := v["type"].(string); ok && typ != "text" {
			return ""
		}
		if s, ok := v["text"].(string); ok {
			return s
		}
		if parts, ok := v["parts"]; ok {
			return AnyText(parts)
		}
		return ""
	default:
		return ""
	}
}
