package gmail

import (
	"encoding/base64"
	"strings"
	"time"

	"google.golang.org/api/gmail/v1"

	"github.com/custodia-labs/triage/internal/core/domain"
	"github.com/custodia-labs/triage/internal/normalisers/html"
)

// noContent is the body of a message without a readable text part.
const noContent = "No readable content"

// ToMessage converts a Gmail message fetched with format "full".
func ToMessage(msg *gmail.Message) *domain.Message {
	out := &domain.Message{
		ID:         msg.Id,
		ThreadID:   msg.ThreadId,
		ReceivedAt: time.UnixMilli(msg.InternalDate).UTC(),
		Cursor:     msg.HistoryId,
		Subject:    "No Subject",
	}
	if msg.Payload == nil {
		out.Body = noContent
		return out
	}

	for _, h := range msg.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "subject":
			out.Subject = h.Value
		case "from":
			out.From = h.Value
		case "to":
			out.To = h.Value
		case "message-id":
			out.MessageID = strings.TrimSpace(h.Value)
		case "references":
			out.References = strings.Fields(h.Value)
		}
	}
	out.Body = ExtractBody(msg.Payload)
	return out
}

// ExtractBody returns the message text, preferring a text/plain part and
// falling back to the text of an HTML part.
func ExtractBody(part *gmail.MessagePart) string {
	if text := findPart(part, "text/plain"); text != "" {
		return text
	}
	if markup := findPart(part, "text/html"); markup != "" {
		return html.Strip(markup)
	}
	return noContent
}

// findPart searches part and its children depth first for mimeType.
func findPart(part *gmail.MessagePart, mimeType string) string {
	if part == nil {
		return ""
	}
	if strings.EqualFold(part.MimeType, mimeType) && part.Body != nil && part.Body.Data != "" {
		if data, ok := decodeData(part.Body.Data); ok {
			return data
		}
	}
	for _, child := range part.Parts {
		if text := findPart(child, mimeType); text != "" {
			return text
		}
	}
	return ""
}

// decodeData decodes a base64url body, with or without padding.
func decodeData(s string) (string, bool) {
	if b, err := base64.URLEncoding.DecodeString(s); err == nil {
		return string(b), true
	}
	if b, err := base64.RawURLEncoding.DecodeString(s); err == nil {
		return string(b), true
	}
	return "", false
}

// isSpamOrTrash checks if the message has spam or trash labels.
func isSpamOrTrash(labels []string) bool {
	for _, label := range labels {
		if label == "SPAM" || label == "TRASH" {
			return true
		}
	}
	return false
}
