package whatsapp

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Message types the pipeline distinguishes.
const (
	MessageText  = "text"
	MessageImage = "image"
)

// WebhookPayload is the Cloud API notification envelope.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Contacts         []Contact         `json:"contacts"`
	Messages         []InboundMessage  `json:"messages"`
	Statuses         []json.RawMessage `json:"statuses"`
}

type Contact struct {
	WaID    string `json:"wa_id"`
	Profile struct {
		Name string `json:"name"`
	} `json:"profile"`
}

type InboundMessage struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	Timestamp string    `json:"timestamp"`
	Type      string    `json:"type"`
	Text      *TextPart `json:"text,omitempty"`
	Image     *MediaRef `json:"image,omitempty"`
}

type TextPart struct {
	Body string `json:"body"`
}

type MediaRef struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

// Body is the user-visible text: the text body, or the image caption.
func (m *InboundMessage) Body() string {
	switch {
	case m.Text != nil:
		return strings.TrimSpace(m.Text.Body)
	case m.Image != nil:
		return strings.TrimSpace(m.Image.Caption)
	default:
		return ""
	}
}

// ParseWebhook returns the first message of a notification, or nil when the
// notification carries none (delivery statuses, read receipts).
func ParseWebhook(body []byte) (*InboundMessage, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}
	if len(payload.Entry) == 0 || len(payload.Entry[0].Changes) == 0 {
		return nil, nil
	}
	messages := payload.Entry[0].Changes[0].Value.Messages
	if len(messages) == 0 {
		return nil, nil
	}
	msg := messages[0]
	if msg.From == "" {
		return nil, fmt.Errorf("webhook message %q without sender", msg.ID)
	}
	return &msg, nil
}
