package intent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/digkill/NabiBot/internal/models"
	"github.com/digkill/NabiBot/internal/openai"
)

// Completer is the chat-completion call the classifier depends on.
type Completer interface {
	Chat(ctx context.Context, messages []openai.Message, jsonMode bool) (string, error)
}

const systemPrompt = `You are Nabi, a friendly WhatsApp assistant that creates songs, images and short videos for users who mostly write in Hebrew.
Classify the user's latest message and answer with ONE JSON object and nothing else:
{"type": "...", "prompt": "...", "response": "..."}

"type" is exactly one of:
- "chat": small talk or a question about you. Put your reply in "response".
- "song": the user wants a song. Put an English generation prompt in "prompt" that asks for Hebrew lyrics and keeps any musical style the user named.
- "image_new": the user wants a new image from text. Put a detailed English image prompt in "prompt".
- "image_edit": the user wants to change or decorate a photo they sent now or earlier. Put the requested change, in English, in "prompt".
- "video": the user wants a photo animated into a short video. Put an English motion prompt in "prompt".
- "clarify": the request is ambiguous. Put a short clarifying question in "response".

Rules:
- "response" is always in the user's language. "prompt" is always in English.
- Leave "prompt" empty for chat and clarify, and "response" empty for the other types.
- image_edit and video need a photo. If no photo is available, use clarify and ask for one.`

// rawDecision is the JSON contract the model must follow.
type rawDecision struct {
	Type     string `json:"type"`
	Prompt   string `json:"prompt"`
	Response string `json:"response"`
}

var errSchema = errors.New("decision violates schema")

// Classifier routes by asking a language model for a constrained JSON decision.
type Classifier struct {
	completer Completer
	log       *slog.Logger
}

func NewClassifier(completer Completer, log *slog.Logger) *Classifier {
	return &Classifier{completer: completer, log: log}
}

func (c *Classifier) Route(ctx context.Context, in Input) models.Decision {
	decision, err := c.classify(ctx, in)
	if err != nil {
		c.log.Warn("intent classification failed", "err", err)
		return models.Decision{Type: models.IntentChat, Reply: ReplyApology}
	}
	return decision
}

func (c *Classifier) classify(ctx context.Context, in Input) (models.Decision, error) {
	messages := make([]openai.Message, 0, len(in.History)+2)
	messages = append(messages, openai.Message{Role: "system", Content: systemPrompt})
	for _, turn := range in.History {
		messages = append(messages, openai.Message{Role: string(turn.Role), Content: turn.Content})
	}
	messages = append(messages, openai.Message{Role: "user", Content: userContent(in)})

	reply, err := c.completer.Chat(ctx, messages, true)
	if err != nil {
		return models.Decision{}, fmt.Errorf("completion: %w", err)
	}
	return parseDecision(reply)
}

func userContent(in Input) string {
	photo := "no"
	switch {
	case in.HasImage:
		photo = "yes, attached to this message"
	case in.HasPreviousImage:
		photo = "yes, sent earlier"
	}
	text := strings.TrimSpace(in.Text)
	if text == "" {
		text = "(no text)"
	}
	return fmt.Sprintf("Photo available: %s\nMessage: %s", photo, text)
}

func parseDecision(reply string) (models.Decision, error) {
	reply = strings.TrimSpace(reply)
	reply = strings.TrimPrefix(reply, "```json")
	reply = strings.TrimPrefix(reply, "```")
	reply = strings.TrimSuffix(reply, "```")

	var raw rawDecision
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &raw); err != nil {
		return models.Decision{}, fmt.Errorf("decode decision: %w", err)
	}

	kind := models.IntentType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw.Type)), "-", "_"))
	if !kind.Valid() {
		return models.Decision{}, fmt.Errorf("%w: unknown type %q", errSchema, raw.Type)
	}

	prompt := strings.TrimSpace(raw.Prompt)
	response := strings.TrimSpace(raw.Response)
	if kind.Generates() {
		if prompt == "" {
			return models.Decision{}, fmt.Errorf("%w: %s without prompt", errSchema, kind)
		}
		return models.Decision{Type: kind, Prompt: prompt}, nil
	}
	if response == "" {
		return models.Decision{}, fmt.Errorf("%w: %s without response", errSchema, kind)
	}
	return models.Decision{Type: kind, Reply: response}, nil
}
