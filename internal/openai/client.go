package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/digkill/NabiBot/internal/config"
)

// ErrEmptyResponse is returned when the API answered 2xx without usable content.
var ErrEmptyResponse = errors.New("openai: empty response")

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openai error: status=%d body=%s", e.Status, e.Body)
}

type Client struct {
	apiKey     string
	baseURL    string
	chatModel  string
	imageModel string
	httpClient *http.Client
	log        *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		apiKey:     cfg.OpenAIAPIKey,
		baseURL:    strings.TrimRight(cfg.OpenAIBaseURL, "/"),
		chatModel:  cfg.OpenAIChatModel,
		imageModel: cfg.OpenAIImageModel,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// Message is one chat-completion message. Content is either a string or a
// slice of ContentPart for vision requests.
type Message struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type ContentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageRef `json:"image_url,omitempty"`
}

type imageRef struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Chat runs a completion and returns the first choice's content. With jsonMode
// the model is constrained to emit a single JSON object.
func (c *Client) Chat(ctx context.Context, messages []Message, jsonMode bool) (string, error) {
	body := chatRequest{
		Model:       c.chatModel,
		Messages:    messages,
		Temperature: 0.4,
	}
	if jsonMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var resp chatResponse
	if err := c.post(ctx, "/v1/chat/completions", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return "", ErrEmptyResponse
	}
	return resp.Choices[0].Message.Content, nil
}

// DescribeImage asks the vision model for a textual description of the image
// at imageURL, following instruction.
func (c *Client) DescribeImage(ctx context.Context, imageURL, instruction string) (string, error) {
	if instruction == "" {
		instruction = "Describe this image in detail: people, clothing, setting, colors, composition and style. Answer in English."
	}
	messages := []Message{{
		Role: "user",
		Content: []ContentPart{
			{Type: "text", Text: instruction},
			{Type: "image_url", ImageURL: &imageRef{URL: imageURL}},
		},
	}}
	return c.Chat(ctx, messages, false)
}

type imageRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	N      int    `json:"n"`
	Size   string `json:"size"`
}

type imageResponse struct {
	Data []struct {
		URL string `json:"url"`
	} `json:"data"`
}

// GenerateImage creates one image and returns its URL.
func (c *Client) GenerateImage(ctx context.Context, prompt string) (string, error) {
	body := imageRequest{
		Model:  c.imageModel,
		Prompt: prompt,
		N:      1,
		Size:   "1024x1024",
	}
	var resp imageResponse
	if err := c.post(ctx, "/v1/images/generations", body, &resp); err != nil {
		return "", err
	}
	if len(resp.Data) == 0 || resp.Data[0].URL == "" {
		return "", ErrEmptyResponse
	}
	return resp.Data[0].URL, nil
}

func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	started := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post %s: %w", path, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode >= 300 {
		c.log.Error("openai request failed", "path", path, "status", resp.StatusCode, "body", truncateBody(rawBody))
		return &APIError{Status: resp.StatusCode, Body: truncateBody(rawBody)}
	}
	if err := json.Unmarshal(rawBody, out); err != nil {
		return fmt.Errorf("decode response: %w (body=%s)", err, truncateBody(rawBody))
	}
	c.log.Debug("openai request done", "path", path, "elapsed_ms", time.Since(started).Milliseconds())
	return nil
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
