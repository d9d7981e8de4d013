package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/NabiBot/internal/config"
	"github.com/digkill/NabiBot/internal/models"
)

// ErrMediaResolution marks a media id that could not be turned into a fetchable URL.
var ErrMediaResolution = errors.New("media resolution failed")

const maxMediaBytes = 16 << 20

// Client is the Cloud API relay. Send failures are logged and never returned
// as errors: there is no other channel to report them through.
type Client struct {
	token         string
	phoneNumberID string
	baseURL       string
	httpClient    *http.Client
	log           *slog.Logger
}

func NewClient(cfg config.Config, log *slog.Logger) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		token:         cfg.WhatsAppToken,
		phoneNumberID: cfg.PhoneNumberID,
		baseURL:       strings.TrimRight(cfg.GraphAPIBaseURL, "/"),
		httpClient:    &http.Client{Timeout: timeout},
		log:           log,
	}
}

type textBody struct {
	Body string `json:"body"`
}

type linkBody struct {
	Link string `json:"link"`
}

type outboundMessage struct {
	MessagingProduct string    `json:"messaging_product"`
	To               string    `json:"to"`
	Type             string    `json:"type"`
	Text             *textBody `json:"text,omitempty"`
	Image            *linkBody `json:"image,omitempty"`
	Audio            *linkBody `json:"audio,omitempty"`
	Video            *linkBody `json:"video,omitempty"`
}

// ErrEmptyText is returned by DeliverText for blank text, which the platform rejects.
var ErrEmptyText = errors.New("empty text message")

// SendText posts a text message, logging any failure. Blank text is skipped.
func (c *Client) SendText(ctx context.Context, to, text string) {
	if err := c.DeliverText(ctx, to, text); err != nil {
		if errors.Is(err, ErrEmptyText) {
			c.log.Warn("skip empty whatsapp text", "to", to)
			return
		}
		c.log.Error("send whatsapp text", "to", to, "err", err)
	}
}

// DeliverText posts a text message and returns the failure, for callers that
// count deliveries.
func (c *Client) DeliverText(ctx context.Context, to, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	return c.send(ctx, outboundMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             "text",
		Text:             &textBody{Body: text},
	})
}

// SendMedia posts an image, audio or video by link and reports whether the
// platform accepted it.
func (c *Client) SendMedia(ctx context.Context, to string, kind models.MediaKind, link string) bool {
	msg := outboundMessage{
		MessagingProduct: "whatsapp",
		To:               to,
		Type:             string(kind),
	}
	body := &linkBody{Link: link}
	switch kind {
	case models.MediaImage:
		msg.Image = body
	case models.MediaAudio:
		msg.Audio = body
	case models.MediaVideo:
		msg.Video = body
	default:
		c.log.Error("send whatsapp media", "to", to, "err", fmt.Errorf("unsupported media kind %q", kind))
		return false
	}
	if err := c.send(ctx, msg); err != nil {
		c.log.Error("send whatsapp media", "to", to, "kind", kind, "err", err)
		return false
	}
	return true
}

func (c *Client) send(ctx context.Context, msg outboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	endpoint := fmt.Sprintf("%s/%s/messages", c.baseURL, url.PathEscape(c.phoneNumberID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	defer resp.Body.Close()

	rawBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 300 {
		return fmt.Errorf("graph error: status=%d body=%s", resp.StatusCode, truncateBody(rawBody))
	}
	c.log.Debug("whatsapp message sent", "to", msg.To, "type", msg.Type)
	return nil
}

// FetchMediaURL resolves a platform media id to its download URL. The URL
// itself still requires the bearer token, see DownloadMedia.
func (c *Client) FetchMediaURL(ctx context.Context, mediaID string) (string, error) {
	if strings.TrimSpace(mediaID) == "" {
		return "", fmt.Errorf("%w: empty media id", ErrMediaResolution)
	}
	endpoint := fmt.Sprintf("%s/%s", c.baseURL, url.PathEscape(mediaID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: new request: %v", ErrMediaResolution, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: get media: %v", ErrMediaResolution, err)
	}
	defer resp.Body.Close()

	rawBody, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", fmt.Errorf("%w: read body: %v", ErrMediaResolution, err)
	}
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: status=%d body=%s", ErrMediaResolution, resp.StatusCode, truncateBody(rawBody))
	}

	var media struct {
		URL      string `json:"url"`
		MimeType string `json:"mime_type"`
	}
	if err := json.Unmarshal(rawBody, &media); err != nil {
		return "", fmt.Errorf("%w: decode: %v", ErrMediaResolution, err)
	}
	if media.URL == "" {
		return "", fmt.Errorf("%w: no url for media %s", ErrMediaResolution, mediaID)
	}
	return media.URL, nil
}

// DownloadMedia fetches a URL returned by FetchMediaURL with platform credentials.
func (c *Client) DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mediaURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: new request: %v", ErrMediaResolution, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: download: %v", ErrMediaResolution, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("%w: download status %d", ErrMediaResolution, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: read media: %v", ErrMediaResolution, err)
	}
	if len(data) > maxMediaBytes {
		return nil, "", fmt.Errorf("%w: media exceeds %d bytes", ErrMediaResolution, maxMediaBytes)
	}
	return data, normalizeContentType(resp.Header.Get("Content-Type"), data), nil
}

func normalizeContentType(header string, data []byte) string {
	ct := strings.ToLower(strings.TrimSpace(header))
	if idx := strings.Index(ct, ";"); idx > 0 {
		ct = ct[:idx]
	}
	if ct == "" || ct == "application/octet-stream" {
		ct = http.DetectContentType(data)
		if idx := strings.Index(ct, ";"); idx > 0 {
			ct = ct[:idx]
		}
	}
	return ct
}

func truncateBody(body []byte) string {
	const limit = 512
	s := strings.TrimSpace(string(body))
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "…"
}
