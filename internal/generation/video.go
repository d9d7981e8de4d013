package generation

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/digkill/NabiBot/internal/config"
)

const videoProvider = "video"

// VideoAdapter drives a prediction-based video API. Polling is bounded by
// VIDEO_MAX_ATTEMPTS like the song adapter.
type VideoAdapter struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	poller     Poller
	log        *slog.Logger
}

func NewVideoAdapter(cfg config.Config, log *slog.Logger) *VideoAdapter {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &VideoAdapter{
		apiKey:     cfg.VideoAPIKey,
		baseURL:    strings.TrimRight(cfg.VideoBaseURL, "/"),
		model:      cfg.VideoModel,
		httpClient: &http.Client{Timeout: timeout},
		poller:     Poller{Interval: cfg.PollInterval, MaxAttempts: cfg.VideoMaxAttempts},
		log:        log,
	}
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  json.RawMessage `json:"error"`
}

// Generate animates sourceURL (first frame) per prompt. An empty sourceURL
// requests a text-only video.
func (a *VideoAdapter) Generate(ctx context.Context, prompt, sourceURL string) (string, error) {
	id, err := a.submit(ctx, prompt, sourceURL)
	if err != nil {
		return "", err
	}
	a.log.Info("video prediction created", "task_id", id, "with_image", sourceURL != "")

	return a.poller.run(ctx, a.log, videoProvider, id, func(ctx context.Context) (pollState, string, error) {
		return a.status(ctx, id)
	})
}

func (a *VideoAdapter) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + a.apiKey}
}

func (a *VideoAdapter) submit(ctx context.Context, prompt, sourceURL string) (string, error) {
	input := map[string]any{
		"prompt":           prompt,
		"prompt_optimizer": true,
	}
	if sourceURL != "" {
		input["first_frame_image"] = sourceURL
	}
	endpoint := fmt.Sprintf("%s/v1/models/%s/predictions", a.baseURL, a.model)

	var resp prediction
	if err := doJSON(ctx, a.httpClient, http.MethodPost, endpoint, a.headers(), map[string]any{"input": input}, &resp); err != nil {
		return "", &Error{Provider: videoProvider, Err: fmt.Errorf("create prediction: %w", err)}
	}
	if resp.ID == "" {
		return "", failure(videoProvider, "create prediction: empty id")
	}
	return resp.ID, nil
}

func (a *VideoAdapter) status(ctx context.Context, id string) (pollState, string, error) {
	endpoint := a.baseURL + "/v1/predictions/" + url.PathEscape(id)
	var resp prediction
	if err := doJSON(ctx, a.httpClient, http.MethodGet, endpoint, a.headers(), nil, &resp); err != nil {
		return statePending, "", &Error{Provider: videoProvider, Err: fmt.Errorf("get prediction: %w", err)}
	}

	switch resp.Status {
	case "succeeded":
		videoURL, err := decodeOutput(resp.Output)
		if err != nil {
			return stateFailed, "", &Error{Provider: videoProvider, Err: err}
		}
		return stateDone, videoURL, nil
	case "failed", "canceled":
		a.log.Error("video prediction failed", "task_id", id, "status", resp.Status, "reason", truncateBody(resp.Error))
		return stateFailed, "", nil
	case "starting", "processing", "":
		return statePending, "", nil
	default:
		return statePending, "", failure(videoProvider, "unknown prediction status %q", resp.Status)
	}
}
