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

const songProvider = "song"

// SongAdapter drives a task-based music API: submit, then poll the task until
// it completes.
type SongAdapter struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	poller     Poller
	log        *slog.Logger
}

func NewSongAdapter(cfg config.Config, log *slog.Logger) *SongAdapter {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &SongAdapter{
		apiKey:     cfg.SongAPIKey,
		baseURL:    strings.TrimRight(cfg.SongBaseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		poller:     Poller{Interval: cfg.PollInterval, MaxAttempts: cfg.SongMaxAttempts},
		log:        log,
	}
}

type songTaskEnvelope struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    struct {
		TaskID string          `json:"task_id"`
		Status string          `json:"status"`
		Output json.RawMessage `json:"output"`
		Error  struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"data"`
}

// Generate submits the prompt and returns the audio URL. sourceURL is ignored.
func (a *SongAdapter) Generate(ctx context.Context, prompt, _ string) (string, error) {
	taskID, err := a.submit(ctx, prompt)
	if err != nil {
		return "", err
	}
	a.log.Info("song task created", "task_id", taskID)

	return a.poller.run(ctx, a.log, songProvider, taskID, func(ctx context.Context) (pollState, string, error) {
		return a.status(ctx, taskID)
	})
}

func (a *SongAdapter) headers() map[string]string {
	return map[string]string{"x-api-key": a.apiKey}
}

func (a *SongAdapter) submit(ctx context.Context, prompt string) (string, error) {
	payload := map[string]any{
		"model":     "music-u",
		"task_type": "generate_music",
		"input": map[string]any{
			"gpt_description_prompt": prompt,
			"lyrics_type":            "generate",
		},
	}
	var resp songTaskEnvelope
	if err := doJSON(ctx, a.httpClient, http.MethodPost, a.baseURL+"/api/v1/task", a.headers(), payload, &resp); err != nil {
		return "", &Error{Provider: songProvider, Err: fmt.Errorf("create task: %w", err)}
	}
	if resp.Code != 0 && resp.Code != http.StatusOK {
		return "", failure(songProvider, "create task: code=%d message=%s", resp.Code, resp.Message)
	}
	if resp.Data.TaskID == "" {
		return "", failure(songProvider, "create task: empty task_id")
	}
	return resp.Data.TaskID, nil
}

func (a *SongAdapter) status(ctx context.Context, taskID string) (pollState, string, error) {
	endpoint := a.baseURL + "/api/v1/task/" + url.PathEscape(taskID)
	var resp songTaskEnvelope
	if err := doJSON(ctx, a.httpClient, http.MethodGet, endpoint, a.headers(), nil, &resp); err != nil {
		return statePending, "", &Error{Provider: songProvider, Err: fmt.Errorf("get task: %w", err)}
	}

	switch strings.ToLower(resp.Data.Status) {
	case "completed":
		audioURL, err := decodeOutput(resp.Data.Output)
		if err != nil {
			return stateFailed, "", &Error{Provider: songProvider, Err: err}
		}
		return stateDone, audioURL, nil
	case "failed":
		a.log.Error("song task failed", "task_id", taskID, "reason", resp.Data.Error.Message)
		return stateFailed, "", nil
	case "pending", "processing", "staging", "":
		return statePending, "", nil
	default:
		return statePending, "", failure(songProvider, "unknown task status %q", resp.Data.Status)
	}
}
