package generation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

const imageProvider = "image"

// ImageAPI creates an image from a prompt and returns its URL.
type ImageAPI interface {
	GenerateImage(ctx context.Context, prompt string) (string, error)
}

// Describer turns an image into a textual description.
type Describer interface {
	DescribeImage(ctx context.Context, imageURL, instruction string) (string, error)
}

// ImageAdapter is synchronous. With a source image it recreates the scene from
// a vision description and applies the requested change on top, since the
// image provider does not take image-conditioned edits.
type ImageAdapter struct {
	api    ImageAPI
	vision Describer
	log    *slog.Logger
}

func NewImageAdapter(api ImageAPI, vision Describer, log *slog.Logger) *ImageAdapter {
	return &ImageAdapter{api: api, vision: vision, log: log}
}

func (a *ImageAdapter) Generate(ctx context.Context, prompt, sourceURL string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", failure(imageProvider, "empty prompt")
	}

	finalPrompt := prompt
	if sourceURL != "" {
		description, err := a.vision.DescribeImage(ctx, sourceURL, "")
		if err != nil {
			return "", &Error{Provider: imageProvider, Err: fmt.Errorf("describe source image: %w", err)}
		}
		finalPrompt = editPrompt(description, prompt)
		a.log.Debug("image edit prompt composed", "description_len", len(description))
	}

	imageURL, err := a.api.GenerateImage(ctx, finalPrompt)
	if err != nil {
		return "", &Error{Provider: imageProvider, Err: err}
	}
	return imageURL, nil
}

func editPrompt(description, request string) string {
	return fmt.Sprintf(
		"Recreate the following photo as faithfully as possible, keeping the same people, poses and composition.\n"+
			"Photo description: %s\n\n"+
			"Then apply this change: %s",
		strings.TrimSpace(description), strings.TrimSpace(request),
	)
}
