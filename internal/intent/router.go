package intent

import (
	"context"
	"log/slog"

	"github.com/digkill/NabiBot/internal/config"
	"github.com/digkill/NabiBot/internal/models"
)

// Input is one inbound message as seen by the router.
type Input struct {
	Text     string
	HasImage bool

	// HasPreviousImage is set when an earlier photo from this user is still
	// remembered. Keyword mode ignores it.
	HasPreviousImage bool

	// History holds prior turns, oldest first. Keyword mode ignores it.
	History []models.Turn
}

// Router maps an inbound message to a Decision. Implementations never fail:
// internal errors degrade to a chat decision with an apology.
type Router interface {
	Route(ctx context.Context, in Input) models.Decision
}

// New returns the router for the configured mode.
func New(mode string, completer Completer, log *slog.Logger) Router {
	if mode == config.RouterModeKeyword || completer == nil {
		log.Info("intent router: keyword mode")
		return Keyword{}
	}
	log.Info("intent router: llm mode")
	return NewClassifier(completer, log)
}
