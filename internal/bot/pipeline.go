package bot

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/digkill/NabiBot/internal/conversation"
	"github.com/digkill/NabiBot/internal/events"
	"github.com/digkill/NabiBot/internal/generation"
	"github.com/digkill/NabiBot/internal/intent"
	"github.com/digkill/NabiBot/internal/models"
	"github.com/digkill/NabiBot/internal/service"
	"github.com/digkill/NabiBot/internal/whatsapp"
)

// maxInlineImageBytes matches the platform's inbound image limit.
const maxInlineImageBytes = 5 << 20

// Messenger is the messaging-platform relay.
type Messenger interface {
	SendText(ctx context.Context, to, text string)
	SendMedia(ctx context.Context, to string, kind models.MediaKind, link string) bool
	FetchMediaURL(ctx context.Context, mediaID string) (string, error)
	DownloadMedia(ctx context.Context, mediaURL string) ([]byte, string, error)
}

type Users interface {
	GetOrCreate(ctx context.Context, phone string) (*models.User, error)
	Register(ctx context.Context, user *models.User, email string) error
}

type Ledger interface {
	CheckQuota(ctx context.Context, user *models.User, now time.Time) error
	RecordUsage(ctx context.Context, user *models.User, now time.Time) error
	LogCreation(ctx context.Context, user *models.User, kind models.IntentType) error
}

// Generator is one generation adapter.
type Generator interface {
	Generate(ctx context.Context, prompt, sourceURL string) (string, error)
}

// Uploader rehosts inbound media under a public URL.
type Uploader interface {
	Upload(ctx context.Context, data []byte, contentType string) (string, error)
}

type EventPublisher interface {
	PublishCreation(ctx context.Context, event events.CreationEvent)
}

// Deps bundles the pipeline collaborators. Uploader and Events are optional.
type Deps struct {
	Messenger  Messenger
	Users      Users
	Ledger     Ledger
	Router     intent.Router
	Image      Generator
	Song       Generator
	Video      Generator
	Context    conversation.Store
	Uploader   Uploader
	Events     EventPublisher
	PaymentURL string
	Log        *slog.Logger
}

// Pipeline handles one inbound WhatsApp message end to end.
type Pipeline struct {
	messenger  Messenger
	users      Users
	ledger     Ledger
	router     intent.Router
	generators map[models.IntentType]Generator
	store      conversation.Store
	uploader   Uploader
	events     EventPublisher
	paymentURL string
	log        *slog.Logger
	now        func() time.Time
}

func New(deps Deps) *Pipeline {
	return &Pipeline{
		messenger: deps.Messenger,
		users:     deps.Users,
		ledger:    deps.Ledger,
		router:    deps.Router,
		generators: map[models.IntentType]Generator{
			models.IntentImageNew:  deps.Image,
			models.IntentImageEdit: deps.Image,
			models.IntentSong:      deps.Song,
			models.IntentVideo:     deps.Video,
		},
		store:      deps.Context,
		uploader:   deps.Uploader,
		events:     deps.Events,
		paymentURL: strings.TrimSpace(deps.PaymentURL),
		log:        deps.Log,
		now:        time.Now,
	}
}

// HandlePayload parses a webhook notification and processes its message, if
// any. Malformed or message-less payloads are dropped.
func (p *Pipeline) HandlePayload(ctx context.Context, body []byte) {
	msg, err := whatsapp.ParseWebhook(body)
	if err != nil {
		p.log.Warn("drop webhook payload", "err", err)
		return
	}
	if msg == nil {
		p.log.Debug("webhook without message")
		return
	}
	p.Handle(ctx, msg)
}

// turn carries the per-message state through the pipeline steps.
type turn struct {
	phone    string
	text     string
	imageURL string
	user     *models.User
	log      *slog.Logger
}

func (p *Pipeline) Handle(ctx context.Context, msg *whatsapp.InboundMessage) {
	t := &turn{
		phone: msg.From,
		text:  msg.Body(),
		log:   p.log.With("phone", msg.From, "message_id", msg.ID, "run_id", uuid.NewString()),
	}
	t.log.Info("inbound message", "type", msg.Type)

	switch msg.Type {
	case whatsapp.MessageText:
	case whatsapp.MessageImage:
		if msg.Image == nil {
			t.log.Warn("image message without media")
			return
		}
		imageURL, err := p.resolveImage(ctx, msg.Image)
		if err != nil {
			t.log.Error("resolve inbound image", "media_id", msg.Image.ID, "err", err)
			return
		}
		t.imageURL = imageURL
	default:
		p.messenger.SendText(ctx, t.phone, msgUnsupported)
		return
	}

	user, err := p.users.GetOrCreate(ctx, t.phone)
	if err != nil {
		t.log.Error("get or create user", "err", err)
		p.messenger.SendText(ctx, t.phone, msgGenericFailure)
		return
	}
	t.user = user

	if t.imageURL != "" {
		if err := p.store.SetLastImage(ctx, t.phone, t.imageURL); err != nil {
			t.log.Warn("remember last image", "err", err)
		}
	} else if p.handleCommand(ctx, t) {
		return
	}

	now := p.now()
	if err := p.ledger.CheckQuota(ctx, user, now); err != nil {
		var quotaErr *service.QuotaError
		if errors.As(err, &quotaErr) {
			t.log.Info("quota exceeded", "kind", quotaErr.Kind)
			p.messenger.SendText(ctx, t.phone, quotaMessage(quotaErr.Kind))
			return
		}
		t.log.Error("check quota", "err", err)
		p.messenger.SendText(ctx, t.phone, msgGenericFailure)
		return
	}

	history, err := p.store.History(ctx, t.phone)
	if err != nil {
		t.log.Warn("load history", "err", err)
	}
	previousImage := ""
	if t.imageURL == "" {
		if previousImage, err = p.store.LastImage(ctx, t.phone); err != nil {
			t.log.Warn("load last image", "err", err)
		}
	}

	decision := p.router.Route(ctx, intent.Input{
		Text:             t.text,
		HasImage:         t.imageURL != "",
		HasPreviousImage: previousImage != "",
		History:          history,
	})
	t.log.Info("intent decided", "intent", decision.Type)

	if !decision.Type.Generates() {
		p.messenger.SendText(ctx, t.phone, decision.Reply)
		p.remember(ctx, t, decision.Reply)
		return
	}

	p.dispatch(ctx, t, decision, previousImage)
}

// dispatch runs a generating decision. Edits and videos fall back to the
// remembered photo; the keyword router never asks for a video without a photo
// in the message, so that fallback only serves classifier decisions.
func (p *Pipeline) dispatch(ctx context.Context, t *turn, decision models.Decision, previousImage string) {
	source := ""
	switch decision.Type {
	case models.IntentImageEdit, models.IntentVideo:
		source = t.imageURL
		if source == "" {
			source = previousImage
		}
		if source == "" {
			reply := msgEditNeedsPhoto
			if decision.Type == models.IntentVideo {
				reply = intent.ReplyVideoNeedsPhoto
			}
			p.messenger.SendText(ctx, t.phone, reply)
			p.remember(ctx, t, reply)
			return
		}
	}

	switch decision.Type {
	case models.IntentSong:
		p.messenger.SendText(ctx, t.phone, msgSongProgress)
	case models.IntentVideo:
		p.messenger.SendText(ctx, t.phone, msgVideoProgress)
	}

	started := time.Now()
	resultURL, err := p.generators[decision.Type].Generate(ctx, decision.Prompt, source)
	if err != nil {
		reply := failureMessage(decision.Type)
		if errors.Is(err, generation.ErrTimeout) {
			reply = msgStillBusy
		}
		t.log.Error("generation failed", "intent", decision.Type, "elapsed_ms", time.Since(started).Milliseconds(), "err", err)
		p.messenger.SendText(ctx, t.phone, reply)
		p.remember(ctx, t, reply)
		return
	}
	t.log.Info("generation done", "intent", decision.Type, "elapsed_ms", time.Since(started).Milliseconds())

	if !p.messenger.SendMedia(ctx, t.phone, mediaKind(decision.Type), resultURL) {
		t.log.Warn("result not delivered, usage not recorded", "intent", decision.Type)
		return
	}

	now := p.now()
	if err := p.ledger.RecordUsage(ctx, t.user, now); err != nil {
		t.log.Error("record usage", "err", err)
	}
	if err := p.ledger.LogCreation(ctx, t.user, decision.Type); err != nil {
		t.log.Error("log creation", "err", err)
	}
	if p.events != nil {
		p.events.PublishCreation(ctx, events.CreationEvent{
			Phone:     t.phone,
			Type:      decision.Type,
			ResultURL: resultURL,
			CreatedAt: now.UTC(),
		})
	}
	p.remember(ctx, t, fmt.Sprintf("[%s sent: %s]", mediaKind(decision.Type), decision.Prompt))
}

// handleCommand runs register, pay and help. It reports whether text was a command.
func (p *Pipeline) handleCommand(ctx context.Context, t *turn) bool {
	fields := strings.Fields(t.text)
	if len(fields) == 0 {
		return false
	}
	switch strings.ToLower(fields[0]) {
	case "register":
		if len(fields) != 2 {
			p.messenger.SendText(ctx, t.phone, msgRegisterUsage)
			return true
		}
		if err := p.users.Register(ctx, t.user, fields[1]); err != nil {
			if errors.Is(err, service.ErrInvalidEmail) {
				p.messenger.SendText(ctx, t.phone, msgRegisterUsage)
				return true
			}
			t.log.Error("register email", "err", err)
			p.messenger.SendText(ctx, t.phone, msgGenericFailure)
			return true
		}
		t.log.Info("user registered")
		p.messenger.SendText(ctx, t.phone, fmt.Sprintf(msgRegistered, t.user.Email))
		return true
	case "pay":
		if len(fields) != 1 {
			return false
		}
		p.messenger.SendText(ctx, t.phone, p.payMessage(t))
		return true
	case "help", "menu", "עזרה", "תפריט":
		if len(fields) != 1 {
			return false
		}
		p.messenger.SendText(ctx, t.phone, intent.ReplyMenu)
		return true
	}
	return false
}

func (p *Pipeline) payMessage(t *turn) string {
	if t.user.Email == "" {
		return msgRegisterFirst
	}
	if p.paymentURL == "" {
		return msgPayUnavailable
	}
	sep := "?"
	if strings.Contains(p.paymentURL, "?") {
		sep = "&"
	}
	return fmt.Sprintf(msgPayLink, p.paymentURL+sep+"phone="+url.QueryEscape(t.phone))
}

// resolveImage turns an inbound media id into a URL the providers can fetch.
// Platform media URLs need the WhatsApp token, so the bytes are either
// rehosted through the uploader or inlined as a data URL.
func (p *Pipeline) resolveImage(ctx context.Context, media *whatsapp.MediaRef) (string, error) {
	mediaURL, err := p.messenger.FetchMediaURL(ctx, media.ID)
	if err != nil {
		return "", err
	}
	data, contentType, err := p.messenger.DownloadMedia(ctx, mediaURL)
	if err != nil {
		return "", err
	}
	if media.MimeType != "" && !strings.HasPrefix(contentType, "image/") {
		contentType = media.MimeType
	}
	if p.uploader == nil {
		return inlineImage(data, contentType)
	}
	publicURL, err := p.uploader.Upload(ctx, data, contentType)
	if err != nil {
		return "", fmt.Errorf("rehost media: %w", err)
	}
	return publicURL, nil
}

func inlineImage(data []byte, contentType string) (string, error) {
	if len(data) > maxInlineImageBytes {
		return "", fmt.Errorf("inline media: %d bytes exceeds %d", len(data), maxInlineImageBytes)
	}
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func (p *Pipeline) remember(ctx context.Context, t *turn, reply string) {
	userText := t.text
	if t.imageURL != "" {
		userText = strings.TrimSpace("[photo] " + userText)
	}
	turns := []models.Turn{{Role: models.RoleUser, Content: userText}}
	if reply != "" {
		turns = append(turns, models.Turn{Role: models.RoleAssistant, Content: reply})
	}
	if err := p.store.Append(ctx, t.phone, turns...); err != nil {
		t.log.Warn("append history", "err", err)
	}
}

func quotaMessage(kind service.QuotaKind) string {
	if kind == service.QuotaDaily {
		return msgDailyCap
	}
	return msgTrialExhausted
}

func failureMessage(kind models.IntentType) string {
	switch kind {
	case models.IntentSong:
		return msgSongFailed
	case models.IntentVideo:
		return msgVideoFailed
	default:
		return msgImageFailed
	}
}

func mediaKind(kind models.IntentType) models.MediaKind {
	switch kind {
	case models.IntentSong:
		return models.MediaAudio
	case models.IntentVideo:
		return models.MediaVideo
	default:
		return models.MediaImage
	}
}
