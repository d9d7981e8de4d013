package bot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/digkill/NabiBot/internal/conversation"
	"github.com/digkill/NabiBot/internal/events"
	"github.com/digkill/NabiBot/internal/generation"
	"github.com/digkill/NabiBot/internal/intent"
	"github.com/digkill/NabiBot/internal/models"
	"github.com/digkill/NabiBot/internal/service"
	"github.com/digkill/NabiBot/internal/whatsapp"
)

const phone = "972500000000"

type sentMedia struct {
	kind models.MediaKind
	link string
}

type fakeMessenger struct {
	mu        sync.Mutex
	texts     []string
	media     []sentMedia
	mediaFail bool
	mediaURLs map[string]string
	fetches   int
	downloads int
}

func (f *fakeMessenger) SendText(_ context.Context, _ string, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
}

func (f *fakeMessenger) SendMedia(_ context.Context, _ string, kind models.MediaKind, link string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.media = append(f.media, sentMedia{kind: kind, link: link})
	return !f.mediaFail
}

func (f *fakeMessenger) FetchMediaURL(_ context.Context, mediaID string) (string, error) {
	f.fetches++
	if u, ok := f.mediaURLs[mediaID]; ok {
		return u, nil
	}
	return "", fmt.Errorf("%w: unknown media %s", whatsapp.ErrMediaResolution, mediaID)
}

func (f *fakeMessenger) DownloadMedia(context.Context, string) ([]byte, string, error) {
	f.downloads++
	return []byte("jpeg"), "image/jpeg", nil
}

func (f *fakeMessenger) calls() int {
	return len(f.texts) + len(f.media) + f.fetches + f.downloads
}

type fakeUsers struct {
	user  *models.User
	calls int
}

func (f *fakeUsers) GetOrCreate(_ context.Context, p string) (*models.User, error) {
	f.calls++
	if f.user == nil {
		f.user = &models.User{ID: 1, Phone: p, FreeUses: 3}
	}
	return f.user, nil
}

func (f *fakeUsers) Register(_ context.Context, user *models.User, email string) error {
	if !strings.Contains(email, "@") {
		return service.ErrInvalidEmail
	}
	user.Email = email
	return nil
}

type fakeLedger struct {
	quotaErr error
	checks   int
	recorded int
	logged   []models.IntentType
}

func (f *fakeLedger) CheckQuota(context.Context, *models.User, time.Time) error {
	f.checks++
	return f.quotaErr
}

func (f *fakeLedger) RecordUsage(context.Context, *models.User, time.Time) error {
	f.recorded++
	return nil
}

func (f *fakeLedger) LogCreation(_ context.Context, _ *models.User, kind models.IntentType) error {
	f.logged = append(f.logged, kind)
	return nil
}

type fakeGenerator struct {
	url    string
	err    error
	calls  int
	prompt string
	source string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt, sourceURL string) (string, error) {
	f.calls++
	f.prompt = prompt
	f.source = sourceURL
	return f.url, f.err
}

type fakeUploader struct {
	uploads int
}

func (f *fakeUploader) Upload(context.Context, []byte, string) (string, error) {
	f.uploads++
	return "https://cdn/inbound/photo.jpg", nil
}

type fakeEvents struct {
	published []events.CreationEvent
}

func (f *fakeEvents) PublishCreation(_ context.Context, event events.CreationEvent) {
	f.published = append(f.published, event)
}

type fixedRouter struct {
	decision models.Decision
	inputs   []intent.Input
}

func (r *fixedRouter) Route(_ context.Context, in intent.Input) models.Decision {
	r.inputs = append(r.inputs, in)
	return r.decision
}

type harness struct {
	messenger *fakeMessenger
	users     *fakeUsers
	ledger    *fakeLedger
	image     *fakeGenerator
	song      *fakeGenerator
	video     *fakeGenerator
	store     *conversation.MemoryStore
	events    *fakeEvents
	pipeline  *Pipeline
}

func newHarness(router intent.Router, uploader Uploader) *harness {
	h := &harness{
		messenger: &fakeMessenger{mediaURLs: map[string]string{"media-1": "https://lookaside/media-1"}},
		users:     &fakeUsers{},
		ledger:    &fakeLedger{},
		image:     &fakeGenerator{url: "https://img/out.png"},
		song:      &fakeGenerator{url: "https://x/a.mp3"},
		video:     &fakeGenerator{url: "https://x/v.mp4"},
		store:     conversation.NewMemoryStore(12, 100, time.Hour),
		events:    &fakeEvents{},
	}
	if router == nil {
		router = intent.Keyword{}
	}
	h.pipeline = New(Deps{
		Messenger:  h.messenger,
		Users:      h.users,
		Ledger:     h.ledger,
		Router:     router,
		Image:      h.image,
		Song:       h.song,
		Video:      h.video,
		Context:    h.store,
		Uploader:   uploader,
		Events:     h.events,
		PaymentURL: "https://pay.example.com/checkout",
		Log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	return h
}

func (h *harness) generatorCalls() int {
	return h.image.calls + h.song.calls + h.video.calls
}

func textMessage(body string) *whatsapp.InboundMessage {
	return &whatsapp.InboundMessage{ID: "wamid.t", From: phone, Type: whatsapp.MessageText, Text: &whatsapp.TextPart{Body: body}}
}

func imageMessage(mediaID, caption string) *whatsapp.InboundMessage {
	return &whatsapp.InboundMessage{ID: "wamid.i", From: phone, Type: whatsapp.MessageImage, Image: &whatsapp.MediaRef{ID: mediaID, Caption: caption}}
}

func TestHandlePayload_StatusOnlyDoesNothing(t *testing.T) {
	h := newHarness(nil, nil)

	h.pipeline.HandlePayload(context.Background(), []byte(`{"entry":[{"changes":[{"value":{"statuses":[{"status":"read"}]}}]}]}`))
	h.pipeline.HandlePayload(context.Background(), []byte(`not json`))

	assert.Zero(t, h.messenger.calls())
	assert.Zero(t, h.generatorCalls())
	assert.Zero(t, h.users.calls)
}

func TestHandle_SongHappyPath(t *testing.T) {
	h := newHarness(nil, nil)

	h.pipeline.Handle(context.Background(), textMessage("שיר יום הולדת לאמא"))

	require.Equal(t, 1, h.song.calls)
	assert.Contains(t, h.song.prompt, "Hebrew lyrics")
	assert.Equal(t, []string{msgSongProgress}, h.messenger.texts)
	require.Len(t, h.messenger.media, 1)
	assert.Equal(t, sentMedia{kind: models.MediaAudio, link: "https://x/a.mp3"}, h.messenger.media[0])
	assert.Equal(t, 1, h.ledger.recorded)
	assert.Equal(t, []models.IntentType{models.IntentSong}, h.ledger.logged)
	require.Len(t, h.events.published, 1)
	assert.Equal(t, "https://x/a.mp3", h.events.published[0].ResultURL)

	history, _ := h.store.History(context.Background(), phone)
	assert.Len(t, history, 2)
}

func TestHandle_QuotaRejectedBeforeGeneration(t *testing.T) {
	for _, tt := range []struct {
		kind service.QuotaKind
		want string
	}{
		{service.QuotaTrial, msgTrialExhausted},
		{service.QuotaDaily, msgDailyCap},
	} {
		t.Run(string(tt.kind), func(t *testing.T) {
			h := newHarness(nil, nil)
			h.ledger.quotaErr = &service.QuotaError{Kind: tt.kind}

			h.pipeline.Handle(context.Background(), textMessage("תמונה של חתול"))

			assert.Equal(t, []string{tt.want}, h.messenger.texts)
			assert.Zero(t, h.generatorCalls())
			assert.Zero(t, h.ledger.recorded)
		})
	}
}

func TestHandle_ClarifyIsFree(t *testing.T) {
	h := newHarness(nil, nil)

	h.pipeline.Handle(context.Background(), textMessage("מה שלומך"))

	assert.Equal(t, []string{intent.ReplyMenu}, h.messenger.texts)
	assert.Zero(t, h.generatorCalls())
	assert.Zero(t, h.ledger.recorded)
	assert.Empty(t, h.ledger.logged)
}

func TestHandle_ChatReplyFromRouter(t *testing.T) {
	router := &fixedRouter{decision: models.Decision{Type: models.IntentChat, Reply: "שלום!"}}
	h := newHarness(router, nil)

	h.pipeline.Handle(context.Background(), textMessage("היי"))
	h.pipeline.Handle(context.Background(), textMessage("מה קורה"))

	assert.Equal(t, []string{"שלום!", "שלום!"}, h.messenger.texts)
	require.Len(t, router.inputs, 2)
	assert.Len(t, router.inputs[1].History, 2)
	assert.Zero(t, h.ledger.recorded)
}

func TestHandle_GenerationFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "provider error", err: &generation.Error{Provider: "song", Err: errors.New("status=500")}, want: msgSongFailed},
		{name: "timeout", err: fmt.Errorf("song task t after 36 attempts: %w", generation.ErrTimeout), want: msgStillBusy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(nil, nil)
			h.song.err = tt.err

			h.pipeline.Handle(context.Background(), textMessage("שיר על הים"))

			assert.Equal(t, []string{msgSongProgress, tt.want}, h.messenger.texts)
			assert.Empty(t, h.messenger.media)
			assert.Zero(t, h.ledger.recorded)
			assert.Empty(t, h.events.published)
		})
	}
}

func TestHandle_UndeliveredResultIsNotCounted(t *testing.T) {
	h := newHarness(nil, nil)
	h.messenger.mediaFail = true

	h.pipeline.Handle(context.Background(), textMessage("תמונה של חתול"))

	assert.Equal(t, 1, h.image.calls)
	assert.Len(t, h.messenger.media, 1)
	assert.Zero(t, h.ledger.recorded)
	assert.Empty(t, h.ledger.logged)
}

func TestHandle_ImageResolutionFailureAborts(t *testing.T) {
	h := newHarness(nil, nil)

	h.pipeline.Handle(context.Background(), imageMessage("missing", "תזיז אותם"))

	assert.Empty(t, h.messenger.texts)
	assert.Empty(t, h.messenger.media)
	assert.Zero(t, h.users.calls)
	assert.Zero(t, h.generatorCalls())
}

func TestHandle_ImageRehostedAndAnimated(t *testing.T) {
	uploader := &fakeUploader{}
	h := newHarness(nil, uploader)

	h.pipeline.Handle(context.Background(), imageMessage("media-1", "תזיז את האנשים"))

	assert.Equal(t, 1, uploader.uploads)
	require.Equal(t, 1, h.video.calls)
	assert.Equal(t, "https://cdn/inbound/photo.jpg", h.video.source)
	assert.Equal(t, []string{msgVideoProgress}, h.messenger.texts)
	assert.Equal(t, models.MediaVideo, h.messenger.media[0].kind)
	assert.Equal(t, 1, h.ledger.recorded)

	last, _ := h.store.LastImage(context.Background(), phone)
	assert.Equal(t, "https://cdn/inbound/photo.jpg", last)
}

func TestHandle_PhotoWithoutCaptionAsksWhatToDo(t *testing.T) {
	h := newHarness(nil, nil)

	h.pipeline.Handle(context.Background(), imageMessage("media-1", ""))

	assert.Equal(t, []string{intent.ReplyPhotoWhatToDo}, h.messenger.texts)
	assert.Zero(t, h.generatorCalls())

	last, _ := h.store.LastImage(context.Background(), phone)
	assert.Equal(t, "data:image/jpeg;base64,anBlZw==", last)
}

func TestHandle_PhotoInlinedWithoutUploader(t *testing.T) {
	h := newHarness(nil, nil)

	h.pipeline.Handle(context.Background(), imageMessage("media-1", "בסגנון ציור שמן"))

	assert.Equal(t, 1, h.messenger.downloads)
	require.Equal(t, 1, h.image.calls)
	assert.Equal(t, "data:image/jpeg;base64,anBlZw==", h.image.source)
	assert.NotContains(t, h.image.source, "lookaside")
}

func TestInlineImage_RejectsOversizedMedia(t *testing.T) {
	_, err := inlineImage(make([]byte, maxInlineImageBytes+1), "image/jpeg")

	assert.Error(t, err)
}

func TestHandle_VideoFromText(t *testing.T) {
	t.Run("no photo yet", func(t *testing.T) {
		h := newHarness(nil, nil)

		h.pipeline.Handle(context.Background(), textMessage("תעשה לי סרטון"))

		assert.Equal(t, []string{intent.ReplyVideoNeedsPhoto}, h.messenger.texts)
		assert.Zero(t, h.generatorCalls())
		assert.Zero(t, h.ledger.recorded)
	})

	t.Run("keyword mode ignores previous photo", func(t *testing.T) {
		h := newHarness(nil, nil)
		require.NoError(t, h.store.SetLastImage(context.Background(), phone, "https://cdn/earlier.jpg"))

		h.pipeline.Handle(context.Background(), textMessage("תעשה לי סרטון של ים"))

		assert.Equal(t, []string{intent.ReplyVideoNeedsPhoto}, h.messenger.texts)
		assert.Zero(t, h.video.calls)
		assert.Empty(t, h.messenger.media)
		assert.Zero(t, h.ledger.recorded)
		assert.Empty(t, h.ledger.logged)
	})

	t.Run("classifier decision uses previous photo", func(t *testing.T) {
		router := &fixedRouter{decision: models.Decision{Type: models.IntentVideo, Prompt: "make them dance"}}
		h := newHarness(router, nil)
		require.NoError(t, h.store.SetLastImage(context.Background(), phone, "https://cdn/earlier.jpg"))

		h.pipeline.Handle(context.Background(), textMessage("תגרום להם לרקוד"))

		require.Equal(t, 1, h.video.calls)
		assert.Equal(t, "https://cdn/earlier.jpg", h.video.source)
		assert.Equal(t, 1, h.ledger.recorded)
	})

	t.Run("classifier decision without any photo", func(t *testing.T) {
		router := &fixedRouter{decision: models.Decision{Type: models.IntentVideo, Prompt: "a beach"}}
		h := newHarness(router, nil)

		h.pipeline.Handle(context.Background(), textMessage("סרטון של חוף"))

		assert.Equal(t, []string{intent.ReplyVideoNeedsPhoto}, h.messenger.texts)
		assert.Zero(t, h.video.calls)
		assert.Zero(t, h.ledger.recorded)
	})
}

func TestHandle_ImageEditUsesPreviousPhoto(t *testing.T) {
	router := &fixedRouter{decision: models.Decision{Type: models.IntentImageEdit, Prompt: "add balloons"}}
	h := newHarness(router, nil)
	require.NoError(t, h.store.SetLastImage(context.Background(), phone, "https://cdn/earlier.jpg"))

	h.pipeline.Handle(context.Background(), textMessage("תוסיף בלונים"))

	require.Len(t, router.inputs, 1)
	assert.False(t, router.inputs[0].HasImage)
	assert.True(t, router.inputs[0].HasPreviousImage)
	assert.Equal(t, "https://cdn/earlier.jpg", h.image.source)
	assert.Equal(t, models.MediaImage, h.messenger.media[0].kind)
}

func TestHandle_Commands(t *testing.T) {
	t.Run("register", func(t *testing.T) {
		h := newHarness(nil, nil)

		h.pipeline.Handle(context.Background(), textMessage("Register a@b.com"))

		assert.Equal(t, "a@b.com", h.users.user.Email)
		assert.Equal(t, []string{fmt.Sprintf(msgRegistered, "a@b.com")}, h.messenger.texts)
		assert.Zero(t, h.ledger.checks)
		assert.Equal(t, 3, h.users.user.FreeUses)
	})

	t.Run("register invalid", func(t *testing.T) {
		h := newHarness(nil, nil)

		h.pipeline.Handle(context.Background(), textMessage("register nope"))

		assert.Equal(t, []string{msgRegisterUsage}, h.messenger.texts)
		assert.Empty(t, h.users.user.Email)
	})

	t.Run("pay before register", func(t *testing.T) {
		h := newHarness(nil, nil)

		h.pipeline.Handle(context.Background(), textMessage("pay"))

		assert.Equal(t, []string{msgRegisterFirst}, h.messenger.texts)
	})

	t.Run("pay", func(t *testing.T) {
		h := newHarness(nil, nil)
		h.users.user = &models.User{ID: 1, Phone: phone, Email: "a@b.com"}
		h.ledger.quotaErr = &service.QuotaError{Kind: service.QuotaTrial}

		h.pipeline.Handle(context.Background(), textMessage("PAY"))

		require.Len(t, h.messenger.texts, 1)
		assert.Contains(t, h.messenger.texts[0], "https://pay.example.com/checkout?phone=972500000000")
		assert.Zero(t, h.ledger.checks)
	})

	t.Run("help", func(t *testing.T) {
		h := newHarness(nil, nil)

		h.pipeline.Handle(context.Background(), textMessage("help"))

		assert.Equal(t, []string{intent.ReplyMenu}, h.messenger.texts)
		assert.Zero(t, h.ledger.checks)
	})
}

func TestHandle_UnsupportedType(t *testing.T) {
	h := newHarness(nil, nil)

	h.pipeline.Handle(context.Background(), &whatsapp.InboundMessage{ID: "wamid.a", From: phone, Type: "audio"})

	assert.Equal(t, []string{msgUnsupported}, h.messenger.texts)
	assert.Zero(t, h.users.calls)
	assert.Zero(t, h.ledger.checks)
}
