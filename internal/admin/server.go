package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/digkill/NabiBot/internal/models"
)

const (
	defaultCreationsLimit = 50
	maxCreationsLimit     = 500
)

// Users is the slice of the user service the admin API drives.
type Users interface {
	FindByPhone(ctx context.Context, phone string) (*models.User, error)
	ListPhones(ctx context.Context) ([]string, error)
	SetSubscription(ctx context.Context, user *models.User, start, end *time.Time) error
}

type CreationLister interface {
	Creations(ctx context.Context, user *models.User, limit int) ([]models.Creation, error)
}

// Sender delivers a plain text message and reports whether it was accepted.
type Sender interface {
	DeliverText(ctx context.Context, to, text string) error
}

type Server struct {
	addr      string
	username  string
	password  string
	log       *slog.Logger
	users     Users
	creations CreationLister
	sender    Sender
	now       func() time.Time
	router    *chi.Mux
}

func NewServer(addr, username, password string, log *slog.Logger, users Users, creations CreationLister, sender Sender) *Server {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:      addr,
		username:  username,
		password:  password,
		log:       log,
		users:     users,
		creations: creations,
		sender:    sender,
		now:       time.Now,
		router:    r,
	}
	r.Group(func(protected chi.Router) {
		protected.Use(s.basicAuthMiddleware())
		protected.Post("/broadcast", s.handleBroadcast)
		protected.Route("/users/{phone}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Put("/subscription", s.handleSetSubscription)
			r.Get("/creations", s.handleListCreations)
		})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("admin shutdown error", "err", err)
		}
	}()

	s.log.Info("admin panel listening", "addr", s.addr)
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("admin listen: %w", err)
	}
	return nil
}

type broadcastRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleBroadcast(w http.ResponseWriter, r *http.Request) {
	var req broadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		http.Error(w, "message required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	phones, err := s.users.ListPhones(ctx)
	if err != nil {
		s.internalError(w, err)
		return
	}

	count := 0
	for _, phone := range phones {
		if err := s.sender.DeliverText(ctx, phone, req.Message); err != nil {
			s.log.Error("send broadcast", "phone", phone, "err", err)
			if ctx.Err() != nil {
				break
			}
			continue
		}
		count++
	}

	s.writeJSON(w, http.StatusOK, map[string]any{
		"sent":  count,
		"total": len(phones),
	})
}

type userView struct {
	Phone             string     `json:"phone"`
	Email             string     `json:"email,omitempty"`
	SubscriptionStart *time.Time `json:"subscription_start,omitempty"`
	SubscriptionEnd   *time.Time `json:"subscription_end,omitempty"`
	Subscribed        bool       `json:"subscribed"`
	FreeUses          int        `json:"free_uses"`
	DailyUses         int        `json:"daily_uses"`
	LastUse           string     `json:"last_use,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func (s *Server) viewOf(u *models.User) userView {
	return userView{
		Phone:             u.Phone,
		Email:             u.Email,
		SubscriptionStart: u.SubscriptionStart,
		SubscriptionEnd:   u.SubscriptionEnd,
		Subscribed:        u.IsSubscribed(s.now()),
		FreeUses:          u.FreeUses,
		DailyUses:         u.DailyUses,
		LastUse:           u.LastUse,
		CreatedAt:         u.CreatedAt,
	}
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, s.viewOf(user))
}

// subscriptionRequest carries RFC 3339 timestamps. A null end clears the
// subscription.
type subscriptionRequest struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

func (s *Server) handleSetSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	user, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	if req.Start != nil && req.End != nil && !req.End.After(*req.Start) {
		http.Error(w, "end must be after start", http.StatusBadRequest)
		return
	}
	if err := s.users.SetSubscription(r.Context(), user, req.Start, req.End); err != nil {
		s.internalError(w, err)
		return
	}
	s.log.Info("subscription updated", "phone", user.Phone, "end", req.End)
	s.writeJSON(w, http.StatusOK, s.viewOf(user))
}

type creationView struct {
	Type      models.IntentType `json:"type"`
	CreatedAt time.Time         `json:"created_at"`
}

func (s *Server) handleListCreations(w http.ResponseWriter, r *http.Request) {
	limit := defaultCreationsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = min(n, maxCreationsLimit)
	}
	user, ok := s.loadUser(w, r)
	if !ok {
		return
	}
	creations, err := s.creations.Creations(r.Context(), user, limit)
	if err != nil {
		s.internalError(w, err)
		return
	}
	views := make([]creationView, 0, len(creations))
	for _, c := range creations {
		views = append(views, creationView{Type: c.Type, CreatedAt: c.CreatedAt})
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) loadUser(w http.ResponseWriter, r *http.Request) (*models.User, bool) {
	phone := strings.TrimSpace(chi.URLParam(r, "phone"))
	if phone == "" {
		http.Error(w, "phone required", http.StatusBadRequest)
		return nil, false
	}
	user, err := s.users.FindByPhone(r.Context(), phone)
	if err != nil {
		s.internalError(w, err)
		return nil, false
	}
	if user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return nil, false
	}
	return user, true
}

func (s *Server) basicAuthMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok ||
				subtle.ConstantTimeCompare([]byte(user), []byte(s.username)) != 1 ||
				subtle.ConstantTimeCompare([]byte(pass), []byte(s.password)) != 1 {
				w.Header().Set("WWW-Authenticate", `Basic realm="nabibot"`)
				http.Error(w, "unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) internalError(w http.ResponseWriter, err error) {
	s.log.Error("admin handler error", "err", err)
	http.Error(w, "internal error", http.StatusInternalServerError)
}
