package webhook

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const maxPayloadBytes = 1 << 20

// PayloadHandler processes one webhook notification body.
type PayloadHandler interface {
	HandlePayload(ctx context.Context, body []byte)
}

// Server is the public WhatsApp-facing HTTP surface. Message notifications are
// acknowledged with 200 immediately and processed in the background.
type Server struct {
	addr         string
	verifyToken  string
	handler      PayloadHandler
	log          *slog.Logger
	router       *chi.Mux
	drainTimeout time.Duration

	mu       sync.Mutex
	draining bool
	inflight sync.WaitGroup
	bg       context.Context
	cancelBg context.CancelFunc
}

func NewServer(addr, verifyToken string, handler PayloadHandler, log *slog.Logger) *Server {
	bg, cancel := context.WithCancel(context.Background())
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	s := &Server{
		addr:         addr,
		verifyToken:  verifyToken,
		handler:      handler,
		log:          log,
		router:       r,
		drainTimeout: 4 * time.Minute,
		bg:           bg,
		cancelBg:     cancel,
	}
	r.Get("/", s.handleLiveness)
	r.Get("/webhook", s.handleVerify)
	r.Post("/webhook", s.handleNotification)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then stops accepting requests and waits
// for in-flight messages. Runs still busy after the drain timeout are cancelled.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Error("webhook shutdown error", "err", err)
		}
	}()

	s.log.Info("webhook listening", "addr", s.addr)
	err := srv.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		s.cancelBg()
		return fmt.Errorf("webhook listen: %w", err)
	}
	// ListenAndServe returns as soon as Shutdown starts; handlers may still be
	// accepting notifications until it returns.
	<-shutdownDone
	s.drain()
	return nil
}

// Wait blocks until every accepted notification has been processed.
func (s *Server) Wait() {
	s.inflight.Wait()
}

func (s *Server) drain() {
	s.mu.Lock()
	s.draining = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		s.log.Warn("cancelling in-flight messages", "timeout", s.drainTimeout)
		s.cancelBg()
		<-done
	}
	s.cancelBg()
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Nabi WhatsApp bot is running"))
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		http.Error(w, "missing verification parameters", http.StatusBadRequest)
		return
	}
	if mode != "subscribe" || subtle.ConstantTimeCompare([]byte(token), []byte(s.verifyToken)) != 1 {
		s.log.Warn("webhook verification rejected", "mode", mode)
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	s.log.Info("webhook verified")
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte(challenge))
}

func (s *Server) handleNotification(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		s.log.Warn("read webhook body", "err", err, "request_id", middleware.GetReqID(r.Context()))
		w.WriteHeader(http.StatusOK)
		return
	}

	// Once draining, refuse instead of acking so the platform redelivers.
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	s.inflight.Add(1)
	s.mu.Unlock()
	w.WriteHeader(http.StatusOK)

	go func() {
		defer s.inflight.Done()
		defer func() {
			if rec := recover(); rec != nil {
				s.log.Error("webhook handler panic", "panic", rec)
			}
		}()
		s.handler.HandlePayload(s.bg, body)
	}()
}
