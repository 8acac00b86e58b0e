// Package api serves the chat pipeline over HTTP.
//
// Routes:
//
//	POST /v1/sessions                  create a chat session
//	GET  /v1/sessions/:id/messages     list the turns of a session
//	POST /v1/sessions/:id/messages     ask a question within a session
//	POST /v1/ask                       ask a standalone question
//	POST /v1/sessions/:id/messages/:mid/feedback
//	                                   rate an answer
//	GET  /healthz, /readyz             liveness and readiness
//	GET  /metrics                      Prometheus scrape endpoint
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/lorekeeper/internal/chat"
	"github.com/MrWong99/lorekeeper/internal/feedback"
	"github.com/MrWong99/lorekeeper/internal/health"
	"github.com/MrWong99/lorekeeper/internal/observe"
	"github.com/MrWong99/lorekeeper/pkg/lore"
)

// shutdownTimeout bounds the graceful drain of in-flight requests.
const shutdownTimeout = 15 * time.Second

// ChatService is the part of [chat.Service] the API needs.
type ChatService interface {
	CreateSession(ctx context.Context, userID, title string) (lore.ChatSession, error)
	Messages(ctx context.Context, sessionID string, limit int) ([]lore.ChatMessage, error)
	Ask(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// FeedbackStore records answer ratings.
type FeedbackStore interface {
	Save(ctx context.Context, r feedback.Record) error
}

// Options configures a [Server]. Nil fields disable the matching feature.
type Options struct {
	// Health serves /healthz and /readyz.
	Health *health.Handler

	// Feedback enables the answer rating route.
	Feedback FeedbackStore

	// Metrics records request durations. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// MetricsHandler serves /metrics. Defaults to promhttp.Handler().
	MetricsHandler http.Handler
}

// Server is the HTTP front end.
type Server struct {
	router   *gin.Engine
	chat     ChatService
	feedback FeedbackStore
}

// New builds the router.
func New(svc ChatService, opts Options) *Server {
	if opts.Metrics == nil {
		opts.Metrics = observe.DefaultMetrics()
	}
	if opts.MetricsHandler == nil {
		opts.MetricsHandler = promhttp.Handler()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(observe.Middleware(opts.Metrics))

	s := &Server{router: router, chat: svc, feedback: opts.Feedback}

	v1 := router.Group("/v1")
	v1.POST("/sessions", s.createSession)
	v1.GET("/sessions/:id/messages", s.listMessages)
	v1.POST("/sessions/:id/messages", s.sessionMessage)
	v1.POST("/ask", s.ask)
	if opts.Feedback != nil {
		v1.POST("/sessions/:id/messages/:mid/feedback", s.messageFeedback)
	}

	if opts.Health != nil {
		opts.Health.Register(router)
	}
	router.GET("/metrics", gin.WrapH(opts.MetricsHandler))
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.router }

// ListenAndServe serves on addr until ctx is done, then drains in-flight
// requests. A non-empty certFile and keyFile enable TLS.
func (s *Server) ListenAndServe(ctx context.Context, addr, certFile, keyFile string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		var err error
		if certFile != "" && keyFile != "" {
			err = srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errc <- err
	}()
	slog.Info("http server listening", "addr", addr, "tls", certFile != "")

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	slog.Info("http server shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errc
}
