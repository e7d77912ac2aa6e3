package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"ai-answering-machine/internal/application"
	"ai-answering-machine/internal/usecase"
)

// Pinger reports store health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the usecases served over HTTP. Facade is required; the rest
// may be nil, in which case their routes answer 501.
type Deps struct {
	Facade    *application.AnsweringFacade
	Drafts    usecase.DraftUseCase
	Tasks     usecase.TaskUseCase
	Search    usecase.SearchUseCase
	Answers   usecase.AnswerUseCase
	Chat      usecase.ChatUseCase
	Notices   *NoticeBroker
	Store     Pinger
	UploadDir string
	MaxUpload int64
}

type Server struct {
	deps   Deps
	addr   string
	log    *zerolog.Logger
	server *http.Server
}

func NewServer(addr string, deps Deps, logger *zerolog.Logger) *Server {
	if deps.MaxUpload <= 0 {
		deps.MaxUpload = 10 << 20
	}
	return &Server{deps: deps, addr: addr, log: logger}
}

// Router builds the chi router with every route mounted.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())
	if s.deps.UploadDir != "" {
		r.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(s.deps.UploadDir))))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(Timeout(30 * time.Second))
			r.Get("/draft", s.getDraft)
			r.Patch("/draft", s.patchDraft)
			r.Post("/draft/begin", s.beginDraft)
			r.Post("/draft/reset", s.resetDraft)

			r.Post("/tasks", s.createTask)
			r.Post("/tasks/image", s.createImageTask)
			r.Get("/tasks", s.listRecords)
			r.Get("/search", s.search)
			r.Get("/tasks/{id}", s.getTask)
			r.Delete("/tasks/{id}", s.deleteTask)
			r.Get("/tasks/{id}/conversation", s.getConversation)
			r.Delete("/tasks/{id}/conversation", s.clearConversation)
		})

		// event streams
		r.Get("/records/live", s.liveRecords)
		r.Get("/notices", s.streamNotices)
		r.Get("/tasks/{id}/answer", s.streamAnswer)
		r.Post("/tasks/{id}/regenerate", s.regenerate)
		r.Post("/tasks/{id}/conversation", s.askFollowUp)
	})
	return r
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info().Str("addr", s.addr).Msg("HTTP server listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			http.Error(w, "store unavailable", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
