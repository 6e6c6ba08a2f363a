package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog/log"

	"github.com/ManideepBangaru/lumos-backend/internal/api/handlers"
	"github.com/ManideepBangaru/lumos-backend/internal/config"
	"github.com/ManideepBangaru/lumos-backend/internal/core"
	"github.com/ManideepBangaru/lumos-backend/internal/core/ingestion_engine"
	"github.com/ManideepBangaru/lumos-backend/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, db core.DbClient, obj core.ObjectClient, ing *ingestion_engine.DocumentIngestor, chat *services.ChatService) *Server {
	threadHandler := handlers.NewThreadHandler(db)
	fileHandler := handlers.NewFileHandler(db, obj, ing, chat, cfg)
	chatHandler := handlers.NewChatHandler(chat)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	// Chat turns can run multimodal generation; give them room.
	r.Use(middleware.Timeout(120 * time.Second))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:3000"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/threads", func(t chi.Router) {
			t.Post("/", threadHandler.CreateThread)
			t.Get("/user/{userID}", threadHandler.ListThreads)
			t.Get("/{threadID}/messages", threadHandler.GetMessages)
			t.Patch("/{threadID}", threadHandler.RenameThread)
			t.Delete("/{threadID}", threadHandler.DeleteThread)
		})

		api.Route("/files", func(f chi.Router) {
			f.Post("/upload", fileHandler.Upload)
			f.Get("/{userID}/{threadID}", fileHandler.List)
			f.Get("/{userID}/{threadID}/{filename}", fileHandler.Download)
			f.Get("/{userID}/{threadID}/{filename}/url", fileHandler.PresignedURL)
			f.Get("/{userID}/{threadID}/{filename}/status", fileHandler.Status)
			f.Delete("/{userID}/{threadID}/{filename}", fileHandler.Delete)
		})

		api.Route("/chat", func(c chi.Router) {
			c.Post("/stream", chatHandler.Stream)
			c.Post("/fork", chatHandler.Fork)
		})
	})

	httpSrv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}

	return &Server{httpServer: httpSrv}
}

// Start runs the HTTP server.
func (s *Server) Start() {
	log.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server error")
	}
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
