package server

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/hsportal/portal/internal/routes"
)

// Server wraps the Fiber application and its background workers.
type Server struct {
	app     *fiber.App
	addr    string
	workers []routes.Worker
	started bool
	logger  *slog.Logger
}

// New instantiates the HTTP server and delegates route wiring to routes.Setup.
func New(d routes.Deps) (*Server, error) {
	app := fiber.New(fiber.Config{
		AppName:      d.Cfg.AppName,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		BodyLimit:    10 * 1024 * 1024,
		ErrorHandler: routes.ErrorHandler(d.Logger),
	})

	workers, err := routes.Setup(app, d)
	if err != nil {
		return nil, err
	}

	return &Server{app: app, addr: d.Cfg.Address(), workers: workers, logger: d.Logger}, nil
}

// App exposes the Fiber application, e.g. for app.Test.
func (s *Server) App() *fiber.App {
	return s.app
}

// Start runs the background workers.
func (s *Server) Start() {
	if s.started {
		return
	}
	s.started = true
	for _, w := range s.workers {
		w.Start()
	}
}

// Listen starts the HTTP server.
func (s *Server) Listen() error {
	s.logger.Info("listening", slog.String("addr", s.addr))
	return s.app.Listen(s.addr)
}

// Shutdown gracefully stops the HTTP server, then the workers.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.app.ShutdownWithContext(ctx)
	if s.started {
		for _, w := range s.workers {
			w.Stop()
		}
		s.started = false
	}
	return err
}
