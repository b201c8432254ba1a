// Package api implements the Operator API (C10): a thin Echo-based HTTP
// surface exposing the core's build/readiness/task/discharge operations to
// a human operator or a thin frontend, with a WebSocket progress feed
// fanned out to any number of subscribers. Grounded on the teacher's
// pkg/api package: Server built by NewServer with the required
// dependencies, ValidateWiring() checking that the chemical directory was
// wired through SetDirectory (the notifier stays optional and unchecked),
// route registration under /api/v1 in setupRoutes(), and a /health
// endpoint in the shape of healthHandler.
//
// This layer is additive: every one of C4-C8's operations is independently
// usable as a library without this server running at all — a CLI-only
// deployment sets Config.API.Enabled = false and never constructs a
// Server.
package api

import (
	"context"
	"net"
	"net/http"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/synthline/corestation/pkg/chemical"
	"github.com/synthline/corestation/pkg/coordinator"
)

// Server is the Operator API's HTTP surface.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server

	coord     *coordinator.Coordinator
	directory *chemical.Directory // nil until SetDirectory is called
	notifier  coordinator.Notifier // nil until SetNotifier is called

	hub          *progressHub
	progressCtx  context.Context
	progressStop context.CancelFunc

	pollInterval time.Duration
}

// NewServer builds a Server wired to coord, the only required dependency —
// every request handler ultimately calls through to it. The chemical
// Directory is optional at construction time (a deployment may build it
// later, e.g. after an alignment pass) and is wired via SetDirectory.
func NewServer(coord *coordinator.Coordinator, pollInterval time.Duration) *Server {
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	e := echo.New()
	s := &Server{
		echo:         e,
		coord:        coord,
		hub:          newProgressHub(5 * time.Second),
		progressCtx:  ctx,
		progressStop: cancel,
		pollInterval: pollInterval,
	}
	s.setupRoutes()
	return s
}

// SetDirectory wires the chemical directory the build/readiness handlers
// resolve substance names against.
func (s *Server) SetDirectory(dir *chemical.Directory) {
	s.directory = dir
}

// SetNotifier wires the outbound alert dependency readinessHandler reports
// not-ready Readiness Reports to, per §4.11. Optional: a nil notifier
// leaves readiness checks silent, which is a valid deployment (the
// Coordinator itself still notifies on task terminal states regardless of
// whether this is set).
func (s *Server) SetNotifier(n coordinator.Notifier) {
	s.notifier = n
}

// ValidateWiring checks that the chemical directory, which the build and
// readiness handlers need at request time, has been set, so a missing
// SetDirectory call is reported at startup. It is the only dependency
// checked; the notifier is optional.
func (s *Server) ValidateWiring() error {
	if s.directory == nil {
		return errNotWired("chemical directory not set (call SetDirectory)")
	}
	return nil
}

func errNotWired(msg string) error {
	return &wiringError{msg: msg}
}

type wiringError struct{ msg string }

func (e *wiringError) Error() string { return "api: server wiring incomplete: " + e.msg }

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.BodyLimit(2 * 1024 * 1024))

	s.echo.GET("/api/v1/health", s.healthHandler)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/recipes/:name/build", s.buildHandler)
	v1.POST("/recipes/:name/readiness", s.readinessHandler)
	v1.POST("/tasks", s.submitTaskHandler)
	v1.GET("/tasks/:id", s.taskStatusHandler)
	v1.GET("/tasks/:id/progress", s.progressHandler)
	v1.POST("/tasks/:id/discharge", s.dischargeHandler)
}

// Start starts the HTTP server on addr (blocking).
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{Addr: addr, Handler: s.echo}
	return s.httpServer.ListenAndServe()
}

// StartWithListener starts the HTTP server on a pre-created listener, used
// by tests to serve on a random OS-assigned port.
func (s *Server) StartWithListener(ln net.Listener) error {
	s.httpServer = &http.Server{Handler: s.echo}
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server and any in-flight progress
// trackers.
func (s *Server) Shutdown(ctx context.Context) error {
	s.progressStop()
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
