// Package httpapi is the JSON surface of alarmd: reminder intake plus
// read-only views of jobs and the outcome journal.
package httpapi

import (
	"context"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	logx "alarmd/pkg/logx"
)

type Config struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = ":8080"
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// Deps are the services the routes call into. Outcomes may be nil.
type Deps struct {
	Intake   Intake
	Jobs     Jobs
	Outcomes Outcomes
}

type route struct {
	method  string
	path    string
	handler gin.HandlerFunc
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(deps Deps, log logx.Logger) *gin.Engine {
	if log.IsZero() {
		log = logx.Nop()
	}
	r := gin.New()
	r.Use(recovery(log), requestLogger(log))

	h := &handlers{intake: deps.Intake, jobs: deps.Jobs, outcomes: deps.Outcomes}
	routes := []route{
		{http.MethodPost, "/set-alarm", h.setAlarm},
		{http.MethodGet, "/alarms", h.listAlarms},
		{http.MethodGet, "/alarms/:id", h.getAlarm},
		{http.MethodDelete, "/alarms/:id", h.cancelAlarm},
		{http.MethodGet, "/outcomes", h.listOutcomes},
		{http.MethodGet, "/healthz", h.healthz},
	}
	for _, rt := range routes {
		r.Handle(rt.method, rt.path, rt.handler)
	}
	r.NoRoute(func(c *gin.Context) {
		abort(c, http.StatusNotFound, nil, "Not found", nil)
	})
	return r
}

// Server owns the listener. Run blocks until ctx is done, then shuts down
// gracefully.
type Server struct {
	cfg Config
	log logx.Logger
	srv *http.Server
}

func New(cfg Config, deps Deps, log logx.Logger) *Server {
	cfg = cfg.withDefaults()
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg: cfg,
		log: log,
		srv: &http.Server{
			Addr:              cfg.Addr,
			Handler:           NewRouter(deps, log),
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadTimeout,
			WriteTimeout:      cfg.WriteTimeout,
		},
	}
}

func (s *Server) Handler() http.Handler { return s.srv.Handler }

func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "httpapi: listen %s", s.cfg.Addr)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on a caller-provided listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("http listening", logx.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "httpapi: serve")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		s.log.Warn("http shutdown incomplete", logx.Err(err))
		_ = s.srv.Close()
	}
	<-errCh
	s.log.Info("http stopped")
	return nil
}
