// Package pprof serves runtime profiles on a separate, optional listener.
package pprof

import (
	"context"
	"crypto/subtle"
	"net"
	"net/http"
	hpprof "net/http/pprof"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"

	logx "alarmd/pkg/logx"
)

const prefix = "/debug/pprof"

// ErrInsecure refuses a non-loopback listener without a token.
var ErrInsecure = errors.New("pprof: non-loopback addr requires token or allow_insecure")

// Config controls the debug listener. Prefer a loopback Addr; anything
// else needs Token unless AllowInsecure is set.
type Config struct {
	Enabled       bool
	Addr          string
	Token         string
	AllowInsecure bool
}

func (c Config) withDefaults() Config {
	if strings.TrimSpace(c.Addr) == "" {
		c.Addr = "127.0.0.1:6060"
	}
	c.Token = strings.TrimSpace(c.Token)
	return c
}

// Check reports whether cfg may be served as is.
func (c Config) Check() error {
	c = c.withDefaults()
	if c.Enabled && c.Token == "" && !c.AllowInsecure && !isLoopback(c.Addr) {
		return errors.Wrapf(ErrInsecure, "addr %s", c.Addr)
	}
	return nil
}

type Server struct {
	cfg Config
	log logx.Logger
}

func New(cfg Config, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{cfg: cfg.withDefaults(), log: log}
}

// Handler exposes the profile routes, token-guarded when a token is set.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.Use(gin.Recovery())
	g := r.Group(prefix)
	if s.cfg.Token != "" {
		g.Use(bearer(s.cfg.Token))
	}
	g.GET("/", gin.WrapF(hpprof.Index))
	g.GET("/cmdline", gin.WrapF(hpprof.Cmdline))
	g.GET("/profile", gin.WrapF(hpprof.Profile))
	g.GET("/symbol", gin.WrapF(hpprof.Symbol))
	g.POST("/symbol", gin.WrapF(hpprof.Symbol))
	g.GET("/trace", gin.WrapF(hpprof.Trace))
	g.GET("/:name", func(c *gin.Context) {
		hpprof.Handler(c.Param("name")).ServeHTTP(c.Writer, c.Request)
	})
	return r
}

// Run serves until ctx is done. A disabled server returns immediately.
func (s *Server) Run(ctx context.Context) error {
	if !s.cfg.Enabled {
		return nil
	}
	if err := s.cfg.Check(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "pprof: listen %s", s.cfg.Addr)
	}
	// WriteTimeout stays 0 so /profile and /trace can run long.
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}

	if s.cfg.Token == "" && !isLoopback(s.cfg.Addr) {
		s.log.Warn("pprof running without token on non-loopback addr (insecure)", logx.String("addr", s.cfg.Addr))
	}
	s.log.Info("pprof listening",
		logx.String("addr", ln.Addr().String()),
		logx.String("prefix", prefix+"/"),
		logx.Bool("token_set", s.cfg.Token != ""))

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.Wrap(err, "pprof: serve")
	case <-ctx.Done():
	}
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(sctx)
	_ = srv.Close()
	<-errCh
	return nil
}

// bearer accepts "Authorization: Bearer <token>" or "?token=<token>".
func bearer(token string) gin.HandlerFunc {
	want := []byte(token)
	return func(c *gin.Context) {
		got := c.Query("token")
		if got == "" {
			if ah := c.GetHeader("Authorization"); strings.HasPrefix(ah, "Bearer ") {
				got = strings.TrimSpace(strings.TrimPrefix(ah, "Bearer "))
			}
		}
		if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
			c.Header("WWW-Authenticate", "Bearer")
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

func isLoopback(addr string) bool {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
