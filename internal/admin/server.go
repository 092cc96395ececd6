// Package admin serves the operator HTTP surface: health, metrics, engine
// status, and the endpoint editor.
package admin

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/edilink/internal/host"
	"github.com/danmuck/edilink/internal/observability"
	"github.com/danmuck/edilink/internal/protocol/session"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var (
	ErrTLSCertFileRequired = errors.New("admin: tls cert file required")
	ErrTLSKeyFileRequired  = errors.New("admin: tls key file required")
)

// Controller is the engine surface the admin routes drive.
type Controller interface {
	Start() error
	Stop() error
	Reconfigure(session.Endpoint) (session.Endpoint, error)
	State() session.State
	Running() bool
	Endpoint() session.Endpoint
	Registrations() int64
	LastError() error
}

var _ Controller = (*session.Manager)(nil)

// HostView exposes host flags for /status.
type HostView interface {
	Snapshot() host.Snapshot
}

type Server struct {
	ID       string
	Addr     string
	Appeared time.Time

	// OnReconfigure runs after a successful endpoint change, e.g. to
	// persist it. A failure is reported but does not undo the change.
	OnReconfigure func(session.Endpoint) error

	// TLS serves HTTPS when both files are set.
	TLS TLSFiles

	ctrl   Controller
	host   HostView
	router *gin.Engine
	srv    *http.Server
}

func Appear(id, addr string, corsOrigins []string, ctrl Controller, h HostView) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger, "/health", "/metrics"))
	r.Use(observability.RequestMetricsMiddleware(id))
	r.Use(cors.New(cors.Config{
		AllowOrigins: normalizeOrigins(corsOrigins),
		AllowMethods: []string{"GET", "POST", "PUT"},
		AllowHeaders: []string{"Origin", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	_ = r.SetTrustedProxies([]string{"127.0.0.1", "::1"})

	s := &Server{
		ID:       id,
		Addr:     addr,
		Appeared: time.Now(),
		ctrl:     ctrl,
		host:     h,
		router:   r,
	}
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

// Status is the /status body.
type Status struct {
	Endpoint      session.Endpoint `json:"endpoint"`
	Address       string           `json:"address"`
	State         session.State    `json:"state"`
	Running       bool             `json:"running"`
	Registrations int64            `json:"registrations"`
	LastError     string           `json:"last_error,omitempty"`
	Host          *host.Snapshot   `json:"host,omitempty"`
}

func (s *Server) Status() Status {
	ep := s.ctrl.Endpoint()
	st := Status{
		Endpoint:      ep,
		Address:       ep.Address(),
		State:         s.ctrl.State(),
		Running:       s.ctrl.Running(),
		Registrations: s.ctrl.Registrations(),
	}
	if err := s.ctrl.LastError(); err != nil {
		st.LastError = err.Error()
	}
	if s.host != nil {
		snap := s.host.Snapshot()
		st.Host = &snap
	}
	return st
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"uptime":  time.Since(s.Appeared).String(),
			"service": s.ID,
		})
	})

	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	s.router.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.Status())
	})

	s.router.PUT("/endpoint", s.putEndpoint)

	s.router.POST("/start", func(c *gin.Context) {
		if err := s.ctrl.Start(); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s.Status())
	})

	s.router.POST("/stop", func(c *gin.Context) {
		if err := s.ctrl.Stop(); err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, s.Status())
	})
}

type endpointRequest struct {
	URL  string `json:"url" binding:"required"`
	Port int    `json:"port" binding:"required"`
}

func (s *Server) putEndpoint(c *gin.Context) {
	var req endpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	ep, err := s.ctrl.Reconfigure(session.Endpoint{URL: req.URL, Port: req.Port})
	if err != nil {
		log.Warn().Err(err).Str("admin", s.ID).Str("requested", req.URL).Int("port", req.Port).Msg("admin reconfigure failed")
		c.JSON(statusFor(err), gin.H{"error": err.Error(), "endpoint": ep})
		return
	}
	resp := gin.H{"endpoint": ep, "address": ep.Address()}
	if s.OnReconfigure != nil {
		if err := s.OnReconfigure(ep); err != nil {
			log.Error().Err(err).Str("admin", s.ID).Msg("admin endpoint persist failed")
			resp["persist_error"] = err.Error()
		}
	}
	c.JSON(http.StatusOK, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidEndpoint):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrShutdownTimeout), errors.Is(err, session.ErrClosed):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// TLSFiles names a PEM certificate and key.
type TLSFiles struct {
	CertFile string
	KeyFile  string
}

func (t TLSFiles) Enabled() bool { return t.CertFile != "" || t.KeyFile != "" }

func (t TLSFiles) Validate() error {
	if !t.Enabled() {
		return nil
	}
	if strings.TrimSpace(t.CertFile) == "" {
		return ErrTLSCertFileRequired
	}
	if strings.TrimSpace(t.KeyFile) == "" {
		return ErrTLSKeyFileRequired
	}
	return nil
}

// Serve listens on Addr until Shutdown.
func (s *Server) Serve() error {
	if err := s.TLS.Validate(); err != nil {
		return err
	}
	ln, err := net.Listen("tcp", s.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ln)
}

// ServeListener serves on ln until Shutdown.
func (s *Server) ServeListener(ln net.Listener) error {
	if err := s.TLS.Validate(); err != nil {
		_ = ln.Close()
		return err
	}
	log.Info().Str("admin", s.ID).Str("addr", ln.Addr().String()).Bool("tls", s.TLS.Enabled()).Msg("admin listening")
	var err error
	if s.TLS.Enabled() {
		err = s.srv.ServeTLS(ln, s.TLS.CertFile, s.TLS.KeyFile)
	} else {
		err = s.srv.Serve(ln)
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func normalizeOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"http://localhost:3000"}
	}
	return origins
}
