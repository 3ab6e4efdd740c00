package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/classr/internal/platform/logger"
)

type ServerOptions struct {
	Addr    string
	TLSCert string
	TLSKey  string
}

type Server struct {
	Engine *gin.Engine

	log  *logger.Logger
	opts ServerOptions
	srv  *http.Server
}

func NewServer(cfg RouterConfig, opts ServerOptions) *Server {
	engine := NewRouter(cfg)
	log := cfg.Log
	if log == nil {
		log = logger.Nop()
	}
	return &Server{
		Engine: engine,
		log:    log.With("component", "HTTPServer"),
		opts:   opts,
		srv: &http.Server{
			Addr:              opts.Addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// Run serves until Shutdown. A clean shutdown returns nil.
func (s *Server) Run() error {
	var err error
	if s.opts.TLSCert != "" {
		s.log.Info("listening", "addr", s.opts.Addr, "tls", true)
		err = s.srv.ListenAndServeTLS(s.opts.TLSCert, s.opts.TLSKey)
	} else {
		s.log.Info("listening", "addr", s.opts.Addr, "tls", false)
		err = s.srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
