package agent

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/danmuck/faktorykit/internal/client"
	"github.com/danmuck/faktorykit/internal/observability"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const adminShutdownTimeout = 2 * time.Second

func (s *Service) router() *gin.Engine {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery(), observability.RequestLogger(s.log), observability.RequestMetricsMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		state := s.State()
		status, code := "ok", http.StatusOK
		if state != client.StateReady {
			status, code = "connecting", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":   status,
			"state":    state.String(),
			"wid":      s.cfg.Identity.WID,
			"connects": s.Connects(),
			"quiet":    s.Quiet(),
			"uptime":   time.Since(s.started).String(),
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (s *Service) serveAdmin(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.serveAdminListener(ctx, ln)
}

func (s *Service) serveAdminListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), adminShutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	s.log.Info().Str("addr", ln.Addr().String()).Msg("admin listening")
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
