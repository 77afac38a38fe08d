package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"tickcore/internal/obs"
)

const shutdownTimeout = 5 * time.Second

// Server exposes the board and metrics over HTTP.
type Server struct {
	board   *Board
	metrics *obs.Metrics
	clients func() int
	started time.Time
	engine  *gin.Engine
}

// NewServer builds the routes. clients reports connected host clients and
// may be nil.
func NewServer(board *Board, metrics *obs.Metrics, clients func() int) (*Server, error) {
	gin.SetMode(gin.ReleaseMode)
	s := &Server{
		board:   board,
		metrics: metrics,
		clients: clients,
		started: time.Now(),
		engine:  gin.New(),
	}
	if s.clients == nil {
		s.clients = func() int { return 0 }
	}

	reg := prometheus.NewRegistry()
	if err := reg.Register(obs.NewCollector(metrics)); err != nil {
		return nil, errors.Wrap(err, "register core collector")
	}
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, errors.Wrap(err, "register go collector")
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, errors.Wrap(err, "register process collector")
	}

	s.engine.Use(gin.Recovery())
	s.engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))
	api := s.engine.Group("/api")
	api.GET("/health", s.getHealth)
	api.GET("/stats", s.getStats)
	api.GET("/connections", s.getConnections)
	api.GET("/prices", s.getPrices)
	api.GET("/prices/:symbol", s.getPrice)
	api.GET("/risk", s.getRisk)
	return s, nil
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is done.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.engine, ReadHeaderTimeout: 5 * time.Second}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logs.Errorf("admin shutdown, err: %+v", err)
		}
	})
	defer stop()

	logs.Infof("admin api listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return errors.Wrapf(err, "admin listen %s", addr)
	}
	return nil
}

func (s *Server) getHealth(c *gin.Context) {
	var lastEvent int64
	if at := s.board.LastEventAt(); !at.IsZero() {
		lastEvent = at.UnixMilli()
	}
	c.JSON(http.StatusOK, gin.H{
		"status":      "ok",
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"hostClients": s.clients(),
		"lastEventMs": lastEvent,
	})
}

func (s *Server) getStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) getConnections(c *gin.Context) {
	c.JSON(http.StatusOK, s.board.Connections())
}

func (s *Server) getPrices(c *gin.Context) {
	c.JSON(http.StatusOK, s.board.Prices())
}

func (s *Server) getPrice(c *gin.Context) {
	p, ok := s.board.Price(c.Param("symbol"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (s *Server) getRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.board.Risk())
}
