// Package api provides a small HTTP surface to inspect the message history and the area info,
// and to inject PDUs into the engine, e.g. from a network based broadcast source or for testing.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pion/logging"

	"github.com/ftl/cellbroadcast/cb"
)

const (
	defaultRecentLimit = 100
	maxRecentLimit     = 1000
	defaultRecentSince = 24 * time.Hour
	shutdownTimeout    = 5 * time.Second
)

// Engine is the part of the engine the API exposes.
type Engine interface {
	SubmitRawMessage(slot int, pdu []byte) error
	SubmitGeofenceTrigger(slot int, pdu []byte) error
	AreaInfo(slot int) string
}

// History provides the recently received messages.
type History interface {
	Recent(ctx context.Context, since time.Time, limit int) ([]cb.Record, error)
}

// Config of a Server. Engine is required, without History the message list is not available.
type Config struct {
	Engine        Engine
	History       History
	Slots         int
	LoggerFactory logging.LoggerFactory
	// Now returns the current time, time.Now if nil.
	Now func() time.Time
}

// Server serves the HTTP API.
type Server struct {
	engine  Engine
	history History
	slots   int
	now     func() time.Time
	log     logging.LeveledLogger
	router  *gin.Engine
}

func New(config Config) (*Server, error) {
	if config.Engine == nil {
		return nil, fmt.Errorf("no engine")
	}
	if config.Slots < 1 {
		config.Slots = 1
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	result := &Server{
		engine:  config.Engine,
		history: config.History,
		slots:   config.Slots,
		now:     config.Now,
	}
	if config.LoggerFactory != nil {
		result.log = config.LoggerFactory.NewLogger("api")
	}
	result.router = result.setupRouter()
	return result, nil
}

func (s *Server) setupRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(s.logging())

	router.GET("/healthz", s.healthz)

	v1 := router.Group("/v1")
	{
		v1.GET("/messages", s.listMessages)

		slots := v1.Group("/slots/:slot")
		slots.Use(s.slotParam())
		slots.GET("/area-info", s.getAreaInfo)
		slots.POST("/pdus", s.submitPDU(s.engine.SubmitRawMessage))
		slots.POST("/triggers", s.submitPDU(s.engine.SubmitGeofenceTrigger))
	}

	return router
}

// Handler returns the HTTP handler of this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves the API on the given address until the context is done.
func (s *Server) ListenAndServe(ctx context.Context, address string) error {
	server := &http.Server{
		Addr:              address,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		if s.log != nil {
			s.log.Infof("listening on %s", address)
		}
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// logging logs every request at debug level and failed requests at warn level.
func (s *Server) logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		if s.log == nil {
			return
		}
		if raw != "" {
			path = path + "?" + raw
		}
		statusCode := c.Writer.Status()
		latency := time.Since(start)
		if statusCode >= http.StatusBadRequest {
			s.log.Warnf("[%s] %s - %d (%v)", c.Request.Method, path, statusCode, latency)
		} else {
			s.log.Debugf("[%s] %s - %d (%v)", c.Request.Method, path, statusCode, latency)
		}
	}
}
