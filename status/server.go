// Package status exposes a small local HTTP surface for observing the
// companion: health, the latest presence snapshot, and recent history.
package status

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/ekvall/kartklickare/config"
	"github.com/ekvall/kartklickare/history"
	"github.com/ekvall/kartklickare/logger"
	"github.com/ekvall/kartklickare/poller"
	"github.com/ekvall/kartklickare/presence"
)

const maxHistoryLimit = 200

// StatusSource reports the poller's last observation.
type StatusSource interface {
	Status() poller.Status
}

// ActivitySource reports the last activity accepted by the presence
// transport.
type ActivitySource interface {
	LastActivity() presence.Activity
}

// HistorySource reads back recorded presence updates. May be nil when
// history is disabled.
type HistorySource interface {
	Recent(ctx context.Context, limit int) ([]history.Entry, error)
}

type Server struct {
	config    *config.Config
	poller    StatusSource
	session   ActivitySource
	histStore HistorySource
	echo      *echo.Echo
}

func NewServer(cfg *config.Config, source StatusSource, session ActivitySource, histStore HistorySource) *Server {
	s := &Server{
		config:    cfg,
		poller:    source,
		session:   session,
		histStore: histStore,
		echo:      echo.New(),
	}
	s.setupEcho()
	return s
}

func (s *Server) setupEcho() {
	s.echo.HideBanner = true
	s.echo.HidePort = true
	s.echo.Use(middleware.Recover())
	s.echo.GET("/", s.handleInfo)
	s.echo.GET("/healthz", s.handleHealthz)
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/history", s.handleHistory)
}

// Start blocks serving HTTP until Shutdown is called or the listener
// fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Status.Host, s.config.Status.Port)
	logger.Info("Status server listening", "address", addr)
	if err := s.echo.Start(addr); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) handleInfo(c echo.Context) error {
	logger.Debug("Status info requested", "remote_addr", c.RealIP())
	return c.JSON(http.StatusOK, map[string]any{
		"name":    s.config.Name,
		"version": s.config.Version,
		"endpoints": []string{
			"/healthz",
			"/status",
			"/history",
		},
	})
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"poller":   s.poller.Status(),
		"activity": s.session.LastActivity(),
	})
}

func (s *Server) handleHistory(c echo.Context) error {
	if s.histStore == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "history is disabled"})
	}

	limit := 20
	if raw := c.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": "limit must be a positive integer"})
		}
		limit = parsed
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	entries, err := s.histStore.Recent(c.Request().Context(), limit)
	if err != nil {
		logger.Error("Failed to read presence history", "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to read history"})
	}
	if entries == nil {
		entries = []history.Entry{}
	}
	return c.JSON(http.StatusOK, map[string]any{"entries": entries})
}
