// Package httpapi is the thin REST + websocket facade over the Gateway.
// It is ambient transport, not part of the core session/resource engine.
package httpapi

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/opensandbox/msbgateway/internal/gateway"
	"github.com/opensandbox/msbgateway/internal/metrics"
	"github.com/opensandbox/msbgateway/internal/msberrors"
	"github.com/opensandbox/msbgateway/pkg/types"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all origins; tighten behind a reverse proxy in production
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Server wires the Gateway to an echo router.
type Server struct {
	echo *echo.Echo
	gw   *gateway.Gateway
}

// New builds the router and registers every route.
func New(gw *gateway.Gateway) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(metrics.EchoMiddleware())

	s := &Server{echo: e, gw: gw}

	e.POST("/v1/execute/code", s.executeCode)
	e.POST("/v1/execute/command", s.executeCommand)
	e.GET("/v1/sessions", s.getSessions)
	e.DELETE("/v1/sessions/:id", s.stopSession)
	e.GET("/v1/stats", s.getStats)
	e.GET("/v1/stats/stream", s.streamStats)
	e.POST("/v1/orphans/cleanup", s.cleanupOrphans)
	e.GET("/v1/health", s.health)
	e.GET("/healthz", s.health)
	e.GET("/metrics", echo.WrapHandler(metrics.Handler()))

	return s
}

// Handler returns the underlying http.Handler for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.echo
}

type executeCodeRequest struct {
	Code      string `json:"code"`
	Template  string `json:"template"`
	SessionID string `json:"session_id"`
	Flavor    string `json:"flavor"`
	TimeoutS  int    `json:"timeout_s"`
}

func (s *Server) executeCode(c echo.Context) error {
	var req executeCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	template, err := types.ParseTemplate(req.Template)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	flavor := types.FlavorSmall
	if req.Flavor != "" {
		flavor, err = types.ParseFlavor(req.Flavor)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
	}

	result, err := s.gw.ExecuteCode(c.Request().Context(), req.Code, template, req.SessionID, flavor, time.Duration(req.TimeoutS)*time.Second)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

type executeCommandRequest struct {
	Command   string   `json:"command"`
	Args      []string `json:"args"`
	Template  string   `json:"template"`
	SessionID string   `json:"session_id"`
	Flavor    string   `json:"flavor"`
	TimeoutS  int      `json:"timeout_s"`
}

func (s *Server) executeCommand(c echo.Context) error {
	var req executeCommandRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}

	template, err := types.ParseTemplate(req.Template)
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	flavor := types.FlavorSmall
	if req.Flavor != "" {
		flavor, err = types.ParseFlavor(req.Flavor)
		if err != nil {
			return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
		}
	}

	result, err := s.gw.ExecuteCommand(c.Request().Context(), req.Command, req.Args, template, req.SessionID, flavor, time.Duration(req.TimeoutS)*time.Second)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, result)
}

func (s *Server) getSessions(c echo.Context) error {
	sessionID := c.QueryParam("session_id")
	return c.JSON(http.StatusOK, s.gw.GetSessions(sessionID))
}

func (s *Server) stopSession(c echo.Context) error {
	found := s.gw.StopSession(c.Request().Context(), c.Param("id"))
	if !found {
		return c.JSON(http.StatusNotFound, map[string]bool{"stopped": false})
	}
	return c.JSON(http.StatusOK, map[string]bool{"stopped": true})
}

func (s *Server) getStats(c echo.Context) error {
	return c.JSON(http.StatusOK, s.gw.GetStats())
}

func (s *Server) cleanupOrphans(c echo.Context) error {
	n, err := s.gw.CleanupOrphans(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int{"orphans_cleaned": n})
}

func (s *Server) health(c echo.Context) error {
	status := s.gw.HealthCheck()
	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return c.JSON(code, status)
}

// streamStats pushes a ResourceStats snapshot on a fixed poll interval —
// ambient convenience, not the core's own reaper signal.
func (s *Server) streamStats(c echo.Context) error {
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	ctx := c.Request().Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := conn.WriteJSON(s.gw.GetStats()); err != nil {
				return nil
			}
		}
	}
}

func respondError(c echo.Context, err error) error {
	if wrapped, ok := err.(msberrors.WrapperError); ok {
		pub := msberrors.ToPublic(wrapped, errorTypeName(wrapped))
		code := httpStatusFor(wrapped.Category())
		return c.JSON(code, pub)
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func httpStatusFor(category msberrors.Category) int {
	switch category {
	case msberrors.CategoryResourceLimit:
		return http.StatusTooManyRequests
	case msberrors.CategorySessionNotFound:
		return http.StatusNotFound
	case msberrors.CategoryConnection:
		return http.StatusBadGateway
	case msberrors.CategoryConfiguration:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func errorTypeName(err msberrors.WrapperError) string {
	switch err.(type) {
	case *msberrors.ConfigurationError:
		return "ConfigurationError"
	case *msberrors.ConnectionError:
		return "ConnectionError"
	case *msberrors.SandboxCreationError:
		return "SandboxCreationError"
	case *msberrors.CodeExecutionError:
		return "CodeExecutionError"
	case *msberrors.CommandExecutionError:
		return "CommandExecutionError"
	case *msberrors.ResourceLimitError:
		return "ResourceLimitError"
	case *msberrors.SessionNotFoundError:
		return "SessionNotFoundError"
	default:
		return "UnknownError"
	}
}
