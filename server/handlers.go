package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/nanny"
)

// MessageResponse acknowledges a lifecycle request.
type MessageResponse struct {
	Message string `json:"message"`
	Port    int    `json:"port,omitempty"`
}

// StatusResponse acknowledges a heartbeat.
type StatusResponse struct {
	Status string `json:"status"`
}

// ImportRequest is the body of an environment import.
type ImportRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode,omitempty"`
}

func (s *Server) handleHealthz(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

func (s *Server) listApps(c echo.Context) error {
	infos := s.svc.List(c.Request().Context())

	apps := make(map[string]nanny.Info, len(infos))
	for _, info := range infos {
		apps[info.Name] = info
	}

	return writeSuccess(c, http.StatusOK, apps)
}

func (s *Server) createApp(c echo.Context) error {
	var body nanny.CreateRequest
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid json")
	}

	port, err := s.svc.Create(c.Request().Context(), body)
	if err != nil {
		return s.fail(c, "create", err)
	}

	return writeSuccess(c, http.StatusCreated, MessageResponse{
		Message: fmt.Sprintf("App %s created and started", body.Name),
		Port:    port,
	})
}

func (s *Server) startApp(c echo.Context) error {
	name := c.Param("name")

	port, err := s.svc.Start(c.Request().Context(), name)
	if err != nil {
		return s.fail(c, "start", err)
	}

	return writeSuccess(c, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("App %s started successfully", name),
		Port:    port,
	})
}

func (s *Server) stopApp(c echo.Context) error {
	name := c.Param("name")

	if err := s.svc.Stop(c.Request().Context(), name); err != nil {
		return s.fail(c, "stop", err)
	}

	return writeSuccess(c, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("App %s stopped successfully", name),
	})
}

func (s *Server) restartApp(c echo.Context) error {
	name := c.Param("name")

	port, err := s.svc.Restart(c.Request().Context(), name)
	if err != nil {
		return s.fail(c, "restart", err)
	}

	return writeSuccess(c, http.StatusOK, MessageResponse{
		Message: fmt.Sprintf("App %s restarted successfully", name),
		Port:    port,
	})
}

func (s *Server) heartbeat(c echo.Context) error {
	if err := s.svc.Heartbeat(c.Param("name")); err != nil {
		if statusOf(err) == http.StatusConflict {
			return writeError(c, http.StatusNotFound, describe(err))
		}

		return s.fail(c, "heartbeat", err)
	}

	return writeSuccess(c, http.StatusOK, StatusResponse{Status: "ok"})
}

func (s *Server) getEnv(c echo.Context) error {
	env, err := s.svc.Env(c.Param("name"))
	if err != nil {
		return s.fail(c, "env", err)
	}

	tag := etag(env)
	if match := c.Request().Header.Get("If-None-Match"); match != "" && etagMatch(match, tag) {
		c.Response().Header().Set("ETag", tag)

		return c.NoContent(http.StatusNotModified)
	}

	return writeEnv(c, env)
}

func (s *Server) setEnv(c echo.Context) error {
	env := envtext.New(0)
	if err := json.NewDecoder(c.Request().Body).Decode(env); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid json: "+err.Error())
	}

	name := c.Param("name")

	if err := s.svc.SetEnv(c.Request().Context(), name, env); err != nil {
		return s.fail(c, "set env", err)
	}

	return writeEnv(c, env)
}

func (s *Server) importEnv(c echo.Context) error {
	var body ImportRequest
	if err := c.Bind(&body); err != nil {
		return writeError(c, http.StatusBadRequest, "invalid json")
	}

	mode, err := envtext.ParseMode(body.Mode)
	if err != nil {
		return s.fail(c, "import env", err)
	}

	env, err := s.svc.ImportEnv(c.Request().Context(), c.Param("name"), body.Text, mode)
	if err != nil {
		return s.fail(c, "import env", err)
	}

	return writeEnv(c, env)
}

func writeEnv(c echo.Context, env *envtext.Map) error {
	c.Response().Header().Set("ETag", etag(env))

	return writeSuccess(c, http.StatusOK, env)
}

// etag is the strong entity tag of an environment.
func etag(env *envtext.Map) string { return fmt.Sprintf(`"%016x"`, env.Sum64()) }

// etagMatch reports whether an If-None-Match header value matches tag.
func etagMatch(header, tag string) bool {
	for candidate := range strings.SplitSeq(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == tag {
			return true
		}
	}

	return false
}

// fail logs err at a level matching its status and writes it.
func (s *Server) fail(c echo.Context, op string, err error) error {
	ctx := c.Request().Context()

	if statusOf(err) >= http.StatusInternalServerError {
		s.log.ErrorContext(ctx, op+" failed", slogErr(err))
	} else {
		s.log.DebugContext(ctx, op+" rejected", slogErr(err))
	}

	return writeErr(c, err)
}
