package server

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/ardnew/nanny/envtext"
	"github.com/ardnew/nanny/nanny"
	"github.com/ardnew/nanny/pkg"
)

// Envelope is the JSend response body.
type Envelope struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// JSend statuses.
const (
	StatusSuccess = "success"
	StatusFail    = "fail"
	StatusError   = "error"
)

func writeSuccess(c echo.Context, status int, payload any) error {
	return c.JSON(status, Envelope{
		Status: StatusSuccess,
		Data:   payload,
	})
}

func writeFail(c echo.Context, status int, message string) error {
	return c.JSON(status, Envelope{
		Status: StatusFail,
		Data: map[string]string{
			"message": message,
		},
	})
}

func writeError(c echo.Context, status int, message string) error {
	if status >= http.StatusInternalServerError {
		return c.JSON(status, Envelope{
			Status:  StatusError,
			Message: message,
			Code:    status,
		})
	}

	return writeFail(c, status, message)
}

// writeErr maps err to a status code and writes it.
func writeErr(c echo.Context, err error) error {
	return writeError(c, statusOf(err), describe(err))
}

func statusOf(err error) int {
	switch {
	case errors.Is(err, nanny.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, nanny.ErrExists),
		errors.Is(err, nanny.ErrNotRunning):
		return http.StatusConflict

	case errors.Is(err, nanny.ErrInvalidName),
		errors.Is(err, nanny.ErrInvalidKind),
		errors.Is(err, nanny.ErrInvalidRequest),
		errors.Is(err, envtext.ErrInvalidMode),
		errors.Is(err, envtext.ErrInvalidValue),
		errors.Is(err, envtext.ErrUnrepresentable):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// describe renders err with the string-valued attributes of a [pkg.Error]
// appended, so that clients see which app or field was at fault.
func describe(err error) string {
	var pe *pkg.Error
	if !errors.As(err, &pe) {
		return err.Error()
	}

	attrs := pe.Attrs()
	if len(attrs) == 0 {
		return err.Error()
	}

	parts := make([]string, 0, len(attrs))

	for _, a := range attrs {
		if a.Value.Kind() == slog.KindGroup {
			continue
		}

		parts = append(parts, fmt.Sprintf("%s=%v", a.Key, a.Value.Any()))
	}

	return fmt.Sprintf("%s (%s)", err.Error(), strings.Join(parts, ", "))
}

func slogErr(err error) slog.Attr { return slog.Any("error", err) }
