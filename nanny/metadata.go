package nanny

import (
	"log/slog"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/ardnew/nanny/envtext"
)

// namePattern constrains app names so they are safe as directory names and
// URL path segments.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_.-]*$`)

// ValidateName reports whether name is a valid app name.
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return ErrInvalidName.With(slog.String("name", name))
	}

	return nil
}

// Metadata is the persisted description of a managed app.
type Metadata struct {
	Name          string       `json:"name"`
	Kind          Kind         `json:"type"`
	Repo          string       `json:"repo"`
	Path          string       `json:"path"`
	Email         string       `json:"email"`
	Command       string       `json:"command,omitempty"`
	Env           *envtext.Map `json:"env"`
	Port          int          `json:"port,omitempty"`
	Active        bool         `json:"is_active"`
	LastStartTime float64      `json:"last_start_time"`
}

// LastStart returns the time the app was last started, or the zero time.
func (m Metadata) LastStart() time.Time {
	if m.LastStartTime <= 0 {
		return time.Time{}
	}

	sec, frac := math.Modf(m.LastStartTime)

	return time.Unix(int64(sec), int64(frac*float64(time.Second)))
}

func (m Metadata) clone() Metadata {
	m.Env = m.Env.Clone()

	return m
}

// Info describes an app as reported by [Service.List].
type Info struct {
	Name       string    `json:"name"`
	Kind       Kind      `json:"type"`
	Repo       string    `json:"repo"`
	Path       string    `json:"path"`
	Email      string    `json:"email"`
	Active     bool      `json:"is_active"`
	Running    bool      `json:"running"`
	Port       int       `json:"port,omitempty"`
	PID        int       `json:"pid,omitempty"`
	Uptime     int64     `json:"uptime"`
	Idle       int64     `json:"idle"`
	LastAccess time.Time `json:"last_access_time,omitzero"`
}

// CreateRequest describes a new app.
type CreateRequest struct {
	Name    string       `json:"name"`
	Kind    string       `json:"type"`
	Repo    string       `json:"repo"`
	Path    string       `json:"path"`
	Email   string       `json:"email"`
	Command string       `json:"command,omitempty"`
	Env     *envtext.Map `json:"env,omitempty"`
}

// Validate checks the request and returns the metadata it describes.
func (r CreateRequest) Validate() (Metadata, error) {
	if err := ValidateName(r.Name); err != nil {
		return Metadata{}, err
	}

	kind, err := ParseKind(r.Kind)
	if err != nil {
		return Metadata{}, err
	}

	missing := func(field string) error {
		return ErrInvalidRequest.With(
			slog.String("name", r.Name),
			slog.String("missing", field),
		)
	}

	switch {
	case strings.TrimSpace(r.Repo) == "":
		return Metadata{}, missing("repo")
	case kind == KindCommand && strings.TrimSpace(r.Command) == "":
		return Metadata{}, missing("command")
	case kind != KindCommand && strings.TrimSpace(r.Path) == "":
		return Metadata{}, missing("path")
	}

	for k, v := range r.Env.All() {
		if err := envtext.Representable(k, v); err != nil {
			return Metadata{}, ErrInvalidRequest.Wrap(err).With(slog.String("name", r.Name))
		}
	}

	return Metadata{
		Name:    r.Name,
		Kind:    kind,
		Repo:    strings.TrimSpace(r.Repo),
		Path:    strings.TrimSpace(r.Path),
		Email:   strings.TrimSpace(r.Email),
		Command: r.Command,
		Env:     r.Env.Clone(),
	}, nil
}
