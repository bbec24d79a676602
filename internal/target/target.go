// Package target resolves database connection URLs into connection targets.
package target

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/willibrandon/copgy/internal/errkind"
)

// Resolution errors.
var (
	ErrMalformedURL        = errors.New("malformed database url")
	ErrMissingHost         = errors.New("database url missing host")
	ErrMissingPort         = errors.New("database url missing port")
	ErrMissingDatabaseName = errors.New("database url missing database name")
)

// ResolutionError reports why a connection URL could not be resolved.
type ResolutionError struct {
	URL string // redacted
	Err error
}

func (e *ResolutionError) Error() string {
	if e.URL == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (%s)", e.Err, e.URL)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// Kind implements errkind.Kinded.
func (e *ResolutionError) Kind() errkind.Kind { return errkind.URLResolution }

// Target holds the parameters of one database endpoint.
type Target struct {
	Scheme   string
	Host     string
	Port     uint16
	DBName   string
	Username *string
	Password *string
}

// Resolve parses a scheme://[user[:password]@]host:port/dbname URL.
// Host, port and database name are mandatory; there are no defaults.
func Resolve(raw string) (Target, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		// url.Error embeds the raw input, which may carry a password.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return Target{}, &ResolutionError{Err: fmt.Errorf("%w: %v", ErrMalformedURL, err)}
	}
	if u.Scheme == "" || u.Opaque != "" {
		return Target{}, &ResolutionError{URL: redact(u), Err: fmt.Errorf("%w: expected scheme://host:port/dbname", ErrMalformedURL)}
	}

	t := Target{Scheme: u.Scheme}

	t.Host = u.Hostname()
	if t.Host == "" {
		return Target{}, &ResolutionError{URL: redact(u), Err: ErrMissingHost}
	}

	portStr := u.Port()
	if portStr == "" {
		return Target{}, &ResolutionError{URL: redact(u), Err: ErrMissingPort}
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil || port == 0 {
		return Target{}, &ResolutionError{URL: redact(u), Err: fmt.Errorf("%w: invalid port %q", ErrMalformedURL, portStr)}
	}
	t.Port = uint16(port)

	t.DBName = strings.TrimPrefix(u.Path, "/")
	if t.DBName == "" {
		return Target{}, &ResolutionError{URL: redact(u), Err: ErrMissingDatabaseName}
	}

	if u.User != nil {
		if name := u.User.Username(); name != "" {
			t.Username = &name
		}
		if pw, ok := u.User.Password(); ok {
			t.Password = &pw
		}
	}

	return t, nil
}

// Address returns host:port.
func (t Target) Address() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// String renders the target as a URL with the password masked.
func (t Target) String() string {
	u := &url.URL{
		Scheme: t.Scheme,
		Host:   t.Address(),
		Path:   "/" + t.DBName,
	}
	if u.Scheme == "" {
		u.Scheme = "postgres"
	}
	if t.Username != nil {
		if t.Password != nil {
			u.User = url.UserPassword(*t.Username, "xxxxx")
		} else {
			u.User = url.User(*t.Username)
		}
	}
	return u.String()
}

func redact(u *url.URL) string {
	return u.Redacted()
}
