// Package pg provides live PostgreSQL connections for copgy runs: connection
// establishment over TLS, literal command execution, and the COPY TO / COPY
// FROM streams the copy stage pumps between.
package pg

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/willibrandon/copgy/internal/logger"
	"github.com/willibrandon/copgy/internal/target"
)

// DefaultApplicationName is reported to the server in pg_stat_activity.
const DefaultApplicationName = "copgy"

// Options configure how a connection is established.
type Options struct {
	// TLSMode defaults to TLSInsecure.
	TLSMode TLSMode
	// RootCert is a PEM bundle used by TLSVerifyFull. Empty uses the system pool.
	RootCert string
	// PasswordCommand, when set, supplies the password for URLs without one.
	PasswordCommand string
	// PromptPassword allows an interactive prompt for URLs without a password.
	PromptPassword bool
	// ConnectTimeout bounds the dial and handshake. Zero means no limit.
	ConnectTimeout time.Duration
	// ApplicationName defaults to DefaultApplicationName.
	ApplicationName string
}

// Conn is one live server session. It is not safe for concurrent use; the
// engine drives each connection from a single role.
type Conn struct {
	conn    *pgx.Conn
	target  target.Target
	version string
}

// Connect opens a session to t and validates it with a version query. Any
// failure is returned as a *ConnectionError.
func Connect(ctx context.Context, t target.Target, opts Options) (*Conn, error) {
	fail := func(err error) (*Conn, error) {
		logger.Debug("Connection failed", "target", t.String(), "error", err)
		return nil, &ConnectionError{Target: t.String(), Err: err}
	}

	logger.Debug("Connecting",
		"host", t.Host,
		"port", t.Port,
		"database", t.DBName,
		"tls_mode", opts.TLSMode,
	)

	cfg, err := pgx.ParseConfig(dsn(t))
	if err != nil {
		return fail(fmt.Errorf("failed to build connection config: %w", err))
	}

	if t.Password == nil {
		password, ok, err := supplementPassword(ctx, opts, t.String())
		if err != nil {
			return fail(err)
		}
		if ok {
			cfg.Password = password
		}
	}

	cfg.TLSConfig, err = tlsConfig(opts.TLSMode, t.Host, opts.RootCert)
	if err != nil {
		return fail(err)
	}
	cfg.Fallbacks = nil
	cfg.ConnectTimeout = opts.ConnectTimeout

	appName := opts.ApplicationName
	if appName == "" {
		appName = DefaultApplicationName
	}
	cfg.RuntimeParams["application_name"] = appName

	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return fail(err)
	}

	var version string
	if err := conn.QueryRow(ctx, "SELECT version()").Scan(&version); err != nil {
		_ = conn.Close(context.WithoutCancel(ctx))
		return fail(fmt.Errorf("connection validation failed: %w", err))
	}

	logger.Info("Connected",
		"target", t.String(),
		"server_version", version,
		"tls", cfg.TLSConfig != nil,
	)

	return &Conn{conn: conn, target: t, version: version}, nil
}

// String returns the redacted connection URL.
func (c *Conn) String() string { return c.target.String() }

// ServerVersion returns the result of SELECT version() at connect time.
func (c *Conn) ServerVersion() string { return c.version }

// Exec runs sql with the simple query protocol and discards any rows. sql
// may hold several statements.
func (c *Conn) Exec(ctx context.Context, sql string) error {
	start := time.Now()
	results, err := c.conn.PgConn().Exec(ctx, sql).ReadAll()
	if err != nil {
		return err
	}
	logger.Debug("Executed command",
		"target", c.target.String(),
		"statements", len(results),
		"duration", time.Since(start),
	)
	return nil
}

// Close terminates the session.
func (c *Conn) Close(ctx context.Context) error {
	return c.conn.Close(ctx)
}

// dsn renders t as a keyword/value connection string. sslmode is pinned to
// disable because the TLS configuration is set explicitly after parsing.
func dsn(t target.Target) string {
	var b strings.Builder
	kv := func(k, v string) {
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(quoteValue(v))
	}

	kv("host", t.Host)
	kv("port", strconv.Itoa(int(t.Port)))
	kv("dbname", t.DBName)
	if t.Username != nil {
		kv("user", *t.Username)
	}
	if t.Password != nil {
		kv("password", *t.Password)
	}
	kv("sslmode", "disable")
	return b.String()
}

var valueEscaper = strings.NewReplacer(`\`, `\\`, `'`, `\'`)

func quoteValue(v string) string {
	return "'" + valueEscaper.Replace(v) + "'"
}
