package pg_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/willibrandon/copgy/internal/engine"
	"github.com/willibrandon/copgy/internal/errkind"
	"github.com/willibrandon/copgy/internal/manifest"
	"github.com/willibrandon/copgy/internal/pg"
	"github.com/willibrandon/copgy/internal/stream"
	"github.com/willibrandon/copgy/internal/target"
)

// CopyTestSuite runs manifests between two TLS-enabled PostgreSQL servers.
type CopyTestSuite struct {
	suite.Suite
	ctx    context.Context
	cancel context.CancelFunc

	containers []testcontainers.Container
	sourceURL  string
	destURL    string
}

func TestCopySuite(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration tests in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	suite.Run(t, new(CopyTestSuite))
}

func (s *CopyTestSuite) SetupSuite() {
	s.ctx, s.cancel = context.WithTimeout(context.Background(), 10*time.Minute)
	s.sourceURL = s.startPostgres("source")
	s.destURL = s.startPostgres("dest")
}

func (s *CopyTestSuite) TearDownSuite() {
	for _, c := range s.containers {
		_ = c.Terminate(context.Background())
	}
	s.cancel()
}

// SetupTest gives every test the same source data and an empty destination.
func (s *CopyTestSuite) SetupTest() {
	src := s.connect(s.sourceURL, pg.Options{})
	defer src.Close(s.ctx)
	s.Require().NoError(src.Exec(s.ctx, `
		DROP TABLE IF EXISTS users;
		CREATE TABLE users (id int PRIMARY KEY, name text, note text);
		INSERT INTO users
		SELECT i, 'user-' || i, CASE WHEN i % 7 = 0 THEN NULL ELSE E'tab\there' END
		FROM generate_series(1, 5000) AS i;`))

	dst := s.connect(s.destURL, pg.Options{})
	defer dst.Close(s.ctx)
	s.Require().NoError(dst.Exec(s.ctx, `
		DROP TABLE IF EXISTS users;
		DROP TABLE IF EXISTS audit;
		CREATE TABLE users (id int, name text, note text);`))
}

func (s *CopyTestSuite) startPostgres(name string) string {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "copgy",
			"POSTGRES_PASSWORD": "copgy",
			"POSTGRES_DB":       name,
		},
		Cmd: []string{
			"-c", "ssl=on",
			"-c", "ssl_cert_file=/etc/ssl/certs/ssl-cert-snakeoil.pem",
			"-c", "ssl_key_file=/etc/ssl/private/ssl-cert-snakeoil.key",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(90 * time.Second),
	}

	c, err := testcontainers.GenericContainer(s.ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	s.Require().NoError(err, "Failed to start %s container", name)
	s.containers = append(s.containers, c)

	host, err := c.Host(s.ctx)
	s.Require().NoError(err)
	port, err := c.MappedPort(s.ctx, "5432")
	s.Require().NoError(err)

	return fmt.Sprintf("postgres://copgy:copgy@%s:%s/%s", host, port.Port(), name)
}

func (s *CopyTestSuite) connect(rawURL string, opts pg.Options) *pg.Conn {
	t, err := target.Resolve(rawURL)
	s.Require().NoError(err)
	c, err := pg.Connect(s.ctx, t, opts)
	s.Require().NoError(err)
	return c
}

func (s *CopyTestSuite) connector(opts pg.Options) engine.Connector {
	return engine.ConnectorFunc(func(ctx context.Context, role engine.Role) (engine.Conn, error) {
		raw := s.sourceURL
		if role == engine.RoleDestination {
			raw = s.destURL
		}
		t, err := target.Resolve(raw)
		if err != nil {
			return nil, err
		}
		c, err := pg.Connect(ctx, t, opts)
		if err != nil {
			return nil, err
		}
		return c, nil
	})
}

// dump renders a table in a stable order for comparison.
func (s *CopyTestSuite) dump(rawURL, table string) string {
	c := s.connect(rawURL, pg.Options{})
	defer c.Close(s.ctx)

	r, err := c.Export(s.ctx, "SELECT * FROM "+table+" ORDER BY 1")
	s.Require().NoError(err)
	defer r.Close()
	data, err := io.ReadAll(r)
	s.Require().NoError(err)
	return string(data)
}

func (s *CopyTestSuite) TestConnect_InsecureTLS() {
	c := s.connect(s.sourceURL, pg.Options{TLSMode: pg.TLSInsecure})
	defer c.Close(s.ctx)

	s.Contains(c.ServerVersion(), "PostgreSQL")
	s.NotContains(c.String(), ":copgy@")

	r, err := c.Export(s.ctx, "SELECT ssl FROM pg_stat_ssl WHERE pid = pg_backend_pid()")
	s.Require().NoError(err)
	defer r.Close()
	data, err := io.ReadAll(r)
	s.Require().NoError(err)
	s.Equal("t\n", string(data))
}

func (s *CopyTestSuite) TestConnect_VerifyFullRejectsSnakeoil() {
	t, err := target.Resolve(s.sourceURL)
	s.Require().NoError(err)

	_, err = pg.Connect(s.ctx, t, pg.Options{TLSMode: pg.TLSVerifyFull})
	s.Require().Error(err)
	s.Equal(errkind.Connection, errkind.Of(err))
}

func (s *CopyTestSuite) TestConnect_WrongPassword() {
	t, err := target.Resolve(strings.Replace(s.sourceURL, "copgy:copgy@", "copgy:wrong@", 1))
	s.Require().NoError(err)

	_, err = pg.Connect(s.ctx, t, pg.Options{})
	s.Require().Error(err)
	s.Equal(errkind.Connection, errkind.Of(err))
	s.NotContains(err.Error(), "wrong")
}

func (s *CopyTestSuite) TestConnect_PasswordCommand() {
	t, err := target.Resolve(strings.Replace(s.sourceURL, "copgy:copgy@", "copgy@", 1))
	s.Require().NoError(err)

	c, err := pg.Connect(s.ctx, t, pg.Options{PasswordCommand: "echo copgy"})
	s.Require().NoError(err)
	s.NoError(c.Close(s.ctx))
}

func (s *CopyTestSuite) TestExecute_CopiesTableExactly() {
	m := manifest.New(
		manifest.NewCopyStep("SELECT id, name, note FROM users;", "users"),
		manifest.NewExecuteStep("", "CREATE TABLE audit AS SELECT count(*) AS n FROM users"),
	)

	var finished engine.Event
	obs := engine.ObserverFunc(func(e engine.Event) {
		if e.Type == engine.EventCopyFinished {
			finished = e
		}
	})

	opts := engine.DefaultOptions()
	opts.BufferSize = 1024
	s.Require().NoError(engine.New(opts, obs).Execute(s.ctx, m, s.connector(pg.Options{})))

	want := s.dump(s.sourceURL, "users")
	s.Equal(want, s.dump(s.destURL, "users"))
	s.Equal(int64(5000), finished.Rows)
	s.Equal(int64(len(want)), finished.Bytes)
	s.Equal("5000\n", s.dump(s.destURL, "audit"))
}

func (s *CopyTestSuite) TestExecute_TwiceDuplicatesRows() {
	m := manifest.New(manifest.NewCopyStep("SELECT * FROM users WHERE id <= 10", "users"))
	e := engine.New(engine.DefaultOptions(), nil)

	s.Require().NoError(e.Execute(s.ctx, m, s.connector(pg.Options{})))
	s.Require().NoError(e.Execute(s.ctx, m, s.connector(pg.Options{})))

	s.Equal("20\n", s.dump(s.destURL, "(SELECT count(*) FROM users) AS c"))
}

func (s *CopyTestSuite) TestExecute_QueryWithTrailingComment() {
	m := manifest.New(
		manifest.NewCopyStep("SELECT * FROM users WHERE id <= 3 -- first rows", "users"),
		manifest.NewExecuteStep("", "ANALYZE users -- refresh stats"),
	)
	s.Require().NoError(engine.New(engine.DefaultOptions(), nil).Execute(s.ctx, m, s.connector(pg.Options{})))

	s.Equal("3\n", s.dump(s.destURL, "(SELECT count(*) FROM users) AS c"))
}

func (s *CopyTestSuite) TestExecute_MissingDestinationTable() {
	m := manifest.New(manifest.NewCopyStep("SELECT * FROM users", "no_such_table"))

	err := engine.New(engine.DefaultOptions(), nil).Execute(s.ctx, m, s.connector(pg.Options{}))
	s.Require().Error(err)
	s.Equal(errkind.StreamOpen, errkind.Of(err))
	s.True(errors.Is(err, stream.ErrRejected))
}

func (s *CopyTestSuite) TestExecute_MissingSourceTable() {
	m := manifest.New(manifest.NewCopyStep("SELECT * FROM no_such_table", "users"))

	err := engine.New(engine.DefaultOptions(), nil).Execute(s.ctx, m, s.connector(pg.Options{}))
	s.Require().Error(err)
	s.Equal(errkind.StreamOpen, errkind.Of(err))

	var stageErr *engine.StageError
	s.Require().True(errors.As(err, &stageErr))
	s.Equal("export", stageErr.Detail)
}

func (s *CopyTestSuite) TestExecute_BadRowsRollBackImport() {
	dst := s.connect(s.destURL, pg.Options{})
	s.Require().NoError(dst.Exec(s.ctx, "DROP TABLE users; CREATE TABLE users (id int, name int, note text)"))
	s.Require().NoError(dst.Close(s.ctx))

	m := manifest.New(manifest.NewCopyStep("SELECT * FROM users", "users"))
	err := engine.New(engine.DefaultOptions(), nil).Execute(s.ctx, m, s.connector(pg.Options{}))
	s.Require().Error(err)
	s.Contains([]errkind.Kind{errkind.StreamWrite, errkind.StreamFinalize}, errkind.Of(err))

	s.Equal("", s.dump(s.destURL, "users"))
}

func (s *CopyTestSuite) TestExecute_FailingCommandStopsRun() {
	m := manifest.New(
		manifest.NewExecuteStep("SELECT 1", "DROP TABLE does_not_exist"),
		manifest.NewCopyStep("SELECT * FROM users", "users"),
	)

	err := engine.New(engine.DefaultOptions(), nil).Execute(s.ctx, m, s.connector(pg.Options{}))
	s.Require().Error(err)
	s.Equal(errkind.CommandExecution, errkind.Of(err))
	s.Equal("", s.dump(s.destURL, "users"))
}

func (s *CopyTestSuite) TestExecute_InvalidSQLNeverConnects() {
	called := false
	conn := engine.ConnectorFunc(func(ctx context.Context, role engine.Role) (engine.Conn, error) {
		called = true
		return nil, errors.New("unexpected connect")
	})

	m := manifest.New(manifest.NewExecuteStep("SELEC 1", ""))
	err := engine.New(engine.DefaultOptions(), nil).Execute(s.ctx, m, conn)
	s.Require().Error(err)
	s.Equal(errkind.SQLValidation, errkind.Of(err))
	s.False(called)
}
