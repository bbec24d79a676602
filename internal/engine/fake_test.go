package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/willibrandon/copgy/internal/stream"
)

// fakeDB is an in-memory stand-in for one database. Query results and table
// contents are raw COPY text, one row per line.
type fakeDB struct {
	mu sync.Mutex

	name    string
	results map[string]string
	tables  map[string]string

	execErr   map[string]error
	execLog   []string
	exports   []string
	imports   []string
	finishes  int
	aborts    int
	closed    bool
	readFail  map[string]int // query -> rows delivered before failing
	writeFail error
	finishErr error
	importErr error
	exportErr error
}

func newFakeDB(name string) *fakeDB {
	return &fakeDB{
		name:     name,
		results:  map[string]string{},
		tables:   map[string]string{},
		execErr:  map[string]error{},
		readFail: map[string]int{},
	}
}

func (db *fakeDB) String() string { return "fake://" + db.name }

func (db *fakeDB) Exec(ctx context.Context, sql string) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.execLog = append(db.execLog, sql)
	if err := ctx.Err(); err != nil {
		return err
	}
	if err, ok := db.execErr[sql]; ok {
		return err
	}
	if strings.HasPrefix(sql, "CREATE TABLE ") {
		name := strings.Fields(sql)[2]
		if _, exists := db.tables[name]; exists {
			return fmt.Errorf("relation %q already exists", name)
		}
		db.tables[name] = ""
	}
	return nil
}

var errInjectedRead = errors.New("server closed the connection unexpectedly")

func (db *fakeDB) Export(ctx context.Context, query string) (io.ReadCloser, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.exports = append(db.exports, query)
	if db.exportErr != nil {
		return nil, db.exportErr
	}
	payload, ok := db.results[query]
	if !ok {
		return nil, fmt.Errorf("no result for %q", query)
	}
	if k, fail := db.readFail[query]; fail {
		rows := strings.SplitAfter(payload, "\n")
		head := strings.Join(rows[:k], "")
		return io.NopCloser(io.MultiReader(strings.NewReader(head), errReader{errInjectedRead})), nil
	}
	return io.NopCloser(strings.NewReader(payload)), nil
}

func (db *fakeDB) Import(ctx context.Context, table string) (stream.Sink, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.imports = append(db.imports, table)
	if db.importErr != nil {
		return nil, db.importErr
	}
	return &fakeSink{db: db, table: table}, nil
}

func (db *fakeDB) Close(context.Context) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.closed = true
	return nil
}

func (db *fakeDB) table(name string) string {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.tables[name]
}

type fakeSink struct {
	db    *fakeDB
	table string
	buf   bytes.Buffer
	done  bool
}

func (s *fakeSink) Write(p []byte) (int, error) {
	if s.done {
		return 0, errors.New("write after finish")
	}
	if s.db.writeFail != nil {
		return 0, s.db.writeFail
	}
	return s.buf.Write(p)
}

func (s *fakeSink) Finish() (int64, error) {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	if s.done {
		return 0, errors.New("finish called twice")
	}
	s.done = true
	s.db.finishes++
	if s.db.finishErr != nil {
		return 0, s.db.finishErr
	}
	s.db.tables[s.table] += s.buf.String()
	return int64(strings.Count(s.buf.String(), "\n")), nil
}

func (s *fakeSink) Abort(error) error {
	s.db.mu.Lock()
	defer s.db.mu.Unlock()
	s.done = true
	s.db.aborts++
	return nil
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

// fakeConnector hands out the two fake databases and counts calls.
type fakeConnector struct {
	src, dst *fakeDB
	calls    []Role
	fail     map[Role]error
}

func (c *fakeConnector) Connect(_ context.Context, role Role) (Conn, error) {
	c.calls = append(c.calls, role)
	if err := c.fail[role]; err != nil {
		return nil, err
	}
	if role == RoleSource {
		return c.src, nil
	}
	return c.dst, nil
}

// recorder collects events.
type recorder struct {
	events []Event
}

func (r *recorder) Observe(e Event) { r.events = append(r.events, e) }

func (r *recorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func rows(n int) string {
	var b strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "%d\tuser-%d\n", i, i)
	}
	return b.String()
}
