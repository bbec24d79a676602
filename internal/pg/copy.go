package pg

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/willibrandon/copgy/internal/logger"
	"github.com/willibrandon/copgy/internal/sqlcheck"
	"github.com/willibrandon/copgy/internal/stream"
)

var errExportClosed = errors.New("export stream closed")

// Export starts COPY (query) TO STDOUT and returns the payload as a reader.
// It returns once the server has produced the first chunk or has finished;
// an error before any data arrives means the stream could not be opened.
func (c *Conn) Export(ctx context.Context, query string) (io.ReadCloser, error) {
	sql := exportSQL(query)

	pr, pw := io.Pipe()
	w := &firstWriteWriter{w: pw, started: make(chan struct{})}
	s := &exportStream{pr: pr, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		tag, err := c.conn.PgConn().CopyTo(ctx, w, sql)
		s.err = err
		if err == nil {
			logger.Debug("Export finished", "target", c.target.String(), "rows", tag.RowsAffected())
		}
		pw.CloseWithError(err)
	}()

	select {
	case <-w.started:
	case <-s.done:
		if s.err != nil && !w.hasStarted() {
			return nil, s.err
		}
	}
	return s, nil
}

type exportStream struct {
	pr   *io.PipeReader
	done chan struct{}
	err  error
}

func (s *exportStream) Read(p []byte) (int, error) { return s.pr.Read(p) }

// Close stops the export if it is still running and waits for it. Closing
// before EOF makes the driver drop the connection.
func (s *exportStream) Close() error {
	s.pr.CloseWithError(errExportClosed)
	<-s.done
	return nil
}

// firstWriteWriter signals before the first write reaches the pipe, since
// the pipe blocks until the consumer reads.
type firstWriteWriter struct {
	w       io.Writer
	once    sync.Once
	started chan struct{}
}

func (w *firstWriteWriter) Write(p []byte) (int, error) {
	w.once.Do(func() { close(w.started) })
	return w.w.Write(p)
}

func (w *firstWriteWriter) hasStarted() bool {
	select {
	case <-w.started:
		return true
	default:
		return false
	}
}

// Import starts COPY table FROM STDIN and returns a sink for the payload. The
// server's answer to the COPY command arrives asynchronously: a refusal
// surfaces from Write or Finish wrapped with stream.ErrRejected.
func (c *Conn) Import(ctx context.Context, table string) (stream.Sink, error) {
	sql := "COPY " + table + " FROM STDIN"

	pr, pw := io.Pipe()
	s := &importSink{pw: pw, done: make(chan struct{})}

	go func() {
		defer close(s.done)
		tag, err := c.conn.PgConn().CopyFrom(ctx, pr, sql)
		s.err = classifyImportError(err)
		s.rows = tag.RowsAffected()
		if s.err != nil {
			pr.CloseWithError(s.err)
			return
		}
		pr.CloseWithError(io.ErrClosedPipe)
	}()

	return s, nil
}

type importSink struct {
	pw   *io.PipeWriter
	done chan struct{}
	rows int64
	err  error
}

func (s *importSink) Write(p []byte) (int, error) { return s.pw.Write(p) }

// Finish ends the payload and waits for the server to commit the import.
func (s *importSink) Finish() (int64, error) {
	s.pw.Close()
	<-s.done
	if s.err != nil {
		return 0, s.err
	}
	return s.rows, nil
}

// Abort makes the driver send CopyFail with cause and waits for the server
// to acknowledge it.
func (s *importSink) Abort(cause error) error {
	if cause == nil {
		cause = errors.New("import aborted")
	}
	s.pw.CloseWithError(cause)
	<-s.done
	return nil
}

// exportSQL wraps query in COPY (...) TO STDOUT. The closing parenthesis
// goes on its own line so a trailing line comment in query cannot hide it.
func exportSQL(query string) string {
	return "COPY (" + sqlcheck.Statement(query) + "\n) TO STDOUT"
}
