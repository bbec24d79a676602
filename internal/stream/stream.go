// Package stream moves bulk-copy payloads between an export stream and an
// import sink without buffering the payload.
package stream

import (
	"context"
	"errors"
	"io"
)

// DefaultBufferSize is the transfer unit used when none is configured.
const DefaultBufferSize = 64 * 1024

// ErrRejected marks an import the server refused to start, for example
// because the target table does not exist.
var ErrRejected = errors.New("import rejected")

// Exporter opens server-side export streams.
type Exporter interface {
	// Export starts producing the rows of query in the server's bulk-copy
	// format. An error means the stream could not be opened.
	Export(ctx context.Context, query string) (io.ReadCloser, error)
}

// Importer opens server-side import sinks.
type Importer interface {
	Import(ctx context.Context, table string) (Sink, error)
}

// Sink consumes a bulk-copy payload into a table. Exactly one of Finish or
// Abort must be called.
type Sink interface {
	io.Writer
	// Finish commits the import and returns the number of rows loaded.
	Finish() (int64, error)
	// Abort cancels the import with cause and releases the connection.
	Abort(cause error) error
}

// ReadError is a failure reading from the export stream.
type ReadError struct{ Err error }

func (e *ReadError) Error() string { return "read: " + e.Err.Error() }
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is a failure writing to the import sink.
type WriteError struct{ Err error }

func (e *WriteError) Error() string { return "write: " + e.Err.Error() }
func (e *WriteError) Unwrap() error { return e.Err }

// Pump copies src to dst one transfer unit at a time using buf, and returns
// the number of bytes written. progress, if non-nil, is called with the
// running total after every unit. Read and write failures are returned as
// *ReadError and *WriteError.
func Pump(dst io.Writer, src io.Reader, buf []byte, progress func(total int64)) (int64, error) {
	if len(buf) == 0 {
		buf = make([]byte, DefaultBufferSize)
	}

	var total int64
	for {
		n, rerr := src.Read(buf)
		if n > 0 {
			w, werr := dst.Write(buf[:n])
			total += int64(w)
			if werr == nil && w < n {
				werr = io.ErrShortWrite
			}
			if werr != nil {
				return total, &WriteError{Err: werr}
			}
			if progress != nil {
				progress(total)
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, &ReadError{Err: rerr}
		}
	}
}
