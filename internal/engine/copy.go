package engine

import (
	"context"
	"errors"

	"github.com/willibrandon/copgy/internal/errkind"
	"github.com/willibrandon/copgy/internal/manifest"
	"github.com/willibrandon/copgy/internal/stream"
)

// copy streams the rows of spec.SourceQuery from the source into
// spec.DestTable on the destination. The export is opened first, then the
// import; bytes are pumped in order and the import is finished exactly once.
// Any failure after the import is open aborts it.
func (e *Engine) copy(ctx context.Context, index int, p Pair, spec manifest.CopySpec) error {
	start := e.now()
	e.emit(Event{Type: EventCopyStarted, Step: index, Table: spec.DestTable, SQL: spec.SourceQuery})

	src, err := p.Source.Export(ctx, spec.SourceQuery)
	if err != nil {
		return copyError(errkind.StreamOpen, "export", err)
	}
	defer src.Close()

	sink, err := p.Destination.Import(ctx, spec.DestTable)
	if err != nil {
		return copyError(errkind.StreamOpen, "import", err)
	}

	buf := make([]byte, e.opts.BufferSize)
	next := e.opts.ProgressEvery
	n, err := stream.Pump(sink, src, buf, func(total int64) {
		if next <= 0 || total < next {
			return
		}
		for next <= total {
			next += e.opts.ProgressEvery
		}
		e.emit(Event{Type: EventCopyProgress, Step: index, Table: spec.DestTable, Bytes: total})
	})
	if err != nil {
		_ = sink.Abort(err)

		var rerr *stream.ReadError
		var werr *stream.WriteError
		switch {
		case errors.As(err, &rerr):
			return copyError(errkind.StreamRead, "export", rerr.Err)
		case errors.Is(err, stream.ErrRejected):
			return copyError(errkind.StreamOpen, "import", err)
		case errors.As(err, &werr):
			return copyError(errkind.StreamWrite, "import", werr.Err)
		default:
			return copyError(errkind.StreamWrite, "import", err)
		}
	}

	rows, err := sink.Finish()
	if err != nil {
		if errors.Is(err, stream.ErrRejected) {
			return copyError(errkind.StreamOpen, "import", err)
		}
		return copyError(errkind.StreamFinalize, "import", err)
	}

	e.emit(Event{
		Type:     EventCopyFinished,
		Step:     index,
		Table:    spec.DestTable,
		Bytes:    n,
		Rows:     rows,
		Duration: e.now().Sub(start),
	})
	return nil
}

func copyError(kind errkind.Kind, detail string, err error) error {
	return &StageError{Stage: StageCopy, ErrKind: kind, Detail: detail, Err: err}
}
