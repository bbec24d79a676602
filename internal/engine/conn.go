package engine

import (
	"context"

	"github.com/willibrandon/copgy/internal/stream"
)

// Role is the part a connection plays in a run.
type Role string

const (
	RoleSource      Role = "source"
	RoleDestination Role = "destination"
)

// Executor runs a literal SQL command and discards any result rows.
type Executor interface {
	Exec(ctx context.Context, sql string) error
}

// Source is the read side of a run.
type Source interface {
	stream.Exporter
	Executor
}

// Destination is the write side of a run.
type Destination interface {
	stream.Importer
	Executor
}

// Pair holds the two live connections of a run. They are used by one
// goroutine at a time and are never shared between roles.
type Pair struct {
	Source      Source
	Destination Destination
}

// Conn is a live database connection usable in either role.
type Conn interface {
	Source
	Destination
	Close(ctx context.Context) error
}

// Connector establishes the connection for a role.
type Connector interface {
	Connect(ctx context.Context, role Role) (Conn, error)
}

// ConnectorFunc adapts a function to Connector.
type ConnectorFunc func(ctx context.Context, role Role) (Conn, error)

// Connect implements Connector.
func (f ConnectorFunc) Connect(ctx context.Context, role Role) (Conn, error) {
	return f(ctx, role)
}
