package mysql

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mysqlbulk/internal/loaddata"
)

// errLoadFinished is delivered to a stream still writing after the server
// finished (or rejected) the LOAD DATA statement.
var errLoadFinished = errors.New("mysql: load data statement already finished")

// ErrLocalInfileDisabled is returned when the server refuses LOAD DATA LOCAL.
var ErrLocalInfileDisabled = errors.New("mysql: server does not allow LOAD DATA LOCAL INFILE (set local_infile=ON)")

// Server error numbers that mean LOCAL INFILE is switched off.
const (
	erNotAllowedCommand        = 1148
	erClientLocalFilesDisabled = 3948
)

// Test hooks.
var (
	registerReaderHandler   = mysql.RegisterReaderHandler
	deregisterReaderHandler = mysql.DeregisterReaderHandler
)

// ReadSchema returns the destination columns in table order, using a query
// that returns no rows.
func (s *Session) ReadSchema(ctx context.Context, table string) ([]loaddata.Column, error) {
	if s.conn == nil {
		return nil, ErrNotOpen
	}
	rows, err := s.conn.QueryContext(ctx, "SELECT * FROM "+loaddata.QuoteTable(table)+" LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("query schema of %s: %w", table, err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types of %s: %w", table, err)
	}
	cols := make([]loaddata.Column, len(types))
	for i, ct := range types {
		cols[i] = loaddata.Column{
			Name:         ct.Name(),
			DatabaseType: strings.ToUpper(ct.DatabaseTypeName()),
		}
	}
	return cols, rows.Err()
}

// LoadData runs stmt on the pinned connection. The driver pulls the file
// contents from an io.Pipe registered as a reader handler; stream writes
// frames into the other end from its own goroutine.
func (s *Session) LoadData(ctx context.Context, stmt *loaddata.Statement, stream loaddata.StreamFunc) (int64, error) {
	if s.conn == nil {
		return 0, ErrNotOpen
	}

	name := "bulkcopy_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	pr, pw := io.Pipe()
	registerReaderHandler(name, func() io.Reader { return pr })
	defer deregisterReaderHandler(name)

	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(streamCtx)
	g.Go(func() error {
		err := stream(gctx, &pipeTransport{w: pw})
		_ = pw.CloseWithError(err)
		return err
	})

	res, execErr := s.conn.ExecContext(ctx, stmt.SQL("Reader::"+name))
	// Unblock a writer the server stopped reading from.
	_ = pr.CloseWithError(errLoadFinished)
	if execErr != nil {
		cancel()
	}
	streamErr := g.Wait()

	if execErr != nil {
		// A failing stream aborts the statement; report the cause.
		if streamErr != nil && !pipeShutdown(streamErr) {
			return 0, streamErr
		}
		var me *mysql.MySQLError
		if errors.As(execErr, &me) && (me.Number == erNotAllowedCommand || me.Number == erClientLocalFilesDisabled) {
			return 0, fmt.Errorf("load data into %s: %w: %w", stmt.Table, ErrLocalInfileDisabled, execErr)
		}
		return 0, fmt.Errorf("load data into %s: %w", stmt.Table, execErr)
	}
	if streamErr != nil {
		return 0, streamErr
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// pipeShutdown reports whether err only says the other side of the pipe went
// away.
func pipeShutdown(err error) bool {
	return errors.Is(err, errLoadFinished) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, context.Canceled)
}

// pipeTransport hands each frame to the driver through the pipe. Write
// returns once the driver consumed the whole frame.
type pipeTransport struct {
	w *io.PipeWriter
}

func (t *pipeTransport) SendFrame(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := t.w.Write(frame)
	return err
}
