// Package mysql implements loaddata.Conn on top of go-sql-driver/mysql.
//
// A Session pins one pooled connection (*sql.Conn) so that the schema query,
// the LOAD DATA LOCAL INFILE statement and any surrounding transaction run on
// the same server session.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/go-sql-driver/mysql"

	"mysqlbulk/internal/loaddata"
)

var (
	ErrNotOpen  = errors.New("mysql: session is not open")
	ErrTxActive = errors.New("mysql: a transaction is already active on this session")
	ErrNoTx     = errors.New("mysql: no active transaction")
)

// Config holds MySQL session configuration.
type Config struct {
	// DSN is a go-sql-driver DSN, e.g. "user:pw@tcp(host:3306)/db".
	DSN string

	GUIDFormat   loaddata.GUIDFormat
	DateTimeKind loaddata.DateTimeKind
}

// Session is a single MySQL server session.
type Session struct {
	db   *sql.DB
	cfg  Config
	conn *sql.Conn

	inTx       bool
	savepoints []string
}

var _ loaddata.Conn = (*Session)(nil)

// NewSession validates the DSN, opens a pool and pings it. It returns the
// Session and a Close function that releases the pool.
func NewSession(ctx context.Context, cfg Config) (*Session, func(), error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, nil, fmt.Errorf("mysql connector: %w", err)
	}
	db := sql.OpenDB(connector)

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	s := newSession(db, cfg)
	closeFn := func() {
		if err := s.Close(); err != nil {
			log.Printf("mysql: close session: %v", err)
		}
		_ = db.Close()
	}
	return s, closeFn, nil
}

func newSession(db *sql.DB, cfg Config) *Session {
	return &Session{db: db, cfg: cfg}
}

// IsOpen reports whether a connection is pinned.
func (s *Session) IsOpen() bool { return s.conn != nil }

// Open pins a connection from the pool.
func (s *Session) Open(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	c, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("mysql: acquire connection: %w", err)
	}
	s.conn = c
	return nil
}

// Close rolls back an open transaction and returns the connection to the
// pool.
func (s *Session) Close() error {
	if s.conn == nil {
		return nil
	}
	var rbErr error
	if s.inTx {
		_, rbErr = s.conn.ExecContext(context.Background(), "ROLLBACK")
		s.inTx = false
		s.savepoints = nil
	}
	err := s.conn.Close()
	s.conn = nil
	return errors.Join(rbErr, err)
}

// Settings returns the connection-wide encoding settings.
func (s *Session) Settings() loaddata.Settings {
	return loaddata.Settings{GUIDFormat: s.cfg.GUIDFormat, DateTimeKind: s.cfg.DateTimeKind}
}

// Exec runs one statement on the pinned connection.
func (s *Session) Exec(ctx context.Context, sqlText string) error {
	if s.conn == nil {
		return ErrNotOpen
	}
	_, err := s.conn.ExecContext(ctx, sqlText)
	return err
}

// InTx reports whether a transaction is active.
func (s *Session) InTx() bool { return s.inTx }

// Begin starts a transaction. Only one may be active per session.
func (s *Session) Begin(ctx context.Context) error {
	if s.inTx {
		return ErrTxActive
	}
	if err := s.Exec(ctx, "START TRANSACTION"); err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	s.inTx = true
	return nil
}

// Commit commits the active transaction.
func (s *Session) Commit(ctx context.Context) error {
	return s.endTx(ctx, "COMMIT")
}

// Rollback rolls back the active transaction.
func (s *Session) Rollback(ctx context.Context) error {
	return s.endTx(ctx, "ROLLBACK")
}

func (s *Session) endTx(ctx context.Context, verb string) error {
	if !s.inTx {
		return ErrNoTx
	}
	err := s.Exec(ctx, verb)
	// The server ends the transaction even when it reports an error.
	s.inTx = false
	s.savepoints = nil
	if err != nil {
		return fmt.Errorf("%s: %w", verb, err)
	}
	return nil
}

// Savepoint creates a named savepoint in the active transaction.
func (s *Session) Savepoint(ctx context.Context, name string) error {
	if !s.inTx {
		return ErrNoTx
	}
	if err := s.Exec(ctx, "SAVEPOINT "+loaddata.QuoteIdent(name)); err != nil {
		return fmt.Errorf("savepoint %s: %w", name, err)
	}
	s.savepoints = append(s.savepoints, name)
	return nil
}

// RollbackTo rolls back to a savepoint; later savepoints are discarded.
func (s *Session) RollbackTo(ctx context.Context, name string) error {
	i, err := s.savepointIndex(name)
	if err != nil {
		return err
	}
	if err := s.Exec(ctx, "ROLLBACK TO SAVEPOINT "+loaddata.QuoteIdent(name)); err != nil {
		return fmt.Errorf("rollback to %s: %w", name, err)
	}
	s.savepoints = s.savepoints[:i+1]
	return nil
}

// Release removes a savepoint and every savepoint created after it.
func (s *Session) Release(ctx context.Context, name string) error {
	i, err := s.savepointIndex(name)
	if err != nil {
		return err
	}
	if err := s.Exec(ctx, "RELEASE SAVEPOINT "+loaddata.QuoteIdent(name)); err != nil {
		return fmt.Errorf("release %s: %w", name, err)
	}
	s.savepoints = s.savepoints[:i]
	return nil
}

func (s *Session) savepointIndex(name string) (int, error) {
	if !s.inTx {
		return 0, ErrNoTx
	}
	for i := len(s.savepoints) - 1; i >= 0; i-- {
		if s.savepoints[i] == name {
			return i, nil
		}
	}
	return 0, fmt.Errorf("mysql: unknown savepoint %q", name)
}
