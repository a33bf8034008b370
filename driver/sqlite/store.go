package sqlite

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"github.com/dogmatiq/recorderkit/recorder"
)

// RecorderStore is an implementation of [recorder.Store] that persists
// events in an SQLite database.
type RecorderStore struct {
	// DB is the SQLite database connection.
	DB *sql.DB

	// InMemory indicates that the database keeps its data in memory rather
	// than in a file.
	//
	// In-memory databases do not provide isolation between connections, so
	// when this flag is set every operation on every recorder opened from
	// this store is serialized under a store-scoped mutex for its full
	// duration, reads included.
	InMemory bool

	m sync.Mutex
}

// walConfigured tracks the database files that this process has already
// switched to WAL journal mode.
//
// The journal mode is a property of the file, not of the connection, so it
// is reconfigured at most once per file regardless of how many stores are
// opened against it.
var walConfigured sync.Map // map[string]struct{}

// Open returns a recorder store that uses the SQLite database at the given
// DSN.
//
// The connection pool is limited to a single connection. DSNs that refer to
// an in-memory database (":memory:", or any DSN with a "mode=memory"
// option) select the degraded concurrency mode described by
// [RecorderStore.InMemory]. File-backed databases are switched to WAL
// journal mode the first time this process opens them.
func Open(ctx context.Context, dsn string) (*RecorderStore, error) {
	inMemory := strings.Contains(dsn, ":memory:") ||
		strings.Contains(dsn, "mode=memory")

	db, err := sql.Open("sqlite3", withDefaultOptions(dsn))
	if err != nil {
		return nil, classify(err)
	}

	// SQLite supports a single writer per database. Restricting the pool
	// to one connection avoids spurious SQLITE_BUSY failures within the
	// process, and is required for in-memory databases, where each
	// connection would otherwise see a separate database entirely.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if !inMemory {
		if err := configureWAL(ctx, db, dsn); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &RecorderStore{
		DB:       db,
		InMemory: inMemory,
	}, nil
}

// Open returns the recorder for the application with the given name.
func (s *RecorderStore) Open(ctx context.Context, application string) (recorder.ProcessRecorder, error) {
	if application == "" {
		return nil, recorder.Errorf(
			recorder.ErrProgramming,
			"application name must not be empty",
		)
	}

	return &recorderHandle{
		store:       s,
		application: application,
	}, ctx.Err()
}

// Close closes the database connection.
func (s *RecorderStore) Close() error {
	if s.DB == nil {
		return nil
	}

	if err := s.DB.Close(); err != nil {
		return classify(err)
	}

	return nil
}

// lock acquires the store-scoped mutex when the store is in the degraded
// in-memory concurrency mode. It returns the function that releases it.
func (s *RecorderStore) lock() func() {
	if !s.InMemory {
		return func() {}
	}

	s.m.Lock()
	return s.m.Unlock
}

// configureWAL switches the database file identified by the DSN to WAL
// journal mode, unless this process has already done so.
func configureWAL(ctx context.Context, db *sql.DB, dsn string) error {
	file := databaseFile(dsn)

	if _, done := walConfigured.LoadOrStore(file, struct{}{}); done {
		return nil
	}

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode = wal`); err != nil {
		walConfigured.Delete(file)
		return classify(err)
	}

	return nil
}

// databaseFile returns the path of the database file that the DSN refers
// to, disregarding any driver options.
func databaseFile(dsn string) string {
	dsn = strings.TrimPrefix(dsn, "file:")

	if i := strings.IndexAny(dsn, "?#"); i != -1 {
		dsn = dsn[:i]
	}

	return dsn
}

// withDefaultOptions adds the driver options that the recorder relies upon
// to the DSN, unless the caller has already configured them.
//
// Transactions are started in "immediate" mode so that the write lock is
// taken before the current stream positions are read, and a busy timeout
// is applied so that writers queue behind one another instead of failing.
func withDefaultOptions(dsn string) string {
	for _, opt := range [...]string{
		"_txlock=immediate",
		"_busy_timeout=10000",
	} {
		if strings.Contains(dsn, opt[:strings.IndexByte(opt, '=')+1]) {
			continue
		}

		if strings.Contains(dsn, "?") {
			dsn += "&" + opt
		} else {
			dsn += "?" + opt
		}
	}

	return dsn
}
