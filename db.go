package lstore

import (
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	// lstoreMagic = "LSTR" in bigEndian
	Magic         uint32 = 0x5254534c
	FormatVersion uint16 = 1

	lockFileName = "LOCK"
)

// DB is a registry of named tables. A DB opened on a directory reloads
// the tables snapshotted there and snapshots them again on Close.
type DB struct {
	opts *Options
	log  log.FieldLogger

	mu     sync.RWMutex
	tables map[string]*Table
	opened bool

	path     string
	lockfile *os.File

	merger *merger
}

// NewDB returns an empty in-memory database.
func NewDB(options *Options) *DB {
	opts := options.norm()
	db := &DB{
		opts:   opts,
		log:    opts.Logger,
		tables: make(map[string]*Table),
		opened: true,
	}
	if opts.MergeThreshold > 0 {
		db.merger = startMerger(db.log)
	}
	return db
}

// Open opens the database stored in dir, creating dir if needed. The
// directory is locked exclusively until Close.
func Open(dir string, options *Options) (*DB, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "create database directory")
	}

	lockfile, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "open lock file")
	}
	opts := options.norm()
	if err := waitflock(lockfile, opts.Timeout); err != nil {
		_ = lockfile.Close()
		return nil, err
	}

	tables, err := loadSnapshots(dir, opts)
	if err != nil {
		_ = funlock(lockfile)
		_ = lockfile.Close()
		return nil, err
	}

	db := NewDB(opts)
	db.path = dir
	db.lockfile = lockfile
	for _, t := range tables {
		db.attach(t)
	}
	db.log.WithFields(log.Fields{"path": dir, "tables": len(tables)}).Info("database opened")
	return db, nil
}

// Close stops background merges, snapshots the tables when the database
// was opened on a directory and releases the directory lock.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return nil
	}
	db.opened = false

	if db.merger != nil {
		db.merger.stop()
	}

	var err error
	if db.path != "" {
		err = saveSnapshots(db.path, db.tables, db.log)
		if unlockErr := funlock(db.lockfile); unlockErr != nil {
			db.log.Errorf("lstore.Close(): funlock error: %s", unlockErr)
		}
		if closeErr := db.lockfile.Close(); closeErr != nil && err == nil {
			err = errors.Wrap(closeErr, "lock file closed")
		}
		db.lockfile = nil
	}
	db.log.WithField("path", db.path).Info("database closed")
	return err
}

// CreateTable adds an empty table with numColumns columns, key being the
// primary key column.
func (db *DB) CreateTable(name string, numColumns, key int) (*Table, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return nil, ErrClosed
	}
	if _, ok := db.tables[name]; ok {
		return nil, errors.Wrapf(ErrTableExists, "table %q", name)
	}
	t, err := NewTable(name, numColumns, key, db.opts)
	if err != nil {
		return nil, err
	}
	db.attach(t)
	db.log.WithFields(log.Fields{"table": name, "columns": numColumns, "key": key}).Info("table created")
	return t, nil
}

func (db *DB) attach(t *Table) {
	if db.merger != nil {
		t.onSealed = db.merger.schedule
	}
	db.tables[t.Name] = t
}

// DropTable removes a table from the registry.
func (db *DB) DropTable(name string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if !db.opened {
		return ErrClosed
	}
	t, ok := db.tables[name]
	if !ok {
		return errors.Wrapf(ErrTableNotFound, "table %q", name)
	}
	delete(db.tables, name)

	t.mu.Lock()
	t.onSealed = nil
	t.mu.Unlock()

	db.log.WithField("table", name).Info("table dropped")
	return nil
}

func (db *DB) GetTable(name string) (*Table, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	t, ok := db.tables[name]
	return t, ok
}

// Tables returns the table names in lexical order.
func (db *DB) Tables() []string {
	db.mu.RLock()
	defer db.mu.RUnlock()

	names := make([]string, 0, len(db.tables))
	for name := range db.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
