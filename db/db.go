// Package db is an embedded key-value database with multi-version concurrency control.
// Any number of read transactions each see a fixed snapshot while a single write
// transaction builds the next version by copy-on-write; a commit publishes it atomically.
package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/leftmike/cowdb/kv"
	"github.com/leftmike/cowdb/page"
	"github.com/leftmike/cowdb/version"
)

const (
	DefaultStore = "bbolt"
)

type Options struct {
	Store        string
	Compression  page.Compression
	CacheSize    int64
	NoSync       bool
	WriteTimeout time.Duration
	Logger       *log.Logger
	Registerer   prometheus.Registerer
	KV           kv.KV
}

type Database struct {
	path         string
	logger       *log.Logger
	kv           kv.KV
	pager        *page.Pager
	store        *version.Store
	metrics      *metrics
	noSync       bool
	writeTimeout time.Duration

	writer *semaphore.Weighted

	mutex  sync.Mutex
	closed bool
	// Only the holder of the writer lock changes nextPage, and it does so with mutex held.
	nextPage page.PageNum
}

type Stats struct {
	Head        uint64
	Live        int
	Pending     int
	Reclaimed   uint64
	Queued      int
	NextPage    page.PageNum
	PageReads   uint64
	CacheHits   uint64
	CacheMisses uint64
}

func defaultOptions(opts *Options) Options {
	var o Options
	if opts != nil {
		o = *opts
	}
	if o.Store == "" {
		o.Store = DefaultStore
	}
	if o.Logger == nil {
		o.Logger = log.StandardLogger()
	}
	return o
}

func readMeta(st kv.KV) (*meta, error) {
	var m *meta
	err := st.Get(metaKey,
		func(val []byte) error {
			var err error
			m, err = decodeMeta(val)
			return err
		})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func writeMeta(upd kv.Updater, m *meta) error {
	return upd.Set(metaKey, m.encode())
}

// Create opens the database at path, first initializing an empty database if none exists
// there.
func Create(path string, opts *Options) (*Database, error) {
	o := defaultOptions(opts)
	st := o.KV
	if st == nil {
		var err error
		st, err = kv.Open(o.Store, path, o.Logger)
		if err != nil {
			return nil, err
		}
	}

	m, err := readMeta(st)
	if err == io.EOF {
		m = &meta{
			format:   FormatVersion,
			nextPage: 1,
		}
		err = initialize(st, m)
		if err == nil {
			o.Logger.WithFields(log.Fields{
				"path":  path,
				"store": o.Store,
			}).Info("database created")
		}
	}
	if err != nil {
		st.Close()
		return nil, err
	}
	return open(path, st, m, o)
}

func initialize(st kv.KV, m *meta) error {
	upd, err := st.Update()
	if err != nil {
		return err
	}
	err = writeMeta(upd, m)
	if err != nil {
		upd.Rollback()
		return err
	}
	return upd.Commit(true)
}

// Open opens an existing database; it fails with ErrNotFound if there is no database at
// path.
func Open(path string, opts *Options) (*Database, error) {
	o := defaultOptions(opts)
	st := o.KV
	if st == nil {
		if o.Store == "memory" {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		_, err := os.Stat(path)
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		st, err = kv.Open(o.Store, path, o.Logger)
		if err != nil {
			return nil, err
		}
	}

	m, err := readMeta(st)
	if err == io.EOF {
		err = fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		st.Close()
		return nil, err
	}
	return open(path, st, m, o)
}

func open(path string, st kv.KV, m *meta, o Options) (*Database, error) {
	err := checkFormat(m.format)
	if err != nil {
		st.Close()
		return nil, err
	}

	pgr, err := page.NewPager(st, o.Compression, o.CacheSize)
	if err != nil {
		st.Close()
		return nil, err
	}

	db := &Database{
		path:         path,
		logger:       o.Logger,
		kv:           st,
		pager:        pgr,
		noSync:       o.NoSync,
		writeTimeout: o.WriteTimeout,
		writer:       semaphore.NewWeighted(1),
		nextPage:     m.nextPage,
	}
	db.store = version.NewStore(m.version, m.root, m.pending, pgr, o.Logger)

	db.metrics, err = newMetrics(db, o.Registerer)
	if err != nil {
		pgr.Close()
		st.Close()
		return nil, err
	}

	o.Logger.WithFields(log.Fields{
		"path":    path,
		"version": m.version,
		"pending": len(m.pending),
	}).Info("database opened")
	return db, nil
}

func (db *Database) isClosed() bool {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	return db.closed
}

// Close waits for the write transaction in progress, if any, to finish. Read transactions
// still open fail with ErrDatabaseClosed.
func (db *Database) Close() error {
	db.mutex.Lock()
	if db.closed {
		db.mutex.Unlock()
		return ErrDatabaseClosed
	}
	db.closed = true
	db.mutex.Unlock()

	db.writer.Acquire(context.Background(), 1)
	defer db.writer.Release(1)

	pending := db.store.Pending()
	if reclaimed := db.pager.TakeReclaimed(); len(reclaimed) > 0 {
		err := db.deletePages(reclaimed, pending)
		if err != nil {
			db.logger.WithField("error", err.Error()).Warn("delete reclaimed pages")
		}
	}

	db.metrics.unregister()
	db.pager.Close()
	err := db.kv.Close()
	if err != nil {
		db.logger.WithField("error", err.Error()).Error("database close")
		return err
	}

	db.logger.WithField("path", db.path).Info("database closed")
	return nil
}

// deletePages removes reclaimed pages from the backend, along with their entries in the
// meta record.
func (db *Database) deletePages(pns, pending []page.PageNum) error {
	upd, err := db.kv.Update()
	if err != nil {
		return err
	}

	for _, pn := range pns {
		err = upd.Delete(page.Key(pn))
		if err != nil {
			upd.Rollback()
			return err
		}
	}

	head := db.store.Head()
	err = writeMeta(upd,
		&meta{
			format:   FormatVersion,
			version:  head.ID,
			root:     head.Root,
			nextPage: db.nextPage,
			pending:  pending,
		})
	if err != nil {
		upd.Rollback()
		return err
	}
	return upd.Commit(!db.noSync)
}

func (db *Database) Stats() Stats {
	db.mutex.Lock()
	nextPage := db.nextPage
	db.mutex.Unlock()

	vst := db.store.Stats()
	pst := db.pager.Stats()
	return Stats{
		Head:        vst.Head,
		Live:        vst.Live,
		Pending:     vst.Pending,
		Reclaimed:   vst.Reclaimed,
		Queued:      pst.Queued,
		NextPage:    nextPage,
		PageReads:   pst.Reads,
		CacheHits:   pst.CacheHits,
		CacheMisses: pst.CacheMisses,
	}
}
