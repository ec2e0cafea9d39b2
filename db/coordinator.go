package db

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/leftmike/cowdb/kv"
	"github.com/leftmike/cowdb/page"
	"github.com/leftmike/cowdb/version"
)

// BeginRead returns a transaction reading the head as of now. It never blocks.
func (db *Database) BeginRead() (*ReadTx, error) {
	if db.isClosed() {
		return nil, ErrDatabaseClosed
	}

	return &ReadTx{
		db:  db,
		ver: db.store.Current(),
	}, nil
}

// BeginWrite waits, in arrival order, for any other write transaction to finish. It fails
// with ErrContention if ctx is done or the write timeout expires first.
func (db *Database) BeginWrite(ctx context.Context) (*WriteTx, error) {
	if db.isClosed() {
		return nil, ErrDatabaseClosed
	}

	if db.writeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, db.writeTimeout)
		defer cancel()
	}

	start := time.Now()
	err := db.writer.Acquire(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrContention, err)
	}
	db.metrics.lockWait.Observe(time.Since(start).Seconds())

	db.mutex.Lock()
	closed := db.closed
	nextPage := db.nextPage
	db.mutex.Unlock()
	if closed {
		db.writer.Release(1)
		return nil, ErrDatabaseClosed
	}

	base := db.store.Current()
	return &WriteTx{
		db:       db,
		base:     base,
		id:       base.ID + 1,
		root:     base.Root,
		nextPage: nextPage,
		dirty:    map[page.PageNum]*page.Node{},
		tables:   map[string]*Table{},
	}, nil
}

func (db *Database) finishWrite(wtx *WriteTx) {
	db.store.Release(wtx.base)
	db.writer.Release(1)
}

func (db *Database) abort(wtx *WriteTx) {
	defer db.finishWrite(wtx)

	db.metrics.aborts.Inc()
	db.logger.WithFields(log.Fields{
		"version": wtx.id,
		"dirty":   len(wtx.dirty),
	}).Debug("write transaction aborted")
}

func (db *Database) commit(wtx *WriteTx) error {
	defer db.finishWrite(wtx)

	if !wtx.changed() {
		db.metrics.emptyCommits.Inc()
		return nil
	}

	start := time.Now()

	// Pending must be read before taking the reclaimed pages: a page reclaimed in between
	// is then both deleted and recorded as pending, rather than neither.
	pending := db.store.Pending()
	for _, fp := range wtx.freed {
		pending = append(pending, fp.Page)
	}
	reclaimed := db.pager.TakeReclaimed()

	err := db.writeCommit(wtx, pending, reclaimed)
	if err != nil {
		db.pager.Requeue(reclaimed)
		db.metrics.commitFailures.Inc()
		db.logger.WithFields(log.Fields{
			"version": wtx.id,
			"error":   err.Error(),
		}).Warn("commit failed")
		return fmt.Errorf("%w: %w", ErrCommitFailed, err)
	}

	db.pager.Committed(wtx.dirty)
	db.mutex.Lock()
	db.nextPage = wtx.nextPage
	db.mutex.Unlock()
	db.store.Install(&version.Version{ID: wtx.id, Root: wtx.root}, wtx.freed)

	db.metrics.commits.Inc()
	db.metrics.commitLatency.Observe(time.Since(start).Seconds())
	db.logger.WithFields(log.Fields{
		"version":   wtx.id,
		"dirty":     len(wtx.dirty),
		"freed":     len(wtx.freed),
		"reclaimed": len(reclaimed),
	}).Debug("version committed")
	return nil
}

func (db *Database) writeCommit(wtx *WriteTx, pending, reclaimed []page.PageNum) error {
	upd, err := db.kv.Update()
	if err != nil {
		return err
	}

	err = db.writePages(upd, wtx, pending, reclaimed)
	if err != nil {
		upd.Rollback()
		return err
	}
	return upd.Commit(!db.noSync)
}

func (db *Database) writePages(upd kv.Updater, wtx *WriteTx, pending,
	reclaimed []page.PageNum) error {

	for pn, n := range wtx.dirty {
		err := db.pager.Write(upd, pn, n)
		if err != nil {
			return err
		}
	}
	for _, pn := range reclaimed {
		err := upd.Delete(page.Key(pn))
		if err != nil {
			return err
		}
	}

	return writeMeta(upd,
		&meta{
			format:   FormatVersion,
			version:  wtx.id,
			root:     wtx.root,
			nextPage: wtx.nextPage,
			pending:  pending,
		})
}
