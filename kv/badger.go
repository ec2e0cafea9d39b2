package kv

import (
	"io"
	"os"

	"github.com/dgraph-io/badger"
	log "github.com/sirupsen/logrus"
)

type badgerKV struct {
	db *badger.DB
}

type badgerIterator struct {
	tx *badger.Txn
	it *badger.Iterator
}

type badgerUpdater struct {
	tx *badger.Txn
}

// MakeBadgerKV opens badger with SyncWrites, so a commit is always synced.
func MakeBadgerKV(dataDir string, logger *log.Logger) (KV, error) {
	err := os.MkdirAll(dataDir, 0755)
	if err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(dataDir)
	opts = opts.WithSyncWrites(true)
	opts = opts.WithLogger(logger)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return badgerKV{
		db: db,
	}, nil
}

func (bkv badgerKV) Iterate(key []byte) (Iterator, error) {
	tx := bkv.db.NewTransaction(false)
	it := tx.NewIterator(badger.DefaultIteratorOptions)
	it.Seek(key)

	return badgerIterator{
		tx: tx,
		it: it,
	}, nil
}

func (bit badgerIterator) Item(fn func(key, val []byte) error) error {
	if !bit.it.Valid() {
		return io.EOF
	}

	item := bit.it.Item()
	err := item.Value(
		func(val []byte) error {
			return fn(item.Key(), val)
		})
	if err != nil {
		return err
	}

	bit.it.Next()
	return nil
}

func (bit badgerIterator) Close() {
	bit.it.Close()
	bit.tx.Discard()
}

func (bkv badgerKV) Get(key []byte, fn func(val []byte) error) error {
	tx := bkv.db.NewTransaction(false)
	defer tx.Discard()

	return get(tx, key, fn)
}

func (bkv badgerKV) Update() (Updater, error) {
	return badgerUpdater{
		tx: bkv.db.NewTransaction(true),
	}, nil
}

func (bkv badgerKV) Close() error {
	return bkv.db.Close()
}

func (bu badgerUpdater) Get(key []byte, fn func(val []byte) error) error {
	return get(bu.tx, key, fn)
}

func get(tx *badger.Txn, key []byte, fn func(val []byte) error) error {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return io.EOF
		}
		return err
	}
	return item.Value(fn)
}

func (bu badgerUpdater) Set(key, val []byte) error {
	return bu.tx.Set(copyBytes(key), copyBytes(val))
}

func (bu badgerUpdater) Delete(key []byte) error {
	return bu.tx.Delete(copyBytes(key))
}

func (bu badgerUpdater) Commit(sync bool) error {
	defer bu.tx.Discard()
	return bu.tx.Commit()
}

func (bu badgerUpdater) Rollback() {
	bu.tx.Discard()
}
