package kv

import (
	"io"
	"os"

	"github.com/cockroachdb/pebble"
	log "github.com/sirupsen/logrus"
)

type pebbleKV struct {
	db *pebble.DB
}

type pebbleIterator struct {
	snap *pebble.Snapshot
	it   *pebble.Iterator
}

type pebbleUpdater struct {
	batch *pebble.Batch
}

func MakePebbleKV(dataDir string, logger *log.Logger) (KV, error) {
	err := os.MkdirAll(dataDir, 0755)
	if err != nil {
		return nil, err
	}

	db, err := pebble.Open(dataDir, &pebble.Options{Logger: logger})
	if err != nil {
		return nil, err
	}
	return &pebbleKV{
		db: db,
	}, nil
}

func (pkv *pebbleKV) Iterate(key []byte) (Iterator, error) {
	snap := pkv.db.NewSnapshot()
	it, err := snap.NewIter(&pebble.IterOptions{LowerBound: key})
	if err != nil {
		snap.Close()
		return nil, err
	}
	it.First()

	return pebbleIterator{
		snap: snap,
		it:   it,
	}, nil
}

func (pit pebbleIterator) Item(fn func(key, val []byte) error) error {
	if !pit.it.Valid() {
		return io.EOF
	}

	err := fn(pit.it.Key(), pit.it.Value())
	if err != nil {
		return err
	}

	pit.it.Next()
	return nil
}

func (pit pebbleIterator) Close() {
	pit.it.Close()
	pit.snap.Close()
}

func (pkv *pebbleKV) Get(key []byte, fn func(val []byte) error) error {
	val, closer, err := pkv.db.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return io.EOF
		}
		return err
	}
	defer closer.Close()

	return fn(val)
}

func (pkv *pebbleKV) Update() (Updater, error) {
	return pebbleUpdater{
		batch: pkv.db.NewIndexedBatch(),
	}, nil
}

func (pkv *pebbleKV) Close() error {
	return pkv.db.Close()
}

func (pu pebbleUpdater) Get(key []byte, fn func(val []byte) error) error {
	val, closer, err := pu.batch.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return io.EOF
		}
		return err
	}
	defer closer.Close()

	return fn(val)
}

func (pu pebbleUpdater) Set(key, val []byte) error {
	return pu.batch.Set(key, val, nil)
}

func (pu pebbleUpdater) Delete(key []byte) error {
	return pu.batch.Delete(key, nil)
}

func (pu pebbleUpdater) Commit(sync bool) error {
	defer pu.batch.Close()

	opt := pebble.NoSync
	if sync {
		opt = pebble.Sync
	}
	return pu.batch.Commit(opt)
}

func (pu pebbleUpdater) Rollback() {
	pu.batch.Close()
}
