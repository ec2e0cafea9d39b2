package kv

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"
)

var (
	cowBucket = []byte{'c', 'o', 'w'}

	errMissingBucket = errors.New("bbolt: missing cow bucket")
)

type bboltKV struct {
	db *bbolt.DB
}

type bboltIterator struct {
	tx  *bbolt.Tx
	cr  *bbolt.Cursor
	key []byte
	val []byte
}

type bboltUpdater struct {
	db  *bbolt.DB
	tx  *bbolt.Tx
	bkt *bbolt.Bucket
}

func MakeBBoltKV(path string) (KV, error) {
	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return nil, err
	}

	db, err := bbolt.Open(path, 0644, nil)
	if err != nil {
		return nil, err
	}
	db.NoFreelistSync = true

	err = db.Update(
		func(tx *bbolt.Tx) error {
			_, err := tx.CreateBucketIfNotExists(cowBucket)
			return err
		})
	if err != nil {
		db.Close()
		return nil, err
	}

	return bboltKV{
		db: db,
	}, nil
}

func (bkv bboltKV) Iterate(key []byte) (Iterator, error) {
	tx, err := bkv.db.Begin(false)
	if err != nil {
		return nil, fmt.Errorf("bbolt: begin failed: %s", err)
	}
	bkt := tx.Bucket(cowBucket)
	if bkt == nil {
		tx.Rollback()
		return nil, errMissingBucket
	}
	cr := bkt.Cursor()
	key, val := cr.Seek(key)

	return &bboltIterator{
		tx:  tx,
		cr:  cr,
		key: key,
		val: val,
	}, nil
}

func (bit *bboltIterator) Item(fn func(key, val []byte) error) error {
	if bit.key == nil {
		return io.EOF
	}

	key, val := bit.key, bit.val
	bit.key, bit.val = bit.cr.Next()
	return fn(key, val)
}

func (bit *bboltIterator) Close() {
	bit.tx.Rollback()
}

func (bkv bboltKV) Get(key []byte, fn func(val []byte) error) error {
	return bkv.db.View(
		func(tx *bbolt.Tx) error {
			bkt := tx.Bucket(cowBucket)
			if bkt == nil {
				return errMissingBucket
			}
			val := bkt.Get(key)
			if val == nil {
				return io.EOF
			}
			return fn(val)
		})
}

func (bkv bboltKV) Update() (Updater, error) {
	tx, err := bkv.db.Begin(true)
	if err != nil {
		return nil, fmt.Errorf("bbolt: begin failed: %s", err)
	}
	bkt := tx.Bucket(cowBucket)
	if bkt == nil {
		tx.Rollback()
		return nil, errMissingBucket
	}
	return bboltUpdater{
		db:  bkv.db,
		tx:  tx,
		bkt: bkt,
	}, nil
}

func (bkv bboltKV) Close() error {
	return bkv.db.Close()
}

func (bu bboltUpdater) Get(key []byte, fn func(val []byte) error) error {
	val := bu.bkt.Get(key)
	if val == nil {
		return io.EOF
	}
	return fn(val)
}

func (bu bboltUpdater) Set(key, val []byte) error {
	return bu.bkt.Put(key, val)
}

func (bu bboltUpdater) Delete(key []byte) error {
	return bu.bkt.Delete(key)
}

func (bu bboltUpdater) Commit(sync bool) error {
	// Only the single writer touches NoSync.
	bu.db.NoSync = !sync
	return bu.tx.Commit()
}

func (bu bboltUpdater) Rollback() {
	bu.tx.Rollback()
}
