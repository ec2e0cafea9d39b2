package kv

import (
	"fmt"

	log "github.com/sirupsen/logrus"
)

// Not found and end of iteration are both reported as io.EOF.

type Iterator interface {
	Item(fn func(key, val []byte) error) error
	Close()
}

// Updater is the durable-commit primitive: every Set and Delete becomes visible together
// when Commit succeeds, and none of them does otherwise. Commit finishes the updater
// whether or not it succeeds; Rollback must only be called instead of Commit.
type Updater interface {
	Get(key []byte, fn func(val []byte) error) error
	Set(key, val []byte) error
	Delete(key []byte) error
	Commit(sync bool) error
	Rollback()
}

type KV interface {
	Iterate(key []byte) (Iterator, error)
	Get(key []byte, fn func(val []byte) error) error
	Update() (Updater, error)
	Close() error
}

var Stores = []string{"memory", "bbolt", "badger", "pebble"}

func Open(store, path string, logger *log.Logger) (KV, error) {
	if logger == nil {
		logger = log.StandardLogger()
	}

	switch store {
	case "memory":
		return MakeBTreeKV()
	case "bbolt":
		return MakeBBoltKV(path)
	case "badger":
		return MakeBadgerKV(path, logger)
	case "pebble":
		return MakePebbleKV(path, logger)
	}
	return nil, fmt.Errorf("kv: got %s for store; want memory, bbolt, badger, or pebble", store)
}

func copyBytes(b []byte) []byte {
	return append(make([]byte, 0, len(b)), b...)
}
