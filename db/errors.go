package db

import (
	"errors"

	"github.com/leftmike/cowdb/page"
)

var (
	ErrContention          = errors.New("cowdb: write transaction already in progress")
	ErrTransactionClosed   = errors.New("cowdb: transaction already completed")
	ErrCommitFailed        = errors.New("cowdb: commit failed")
	ErrCorruption          = page.ErrCorrupt
	ErrTableNotFound       = errors.New("cowdb: table not found")
	ErrDatabaseClosed      = errors.New("cowdb: database closed")
	ErrNotFound            = errors.New("cowdb: database not found")
	ErrIncompatible        = errors.New("cowdb: incompatible file format")
	ErrEmptyKey            = errors.New("cowdb: empty key")
	ErrIteratorInvalidated = errors.New("cowdb: table modified during iteration")
)
