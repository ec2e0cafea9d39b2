package db

import (
	"github.com/leftmike/cowdb/version"
)

// ReadTx sees the version which was the head when it began, for as long as it is open.
type ReadTx struct {
	db  *Database
	ver *version.Version
}

func (rtx *ReadTx) check() error {
	if rtx.ver == nil {
		return ErrTransactionClosed
	}
	if rtx.db.isClosed() {
		return ErrDatabaseClosed
	}
	return nil
}

func (rtx *ReadTx) Version() uint64 {
	if rtx.ver == nil {
		return 0
	}
	return rtx.ver.ID
}

func (rtx *ReadTx) OpenTable(def TableDefinition) (*ReadOnlyTable, error) {
	err := rtx.check()
	if err != nil {
		return nil, err
	}

	root, ok, err := lookupTable(rtx.db.pager, rtx.ver.Root, def.Name)
	if err != nil {
		return nil, err
	} else if !ok {
		return nil, tableNotFound(def.Name)
	}
	return &ReadOnlyTable{
		view: view{
			name:  def.Name,
			r:     rtx.db.pager,
			root:  root,
			check: rtx.check,
		},
	}, nil
}

func (rtx *ReadTx) ListTables() ([]string, error) {
	err := rtx.check()
	if err != nil {
		return nil, err
	}
	return listTables(rtx.db.pager, rtx.ver.Root)
}

func (rtx *ReadTx) Close() error {
	if rtx.ver == nil {
		return ErrTransactionClosed
	}

	rtx.db.store.Release(rtx.ver)
	rtx.ver = nil
	return nil
}
