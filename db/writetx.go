package db

import (
	"encoding/binary"

	"github.com/leftmike/cowdb/cowtree"
	"github.com/leftmike/cowdb/page"
	"github.com/leftmike/cowdb/version"
)

// WriteTx builds the next version over its base version. Pages of the base are never
// changed: the first change to a page copies it to a new page owned by the transaction.
type WriteTx struct {
	db       *Database
	base     *version.Version
	id       uint64
	root     page.PageNum
	nextPage page.PageNum
	dirty    map[page.PageNum]*page.Node
	freed    []version.FreedPage
	tables   map[string]*Table
}

var _ cowtree.Writer = (*WriteTx)(nil)

func (wtx *WriteTx) check() error {
	if wtx.db == nil {
		return ErrTransactionClosed
	}
	return nil
}

// Version is the id the transaction's version will have if it commits.
func (wtx *WriteTx) Version() uint64 {
	return wtx.id
}

func (wtx *WriteTx) changed() bool {
	return wtx.root != wtx.base.Root || len(wtx.dirty) > 0 || len(wtx.freed) > 0
}

func (wtx *WriteTx) Read(pn page.PageNum) (*page.Node, error) {
	if n, ok := wtx.dirty[pn]; ok {
		return n, nil
	}
	return wtx.db.pager.Read(pn)
}

func (wtx *WriteTx) Writable(pn page.PageNum) (*page.Node, page.PageNum, error) {
	if n, ok := wtx.dirty[pn]; ok {
		return n, pn, nil
	}

	n, err := wtx.db.pager.Read(pn)
	if err != nil {
		return nil, page.NoPage, err
	}
	wtx.freed = append(wtx.freed, version.FreedPage{Page: pn, Born: n.Version})
	cn := n.Clone(wtx.id)
	return cn, wtx.Alloc(cn), nil
}

func (wtx *WriteTx) Alloc(n *page.Node) page.PageNum {
	pn := wtx.nextPage
	wtx.nextPage += 1
	n.Version = wtx.id
	wtx.dirty[pn] = n
	return pn
}

func (wtx *WriteTx) Free(pn page.PageNum, n *page.Node) {
	if _, ok := wtx.dirty[pn]; ok {
		delete(wtx.dirty, pn)
		return
	}
	wtx.freed = append(wtx.freed, version.FreedPage{Page: pn, Born: n.Version})
}

func (wtx *WriteTx) updateTable(name string, root page.PageNum) error {
	var val [8]byte
	binary.BigEndian.PutUint64(val[:], uint64(root))

	catalog, err := cowtree.Put(wtx, wtx.root, []byte(name), val[:])
	if err != nil {
		return err
	}
	wtx.root = catalog
	return nil
}

// OpenTable returns the table, creating it if it does not exist. Opening a table again in
// the same transaction returns the same *Table.
func (wtx *WriteTx) OpenTable(def TableDefinition) (*Table, error) {
	err := wtx.check()
	if err != nil {
		return nil, err
	}
	if def.Name == "" {
		return nil, ErrEmptyKey
	}
	if tbl, ok := wtx.tables[def.Name]; ok {
		return tbl, nil
	}

	root, ok, err := lookupTable(wtx, wtx.root, def.Name)
	if err != nil {
		return nil, err
	} else if !ok {
		err = wtx.updateTable(def.Name, page.NoPage)
		if err != nil {
			return nil, err
		}
	}

	tbl := &Table{
		view: view{
			name:  def.Name,
			r:     wtx,
			root:  root,
			check: wtx.check,
		},
		wtx: wtx,
	}
	wtx.tables[def.Name] = tbl
	return tbl, nil
}

// DeleteTable removes the table and all of its pairs; it returns false if there was no
// such table.
func (wtx *WriteTx) DeleteTable(def TableDefinition) (bool, error) {
	err := wtx.check()
	if err != nil {
		return false, err
	}

	root, ok, err := lookupTable(wtx, wtx.root, def.Name)
	if err != nil || !ok {
		return false, err
	}

	err = cowtree.Free(wtx, root)
	if err != nil {
		return false, err
	}
	catalog, _, err := cowtree.Delete(wtx, wtx.root, []byte(def.Name))
	if err != nil {
		return false, err
	}
	wtx.root = catalog

	if tbl, ok := wtx.tables[def.Name]; ok {
		tbl.dropped = true
		delete(wtx.tables, def.Name)
	}
	return true, nil
}

func (wtx *WriteTx) ListTables() ([]string, error) {
	err := wtx.check()
	if err != nil {
		return nil, err
	}
	return listTables(wtx, wtx.root)
}

func (wtx *WriteTx) discard() {
	wtx.db = nil
	wtx.dirty = nil
	wtx.freed = nil
	wtx.tables = nil
}

// Commit publishes the transaction's changes as the new head. If the commit fails, the
// head is unchanged and the error wraps ErrCommitFailed. The transaction is finished
// either way.
func (wtx *WriteTx) Commit() error {
	err := wtx.check()
	if err != nil {
		return err
	}

	db := wtx.db
	err = db.commit(wtx)
	wtx.discard()
	return err
}

func (wtx *WriteTx) Abort() error {
	err := wtx.check()
	if err != nil {
		return err
	}

	wtx.db.abort(wtx)
	wtx.discard()
	return nil
}

// Close aborts the transaction if it is still open.
func (wtx *WriteTx) Close() error {
	if wtx.db == nil {
		return nil
	}
	return wtx.Abort()
}
