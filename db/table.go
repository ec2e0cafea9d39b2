package db

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/leftmike/cowdb/cowtree"
	"github.com/leftmike/cowdb/page"
)

// TableDefinition names a table. Keys and values are opaque bytes, ordered by
// bytes.Compare.
type TableDefinition struct {
	Name string
}

// Uint64Value encodes n so that the encodings sort in numeric order.
func Uint64Value(n uint64) []byte {
	return binary.BigEndian.AppendUint64(make([]byte, 0, 8), n)
}

func DecodeUint64(buf []byte) (uint64, error) {
	if len(buf) != 8 {
		return 0, fmt.Errorf("cowdb: got %d bytes for uint64; want 8", len(buf))
	}
	return binary.BigEndian.Uint64(buf), nil
}

func tableNotFound(name string) error {
	return fmt.Errorf("%w: %s", ErrTableNotFound, name)
}

// The catalog maps each table name to the root page of its tree.

func lookupTable(r cowtree.Reader, catalog page.PageNum, name string) (page.PageNum, bool,
	error) {

	val, ok, err := cowtree.Get(r, catalog, []byte(name))
	if err != nil || !ok {
		return page.NoPage, false, err
	}
	if len(val) != 8 {
		return page.NoPage, false, fmt.Errorf("%w: table %s: root of %d bytes", ErrCorruption,
			name, len(val))
	}
	return page.PageNum(binary.BigEndian.Uint64(val)), true, nil
}

func listTables(r cowtree.Reader, catalog page.PageNum) ([]string, error) {
	var names []string
	c := cowtree.NewCursor(r, catalog, nil, nil)
	for {
		key, _, ok, err := c.Next()
		if err != nil {
			return nil, err
		} else if !ok {
			return names, nil
		}
		names = append(names, string(key))
	}
}

type view struct {
	name  string
	r     cowtree.Reader
	root  page.PageNum
	check func() error
}

func (v *view) Name() string {
	return v.name
}

// Get returns a copy of the value of key; ok is false if key is not in the table.
func (v *view) Get(key []byte) ([]byte, bool, error) {
	err := v.check()
	if err != nil {
		return nil, false, err
	}

	val, ok, err := cowtree.Get(v.r, v.root, key)
	if err != nil || !ok {
		return nil, false, err
	}
	return append(make([]byte, 0, len(val)), val...), true, nil
}

func (v *view) Len() (int, error) {
	err := v.check()
	if err != nil {
		return 0, err
	}

	var cnt int
	err = cowtree.Walk(v.r, v.root,
		func(pn page.PageNum, n *page.Node) error {
			if n.Leaf {
				cnt += len(n.Keys)
			}
			return nil
		})
	if err != nil {
		return 0, err
	}
	return cnt, nil
}

func (v *view) newRange(start, end []byte, check func() error) (*Range, error) {
	err := check()
	if err != nil {
		return nil, err
	}

	return &Range{
		cursor: cowtree.NewCursor(v.r, v.root, start, end),
		check:  check,
	}, nil
}

type ReadOnlyTable struct {
	view
}

// Range returns the pairs with start <= key < end in ascending order of key; a nil start or
// end is unbounded.
func (rot *ReadOnlyTable) Range(start, end []byte) (*Range, error) {
	return rot.newRange(start, end, rot.check)
}

func (rot *ReadOnlyTable) Iterate() (*Range, error) {
	return rot.Range(nil, nil)
}

// Table is a writable view of a table in a write transaction. Reads see the transaction's
// own changes.
type Table struct {
	view
	wtx     *WriteTx
	dropped bool
	gen     uint64
}

func (tbl *Table) checkTable() error {
	err := tbl.check()
	if err != nil {
		return err
	}
	if tbl.dropped {
		return tableNotFound(tbl.name)
	}
	return nil
}

func (tbl *Table) Get(key []byte) ([]byte, bool, error) {
	err := tbl.checkTable()
	if err != nil {
		return nil, false, err
	}
	return tbl.view.Get(key)
}

func (tbl *Table) Len() (int, error) {
	err := tbl.checkTable()
	if err != nil {
		return 0, err
	}
	return tbl.view.Len()
}

// Range is invalidated by any later Insert or Remove on the table which changes it.
func (tbl *Table) Range(start, end []byte) (*Range, error) {
	gen := tbl.gen
	return tbl.newRange(start, end,
		func() error {
			err := tbl.checkTable()
			if err != nil {
				return err
			}
			if tbl.gen != gen {
				return ErrIteratorInvalidated
			}
			return nil
		})
}

func (tbl *Table) Iterate() (*Range, error) {
	return tbl.Range(nil, nil)
}

func (tbl *Table) Insert(key, val []byte) error {
	err := tbl.checkTable()
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}

	root, err := cowtree.Put(tbl.wtx, tbl.root,
		append(make([]byte, 0, len(key)), key...), append(make([]byte, 0, len(val)), val...))
	if err != nil {
		return err
	}
	tbl.gen += 1
	return tbl.setRoot(root)
}

// Remove deletes key from the table; removing a key which is not there does nothing.
func (tbl *Table) Remove(key []byte) error {
	err := tbl.checkTable()
	if err != nil {
		return err
	}
	if len(key) == 0 {
		return ErrEmptyKey
	}

	root, ok, err := cowtree.Delete(tbl.wtx, tbl.root, key)
	if err != nil || !ok {
		return err
	}
	tbl.gen += 1
	return tbl.setRoot(root)
}

func (tbl *Table) setRoot(root page.PageNum) error {
	if root == tbl.root {
		return nil
	}
	tbl.root = root
	return tbl.wtx.updateTable(tbl.name, root)
}

// Range yields key-value pairs one at a time. The slices passed to fn are only valid
// until fn returns.
type Range struct {
	cursor *cowtree.Cursor
	check  func() error
}

// Item calls fn with the next pair; it returns io.EOF after the last pair.
func (rng *Range) Item(fn func(key, val []byte) error) error {
	if rng.cursor == nil {
		return io.EOF
	}
	err := rng.check()
	if err != nil {
		return err
	}

	key, val, ok, err := rng.cursor.Next()
	if err != nil {
		return err
	} else if !ok {
		return io.EOF
	}
	return fn(key, val)
}

// Reset moves the range back to its first pair. A range invalidated by a change to the
// table stays invalid.
func (rng *Range) Reset() error {
	if rng.cursor == nil {
		return io.EOF
	}
	err := rng.check()
	if err != nil {
		return err
	}

	rng.cursor.Reset()
	return nil
}

func (rng *Range) Close() {
	rng.cursor = nil
}
