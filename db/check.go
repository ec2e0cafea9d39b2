package db

import (
	"context"
	"fmt"
	"io"

	"github.com/bits-and-blooms/bitset"

	"github.com/leftmike/cowdb/cowtree"
	"github.com/leftmike/cowdb/page"
)

// CheckReport compares the pages reachable from the head with the pages in the backend.
// Every stored page should be reachable, pending, or queued for deletion; anything else
// is leaked.
type CheckReport struct {
	Version   uint64
	Tables    int
	Reachable uint
	Stored    int
	Pending   int
	Queued    int
	Missing   []page.PageNum
	Leaked    []page.PageNum
}

func (cr *CheckReport) OK() bool {
	return len(cr.Missing) == 0 && len(cr.Leaked) == 0
}

// Check reads and verifies every page of the head. It holds the writer lock while it runs.
func (db *Database) Check() (*CheckReport, error) {
	if db.isClosed() {
		return nil, ErrDatabaseClosed
	}
	err := db.writer.Acquire(context.Background(), 1)
	if err != nil {
		return nil, err
	}
	defer db.writer.Release(1)

	ver := db.store.Current()
	defer db.store.Release(ver)

	cr := &CheckReport{
		Version: ver.ID,
	}
	reachable := bitset.New(0)
	var missing bitset.BitSet

	mark := func(pn page.PageNum, n *page.Node) error {
		if reachable.Test(uint(pn)) {
			return fmt.Errorf("%w: page %d: reachable twice", ErrCorruption, pn)
		}
		reachable.Set(uint(pn))
		return nil
	}

	err = cowtree.Walk(db.pager, ver.Root, mark)
	if err != nil {
		return nil, err
	}
	names, err := listTables(db.pager, ver.Root)
	if err != nil {
		return nil, err
	}
	cr.Tables = len(names)
	for _, name := range names {
		root, _, err := lookupTable(db.pager, ver.Root, name)
		if err != nil {
			return nil, err
		}
		err = cowtree.Walk(db.pager, root, mark)
		if err != nil {
			return nil, fmt.Errorf("table %s: %w", name, err)
		}
	}
	cr.Reachable = reachable.Count()

	var other bitset.BitSet
	pending := db.store.Pending()
	cr.Pending = len(pending)
	for _, pn := range pending {
		other.Set(uint(pn))
	}
	queued := db.pager.Queued()
	cr.Queued = len(queued)
	for _, pn := range queued {
		other.Set(uint(pn))
	}

	stored := bitset.New(reachable.Len())
	it, err := db.kv.Iterate(page.FirstKey())
	if err != nil {
		return nil, err
	}
	defer it.Close()

	for {
		var pn page.PageNum
		var ok bool
		err = it.Item(
			func(key, val []byte) error {
				pn, ok = page.ParseKey(key)
				return nil
			})
		if err == io.EOF || (err == nil && !ok) {
			break
		} else if err != nil {
			return nil, err
		}

		stored.Set(uint(pn))
		cr.Stored += 1
		if !reachable.Test(uint(pn)) && !other.Test(uint(pn)) {
			cr.Leaked = append(cr.Leaked, pn)
		}
	}

	missing.InPlaceUnion(reachable)
	missing.InPlaceDifference(stored)
	for i, ok := missing.NextSet(0); ok; i, ok = missing.NextSet(i + 1) {
		cr.Missing = append(cr.Missing, page.PageNum(i))
	}
	return cr, nil
}
