// Package version tracks the committed versions of a database: the head, the versions still
// held by transactions, and the pages each commit superseded. A superseded page is handed
// to a Reclaimer once no live version can reach it.
package version

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	log "github.com/sirupsen/logrus"

	"github.com/leftmike/cowdb/page"
)

// Version is an immutable snapshot of every table: the catalog tree rooted at Root, as of
// commit ID.
type Version struct {
	ID   uint64
	Root page.PageNum

	refs int
	live bool
}

func (v *Version) String() string {
	return fmt.Sprintf("version %d (root %d)", v.ID, v.Root)
}

// FreedPage is a page superseded by a commit. It is reachable from exactly the versions
// with an id in [Born, FreedAt), where FreedAt is the id of the superseding commit.
type FreedPage struct {
	Page page.PageNum
	Born uint64
}

type Reclaimer interface {
	Reclaim(pns []page.PageNum)
}

type Stats struct {
	Head      uint64
	Live      int
	Pending   int
	Reclaimed uint64
}

type versionID uint64

func (vid versionID) Less(item btree.Item) bool {
	return vid < item.(versionID)
}

type Store struct {
	logger    *log.Logger
	reclaimer Reclaimer

	mutex     sync.Mutex
	head      *Version
	live      *btree.BTree
	pending   map[uint64][]FreedPage
	reclaimed uint64
}

// NewStore returns a store whose head is version id with root. The pages in pending were
// superseded before the database was last closed; no version older than the head survives,
// so they are reclaimed right away.
func NewStore(id uint64, root page.PageNum, pending []page.PageNum, r Reclaimer,
	logger *log.Logger) *Store {

	if logger == nil {
		logger = log.StandardLogger()
	}

	vs := &Store{
		logger:    logger,
		reclaimer: r,
		head: &Version{
			ID:   id,
			Root: root,
			live: true,
		},
		live:    btree.New(8),
		pending: map[uint64][]FreedPage{},
	}
	vs.live.ReplaceOrInsert(versionID(id))

	if len(pending) > 0 {
		vs.reclaim(pending)
	}
	return vs
}

// Current returns the head, retained on behalf of the caller.
func (vs *Store) Current() *Version {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	vs.head.refs += 1
	return vs.head
}

func (vs *Store) Head() *Version {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	return vs.head
}

func (vs *Store) Retain(v *Version) {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	if !v.live {
		panic(fmt.Sprintf("version: retain of released %s", v))
	}
	v.refs += 1
}

func (vs *Store) Release(v *Version) {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	if v.refs <= 0 {
		panic(fmt.Sprintf("version: release of unreferenced %s", v))
	}
	v.refs -= 1
	if v.refs == 0 && v != vs.head {
		vs.retire(v)
	}
}

// Install makes v the head. freed are the pages of earlier versions which v superseded.
// Only the holder of the writer lock may install a version, and it must hold a reference
// to the head it built on; the previous head is retired when that reference is released.
func (vs *Store) Install(v *Version, freed []FreedPage) {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	if v.ID <= vs.head.ID {
		panic(fmt.Sprintf("version: install of %s over %s", v, vs.head))
	} else if vs.head.refs == 0 {
		panic(fmt.Sprintf("version: install of %s over unreferenced %s", v, vs.head))
	}

	v.live = true
	vs.head = v
	vs.live.ReplaceOrInsert(versionID(v.ID))
	if len(freed) > 0 {
		vs.pending[v.ID] = append(vs.pending[v.ID], freed...)
	}

	vs.logger.WithFields(log.Fields{
		"version": v.ID,
		"root":    v.Root,
		"freed":   len(freed),
	}).Debug("version installed")
}

func (vs *Store) retire(v *Version) {
	v.live = false
	vs.live.Delete(versionID(v.ID))
	vs.sweep()
}

// reachable reports whether any live version has an id in [born, freedAt).
func (vs *Store) reachable(born, freedAt uint64) bool {
	var found bool
	vs.live.AscendGreaterOrEqual(versionID(born),
		func(item btree.Item) bool {
			found = uint64(item.(versionID)) < freedAt
			return false
		})
	return found
}

func (vs *Store) sweep() {
	var pns []page.PageNum
	for freedAt, fps := range vs.pending {
		var keep []FreedPage
		for _, fp := range fps {
			if vs.reachable(fp.Born, freedAt) {
				keep = append(keep, fp)
			} else {
				pns = append(pns, fp.Page)
			}
		}

		if len(keep) == 0 {
			delete(vs.pending, freedAt)
		} else {
			vs.pending[freedAt] = keep
		}
	}

	if len(pns) > 0 {
		vs.reclaim(pns)
	}
}

// reclaim hands pns to the reclaimer while the store is still locked, so a page is always
// either pending or queued for deletion.
func (vs *Store) reclaim(pns []page.PageNum) {
	vs.logger.WithField("pages", len(pns)).Debug("pages reclaimed")
	vs.reclaimed += uint64(len(pns))
	vs.reclaimer.Reclaim(pns)
}

// Pending returns the pages superseded by a commit but still reachable from a live version.
func (vs *Store) Pending() []page.PageNum {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	var pns []page.PageNum
	for _, fps := range vs.pending {
		for _, fp := range fps {
			pns = append(pns, fp.Page)
		}
	}
	return pns
}

func (vs *Store) Stats() Stats {
	vs.mutex.Lock()
	defer vs.mutex.Unlock()

	var pending int
	for _, fps := range vs.pending {
		pending += len(fps)
	}
	return Stats{
		Head:      vs.head.ID,
		Live:      vs.live.Len(),
		Pending:   pending,
		Reclaimed: vs.reclaimed,
	}
}
