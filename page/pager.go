package page

import (
	"io"
	"sync"
	"sync/atomic"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/leftmike/cowdb/kv"
)

const (
	DefaultCacheSize = 64 << 20
)

// Pager reads committed pages from a kv backend through a cache of decoded nodes. Page
// numbers are never reused, so a cached node is valid for as long as its page exists.
type Pager struct {
	kv          kv.KV
	compression Compression
	cache       *ristretto.Cache[uint64, *Node]

	mutex     sync.Mutex
	reclaimed []PageNum

	reads        atomic.Uint64
	reclaimCount atomic.Uint64
}

type Stats struct {
	Reads       uint64
	CacheHits   uint64
	CacheMisses uint64
	Reclaimed   uint64
	Queued      int
}

func NewPager(st kv.KV, c Compression, cacheSize int64) (*Pager, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	numCounters := cacheSize / 100
	if numCounters < 1000 {
		numCounters = 1000
	}

	cache, err := ristretto.NewCache(&ristretto.Config[uint64, *Node]{
		NumCounters:        numCounters,
		MaxCost:            cacheSize,
		BufferItems:        64,
		Metrics:            true,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}

	return &Pager{
		kv:          st,
		compression: c,
		cache:       cache,
	}, nil
}

func (pgr *Pager) Read(pn PageNum) (*Node, error) {
	if pn == NoPage {
		return nil, corrupt("read of page zero")
	}
	if n, ok := pgr.cache.Get(uint64(pn)); ok {
		return n, nil
	}

	var n *Node
	err := pgr.kv.Get(Key(pn),
		func(val []byte) error {
			var err error
			n, err = Decode(append(make([]byte, 0, len(val)), val...))
			return err
		})
	if err == io.EOF {
		return nil, corrupt("page %d: missing", pn)
	} else if err != nil {
		return nil, err
	}
	pgr.reads.Add(1)

	pgr.cache.Set(uint64(pn), n, n.Size())
	return n, nil
}

func (pgr *Pager) Write(upd kv.Updater, pn PageNum, n *Node) error {
	buf, err := Encode(n, pgr.compression)
	if err != nil {
		return err
	}
	return upd.Set(Key(pn), buf)
}

// Committed adds pages which were just durably written to the cache.
func (pgr *Pager) Committed(pages map[PageNum]*Node) {
	for pn, n := range pages {
		pgr.cache.Set(uint64(pn), n, n.Size())
	}
}

// Reclaim is called once no live version can reach any of pns; they are dropped from the
// cache and deleted from the backend by the next commit.
func (pgr *Pager) Reclaim(pns []PageNum) {
	pgr.mutex.Lock()
	defer pgr.mutex.Unlock()

	for _, pn := range pns {
		pgr.cache.Del(uint64(pn))
	}
	pgr.reclaimed = append(pgr.reclaimed, pns...)
	pgr.reclaimCount.Add(uint64(len(pns)))
}

// TakeReclaimed returns the pages waiting to be deleted from the backend. If the commit
// deleting them fails, they must be given back with Requeue.
func (pgr *Pager) TakeReclaimed() []PageNum {
	pgr.mutex.Lock()
	defer pgr.mutex.Unlock()

	pns := pgr.reclaimed
	pgr.reclaimed = nil
	return pns
}

func (pgr *Pager) Requeue(pns []PageNum) {
	pgr.mutex.Lock()
	defer pgr.mutex.Unlock()

	pgr.reclaimed = append(pgr.reclaimed, pns...)
}

func (pgr *Pager) Stats() Stats {
	pgr.mutex.Lock()
	queued := len(pgr.reclaimed)
	pgr.mutex.Unlock()

	return Stats{
		Reads:       pgr.reads.Load(),
		CacheHits:   pgr.cache.Metrics.Hits(),
		CacheMisses: pgr.cache.Metrics.Misses(),
		Reclaimed:   pgr.reclaimCount.Load(),
		Queued:      queued,
	}
}

func (pgr *Pager) Close() {
	pgr.cache.Close()
}

// Queued returns the pages waiting to be deleted from the backend.
func (pgr *Pager) Queued() []PageNum {
	pgr.mutex.Lock()
	defer pgr.mutex.Unlock()

	return append([]PageNum(nil), pgr.reclaimed...)
}
