package db_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/leftmike/cowdb/db"
	"github.com/leftmike/cowdb/kv"
	"github.com/leftmike/cowdb/page"
	"github.com/leftmike/cowdb/testutil"
)

var (
	accounts = db.TableDefinition{Name: "accounts"}
	events   = db.TableDefinition{Name: "events"}
)

func createMemory(t *testing.T, opts *db.Options) *db.Database {
	t.Helper()

	if opts == nil {
		opts = &db.Options{}
	}
	opts.Store = "memory"
	d, err := db.Create("", opts)
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return d
}

func insert(t *testing.T, d *db.Database, def db.TableDefinition, kvs ...string) {
	t.Helper()

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	tbl, err := wtx.OpenTable(def)
	require.NoError(t, err)
	for idx := 0; idx < len(kvs); idx += 2 {
		require.NoError(t, tbl.Insert([]byte(kvs[idx]), []byte(kvs[idx+1])))
	}
	require.NoError(t, wtx.Commit())
}

type getter interface {
	Get(key []byte) ([]byte, bool, error)
}

func get(t *testing.T, tbl getter, key string) string {
	t.Helper()

	val, ok, err := tbl.Get([]byte(key))
	require.NoError(t, err)
	if !ok {
		return "<none>"
	}
	return string(val)
}

func scan(t *testing.T, rng *db.Range) []string {
	t.Helper()

	kvs := drain(t, rng)
	rng.Close()
	return kvs
}

// drain reads the rest of rng without closing it.
func drain(t *testing.T, rng *db.Range) []string {
	t.Helper()

	var kvs []string
	for {
		err := rng.Item(
			func(key, val []byte) error {
				kvs = append(kvs, string(key)+"="+string(val))
				return nil
			})
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	return kvs
}

func TestReaderWriter(t *testing.T) {
	d := createMemory(t, nil)
	def := db.TableDefinition{Name: "table"}
	insert(t, d, def, "key", string(db.Uint64Value(123)))

	rtx, err := d.BeginRead()
	require.NoError(t, err)
	rtbl, err := rtx.OpenTable(def)
	require.NoError(t, err)

	readValue := func(tbl getter) uint64 {
		val, ok, err := tbl.Get([]byte("key"))
		require.NoError(t, err)
		require.True(t, ok)
		n, err := db.DecodeUint64(val)
		require.NoError(t, err)
		return n
	}

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	wtbl, err := wtx.OpenTable(def)
	require.NoError(t, err)
	require.NoError(t, wtbl.Insert([]byte("key"), db.Uint64Value(321)))

	require.Equal(t, uint64(123), readValue(rtbl))
	require.Equal(t, uint64(321), readValue(wtbl))
	require.NoError(t, wtx.Commit())
	require.Equal(t, uint64(123), readValue(rtbl))
	require.NoError(t, rtx.Close())

	rtx, err = d.BeginRead()
	require.NoError(t, err)
	rtbl, err = rtx.OpenTable(def)
	require.NoError(t, err)
	require.Equal(t, uint64(321), readValue(rtbl))
	require.NoError(t, rtx.Close())
}

func TestSnapshots(t *testing.T) {
	d := createMemory(t, nil)

	var rtxs []*db.ReadTx
	for ver := 0; ver < 20; ver++ {
		rtx, err := d.BeginRead()
		require.NoError(t, err)
		rtxs = append(rtxs, rtx)

		wtx, err := d.BeginWrite(context.Background())
		require.NoError(t, err)
		tbl, err := wtx.OpenTable(accounts)
		require.NoError(t, err)
		for key := 0; key < 100; key++ {
			require.NoError(t, tbl.Insert([]byte(fmt.Sprintf("key-%03d", key)),
				[]byte(fmt.Sprintf("value-%d", ver))))
		}
		require.NoError(t, wtx.Commit())
	}

	for ver, rtx := range rtxs {
		tbl, err := rtx.OpenTable(accounts)
		if ver == 0 {
			require.ErrorIs(t, err, db.ErrTableNotFound)
			continue
		}
		require.NoError(t, err)

		rng, err := tbl.Range([]byte("key-010"), []byte("key-013"))
		require.NoError(t, err)
		want := fmt.Sprintf("value-%d", ver-1)
		require.Equal(t,
			[]string{"key-010=" + want, "key-011=" + want, "key-012=" + want}, scan(t, rng))
		n, err := tbl.Len()
		require.NoError(t, err)
		require.Equal(t, 100, n)
	}

	for _, rtx := range rtxs {
		require.NoError(t, rtx.Close())
	}
	st := d.Stats()
	require.Equal(t, 1, st.Live)
	require.Equal(t, 0, st.Pending)
}

func TestReadYourWrites(t *testing.T) {
	d := createMemory(t, nil)
	insert(t, d, accounts, "a", "1", "b", "2", "c", "3")

	rtx, err := d.BeginRead()
	require.NoError(t, err)
	defer rtx.Close()
	rtbl, err := rtx.OpenTable(accounts)
	require.NoError(t, err)

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	tbl, err := wtx.OpenTable(accounts)
	require.NoError(t, err)
	require.NoError(t, tbl.Insert([]byte("b"), []byte("20")))
	require.NoError(t, tbl.Insert([]byte("d"), []byte("4")))
	require.NoError(t, tbl.Remove([]byte("a")))

	rng, err := tbl.Iterate()
	require.NoError(t, err)
	require.Equal(t, []string{"b=20", "c=3", "d=4"}, scan(t, rng))

	// Nothing of the write transaction is visible before it commits.
	rtx2, err := d.BeginRead()
	require.NoError(t, err)
	rtbl2, err := rtx2.OpenTable(accounts)
	require.NoError(t, err)
	for _, rt := range []*db.ReadOnlyTable{rtbl, rtbl2} {
		rng, err = rt.Iterate()
		require.NoError(t, err)
		require.Equal(t, []string{"a=1", "b=2", "c=3"}, scan(t, rng))
	}
	require.NoError(t, rtx2.Close())

	require.NoError(t, wtx.Commit())
	rng, err = rtbl.Iterate()
	require.NoError(t, err)
	require.Equal(t, []string{"a=1", "b=2", "c=3"}, scan(t, rng))
}

func TestAbort(t *testing.T) {
	d := createMemory(t, nil)
	insert(t, d, accounts, "a", "1")
	before := d.Stats()

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	tbl, err := wtx.OpenTable(accounts)
	require.NoError(t, err)
	require.NoError(t, tbl.Insert([]byte("a"), []byte("100")))
	_, err = wtx.OpenTable(events)
	require.NoError(t, err)
	require.NoError(t, wtx.Abort())
	require.ErrorIs(t, wtx.Abort(), db.ErrTransactionClosed)
	require.NoError(t, wtx.Close())

	after := d.Stats()
	require.Equal(t, before.Head, after.Head)
	require.Equal(t, before.NextPage, after.NextPage)

	rtx, err := d.BeginRead()
	require.NoError(t, err)
	defer rtx.Close()
	names, err := rtx.ListTables()
	require.NoError(t, err)
	require.Equal(t, []string{"accounts"}, names)
	rtbl, err := rtx.OpenTable(accounts)
	require.NoError(t, err)
	require.Equal(t, "1", get(t, rtbl, "a"))
}

func TestEmptyCommit(t *testing.T) {
	d := createMemory(t, nil)
	insert(t, d, accounts, "a", "1")
	head := d.Stats().Head

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	tbl, err := wtx.OpenTable(accounts)
	require.NoError(t, err)
	require.NoError(t, tbl.Remove([]byte("not-there")))
	require.Equal(t, "1", get(t, tbl, "a"))
	require.NoError(t, wtx.Commit())

	require.Equal(t, head, d.Stats().Head)
}

func TestSingleWriter(t *testing.T) {
	d := createMemory(t, nil)

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)

	var began atomic.Bool
	done := make(chan *db.WriteTx)
	go func() {
		wtx2, err := d.BeginWrite(context.Background())
		if err != nil {
			panic(err)
		}
		began.Store(true)
		done <- wtx2
	}()

	time.Sleep(50 * time.Millisecond)
	require.False(t, began.Load())

	// Readers do not wait for the writer.
	rtx, err := d.BeginRead()
	require.NoError(t, err)
	require.NoError(t, rtx.Close())

	tbl, err := wtx.OpenTable(accounts)
	require.NoError(t, err)
	require.NoError(t, tbl.Insert([]byte("a"), []byte("1")))
	require.NoError(t, wtx.Commit())

	wtx2 := <-done
	require.Equal(t, wtx.Version()+1, wtx2.Version())
	tbl, err = wtx2.OpenTable(accounts)
	require.NoError(t, err)
	require.Equal(t, "1", get(t, tbl, "a"))
	require.NoError(t, wtx2.Abort())
}

func TestContention(t *testing.T) {
	d := createMemory(t, &db.Options{WriteTimeout: 20 * time.Millisecond})

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)

	_, err = d.BeginWrite(context.Background())
	require.ErrorIs(t, err, db.ErrContention)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = d.BeginWrite(ctx)
	require.ErrorIs(t, err, db.ErrContention)
	require.ErrorIs(t, err, context.Canceled)

	require.NoError(t, wtx.Commit())
	wtx, err = d.BeginWrite(context.Background())
	require.NoError(t, err)
	require.NoError(t, wtx.Close())
}

func TestClosedTransactions(t *testing.T) {
	d := createMemory(t, nil)
	insert(t, d, accounts, "a", "1", "b", "2")

	rtx, err := d.BeginRead()
	require.NoError(t, err)
	rtbl, err := rtx.OpenTable(accounts)
	require.NoError(t, err)
	rrng, err := rtbl.Iterate()
	require.NoError(t, err)
	require.NoError(t, rtx.Close())
	require.ErrorIs(t, rtx.Close(), db.ErrTransactionClosed)

	_, err = rtx.OpenTable(accounts)
	require.ErrorIs(t, err, db.ErrTransactionClosed)
	_, _, err = rtbl.Get([]byte("a"))
	require.ErrorIs(t, err, db.ErrTransactionClosed)
	err = rrng.Item(func(key, val []byte) error { return nil })
	require.ErrorIs(t, err, db.ErrTransactionClosed)

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	tbl, err := wtx.OpenTable(accounts)
	require.NoError(t, err)
	require.NoError(t, wtx.Commit())

	require.ErrorIs(t, wtx.Commit(), db.ErrTransactionClosed)
	_, err = wtx.OpenTable(accounts)
	require.ErrorIs(t, err, db.ErrTransactionClosed)
	require.ErrorIs(t, tbl.Insert([]byte("c"), []byte("3")), db.ErrTransactionClosed)
	require.ErrorIs(t, tbl.Remove([]byte("a")), db.ErrTransactionClosed)
	_, err = tbl.Len()
	require.ErrorIs(t, err, db.ErrTransactionClosed)
}

func TestTables(t *testing.T) {
	d := createMemory(t, nil)

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	tbl, err := wtx.OpenTable(accounts)
	require.NoError(t, err)
	tbl2, err := wtx.OpenTable(accounts)
	require.NoError(t, err)
	require.Same(t, tbl, tbl2)

	require.ErrorIs(t, tbl.Insert(nil, []byte("x")), db.ErrEmptyKey)
	require.ErrorIs(t, tbl.Remove([]byte{}), db.ErrEmptyKey)
	require.NoError(t, tbl.Insert([]byte("a"), nil))

	etbl, err := wtx.OpenTable(events)
	require.NoError(t, err)
	require.NoError(t, etbl.Insert([]byte("e1"), []byte("start")))
	names, err := wtx.ListTables()
	require.NoError(t, err)
	require.Equal(t, []string{"accounts", "events"}, names)
	require.NoError(t, wtx.Commit())

	rtx, err := d.BeginRead()
	require.NoError(t, err)

	wtx, err = d.BeginWrite(context.Background())
	require.NoError(t, err)
	etbl, err = wtx.OpenTable(events)
	require.NoError(t, err)
	ok, err := wtx.DeleteTable(events)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = wtx.DeleteTable(db.TableDefinition{Name: "missing"})
	require.NoError(t, err)
	require.False(t, ok)
	_, _, err = etbl.Get([]byte("e1"))
	require.ErrorIs(t, err, db.ErrTableNotFound)
	require.NoError(t, wtx.Commit())

	names, err = rtx.ListTables()
	require.NoError(t, err)
	require.Equal(t, []string{"accounts", "events"}, names)
	rtbl, err := rtx.OpenTable(events)
	require.NoError(t, err)
	require.Equal(t, "start", get(t, rtbl, "e1"))
	require.NoError(t, rtx.Close())

	rtx, err = d.BeginRead()
	require.NoError(t, err)
	defer rtx.Close()
	_, err = rtx.OpenTable(events)
	require.ErrorIs(t, err, db.ErrTableNotFound)
	rtbl, err = rtx.OpenTable(accounts)
	require.NoError(t, err)
	val, ok, err := rtbl.Get([]byte("a"))
	require.NoError(t, err)
	require.True(t, ok)
	require.Empty(t, val)
}

func TestRangeInvalidated(t *testing.T) {
	d := createMemory(t, nil)
	insert(t, d, accounts, "a", "1", "b", "2", "c", "3")

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	defer wtx.Close()
	tbl, err := wtx.OpenTable(accounts)
	require.NoError(t, err)

	rng, err := tbl.Iterate()
	require.NoError(t, err)
	require.NoError(t, rng.Item(func(key, val []byte) error { return nil }))
	require.NoError(t, tbl.Remove([]byte("zzz")))
	require.NoError(t, rng.Item(func(key, val []byte) error { return nil }))

	require.NoError(t, tbl.Insert([]byte("d"), []byte("4")))
	err = rng.Item(func(key, val []byte) error { return nil })
	require.ErrorIs(t, err, db.ErrIteratorInvalidated)

	rng, err = tbl.Range([]byte("b"), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"b=2", "c=3", "d=4"}, scan(t, rng))
}

func TestRangeReset(t *testing.T) {
	d := createMemory(t, nil)
	insert(t, d, accounts, "a", "1", "b", "2", "c", "3")

	rtx, err := d.BeginRead()
	require.NoError(t, err)
	defer rtx.Close()
	rtbl, err := rtx.OpenTable(accounts)
	require.NoError(t, err)

	rng, err := rtbl.Range([]byte("b"), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"b=2", "c=3"}, drain(t, rng))
	require.NoError(t, rng.Reset())
	require.Equal(t, []string{"b=2", "c=3"}, drain(t, rng))

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	defer wtx.Close()
	tbl, err := wtx.OpenTable(accounts)
	require.NoError(t, err)

	rng, err = tbl.Iterate()
	require.NoError(t, err)
	require.Equal(t, []string{"a=1", "b=2", "c=3"}, drain(t, rng))
	require.NoError(t, rng.Reset())
	require.Equal(t, []string{"a=1", "b=2", "c=3"}, drain(t, rng))

	require.NoError(t, tbl.Insert([]byte("d"), []byte("4")))
	require.ErrorIs(t, rng.Reset(), db.ErrIteratorInvalidated)

	rng.Close()
	require.Equal(t, io.EOF, rng.Reset())
}

func TestReclaim(t *testing.T) {
	d := createMemory(t, nil)

	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	tbl, err := wtx.OpenTable(accounts)
	require.NoError(t, err)
	for key := 0; key < 1000; key++ {
		require.NoError(t, tbl.Insert([]byte(fmt.Sprintf("key-%04d", key)), []byte("v1")))
	}
	require.NoError(t, wtx.Commit())

	r1, err := d.BeginRead()
	require.NoError(t, err)
	rtbl, err := r1.OpenTable(accounts)
	require.NoError(t, err)

	insert(t, d, accounts, "key-0500", "v2")
	st := d.Stats()
	require.Equal(t, 2, st.Live)
	require.Greater(t, st.Pending, 0)
	pending := st.Pending

	// Pages which only the old version reaches are still intact.
	require.Equal(t, "v1", get(t, rtbl, "key-0500"))
	require.Equal(t, "v1", get(t, rtbl, "key-0999"))

	require.NoError(t, r1.Close())
	st = d.Stats()
	require.Equal(t, 1, st.Live)
	require.Equal(t, 0, st.Pending)
	require.Equal(t, uint64(pending), st.Reclaimed)
	require.Equal(t, pending, st.Queued)

	// The next commit deletes the reclaimed pages; the pages it supersedes are reclaimed
	// right away since no reader holds the previous version.
	insert(t, d, events, "e", "1")
	st = d.Stats()
	require.Equal(t, 0, st.Pending)
	require.Greater(t, st.Reclaimed, uint64(pending))

	cr, err := d.Check()
	require.NoError(t, err)
	require.True(t, cr.OK(), "missing: %v leaked: %v", cr.Missing, cr.Leaked)
	require.Equal(t, cr.Stored, int(cr.Reachable)+cr.Queued)

	rtx, err := d.BeginRead()
	require.NoError(t, err)
	defer rtx.Close()
	rtbl, err = rtx.OpenTable(accounts)
	require.NoError(t, err)
	require.Equal(t, "v2", get(t, rtbl, "key-0500"))
	require.Equal(t, "v1", get(t, rtbl, "key-0501"))
}

type failingKV struct {
	kv.KV
	fail atomic.Bool
}

type failingUpdater struct {
	kv.Updater
	fkv *failingKV
}

func (fkv *failingKV) Update() (kv.Updater, error) {
	upd, err := fkv.KV.Update()
	if err != nil {
		return nil, err
	}
	return failingUpdater{upd, fkv}, nil
}

func (fu failingUpdater) Commit(sync bool) error {
	if fu.fkv.fail.Load() {
		fu.Updater.Rollback()
		return errors.New("no space left on device")
	}
	return fu.Updater.Commit(sync)
}

func TestCommitFailure(t *testing.T) {
	st, err := kv.MakeBTreeKV()
	require.NoError(t, err)
	fkv := &failingKV{KV: st}
	d := createMemory(t, &db.Options{KV: fkv})
	insert(t, d, accounts, "a", "1")

	rtx, err := d.BeginRead()
	require.NoError(t, err)
	defer rtx.Close()
	before := d.Stats()

	fkv.fail.Store(true)
	wtx, err := d.BeginWrite(context.Background())
	require.NoError(t, err)
	tbl, err := wtx.OpenTable(accounts)
	require.NoError(t, err)
	require.NoError(t, tbl.Insert([]byte("a"), []byte("2")))
	err = wtx.Commit()
	require.ErrorIs(t, err, db.ErrCommitFailed)
	require.ErrorIs(t, wtx.Commit(), db.ErrTransactionClosed)

	after := d.Stats()
	require.Equal(t, before.Head, after.Head)
	rtbl, err := rtx.OpenTable(accounts)
	require.NoError(t, err)
	require.Equal(t, "1", get(t, rtbl, "a"))

	fkv.fail.Store(false)
	insert(t, d, accounts, "a", "3")
	require.Equal(t, before.Head+1, d.Stats().Head)

	rtx2, err := d.BeginRead()
	require.NoError(t, err)
	defer rtx2.Close()
	rtbl, err = rtx2.OpenTable(accounts)
	require.NoError(t, err)
	require.Equal(t, "3", get(t, rtbl, "a"))
}

func TestCorruption(t *testing.T) {
	st, err := kv.MakeBTreeKV()
	require.NoError(t, err)
	d, err := db.Create("", &db.Options{KV: st})
	require.NoError(t, err)
	insert(t, d, accounts, "a", "1")
	require.NoError(t, d.Close())

	it, err := st.Iterate(page.FirstKey())
	require.NoError(t, err)
	var keys [][]byte
	for {
		err = it.Item(
			func(key, val []byte) error {
				if _, ok := page.ParseKey(key); ok {
					keys = append(keys, append([]byte(nil), key...))
				}
				return nil
			})
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
	}
	it.Close()
	require.NotEmpty(t, keys)

	upd, err := st.Update()
	require.NoError(t, err)
	for _, key := range keys {
		require.NoError(t, upd.Set(key, []byte("this is not a page at all")))
	}
	require.NoError(t, upd.Commit(true))

	d, err = db.Open("", &db.Options{KV: st})
	require.NoError(t, err)
	defer d.Close()
	rtx, err := d.BeginRead()
	require.NoError(t, err)
	defer rtx.Close()
	_, err = rtx.OpenTable(accounts)
	require.ErrorIs(t, err, db.ErrCorruption)
}

func TestOpen(t *testing.T) {
	_, err := db.Open("", &db.Options{Store: "memory"})
	require.ErrorIs(t, err, db.ErrNotFound)

	err = testutil.CleanDir("testdata", nil)
	require.NoError(t, err)
	_, err = db.Open(filepath.Join("testdata", "missing.bbolt"), nil)
	require.ErrorIs(t, err, db.ErrNotFound)

	st, err := kv.MakeBTreeKV()
	require.NoError(t, err)
	_, err = db.Open("", &db.Options{KV: st})
	require.ErrorIs(t, err, db.ErrNotFound)

	d, err := db.Create("", &db.Options{KV: st})
	require.NoError(t, err)
	require.NoError(t, d.Close())
	require.ErrorIs(t, d.Close(), db.ErrDatabaseClosed)
	_, err = d.BeginRead()
	require.ErrorIs(t, err, db.ErrDatabaseClosed)
	_, err = d.BeginWrite(context.Background())
	require.ErrorIs(t, err, db.ErrDatabaseClosed)
}

func TestReopen(t *testing.T) {
	err := testutil.CleanDir("testdata", nil)
	require.NoError(t, err)

	cases := []struct {
		store       string
		path        string
		compression page.Compression
	}{
		{"bbolt", filepath.Join("testdata", "reopen.bbolt"), page.NoCompression},
		{"badger", filepath.Join("testdata", "badger"), page.SnappyCompression},
		{"pebble", filepath.Join("testdata", "pebble"), page.ZstdCompression},
		{"bbolt", filepath.Join("testdata", "lz4.bbolt"), page.LZ4Compression},
	}

	for _, c := range cases {
		opts := &db.Options{
			Store:       c.store,
			Compression: c.compression,
			Logger:      testutil.SetupLogger(filepath.Join("testdata", "db_test.log")),
		}

		d, err := db.Create(c.path, opts)
		require.NoError(t, err, c.path)
		wtx, err := d.BeginWrite(context.Background())
		require.NoError(t, err)
		tbl, err := wtx.OpenTable(accounts)
		require.NoError(t, err)
		for key := 0; key < 500; key++ {
			require.NoError(t, tbl.Insert([]byte(fmt.Sprintf("key-%04d", key)),
				db.Uint64Value(uint64(key))))
		}
		require.NoError(t, wtx.Commit())

		// Hold the first version while superseding half of its pages.
		rtx, err := d.BeginRead()
		require.NoError(t, err)
		wtx, err = d.BeginWrite(context.Background())
		require.NoError(t, err)
		tbl, err = wtx.OpenTable(accounts)
		require.NoError(t, err)
		for key := 0; key < 250; key++ {
			require.NoError(t, tbl.Remove([]byte(fmt.Sprintf("key-%04d", key))))
		}
		require.NoError(t, wtx.Commit())
		head := d.Stats().Head
		require.Greater(t, d.Stats().Pending, 0)
		require.NoError(t, rtx.Close())
		require.NoError(t, d.Close())

		d, err = db.Open(c.path, opts)
		require.NoError(t, err, c.path)
		require.Equal(t, head, d.Stats().Head)

		rtx, err = d.BeginRead()
		require.NoError(t, err)
		rtbl, err := rtx.OpenTable(accounts)
		require.NoError(t, err)
		n, err := rtbl.Len()
		require.NoError(t, err)
		require.Equal(t, 250, n)
		val, ok, err := rtbl.Get([]byte("key-0499"))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, db.Uint64Value(499), val)
		require.NoError(t, rtx.Close())

		cr, err := d.Check()
		require.NoError(t, err)
		require.True(t, cr.OK(), "%s: missing: %v leaked: %v", c.path, cr.Missing, cr.Leaked)
		require.NoError(t, d.Close())
	}
}
