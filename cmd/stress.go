package cmd

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"os"
	"sort"
	"sync/atomic"

	"github.com/olekukonko/tablewriter"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/cobra"

	"github.com/leftmike/cowdb/db"
)

var (
	stressCmd = &cobra.Command{
		Use:   "stress",
		Short: "Check snapshots with concurrent readers while a writer commits",
		RunE:  stressRun,
	}

	stressReaders   = 8
	stressTransfers = 1000
	stressAccounts  = 100

	stressTable = db.TableDefinition{Name: "stress"}
)

const (
	stressBalance = 1000
)

func init() {
	fs := stressCmd.Flags()
	fs.IntVar(&stressReaders, "readers", stressReaders, "number of reader goroutines")
	fs.IntVar(&stressTransfers, "transfers", stressTransfers, "number of write transactions")
	fs.IntVar(&stressAccounts, "accounts", stressAccounts, "number of accounts")

	cowdbCmd.AddCommand(stressCmd)
}

func stressRun(cmd *cobra.Command, args []string) error {
	reg := prometheus.NewRegistry()
	d, err := createDatabase(reg)
	if err != nil {
		return err
	}

	snapshots, err := runStress(d, stressReaders, stressTransfers, stressAccounts)
	if err != nil {
		return closeDatabase(d, err)
	}
	fmt.Printf("%d transfers; %d snapshots checked by %d readers\n", stressTransfers, snapshots,
		stressReaders)

	err = printMetrics(os.Stdout, reg)
	return closeDatabase(d, err)
}

func stressKey(n int) []byte {
	return []byte(fmt.Sprintf("account-%06d", n))
}

func checkSnapshot(d *db.Database, accounts int) error {
	rtx, err := d.BeginRead()
	if err != nil {
		return err
	}
	defer rtx.Close()

	tbl, err := rtx.OpenTable(stressTable)
	if err != nil {
		return err
	}

	var want uint64
	for pass := 0; pass < 2; pass++ {
		rng, err := tbl.Iterate()
		if err != nil {
			return err
		}

		var sum uint64
		var cnt int
		for {
			err = rng.Item(
				func(key, val []byte) error {
					n, err := db.DecodeUint64(val)
					sum += n
					cnt += 1
					return err
				})
			if err != nil {
				break
			}
		}
		rng.Close()
		if err != io.EOF {
			return err
		}

		if cnt != accounts || sum != uint64(accounts)*stressBalance {
			return fmt.Errorf("stress: version %d: %d accounts with %d; want %d with %d",
				rtx.Version(), cnt, sum, accounts, uint64(accounts)*stressBalance)
		}
		if pass == 0 {
			want = sum
		} else if sum != want {
			return fmt.Errorf("stress: version %d: snapshot changed", rtx.Version())
		}
	}
	return nil
}

func transfer(d *db.Database, r *rand.Rand, accounts int) error {
	wtx, err := d.BeginWrite(context.Background())
	if err != nil {
		return err
	}
	defer wtx.Close()

	tbl, err := wtx.OpenTable(stressTable)
	if err != nil {
		return err
	}

	from, to := stressKey(r.Intn(accounts)), stressKey(r.Intn(accounts))
	val, _, err := tbl.Get(from)
	if err != nil {
		return err
	}
	fb, err := db.DecodeUint64(val)
	if err != nil {
		return err
	}
	amount := uint64(r.Int63n(int64(fb) + 1))
	err = tbl.Insert(from, db.Uint64Value(fb-amount))
	if err != nil {
		return err
	}

	val, _, err = tbl.Get(to)
	if err != nil {
		return err
	}
	tb, err := db.DecodeUint64(val)
	if err != nil {
		return err
	}
	err = tbl.Insert(to, db.Uint64Value(tb+amount))
	if err != nil {
		return err
	}
	return wtx.Commit()
}

func runStress(d *db.Database, readers, transfers, accounts int) (uint64, error) {
	wtx, err := d.BeginWrite(context.Background())
	if err != nil {
		return 0, err
	}
	_, err = wtx.DeleteTable(stressTable)
	if err != nil {
		wtx.Abort()
		return 0, err
	}
	tbl, err := wtx.OpenTable(stressTable)
	if err != nil {
		wtx.Abort()
		return 0, err
	}
	for n := 0; n < accounts; n++ {
		err = tbl.Insert(stressKey(n), db.Uint64Value(stressBalance))
		if err != nil {
			wtx.Abort()
			return 0, err
		}
	}
	err = wtx.Commit()
	if err != nil {
		return 0, err
	}

	var done atomic.Bool
	var snapshots atomic.Uint64
	p := pool.New().WithErrors().WithContext(context.Background()).WithCancelOnError()
	for n := 0; n < readers; n++ {
		p.Go(func(ctx context.Context) error {
			for !done.Load() && ctx.Err() == nil {
				err := checkSnapshot(d, accounts)
				if err != nil {
					return err
				}
				snapshots.Add(1)
			}
			return nil
		})
	}
	p.Go(func(ctx context.Context) error {
		defer done.Store(true)

		r := rand.New(rand.NewSource(int64(transfers)))
		for n := 0; n < transfers && ctx.Err() == nil; n++ {
			err := transfer(d, r, accounts)
			if err != nil {
				return err
			}
		}
		log.WithField("transfers", transfers).Info("stress writer done")
		return nil
	})

	err = p.Wait()
	return snapshots.Load(), err
}

func printMetrics(w io.Writer, reg *prometheus.Registry) error {
	mfs, err := reg.Gather()
	if err != nil {
		return err
	}
	sort.Slice(mfs, func(i, j int) bool { return mfs[i].GetName() < mfs[j].GetName() })

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"Metric", "Value"})
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var val string
			if c := m.GetCounter(); c != nil {
				val = fmt.Sprint(c.GetValue())
			} else if g := m.GetGauge(); g != nil {
				val = fmt.Sprint(g.GetValue())
			} else if h := m.GetHistogram(); h != nil {
				cnt := h.GetSampleCount()
				if cnt > 0 {
					val = fmt.Sprintf("%d samples, mean %.6fs", cnt, h.GetSampleSum()/float64(cnt))
				} else {
					val = "0 samples"
				}
			} else {
				continue
			}
			tw.Append([]string{mf.GetName(), val})
		}
	}
	tw.Render()
	return nil
}
