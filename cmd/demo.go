package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"

	"github.com/leftmike/cowdb/db"
)

var (
	demoTable = db.TableDefinition{Name: "demo"}
	demoKey   = []byte("key")
)

func init() {
	cowdbCmd.AddCommand(
		&cobra.Command{
			Use:   "demo",
			Short: "Show a reader keeping its snapshot while a writer commits",
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := createDatabase(nil)
				if err != nil {
					return err
				}
				return closeDatabase(d, runDemo(d, os.Stdout))
			},
		})
}

func readDemoValue(tbl interface {
	Get(key []byte) ([]byte, bool, error)
}) (uint64, error) {
	val, ok, err := tbl.Get(demoKey)
	if err != nil {
		return 0, err
	} else if !ok {
		return 0, fmt.Errorf("demo: %s not found", demoKey)
	}
	return db.DecodeUint64(val)
}

func runDemo(d *db.Database, w io.Writer) error {
	wtx, err := d.BeginWrite(context.Background())
	if err != nil {
		return err
	}
	tbl, err := wtx.OpenTable(demoTable)
	if err != nil {
		wtx.Abort()
		return err
	}
	err = tbl.Insert(demoKey, db.Uint64Value(123))
	if err != nil {
		wtx.Abort()
		return err
	}
	err = wtx.Commit()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, "setup: committed key = 123")

	// The writer inserts 321 before the reader begins, and commits only after the reader has
	// read; the reader still sees 123 both times.
	inserted := make(chan struct{})
	var insertOnce sync.Once
	readerRead := make(chan struct{})
	var readOnce sync.Once
	writerDone := make(chan struct{})
	var readerErr, writerErr error

	var wg conc.WaitGroup
	wg.Go(func() {
		defer readOnce.Do(func() { close(readerRead) })
		readerErr = func() error {
			<-inserted
			rtx, err := d.BeginRead()
			if err != nil {
				return err
			}
			defer rtx.Close()

			tbl, err := rtx.OpenTable(demoTable)
			if err != nil {
				return err
			}
			n, err := readDemoValue(tbl)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "reader (version %d): key = %d before commit\n", rtx.Version(), n)
			readOnce.Do(func() { close(readerRead) })

			<-writerDone
			n, err = readDemoValue(tbl)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "reader (version %d): key = %d after commit\n", rtx.Version(), n)
			return nil
		}()
	})
	wg.Go(func() {
		defer close(writerDone)
		defer insertOnce.Do(func() { close(inserted) })
		writerErr = func() error {
			wtx, err := d.BeginWrite(context.Background())
			if err != nil {
				return err
			}
			defer wtx.Close()

			tbl, err := wtx.OpenTable(demoTable)
			if err != nil {
				return err
			}
			err = tbl.Insert(demoKey, db.Uint64Value(321))
			if err != nil {
				return err
			}
			n, err := readDemoValue(tbl)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "writer (version %d): key = %d before commit\n", wtx.Version(), n)
			insertOnce.Do(func() { close(inserted) })

			<-readerRead
			return wtx.Commit()
		}()
	})
	wg.Wait()

	if readerErr != nil {
		return readerErr
	} else if writerErr != nil {
		return writerErr
	}

	rtx, err := d.BeginRead()
	if err != nil {
		return err
	}
	defer rtx.Close()
	rtbl, err := rtx.OpenTable(demoTable)
	if err != nil {
		return err
	}
	n, err := readDemoValue(rtbl)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "new reader (version %d): key = %d\n", rtx.Version(), n)
	return nil
}
