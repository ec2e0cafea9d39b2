package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/leftmike/cowdb/db"
)

const (
	cowdbHistory = ".cowdb_history"
)

func init() {
	cowdbCmd.AddCommand(
		&cobra.Command{
			Use:   "shell",
			Short: "Run an interactive session",
			RunE:  shellRun,
		})
}

type shell struct {
	db  *db.Database
	w   io.Writer
	rtx *db.ReadTx
	wtx *db.WriteTx
}

type shellCmd struct {
	args  string
	help  string
	nargs [2]int
	fn    func(sh *shell, args []string) error
}

var shellCmds map[string]shellCmd

func init() {
	shellCmds = map[string]shellCmd{
		"begin": {"", "begin a write transaction", [2]int{0, 0}, (*shell).begin},
		"read":  {"", "begin a read transaction", [2]int{0, 0}, (*shell).read},
		"tables": {"", "list the tables", [2]int{0, 0}, (*shell).tables},
		"get": {"<table> <key>", "print the value of key", [2]int{2, 2}, (*shell).get},
		"put": {"<table> <key> <value>", "set key to value", [2]int{3, 3}, (*shell).put},
		"del": {"<table> <key>", "remove key", [2]int{2, 2}, (*shell).del},
		"scan": {"<table> [<start> [<end>]]", "print the keys from start up to end",
			[2]int{1, 3}, (*shell).scan},
		"drop":   {"<table>", "delete the table", [2]int{1, 1}, (*shell).drop},
		"commit": {"", "commit the write transaction", [2]int{0, 0}, (*shell).commit},
		"abort": {"", "abort the write transaction or close the read transaction",
			[2]int{0, 0}, (*shell).abort},
		"stat": {"", "print statistics", [2]int{0, 0}, (*shell).stat},
		"help": {"", "print this help", [2]int{0, 0}, (*shell).help},
	}
}

func shellRun(cmd *cobra.Command, args []string) error {
	d, err := createDatabase(nil)
	if err != nil {
		return err
	}

	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)

	if f, err := os.Open(cowdbHistory); err == nil {
		line.ReadHistory(f)
		f.Close()
	}

	sh := &shell{
		db: d,
		w:  os.Stdout,
	}
	for {
		s, err := line.Prompt("cowdb: ")
		if err == io.EOF || err == liner.ErrPromptAborted {
			break
		} else if err != nil {
			sh.close()
			return closeDatabase(d, err)
		}
		line.AppendHistory(s)

		if sh.run(s) {
			break
		}
	}

	if f, err := os.Create(cowdbHistory); err != nil {
		fmt.Fprintf(os.Stderr, "cowdb: error writing history file, %s: %s", cowdbHistory, err)
	} else {
		line.WriteHistory(f)
		f.Close()
	}

	sh.close()
	return d.Close()
}

// run executes one line and returns true if the shell should quit.
func (sh *shell) run(s string) bool {
	args := strings.Fields(s)
	if len(args) == 0 {
		return false
	}
	if args[0] == "quit" || args[0] == "exit" {
		return true
	}

	sc, ok := shellCmds[args[0]]
	if !ok {
		fmt.Fprintf(sh.w, "unknown command: %s; try help\n", args[0])
		return false
	}
	if len(args)-1 < sc.nargs[0] || len(args)-1 > sc.nargs[1] {
		fmt.Fprintf(sh.w, "usage: %s %s\n", args[0], sc.args)
		return false
	}

	err := sc.fn(sh, args[1:])
	if err != nil {
		fmt.Fprintf(sh.w, "error: %s\n", err)
	}
	return false
}

func (sh *shell) close() {
	if sh.wtx != nil {
		sh.wtx.Close()
		sh.wtx = nil
	}
	if sh.rtx != nil {
		sh.rtx.Close()
		sh.rtx = nil
	}
}

func (sh *shell) begin(args []string) error {
	if sh.wtx != nil || sh.rtx != nil {
		return errors.New("transaction already in progress")
	}

	wtx, err := sh.db.BeginWrite(context.Background())
	if err != nil {
		return err
	}
	sh.wtx = wtx
	fmt.Fprintf(sh.w, "write transaction for version %d\n", wtx.Version())
	return nil
}

func (sh *shell) read(args []string) error {
	if sh.wtx != nil || sh.rtx != nil {
		return errors.New("transaction already in progress")
	}

	rtx, err := sh.db.BeginRead()
	if err != nil {
		return err
	}
	sh.rtx = rtx
	fmt.Fprintf(sh.w, "read transaction at version %d\n", rtx.Version())
	return nil
}

type shellTable interface {
	Get(key []byte) ([]byte, bool, error)
	Range(start, end []byte) (*db.Range, error)
}

// view calls fn with a table of the current transaction, or of a read transaction of its
// own if there is none.
func (sh *shell) view(name string, fn func(tbl shellTable) error) error {
	def := db.TableDefinition{Name: name}
	if sh.wtx != nil {
		tbl, err := sh.wtx.OpenTable(def)
		if err != nil {
			return err
		}
		return fn(tbl)
	}

	rtx := sh.rtx
	if rtx == nil {
		var err error
		rtx, err = sh.db.BeginRead()
		if err != nil {
			return err
		}
		defer rtx.Close()
	}
	tbl, err := rtx.OpenTable(def)
	if err != nil {
		return err
	}
	return fn(tbl)
}

func (sh *shell) writeTable(name string) (*db.Table, error) {
	if sh.wtx == nil {
		return nil, errors.New("no write transaction; use begin")
	}
	return sh.wtx.OpenTable(db.TableDefinition{Name: name})
}

func (sh *shell) tables(args []string) error {
	var names []string
	var err error
	if sh.wtx != nil {
		names, err = sh.wtx.ListTables()
	} else if sh.rtx != nil {
		names, err = sh.rtx.ListTables()
	} else {
		var rtx *db.ReadTx
		rtx, err = sh.db.BeginRead()
		if err != nil {
			return err
		}
		names, err = rtx.ListTables()
		rtx.Close()
	}
	if err != nil {
		return err
	}

	for _, name := range names {
		fmt.Fprintln(sh.w, name)
	}
	return nil
}

func (sh *shell) get(args []string) error {
	return sh.view(args[0],
		func(tbl shellTable) error {
			val, ok, err := tbl.Get([]byte(args[1]))
			if err != nil {
				return err
			} else if !ok {
				fmt.Fprintf(sh.w, "%s: not found\n", args[1])
			} else {
				fmt.Fprintf(sh.w, "%s = %s\n", args[1], val)
			}
			return nil
		})
}

func (sh *shell) put(args []string) error {
	tbl, err := sh.writeTable(args[0])
	if err != nil {
		return err
	}
	return tbl.Insert([]byte(args[1]), []byte(args[2]))
}

func (sh *shell) del(args []string) error {
	tbl, err := sh.writeTable(args[0])
	if err != nil {
		return err
	}
	return tbl.Remove([]byte(args[1]))
}

func (sh *shell) scan(args []string) error {
	var start, end []byte
	if len(args) > 1 {
		start = []byte(args[1])
	}
	if len(args) > 2 {
		end = []byte(args[2])
	}

	return sh.view(args[0],
		func(tbl shellTable) error {
			rng, err := tbl.Range(start, end)
			if err != nil {
				return err
			}
			defer rng.Close()

			tw := tablewriter.NewWriter(sh.w)
			tw.SetAutoFormatHeaders(false)
			tw.SetHeader([]string{"Key", "Value"})
			for {
				err = rng.Item(
					func(key, val []byte) error {
						tw.Append([]string{string(key), string(val)})
						return nil
					})
				if err == io.EOF {
					break
				} else if err != nil {
					return err
				}
			}
			tw.Render()
			return nil
		})
}

func (sh *shell) drop(args []string) error {
	if sh.wtx == nil {
		return errors.New("no write transaction; use begin")
	}

	ok, err := sh.wtx.DeleteTable(db.TableDefinition{Name: args[0]})
	if err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: %s", db.ErrTableNotFound, args[0])
	}
	return nil
}

func (sh *shell) commit(args []string) error {
	if sh.wtx == nil {
		return errors.New("no write transaction")
	}

	wtx := sh.wtx
	sh.wtx = nil
	err := wtx.Commit()
	if err != nil {
		return err
	}
	fmt.Fprintf(sh.w, "head is version %d\n", sh.db.Stats().Head)
	return nil
}

func (sh *shell) abort(args []string) error {
	if sh.wtx == nil && sh.rtx == nil {
		return errors.New("no transaction")
	}
	sh.close()
	return nil
}

func (sh *shell) stat(args []string) error {
	printStats(sh.w, sh.db.Stats())
	return nil
}

func (sh *shell) help(args []string) error {
	names := make([]string, 0, len(shellCmds))
	for name := range shellCmds {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sc := shellCmds[name]
		fmt.Fprintf(sh.w, "%-8s %-28s %s\n", name, sc.args, sc.help)
	}
	fmt.Fprintf(sh.w, "%-8s %-28s %s\n", "quit", "", "leave the shell")
	return nil
}
