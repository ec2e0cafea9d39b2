package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/leftmike/cowdb/db"
)

func init() {
	cowdbCmd.AddCommand(
		&cobra.Command{
			Use:   "stat",
			Short: "Print statistics about the database",
			RunE: func(cmd *cobra.Command, args []string) error {
				d, err := openDatabase()
				if err != nil {
					return err
				}
				printStats(os.Stdout, d.Stats())
				return d.Close()
			},
		})
}

func printStats(w io.Writer, st db.Stats) {
	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"Statistic", "Value"})
	tw.AppendBulk([][]string{
		{"head version", fmt.Sprint(st.Head)},
		{"live versions", fmt.Sprint(st.Live)},
		{"pending pages", fmt.Sprint(st.Pending)},
		{"reclaimed pages", fmt.Sprint(st.Reclaimed)},
		{"queued pages", fmt.Sprint(st.Queued)},
		{"next page", fmt.Sprint(st.NextPage)},
		{"page reads", fmt.Sprint(st.PageReads)},
		{"cache hits", fmt.Sprint(st.CacheHits)},
		{"cache misses", fmt.Sprint(st.CacheMisses)},
	})
	tw.Render()
}
