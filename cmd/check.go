package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func init() {
	cowdbCmd.AddCommand(
		&cobra.Command{
			Use:   "check",
			Short: "Verify every page of the database",
			RunE:  checkRun,
		})
}

func checkRun(cmd *cobra.Command, args []string) error {
	d, err := openDatabase()
	if err != nil {
		return err
	}

	cr, err := d.Check()
	if err != nil {
		return closeDatabase(d, err)
	}

	tw := tablewriter.NewWriter(os.Stdout)
	tw.SetAutoFormatHeaders(false)
	tw.SetHeader([]string{"Check", "Pages"})
	tw.AppendBulk([][]string{
		{"tables", fmt.Sprint(cr.Tables)},
		{"reachable", fmt.Sprint(cr.Reachable)},
		{"stored", fmt.Sprint(cr.Stored)},
		{"pending", fmt.Sprint(cr.Pending)},
		{"queued", fmt.Sprint(cr.Queued)},
		{"missing", fmt.Sprint(len(cr.Missing))},
		{"leaked", fmt.Sprint(len(cr.Leaked))},
	})
	tw.SetFooter([]string{"version", fmt.Sprint(cr.Version)})
	tw.Render()

	for _, pn := range cr.Missing {
		fmt.Printf("missing page %d\n", pn)
	}
	for _, pn := range cr.Leaked {
		fmt.Printf("leaked page %d\n", pn)
	}

	if !cr.OK() {
		err = errors.New("cowdb: check failed")
	}
	return closeDatabase(d, err)
}
