package cmd

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

func init() {
	cowdbCmd.AddCommand(
		&cobra.Command{
			Use:   "config",
			Short: "List the config variables and where their values came from",
			Run: func(cmd *cobra.Command, args []string) {
				tw := tablewriter.NewWriter(os.Stdout)
				tw.SetAutoFormatHeaders(false)
				tw.SetHeader([]string{"Variable", "Value", "By"})
				for _, v := range cfg.Vars() {
					tw.Append([]string{v.Name(), v.Value(), v.By().String()})
				}
				tw.Render()
			},
		})
}
