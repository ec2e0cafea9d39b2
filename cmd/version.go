package cmd

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
	"github.com/spf13/cobra"

	"github.com/leftmike/cowdb/db"
)

const (
	cowdbVersion = "0.3.0"
)

func init() {
	cowdbCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of Cowdb",
			Run: func(cmd *cobra.Command, args []string) {
				format := semver.MustParse(db.FormatVersion)
				fmt.Printf("cowdb %s (file format %d.%d)\n", cowdbVersion, format.Major(),
					format.Minor())
			},
		})
}
