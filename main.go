package main

import (
	"fmt"
	"os"

	_ "go.uber.org/automaxprocs"

	"github.com/leftmike/cowdb/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
