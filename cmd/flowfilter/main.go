// Command flowfilter edits the list-branch filters of workflow definitions.
package main

import (
	"os"

	"github.com/roach88/flowfilter/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:], os.Stdout, os.Stderr))
}
