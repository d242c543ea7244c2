// Command gridwalkd is the gridwalk layer ingestion and tile server.
package main

import (
	"fmt"
	"os"

	"github.com/gridwalk-io/gridwalk/cmd/gridwalkd/cli"
)

var version = "dev"

func main() {
	root := cli.NewRootCommand(version)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
