// Command schedulerd runs a scheduler instance.
package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/taskscheduler/internal/cli"
)

func main() {
	if err := cli.BuildCLI().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
