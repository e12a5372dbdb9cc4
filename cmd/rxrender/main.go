// Command rxrender runs the prescription pipeline against local files.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newCLIApp(os.Stdout, os.Stderr).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
