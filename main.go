// gh-sift crawls GitHub repository search results and scans each
// repository for vulnerable code patterns.
package main

import (
	"fmt"
	"os"

	"github.com/jparise/gh-sift/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
