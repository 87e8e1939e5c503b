// Command tdsqa answers course forum questions from an embedding index built
// over scraped forum posts and course notes. It provides the scrape, convert
// and build tooling (via Cobra) and the HTTP answer service.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/tdsqa-go/cmd/tdsqa/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
