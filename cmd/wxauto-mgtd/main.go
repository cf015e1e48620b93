// Command wxauto-mgtd runs the federation management service: it ingests
// messages from registered agent instances, resolves them through the
// rule engine and platform registry, and relays replies back. It follows
// the teacher's cmd/vega subcommand structure, swapping flag.FlagSet for
// cobra commands and adding viper-backed configuration the way the rest
// of the retrieved corpus (divinesense) builds its CLI surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

var rootCmd = &cobra.Command{
	Use:   "wxauto-mgtd",
	Short: "Federation management service for chat-automation agents",
}
