// Command ptlsim runs Portals scenarios against the in-process engine and
// prints their event transcripts.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "ptlsim:", err)
		os.Exit(1)
	}
}
