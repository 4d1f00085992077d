// The main package for the ads-crawler executable.
package main

import (
	"github.com/cargpt/ads-crawler/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
