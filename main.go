// The main package for the comic-archiver executable.
package main

import (
	"github.com/JakeFAU/comic-archiver/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
