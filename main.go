// The main package for the trainwatch executable.
package main

import (
	"github.com/distml/trainwatch/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
